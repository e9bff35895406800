package stock

import "errors"

var (
	// ErrStockConflict: a conditional quantity update matched zero rows because
	// a concurrent writer changed the row first. Callers treat it like
	// insufficient stock: re-check or fail the attempt, never assume applied.
	ErrStockConflict = errors.New("stock quantity changed concurrently")

	// ErrProductNotFound: no stock row exists for the product.
	ErrProductNotFound = errors.New("product not found")
)
