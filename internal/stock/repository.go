package stock

import (
	"context"

	"github.com/schoenhaut/inventory-service/internal/model"
	"github.com/schoenhaut/inventory-service/internal/stock/dto"
)

type Repository interface {
	// Stock items
	GetByProduct(ctx context.Context, productID string) (*model.StockItem, error)
	BatchGetByProducts(ctx context.Context, productIDs []string) ([]model.StockItem, error)
	Create(ctx context.Context, item *model.StockItem) error

	// Core quantity writes
	// UpdateQuantityCAS writes next only if the row still holds expected,
	// returning ErrStockConflict otherwise.
	UpdateQuantityCAS(ctx context.Context, productID string, expected, next int) error
	UpdateQuantity(ctx context.Context, productID string, next int) error

	// Audit trail
	LogMovement(ctx context.Context, entry *model.StockLogEntry) error
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockLogEntry, int, error)

	// Transaction support
	AdjustWithMovement(ctx context.Context, item *model.StockItem, entry *model.StockLogEntry) error
}
