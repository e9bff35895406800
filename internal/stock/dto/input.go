package dto

// StockChangeRequest describes one requested change to a product's on-hand
// quantity. Quantity > 0 by caller convention.
type StockChangeRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note,omitempty"`
}

// CreateStockItemInput registers the stock row for a newly listed product.
type CreateStockItemInput struct {
	ProductID       string
	ProductName     string
	InitialQuantity int
	UserID          string
}

// AdjustStockInput sets a product's on-hand quantity to an absolute value.
type AdjustStockInput struct {
	ProductID   string
	ProductName string // used when the stock row does not exist yet
	NewQuantity int
	Note        string
	UserID      string
}
