package stock

import (
	"context"
	"time"

	"github.com/schoenhaut/inventory-service/internal/model"
	"github.com/schoenhaut/inventory-service/internal/stock/dto"
)

// UseCase is the stock ledger: the only write path for on-hand quantities.
//
// DecreaseStock and IncreaseStock return a structured result for the expected
// business failures (insufficient stock, lost conditional-update race) and a
// Go error only for infrastructure failures, where availability is unknown
// rather than false.
type UseCase interface {
	CreateStockItem(ctx context.Context, input *dto.CreateStockItemInput) (*model.StockItem, error)
	CheckAvailability(ctx context.Context, items []dto.StockChangeRequest) (*dto.AvailabilityResult, error)
	DecreaseStock(ctx context.Context, items []dto.StockChangeRequest, orderID, paymentID string) (*dto.OperationResult, error)
	IncreaseStock(ctx context.Context, items []dto.StockChangeRequest, orderID, paymentID string, kind model.StockEventKind) (*dto.OperationResult, error)
	AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.StockItem, error)
	GetStockItem(ctx context.Context, productID string) (*model.StockItem, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockLogEntry, int, error)
}

// Locker is the distributed-lock surface used by the manual adjustment path.
// A nil Locker disables locking; the purchase path never locks, it relies on
// the store's conditional update.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}
