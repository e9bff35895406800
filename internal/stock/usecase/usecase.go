package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schoenhaut/inventory-service/internal/model"
	"github.com/schoenhaut/inventory-service/internal/stock"
	"github.com/schoenhaut/inventory-service/internal/stock/dto"
	"github.com/schoenhaut/inventory-service/pkg/logger"
	"github.com/schoenhaut/inventory-service/pkg/search"
	"go.uber.org/zap"
)

const movementIndex = "stock_movements"

type stockUseCase struct {
	repo   stock.Repository
	locker stock.Locker
	es     *search.Client
	logger logger.ZapLogger
}

func NewStockUseCase(repo stock.Repository, locker stock.Locker, es *search.Client, log logger.ZapLogger) stock.UseCase {
	return &stockUseCase{
		repo:   repo,
		locker: locker,
		es:     es,
		logger: log,
	}
}

// CreateStockItem registers the stock row for a newly listed product. Calling
// it again for the same product returns the existing row untouched, so the
// catalog service can safely retry. A non-zero initial quantity is recorded in
// the movement trail like any other change.
func (uc *stockUseCase) CreateStockItem(ctx context.Context, input *dto.CreateStockItemInput) (*model.StockItem, error) {
	if input.InitialQuantity < 0 {
		return nil, fmt.Errorf("initial quantity must not be negative, got %d", input.InitialQuantity)
	}

	existing, err := uc.repo.GetByProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	item := &model.StockItem{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		ProductID: input.ProductID,
		Name:      input.ProductName,
		Quantity:  input.InitialQuantity,
	}
	if err := uc.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create stock item for %s: %w", input.ProductID, err)
	}

	if input.InitialQuantity > 0 {
		var createdBy *string
		if input.UserID != "" {
			createdBy = &input.UserID
		}
		uc.appendLog(ctx, &model.StockLogEntry{
			ID:             uuid.New().String(),
			ProductID:      input.ProductID,
			EventKind:      model.StockEventManualAdjust,
			QuantityChange: input.InitialQuantity,
			QuantityBefore: 0,
			QuantityAfter:  input.InitialQuantity,
			Note:           "initial stock",
			CreatedBy:      createdBy,
			CreatedAt:      now,
		})
	}

	return item, nil
}

// CheckAvailability reads current quantities for every requested product in
// one batched query. A product with no stock row counts as zero on hand.
// Multiple lines for the same product are checked against the shared pool, so
// a batch cannot pass the check while its lines jointly exceed what is there.
func (uc *stockUseCase) CheckAvailability(ctx context.Context, items []dto.StockChangeRequest) (*dto.AvailabilityResult, error) {
	ids := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}

	stockItems, err := uc.repo.BatchGetByProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read stock levels: %w", err)
	}

	byProduct := make(map[string]*model.StockItem, len(stockItems))
	for i := range stockItems {
		byProduct[stockItems[i].ProductID] = &stockItems[i]
	}

	result := &dto.AvailabilityResult{AllAvailable: true}
	remaining := map[string]int{}

	for _, it := range items {
		name := it.ProductID
		inStock := 0
		if si, ok := byProduct[it.ProductID]; ok {
			name = si.Name
			inStock = si.Quantity
		}
		if _, ok := remaining[it.ProductID]; !ok {
			remaining[it.ProductID] = inStock
		}

		entry := dto.ItemAvailability{
			ProductID:   it.ProductID,
			ProductName: name,
			Requested:   it.Quantity,
			InStock:     inStock,
			Available:   remaining[it.ProductID] >= it.Quantity,
		}
		if entry.Available {
			remaining[it.ProductID] -= it.Quantity
		} else {
			result.AllAvailable = false
			result.Unavailable = append(result.Unavailable, entry)
		}
		result.Items = append(result.Items, entry)
	}

	return result, nil
}

// DecreaseStock commits inventory to a confirmed sale. It re-checks
// availability against current quantities, rejects the whole batch if any
// line is short, then applies each line with a conditional update that only
// succeeds while the row still holds the just-observed quantity.
//
// Atomicity holds per line, not across the batch: if the store fails after
// some lines of a multi-product batch have been applied, the applied lines
// stay applied. The audit trail always allows recomputing true state.
func (uc *stockUseCase) DecreaseStock(ctx context.Context, items []dto.StockChangeRequest, orderID, paymentID string) (*dto.OperationResult, error) {
	avail, err := uc.CheckAvailability(ctx, items)
	if err != nil {
		return nil, err
	}
	if !avail.AllAvailable {
		return &dto.OperationResult{
			Success:     false,
			Error:       insufficientSummary(avail.Unavailable),
			FailedItems: avail.Unavailable,
		}, nil
	}

	for _, it := range items {
		// The CAS basis must be read right before the write, never carried
		// over from an earlier checkout step.
		item, err := uc.repo.GetByProduct(ctx, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("read stock for %s: %w", it.ProductID, err)
		}
		if item == nil || item.Quantity < it.Quantity {
			failed := itemShortage(item, it)
			return &dto.OperationResult{
				Success:     false,
				Error:       insufficientSummary([]dto.ItemAvailability{failed}),
				FailedItems: []dto.ItemAvailability{failed},
			}, nil
		}

		next := item.Quantity - it.Quantity
		if err := uc.repo.UpdateQuantityCAS(ctx, it.ProductID, item.Quantity, next); err != nil {
			if errors.Is(err, stock.ErrStockConflict) {
				failed := itemShortage(item, it)
				return &dto.OperationResult{
					Success:     false,
					Conflict:    true,
					Error:       fmt.Sprintf("stock for %q changed concurrently, purchase not applied", item.Name),
					FailedItems: []dto.ItemAvailability{failed},
				}, nil
			}
			return nil, err
		}

		uc.appendLog(ctx, &model.StockLogEntry{
			ID:             uuid.New().String(),
			ProductID:      it.ProductID,
			OrderID:        optional(orderID),
			PaymentID:      optional(paymentID),
			EventKind:      model.StockEventPurchase,
			QuantityChange: -it.Quantity,
			QuantityBefore: item.Quantity,
			QuantityAfter:  next,
			Note:           it.Note,
			CreatedAt:      time.Now(),
		})
	}

	return &dto.OperationResult{Success: true}, nil
}

// IncreaseStock returns quantity to the pool on refund or cancellation.
// There is no insufficient-capacity failure mode for an increase, so the
// write is unconditional. A product that no longer exists is skipped rather
// than blocking the rest of the batch.
func (uc *stockUseCase) IncreaseStock(ctx context.Context, items []dto.StockChangeRequest, orderID, paymentID string, kind model.StockEventKind) (*dto.OperationResult, error) {
	if kind != model.StockEventCancelled {
		kind = model.StockEventRefund
	}

	for _, it := range items {
		item, err := uc.repo.GetByProduct(ctx, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("read stock for %s: %w", it.ProductID, err)
		}
		if item == nil {
			uc.logger.Warn("skipping stock return for unknown product",
				zap.String("product_id", it.ProductID),
				zap.String("order_id", orderID),
			)
			continue
		}

		next := item.Quantity + it.Quantity
		if err := uc.repo.UpdateQuantity(ctx, it.ProductID, next); err != nil {
			return nil, err
		}

		uc.appendLog(ctx, &model.StockLogEntry{
			ID:             uuid.New().String(),
			ProductID:      it.ProductID,
			OrderID:        optional(orderID),
			PaymentID:      optional(paymentID),
			EventKind:      kind,
			QuantityChange: it.Quantity,
			QuantityBefore: item.Quantity,
			QuantityAfter:  next,
			Note:           it.Note,
			CreatedAt:      time.Now(),
		})
	}

	return &dto.OperationResult{Success: true}, nil
}

// AdjustStock sets a product's quantity to an absolute value for manual
// correction. The short distributed lock keeps two admins from interleaving
// their read-modify-write; the purchase path does not take it.
func (uc *stockUseCase) AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.StockItem, error) {
	if input.NewQuantity < 0 {
		return nil, fmt.Errorf("target quantity must not be negative, got %d", input.NewQuantity)
	}

	if uc.locker != nil {
		lockKey := "lock:stock:" + input.ProductID
		lockValue := uuid.New().String()

		acquired := false
		for i := 0; i < 3; i++ {
			ok, err := uc.locker.AcquireLock(ctx, lockKey, lockValue, 5*time.Second)
			if err != nil {
				uc.logger.Error("failed to acquire stock lock", zap.Error(err))
			}
			if ok {
				acquired = true
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		if !acquired {
			return nil, errors.New("stock item busy, please try again later")
		}
		defer uc.locker.ReleaseLock(ctx, lockKey, lockValue)
	}

	item, err := uc.repo.GetByProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if item == nil {
		item = &model.StockItem{
			BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
			ProductID: input.ProductID,
			Name:      input.ProductName,
			Quantity:  0,
		}
	}

	quantityBefore := item.Quantity
	item.Quantity = input.NewQuantity
	item.UpdatedAt = now

	var createdBy *string
	if input.UserID != "" {
		createdBy = &input.UserID
	}

	entry := &model.StockLogEntry{
		ID:             uuid.New().String(),
		ProductID:      input.ProductID,
		EventKind:      model.StockEventManualAdjust,
		QuantityChange: input.NewQuantity - quantityBefore,
		QuantityBefore: quantityBefore,
		QuantityAfter:  input.NewQuantity,
		Note:           input.Note,
		CreatedBy:      createdBy,
		CreatedAt:      now,
	}

	if err := uc.repo.AdjustWithMovement(ctx, item, entry); err != nil {
		return nil, err
	}

	go uc.indexMovement(context.Background(), entry)

	return item, nil
}

func (uc *stockUseCase) GetStockItem(ctx context.Context, productID string) (*model.StockItem, error) {
	item, err := uc.repo.GetByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return &model.StockItem{ProductID: productID, Quantity: 0}, nil
	}
	return item, nil
}

func (uc *stockUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockLogEntry, int, error) {
	return uc.repo.ListMovements(ctx, filters)
}

// appendLog records the audit entry for an already-committed quantity change.
// A failed append must not roll the change back: the quantity is correct, the
// trail has a gap, and that gap is reported through the log channel instead.
func (uc *stockUseCase) appendLog(ctx context.Context, entry *model.StockLogEntry) {
	if err := uc.repo.LogMovement(ctx, entry); err != nil {
		uc.logger.Error("failed to append stock movement, quantity change stands",
			zap.String("product_id", entry.ProductID),
			zap.String("event_kind", string(entry.EventKind)),
			zap.Int("quantity_change", entry.QuantityChange),
			zap.Error(err),
		)
		return
	}

	go uc.indexMovement(context.Background(), entry)
}

func (uc *stockUseCase) indexMovement(ctx context.Context, entry *model.StockLogEntry) {
	if uc.es == nil {
		return
	}
	if err := uc.es.Index(ctx, movementIndex, entry.ID, entry); err != nil {
		uc.logger.Warn("failed to index stock movement",
			zap.String("movement_id", entry.ID),
			zap.Error(err),
		)
	}
}

func insufficientSummary(shortages []dto.ItemAvailability) string {
	parts := make([]string, len(shortages))
	for i, s := range shortages {
		parts[i] = fmt.Sprintf("%s (requested %d, in stock %d)", s.ProductName, s.Requested, s.InStock)
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func itemShortage(item *model.StockItem, req dto.StockChangeRequest) dto.ItemAvailability {
	name := req.ProductID
	inStock := 0
	if item != nil {
		name = item.Name
		inStock = item.Quantity
	}
	return dto.ItemAvailability{
		ProductID:   req.ProductID,
		ProductName: name,
		Requested:   req.Quantity,
		InStock:     inStock,
		Available:   false,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
