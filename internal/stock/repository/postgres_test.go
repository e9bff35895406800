package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/schoenhaut/inventory-service/internal/model"
	"github.com/schoenhaut/inventory-service/internal/stock"
	"github.com/schoenhaut/inventory-service/internal/stock/dto"
)

func getPostgresDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=schoenhaut password=schoenhaut dbname=schoenhaut_inventory sslmode=disable"
	}

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}

	return db
}

func seedItem(t *testing.T, db *sqlx.DB, productID, name string, quantity int) {
	t.Helper()
	ctx := context.Background()

	db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, productID)
	_, err := db.ExecContext(ctx, `
		INSERT INTO stock_items (id, product_id, name, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (product_id) DO UPDATE SET quantity = EXCLUDED.quantity, name = EXCLUDED.name`,
		uuid.New().String(), productID, name, quantity,
	)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}

func TestUpdateQuantityCAS_Conflict(t *testing.T) {
	db := getPostgresDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewPGRepository(db)
	seedItem(t, db, "test-cas-item", "CAS Item", 5)

	// Matching expected value applies.
	if err := repo.UpdateQuantityCAS(ctx, "test-cas-item", 5, 4); err != nil {
		t.Fatalf("expected CAS success, got: %v", err)
	}

	// Stale expected value must not apply.
	err := repo.UpdateQuantityCAS(ctx, "test-cas-item", 5, 3)
	if !errors.Is(err, stock.ErrStockConflict) {
		t.Fatalf("expected ErrStockConflict, got: %v", err)
	}

	item, err := repo.GetByProduct(ctx, "test-cas-item")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if item.Quantity != 4 {
		t.Errorf("expected quantity 4, got %d", item.Quantity)
	}
}

func TestGetByProduct_Missing(t *testing.T) {
	db := getPostgresDB(t)
	defer db.Close()

	repo := NewPGRepository(db)
	item, err := repo.GetByProduct(context.Background(), "does-not-exist-"+uuid.New().String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Errorf("expected nil for a missing product, got %+v", item)
	}
}

func TestCreate_InsertsRow(t *testing.T) {
	db := getPostgresDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewPGRepository(db)
	productID := "test-create-" + uuid.New().String()

	now := time.Now()
	item := &model.StockItem{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		ProductID: productID,
		Name:      "Created Item",
		Quantity:  7,
	}
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := repo.GetByProduct(ctx, productID)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if got == nil || got.Quantity != 7 || got.Name != "Created Item" {
		t.Errorf("unexpected row: %+v", got)
	}
}

func TestBatchGetByProducts(t *testing.T) {
	db := getPostgresDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewPGRepository(db)
	seedItem(t, db, "test-batch-a", "Batch A", 3)
	seedItem(t, db, "test-batch-b", "Batch B", 7)

	items, err := repo.BatchGetByProducts(ctx, []string{"test-batch-a", "test-batch-b", "test-batch-missing"})
	if err != nil {
		t.Fatalf("batch read failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 rows (missing products are simply absent), got %d", len(items))
	}
}

func TestLogMovement_AndList(t *testing.T) {
	db := getPostgresDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewPGRepository(db)
	productID := fmt.Sprintf("test-log-item-%d", time.Now().UnixNano())
	seedItem(t, db, productID, "Log Item", 10)

	orderID := "test-order-1"
	entry := &model.StockLogEntry{
		ID:             uuid.New().String(),
		ProductID:      productID,
		OrderID:        &orderID,
		EventKind:      model.StockEventPurchase,
		QuantityChange: -2,
		QuantityBefore: 10,
		QuantityAfter:  8,
		Note:           "integration test",
		CreatedAt:      time.Now(),
	}
	if err := repo.LogMovement(ctx, entry); err != nil {
		t.Fatalf("log movement failed: %v", err)
	}

	movements, total, err := repo.ListMovements(ctx, &dto.MovementFilters{
		ProductID: productID,
		EventKind: string(model.StockEventPurchase),
		Page:      1,
		PageSize:  10,
	})
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if total != 1 || len(movements) != 1 {
		t.Fatalf("expected exactly one movement, got %d (total %d)", len(movements), total)
	}
	if movements[0].QuantityBefore != 10 || movements[0].QuantityAfter != 8 {
		t.Errorf("unexpected movement row: %+v", movements[0])
	}

	db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, productID)
	db.ExecContext(ctx, `DELETE FROM stock_items WHERE product_id = $1`, productID)
}

func TestAdjustWithMovement_Upserts(t *testing.T) {
	db := getPostgresDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewPGRepository(db)
	productID := fmt.Sprintf("test-adjust-item-%d", time.Now().UnixNano())

	now := time.Now()
	item := &model.StockItem{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		ProductID: productID,
		Name:      "Adjust Item",
		Quantity:  12,
	}
	entry := &model.StockLogEntry{
		ID:             uuid.New().String(),
		ProductID:      productID,
		EventKind:      model.StockEventManualAdjust,
		QuantityChange: 12,
		QuantityBefore: 0,
		QuantityAfter:  12,
		Note:           "initial count",
		CreatedAt:      now,
	}

	if err := repo.AdjustWithMovement(ctx, item, entry); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	got, err := repo.GetByProduct(ctx, productID)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got == nil || got.Quantity != 12 {
		t.Fatalf("expected upserted row with quantity 12, got %+v", got)
	}

	db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, productID)
	db.ExecContext(ctx, `DELETE FROM stock_items WHERE product_id = $1`, productID)
}
