package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/schoenhaut/inventory-service/internal/model"
	"github.com/schoenhaut/inventory-service/internal/stock"
	"github.com/schoenhaut/inventory-service/internal/stock/dto"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetByProduct(ctx context.Context, productID string) (*model.StockItem, error) {
	var item model.StockItem
	query := `SELECT * FROM stock_items WHERE product_id = $1`

	err := r.DB.GetContext(ctx, &item, query, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Return nil if no record found (caller treats as zero stock)
		}
		return nil, err
	}
	return &item, nil
}

func (r *PGRepository) BatchGetByProducts(ctx context.Context, productIDs []string) ([]model.StockItem, error) {
	if len(productIDs) == 0 {
		return []model.StockItem{}, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM stock_items WHERE product_id IN (?)`, productIDs)
	if err != nil {
		return nil, err
	}

	// Rebind for Postgres ($1, $2...)
	query = r.DB.Rebind(query)

	var items []model.StockItem
	err = r.DB.SelectContext(ctx, &items, query, args...)
	return items, err
}

func (r *PGRepository) Create(ctx context.Context, item *model.StockItem) error {
	query := `
        INSERT INTO stock_items (id, product_id, name, quantity, created_at, updated_at)
        VALUES (:id, :product_id, :name, :quantity, :created_at, :updated_at)
    `
	_, err := r.DB.NamedExecContext(ctx, query, item)
	return err
}

// UpdateQuantityCAS is the optimistic-concurrency write: the row is only
// changed while it still holds the quantity the caller observed. Zero rows
// matched means a concurrent writer got there first.
func (r *PGRepository) UpdateQuantityCAS(ctx context.Context, productID string, expected, next int) error {
	result, err := r.DB.ExecContext(ctx, `
		UPDATE stock_items
		SET quantity = $1, updated_at = $2
		WHERE product_id = $3 AND quantity = $4`,
		next, time.Now(), productID, expected,
	)
	if err != nil {
		return fmt.Errorf("update stock quantity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return stock.ErrStockConflict
	}
	return nil
}

func (r *PGRepository) UpdateQuantity(ctx context.Context, productID string, next int) error {
	result, err := r.DB.ExecContext(ctx, `
		UPDATE stock_items
		SET quantity = $1, updated_at = $2
		WHERE product_id = $3`,
		next, time.Now(), productID,
	)
	if err != nil {
		return fmt.Errorf("update stock quantity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return stock.ErrProductNotFound
	}
	return nil
}

func (r *PGRepository) LogMovement(ctx context.Context, entry *model.StockLogEntry) error {
	query := `
        INSERT INTO stock_movements (
            id, product_id, order_id, payment_id, event_kind,
            quantity_change, quantity_before, quantity_after,
            note, created_by, created_at
        )
        VALUES (
            :id, :product_id, :order_id, :payment_id, :event_kind,
            :quantity_change, :quantity_before, :quantity_after,
            :note, :created_by, :created_at
        )
    `
	_, err := r.DB.NamedExecContext(ctx, query, entry)
	return err
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockLogEntry, int, error) {
	var items []model.StockLogEntry
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.OrderID != "" {
		conditions = append(conditions, "order_id = :order_id")
		args["order_id"] = f.OrderID
	}
	if f.EventKind != "" {
		conditions = append(conditions, "event_kind = :event_kind")
		args["event_kind"] = f.EventKind
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at <= :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM stock_movements" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return nil, 0, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	query := "SELECT * FROM stock_movements" + whereClause + " ORDER BY created_at DESC"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

// AdjustWithMovement applies a manual absolute adjustment and its audit entry
// in one transaction. The upsert seeds the row when an admin counts a product
// that has never had stock before.
func (r *PGRepository) AdjustWithMovement(ctx context.Context, item *model.StockItem, entry *model.StockLogEntry) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsertQuery := `
        INSERT INTO stock_items (id, product_id, name, quantity, created_at, updated_at)
        VALUES (:id, :product_id, :name, :quantity, :created_at, :updated_at)
        ON CONFLICT (product_id)
        DO UPDATE SET
            quantity = EXCLUDED.quantity,
            updated_at = EXCLUDED.updated_at
    `
	_, err = tx.NamedExecContext(ctx, upsertQuery, item)
	if err != nil {
		return fmt.Errorf("failed to update stock item: %w", err)
	}

	insertLogQuery := `
        INSERT INTO stock_movements (
            id, product_id, order_id, payment_id, event_kind,
            quantity_change, quantity_before, quantity_after,
            note, created_by, created_at
        )
        VALUES (
            :id, :product_id, :order_id, :payment_id, :event_kind,
            :quantity_change, :quantity_before, :quantity_after,
            :note, :created_by, :created_at
        )
    `
	_, err = tx.NamedExecContext(ctx, insertLogQuery, entry)
	if err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}

	return tx.Commit()
}
