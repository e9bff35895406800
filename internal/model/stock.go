package model

import "time"

// StockEventKind classifies a stock mutation in the audit trail.
type StockEventKind string

const (
	StockEventPurchase     StockEventKind = "purchase"
	StockEventRefund       StockEventKind = "refund"
	StockEventManualAdjust StockEventKind = "manual_adjust"
	StockEventCancelled    StockEventKind = "cancelled"
)

// StockItem holds the current on-hand quantity for one sellable product.
// Quantity is never negative; every change goes through the ledger and
// produces exactly one StockLogEntry.
type StockItem struct {
	BaseModel
	ProductID string `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	Quantity  int    `db:"quantity" json:"quantity"`
}

// StockLogEntry is one immutable row of the append-only audit trail.
// QuantityAfter = QuantityBefore + QuantityChange.
type StockLogEntry struct {
	ID             string         `db:"id" json:"id"`
	ProductID      string         `db:"product_id" json:"product_id"`
	OrderID        *string        `db:"order_id" json:"order_id"`
	PaymentID      *string        `db:"payment_id" json:"payment_id"`
	EventKind      StockEventKind `db:"event_kind" json:"event_kind"`
	QuantityChange int            `db:"quantity_change" json:"quantity_change"`
	QuantityBefore int            `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int            `db:"quantity_after" json:"quantity_after"`
	Note           string         `db:"note" json:"note"`
	CreatedBy      *string        `db:"created_by" json:"created_by"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}
