package dto

import "time"

type ItemAvailability struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Requested   int    `json:"requested"`
	InStock     int    `json:"in_stock"`
	Available   bool   `json:"available"`
}

type AvailabilityResult struct {
	AllAvailable bool               `json:"all_available"`
	Items        []ItemAvailability `json:"items"`
	Unavailable  []ItemAvailability `json:"unavailable,omitempty"`
}

// OperationResult reports the outcome of a batch decrement or increment.
// Conflict marks a lost conditional-update race: the caller may re-submit,
// unlike plain insufficient stock where re-submitting cannot help.
type OperationResult struct {
	Success     bool               `json:"success"`
	Error       string             `json:"error,omitempty"`
	Conflict    bool               `json:"conflict,omitempty"`
	FailedItems []ItemAvailability `json:"failed_items,omitempty"`
}

type MovementFilters struct {
	ProductID string
	OrderID   string
	EventKind string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}
