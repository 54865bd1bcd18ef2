// Package forecast turns a tenant's sales history into per-product demand forecasts.
//
// The training path is Datastore → PrepareSalesData → GenerateFeatures → Trainer → ModelStore.
// The inference path is Datastore (optional history) → PrepareSinglePoint → Predictor → ModelStore.
// TopProducts fans the Predictor out over a tenant's catalog and caches the ranked result.
package forecast

import (
	"strings"
	"time"
)

// Transaction statuses
const (
	StatusCompleted       = "completed"
	StatusRefunded        = "refunded"
	StatusPartialRefunded = "partial_refunded"
	StatusPending         = "pending"
	StatusCancelled       = "cancelled"
)

// UncategorizedCategory replaces blank category names
const UncategorizedCategory = "Uncategorized"

// IsEligibleStatus reports whether a transaction with this status counts as a sale.
// Matching is case-insensitive.
func IsEligibleStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusCompleted, StatusPartialRefunded:
		return true
	}
	return false
}

// LineItem is one product line of a transaction
type LineItem struct {
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	Subtotal     float64 `json:"subtotal"`
}

// TransactionRecord is a sale as stored by the datastore
type TransactionRecord struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Timestamp time.Time  `json:"timestamp"`
	Status    string     `json:"status"`
	Items     []LineItem `json:"items"`
}

// Product is a catalog entry
type Product struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenant_id"`
	Name         string  `json:"name"`
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	SellingPrice float64 `json:"selling_price"`
	CurrentStock int     `json:"current_stock"`
}

// SalesRow is one (transaction, line item) pair after flattening
type SalesRow struct {
	TenantID    string
	SaleID      string
	SaleDate    time.Time // UTC midnight
	Status      string
	ProductID   string
	ProductName string
	Category    string
	CategoryID  string
	Quantity    float64
	Price       float64
	Total       float64
}

// SaleObservation is one historical (date, quantity, total) point for a single product
type SaleObservation struct {
	Date     time.Time `json:"date"`
	Quantity float64   `json:"quantity"`
	Total    float64   `json:"total"`
}

// truncateDay normalizes t to midnight UTC of its UTC calendar day
func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween is the whole number of calendar days from a to b (both day-truncated)
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
