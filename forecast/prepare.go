package forecast

import (
	"log"
	"math"
	"strings"
)

// PrepareSalesData flattens transactions into one row per line item, keeps only
// eligible statuses, coerces bad numbers to 0 and fills blank categories.
func PrepareSalesData(transactions []TransactionRecord) []SalesRow {
	rows := make([]SalesRow, 0, len(transactions))
	for _, tx := range transactions {
		if !IsEligibleStatus(tx.Status) {
			continue
		}
		day := truncateDay(tx.Timestamp)
		for _, item := range tx.Items {
			rows = append(rows, SalesRow{
				TenantID:    tx.TenantID,
				SaleID:      tx.ID,
				SaleDate:    day,
				Status:      strings.ToLower(tx.Status),
				ProductID:   item.ProductID,
				ProductName: defaultString(item.ProductName, "Unknown Product"),
				Category:    normalizeCategory(item.CategoryName),
				CategoryID:  item.CategoryID,
				Quantity:    cleanNumber(item.Quantity),
				Price:       cleanNumber(item.UnitPrice),
				Total:       cleanNumber(item.Subtotal),
			})
		}
	}

	if len(rows) > 0 {
		products := make(map[string]struct{})
		categories := make(map[string]struct{})
		for _, r := range rows {
			products[r.ProductID] = struct{}{}
			categories[r.Category] = struct{}{}
		}
		log.Printf("🧾 Prepared %d flattened sales records (%d products, %d categories)", len(rows), len(products), len(categories))
	}
	return rows
}

// ProductHistory extracts the eligible (date, quantity, total) observations for one product
func ProductHistory(transactions []TransactionRecord, productID string) []SaleObservation {
	var history []SaleObservation
	for _, tx := range transactions {
		if !IsEligibleStatus(tx.Status) {
			continue
		}
		for _, item := range tx.Items {
			if item.ProductID != productID {
				continue
			}
			history = append(history, SaleObservation{
				Date:     truncateDay(tx.Timestamp),
				Quantity: cleanNumber(item.Quantity),
				Total:    cleanNumber(item.Subtotal),
			})
		}
	}
	return history
}

func normalizeCategory(name string) string {
	if strings.TrimSpace(name) == "" {
		return UncategorizedCategory
	}
	return name
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// cleanNumber maps NaN, ±Inf and negatives to 0
func cleanNumber(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// finite maps NaN and ±Inf to 0 and keeps everything else
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
