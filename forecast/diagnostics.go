package forecast

import (
	"context"
	"time"
)

// Prediction tiers by days of history
const (
	TierNone  = "none"  // under 7 days
	TierBasic = "basic" // under 30 days
	TierML    = "ml"
)

// DiagnosticsReport summarizes how much history a tenant has and whether its models are ready
type DiagnosticsReport struct {
	Status           string                   `json:"status"` // success, warning or error
	TenantID         string                   `json:"tenant_id"`
	SalesRecords     int                      `json:"sales_records"`
	DaysOfHistory    int                      `json:"days_of_history"`
	EarliestDate     *time.Time               `json:"earliest_date"`
	LatestDate       *time.Time               `json:"latest_date"`
	UniqueProducts   int                      `json:"unique_products"`
	UniqueCategories int                      `json:"unique_categories"`
	TotalItemsSold   float64                  `json:"total_items_sold"`
	ModelDirectory   string                   `json:"model_directory"`
	PredictionTier   string                   `json:"prediction_tier"`
	Models           map[Horizon]ArtifactInfo `json:"models"`
	TrainingRunning  bool                     `json:"training_in_progress"`
	Message          string                   `json:"message"`
}

// PredictionTier classifies a history length
func PredictionTier(daysOfHistory int) string {
	switch {
	case daysOfHistory < 7:
		return TierNone
	case daysOfHistory < 30:
		return TierBasic
	default:
		return TierML
	}
}

// Diagnose counts every transaction regardless of status, the way an operator sees the data
func Diagnose(tenantID string, transactions []TransactionRecord) DiagnosticsReport {
	report := DiagnosticsReport{
		TenantID:     tenantID,
		SalesRecords: len(transactions),
	}

	products := make(map[string]struct{})
	categories := make(map[string]struct{})
	var earliest, latest time.Time
	for i, tx := range transactions {
		if i == 0 || tx.Timestamp.Before(earliest) {
			earliest = tx.Timestamp
		}
		if i == 0 || tx.Timestamp.After(latest) {
			latest = tx.Timestamp
		}
		for _, item := range tx.Items {
			products[item.ProductID] = struct{}{}
			categories[normalizeCategory(item.CategoryName)] = struct{}{}
			report.TotalItemsSold += cleanNumber(item.Quantity)
		}
	}

	if len(transactions) > 0 {
		report.EarliestDate = &earliest
		report.LatestDate = &latest
		report.DaysOfHistory = daysBetween(truncateDay(earliest), truncateDay(latest)) + 1
	}
	report.UniqueProducts = len(products)
	report.UniqueCategories = len(categories)
	report.PredictionTier = PredictionTier(report.DaysOfHistory)
	return report
}

// Diagnostics combines the history summary with model availability
func (s *Service) Diagnostics(ctx context.Context, tenantID string) DiagnosticsReport {
	transactions, err := s.data.ListTransactions(ctx, tenantID)
	if err != nil {
		return DiagnosticsReport{
			Status:         "error",
			TenantID:       tenantID,
			ModelDirectory: s.store.Location(),
			PredictionTier: TierNone,
			Message:        err.Error(),
		}
	}

	report := Diagnose(tenantID, transactions)
	report.ModelDirectory = s.store.Location()

	status := s.ModelStatus(ctx, tenantID)
	report.Models = status.Models
	if s.lock != nil {
		report.TrainingRunning = s.lock.IsLocked(ctx, tenantID)
	}
	if status.AllModelsAvailable {
		report.Status = "success"
		report.Message = "Models are ready"
	} else {
		report.Status = "warning"
		report.Message = "Models need training"
	}
	return report
}
