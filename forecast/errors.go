package forecast

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoProducts is returned when a tenant's catalog is empty
	ErrNoProducts = errors.New("No products found in inventory")

	// ErrNoFeatures is returned when feature generation produced no rows
	ErrNoFeatures = errors.New("No valid sales data found after processing")

	// ErrTrainingInProgress is returned when another run holds the tenant's training lock
	ErrTrainingInProgress = errors.New("Training already in progress for this tenant")

	// ErrInvalidHorizon is returned for a horizon name outside daily/weekly/monthly
	ErrInvalidHorizon = errors.New("invalid horizon")
)

// InsufficientDataError means the tenant has too few eligible sales rows to train
type InsufficientDataError struct {
	Rows     int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("Not enough sales data for training: %d eligible rows, at least %d required", e.Rows, e.Required)
}

// ModelNotFoundError means no artifact exists for the listed horizons
type ModelNotFoundError struct {
	TenantID string
	Horizons []Horizon
}

func (e *ModelNotFoundError) Error() string {
	names := make([]string, len(e.Horizons))
	for i, h := range e.Horizons {
		names[i] = string(h)
	}
	if len(names) == 1 {
		return fmt.Sprintf("Model for %s predictions not trained yet. Please train models first.", names[0])
	}
	return fmt.Sprintf("Models for %s predictions not trained yet. Please train models first.", strings.Join(names, ", "))
}

// SchemaMismatchError means a horizon's target could not be computed from the feature table
type SchemaMismatchError struct {
	Horizon Horizon
	Reason  string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("cannot train %s model: %s", e.Horizon, e.Reason)
}

// CategoryNotFoundError is returned when a category filter leaves no products
type CategoryNotFoundError struct {
	Category string
}

func (e *CategoryNotFoundError) Error() string {
	return fmt.Sprintf("No products found in category: %s", e.Category)
}

// IsModelNotFound reports whether err is (or wraps) a ModelNotFoundError
func IsModelNotFound(err error) bool {
	var target *ModelNotFoundError
	return errors.As(err, &target)
}

// IsInsufficientData reports whether err is (or wraps) an InsufficientDataError
func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}
