package sales

import (
	"context"
	"fmt"

	models "sales-forecast/database/models_pkg"

	"gorm.io/gorm"
)

// Repository reads sales history
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new sales repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListSales returns every sale of the business with its items, oldest first
func (r *Repository) ListSales(ctx context.Context, businessID string) ([]models.Sale, error) {
	var sales []models.Sale
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("business_id = ?", businessID).
		Order("timestamp ASC").
		Find(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("ListSales: %w", err)
	}
	return sales, nil
}
