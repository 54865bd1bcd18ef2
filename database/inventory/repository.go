package inventory

import (
	"context"
	"errors"
	"fmt"

	models "sales-forecast/database/models_pkg"

	"gorm.io/gorm"
)

// Repository reads the product catalog
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new inventory repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetProduct returns nil, nil when the product does not exist
func (r *Repository) GetProduct(ctx context.Context, businessID, productID string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("business_id = ? AND id = ?", businessID, productID).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetProduct: %w", err)
	}
	return &product, nil
}

// ListProducts returns the business's active products ordered by name
func (r *Repository) ListProducts(ctx context.Context, businessID string) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("business_id = ? AND is_active = ?", businessID, true).
		Order("name ASC").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("ListProducts: %w", err)
	}
	return products, nil
}
