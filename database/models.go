// Package database provides persistence for the sales forecasting service.
//
// GORM runs on top of a lib/pq connection pool. Sales history and the product catalog
// are read through the sales and inventory repositories; training webhooks and their
// delivery logs live in the webhooks repository. Repository is the facade the rest of
// the application uses and satisfies forecast.Datastore.
//
// Data Models:
//
//	All data models (Sale, SaleItem, Product, ...) are defined in the models_pkg package
//	to avoid circular import dependencies.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "sales-forecast/database/models_pkg"
)

// Database holds the GORM database connection
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect opens the connection pool and hands it to GORM
func Connect(cfg Config) (*Database, error) {
	pool, err := openPool(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: pool}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type Sale = models.Sale
type SaleItem = models.SaleItem
type Category = models.Category
type Product = models.Product
type TrainingWebhook = models.TrainingWebhook
type TrainingWebhookLog = models.TrainingWebhookLog
