package database

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"sales-forecast/database/inventory"
	models "sales-forecast/database/models_pkg"
	"sales-forecast/database/sales"
	"sales-forecast/database/webhooks"
	"sales-forecast/forecast"
)

// Repository is the application's single entry point to the database.
// It satisfies forecast.Datastore.
type Repository struct {
	db        *Database
	sales     *sales.Repository
	inventory *inventory.Repository
	webhooks  *webhooks.Repository
}

// NewRepository creates the facade over every sub-repository
func NewRepository(db *Database) *Repository {
	return &Repository{
		db:        db,
		sales:     sales.NewRepository(db.db),
		inventory: inventory.NewRepository(db.db),
		webhooks:  webhooks.NewRepository(db.db),
	}
}

// InitSchema creates or updates every table
func (r *Repository) InitSchema() error {
	log.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&models.Category{},
		&models.Product{},
		&models.Sale{},
		&models.SaleItem{},
		&models.TrainingWebhook{},
		&models.TrainingWebhookLog{},
	)
	if err != nil {
		return WrapDBError("InitSchema", err)
	}

	log.Println("✅ Database schema initialized")
	return nil
}

// ListTransactions returns every sale of the tenant as forecast records
func (r *Repository) ListTransactions(ctx context.Context, tenantID string) ([]forecast.TransactionRecord, error) {
	rows, err := r.sales.ListSales(ctx, tenantID)
	if err != nil {
		return nil, WrapDBError("ListTransactions", err)
	}
	out := make([]forecast.TransactionRecord, len(rows))
	for i := range rows {
		out[i] = toTransactionRecord(&rows[i])
	}
	return out, nil
}

// GetProduct returns nil, nil when the product does not exist
func (r *Repository) GetProduct(ctx context.Context, tenantID, productID string) (*forecast.Product, error) {
	p, err := r.inventory.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, WrapDBError("GetProduct", err)
	}
	if p == nil {
		return nil, nil
	}
	product := toProduct(p)
	return &product, nil
}

// ListProducts returns the tenant's active catalog
func (r *Repository) ListProducts(ctx context.Context, tenantID string) ([]forecast.Product, error) {
	rows, err := r.inventory.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, WrapDBError("ListProducts", err)
	}
	out := make([]forecast.Product, len(rows))
	for i := range rows {
		out[i] = toProduct(&rows[i])
	}
	return out, nil
}

// ListWebhooks returns the tenant's training webhooks
func (r *Repository) ListWebhooks(ctx context.Context, tenantID string) ([]TrainingWebhook, error) {
	hooks, err := r.webhooks.ListWebhooks(ctx, tenantID)
	return hooks, WrapDBError("ListWebhooks", err)
}

// CreateWebhook validates and stores a webhook
func (r *Repository) CreateWebhook(ctx context.Context, hook *TrainingWebhook) error {
	if hook.BusinessID == "" {
		return NewValidationError("business_id", "required")
	}
	if hook.URL == "" {
		return NewValidationError("url", "required")
	}
	if hook.Name == "" {
		hook.Name = hook.URL
	}
	if u, err := url.Parse(hook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationErrorWithValue("url", "must be an absolute http(s) URL", hook.URL)
	}
	hook.Method = strings.ToUpper(strings.TrimSpace(hook.Method))
	switch hook.Method {
	case "":
		hook.Method = "POST"
	case "POST", "PUT":
	default:
		return NewValidationErrorWithValue("method", "must be POST or PUT", hook.Method)
	}
	hook.IsActive = true
	return WrapDBError("CreateWebhook", r.webhooks.CreateWebhook(ctx, hook))
}

// DeleteWebhook removes one of the tenant's webhooks
func (r *Repository) DeleteWebhook(ctx context.Context, tenantID string, id int) error {
	removed, err := r.webhooks.DeleteWebhook(ctx, tenantID, id)
	if err != nil {
		return WrapDBError("DeleteWebhook", err)
	}
	if !removed {
		return NewNotFoundErrorWithID("webhook", id)
	}
	return nil
}

// GetActiveWebhooks returns the active webhooks of every tenant
func (r *Repository) GetActiveWebhooks(ctx context.Context) ([]TrainingWebhook, error) {
	hooks, err := r.webhooks.GetActiveWebhooks(ctx)
	return hooks, WrapDBError("GetActiveWebhooks", err)
}

// SaveWebhookLog stores a delivery attempt and updates the webhook's counters
func (r *Repository) SaveWebhookLog(ctx context.Context, entry *TrainingWebhookLog) error {
	if err := r.webhooks.SaveWebhookLog(ctx, entry); err != nil {
		return WrapDBError("SaveWebhookLog", err)
	}
	success := entry.Status == DeliverySuccess
	return WrapDBError("SaveWebhookLog", r.webhooks.RecordDelivery(ctx, entry.WebhookID, success, entry.ErrorMessage, entry.TriggeredAt))
}

// ListDeliveryLogs returns a webhook's latest delivery attempts
func (r *Repository) ListDeliveryLogs(ctx context.Context, webhookID, limit int) ([]TrainingWebhookLog, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	logs, err := r.webhooks.ListDeliveryLogs(ctx, webhookID, limit)
	return logs, WrapDBError("ListDeliveryLogs", err)
}

func toTransactionRecord(s *models.Sale) forecast.TransactionRecord {
	items := make([]forecast.LineItem, len(s.Items))
	for i, it := range s.Items {
		items[i] = forecast.LineItem{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			CategoryID:   it.CategoryID,
			CategoryName: it.CategoryName,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			Subtotal:     it.Subtotal,
		}
	}
	return forecast.TransactionRecord{
		ID:        s.ID,
		TenantID:  s.BusinessID,
		Timestamp: s.Timestamp.In(time.UTC),
		Status:    s.Status,
		Items:     items,
	}
}

func toProduct(p *models.Product) forecast.Product {
	out := forecast.Product{
		ID:           p.ID,
		TenantID:     p.BusinessID,
		Name:         p.Name,
		SellingPrice: p.SellingPrice,
		CurrentStock: p.CurrentStock,
	}
	if p.CategoryID != nil {
		out.CategoryID = *p.CategoryID
	}
	if p.Category != nil {
		out.CategoryName = p.Category.Name
	}
	return out
}
