package models

import "time"

// Sale is a point-of-sale transaction of one business (tenant).
// Only completed and partially refunded sales count as demand.
type Sale struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	BusinessID  string     `gorm:"size:36;index:idx_sales_business_time;not null" json:"business_id"`
	CustomerID  *string    `gorm:"size:36" json:"customer_id,omitempty"`
	Timestamp   time.Time  `gorm:"index:idx_sales_business_time;not null" json:"timestamp"`
	Status      string     `gorm:"size:20;index;not null;default:completed" json:"status"` // completed, refunded, partial_refunded, pending, cancelled
	Subtotal    float64    `gorm:"type:decimal(15,2)" json:"subtotal"`
	Tax         float64    `gorm:"type:decimal(15,2)" json:"tax"`
	Discount    float64    `gorm:"type:decimal(15,2)" json:"discount"`
	TotalAmount float64    `gorm:"type:decimal(15,2)" json:"total_amount"`
	Items       []SaleItem `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Sale
func (Sale) TableName() string {
	return "sales"
}

// SaleItem is one product line of a sale. Product and category names are copied
// at sale time so history survives catalog edits.
type SaleItem struct {
	ID           int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	SaleID       string  `gorm:"size:36;index;not null" json:"sale_id"`
	ProductID    string  `gorm:"size:36;index;not null" json:"product_id"`
	ProductName  string  `gorm:"size:200" json:"product_name"`
	CategoryID   string  `gorm:"size:36" json:"category_id"`
	CategoryName string  `gorm:"size:100" json:"category_name"`
	Quantity     float64 `gorm:"type:decimal(15,3);not null" json:"quantity"`
	UnitPrice    float64 `gorm:"type:decimal(15,2)" json:"unit_price"`
	Subtotal     float64 `gorm:"type:decimal(15,2)" json:"subtotal"`
}

// TableName specifies the table name for SaleItem
func (SaleItem) TableName() string {
	return "sale_items"
}

// Category groups products of a business
type Category struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	BusinessID string `gorm:"size:36;index;not null" json:"business_id"`
	Name       string `gorm:"size:100;not null" json:"name"`
}

// TableName specifies the table name for Category
func (Category) TableName() string {
	return "categories"
}

// Product is an inventory entry
type Product struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	BusinessID   string    `gorm:"size:36;index;not null" json:"business_id"`
	Name         string    `gorm:"size:200;not null" json:"name"`
	CategoryID   *string   `gorm:"size:36;index" json:"category_id,omitempty"`
	Category     *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	SellingPrice float64   `gorm:"type:decimal(15,2)" json:"selling_price"`
	CostPrice    float64   `gorm:"type:decimal(15,2)" json:"cost_price"`
	CurrentStock int       `gorm:"default:0" json:"current_stock"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Product
func (Product) TableName() string {
	return "products"
}

// TrainingWebhook is a URL a business wants notified after each training run
type TrainingWebhook struct {
	ID                int        `gorm:"primaryKey;autoIncrement" json:"id"`
	BusinessID        string     `gorm:"size:36;index;not null" json:"business_id"`
	Name              string     `gorm:"size:100;not null" json:"name"`
	URL               string     `gorm:"not null" json:"url"`
	Method            string     `gorm:"size:10;default:POST" json:"method"`
	AuthHeader        string     `gorm:"size:100" json:"auth_header,omitempty"`
	AuthValue         string     `json:"-"`
	EventTypes        string     `json:"event_types"` // comma-separated; empty = every event
	IsActive          bool       `gorm:"default:true" json:"is_active"`
	RetryCount        int        `gorm:"default:3" json:"retry_count"`
	RetryDelaySeconds int        `gorm:"default:5" json:"retry_delay_seconds"`
	TimeoutSeconds    int        `gorm:"default:10" json:"timeout_seconds"`
	LastTriggeredAt   *time.Time `json:"last_triggered_at,omitempty"`
	LastSuccessAt     *time.Time `json:"last_success_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	TotalSent         int        `gorm:"default:0" json:"total_sent"`
	TotalFailed       int        `gorm:"default:0" json:"total_failed"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for TrainingWebhook
func (TrainingWebhook) TableName() string {
	return "training_webhooks"
}

// TrainingWebhookLog records one delivery attempt
type TrainingWebhookLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WebhookID      int       `gorm:"index;not null" json:"webhook_id"`
	RunID          string    `gorm:"size:36;index" json:"run_id"`
	EventType      string    `gorm:"size:30" json:"event_type"`
	TriggeredAt    time.Time `gorm:"index;not null" json:"triggered_at"`
	Status         string    `gorm:"size:20" json:"status"` // SUCCESS, FAILED
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ResponseBody   string    `json:"response_body,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	RetryAttempt   int       `gorm:"default:0" json:"retry_attempt"`
}

// TableName specifies the table name for TrainingWebhookLog
func (TrainingWebhookLog) TableName() string {
	return "training_webhook_logs"
}
