package database

import "time"

// Connection pool settings
const (
	MaxOpenConns    = 20
	MaxIdleConns    = 10
	ConnMaxLifetime = 5 * time.Minute
	ConnMaxIdleTime = 2 * time.Minute
)

// Query limits
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Webhook delivery statuses
const (
	DeliverySuccess = "SUCCESS"
	DeliveryFailed  = "FAILED"
)
