package forecast

import (
	"fmt"
	"strings"
)

// Horizon is the prediction granularity, one trained model per horizon
type Horizon string

const (
	HorizonDaily   Horizon = "daily"
	HorizonWeekly  Horizon = "weekly"
	HorizonMonthly Horizon = "monthly"
)

// AllHorizons in training and reporting order
var AllHorizons = []Horizon{HorizonDaily, HorizonWeekly, HorizonMonthly}

// ParseHorizon accepts a horizon name in any case
func ParseHorizon(s string) (Horizon, error) {
	h := Horizon(strings.ToLower(strings.TrimSpace(s)))
	if !h.Valid() {
		return "", fmt.Errorf("%w: %q (expected daily, weekly or monthly)", ErrInvalidHorizon, s)
	}
	return h, nil
}

// Valid reports whether h is one of the three supported horizons
func (h Horizon) Valid() bool {
	switch h {
	case HorizonDaily, HorizonWeekly, HorizonMonthly:
		return true
	}
	return false
}

// Window is the number of days summed into the horizon's target
func (h Horizon) Window() int {
	switch h {
	case HorizonWeekly:
		return 7
	case HorizonMonthly:
		return 30
	default:
		return 1
	}
}

// TargetColumn is the feature table column the horizon's model regresses on
func (h Horizon) TargetColumn() string {
	switch h {
	case HorizonWeekly:
		return "weekly_quantity"
	case HorizonMonthly:
		return "monthly_quantity"
	default:
		return "quantity"
	}
}
