package forecast

import "time"

// CategoryFeature is the single categorical model input
const CategoryFeature = "category"

// FeatureRow holds one (day, product) observation. Batch training rows and the
// single "today" row used at inference share this type and the FeatureColumns table.
type FeatureRow struct {
	Date        time.Time
	ProductID   string
	ProductName string
	Category    string

	Year         int
	Month        int
	Day          int
	DayOfWeek    int // Monday = 0
	Quarter      int
	IsMonthStart bool
	IsMonthEnd   bool
	IsWeekend    bool

	SalesLast7Days     float64
	SalesLast30Days    float64
	QuantityLast7Days  float64
	QuantityLast30Days float64
	DaysSinceLastSale  float64
	SalesTrend         float64
	PrevDayQuantity    float64
	PrevWeekQuantity   float64

	// Targets, zero on inference rows
	Quantity        float64
	Total           float64
	WeeklyQuantity  float64
	MonthlyQuantity float64
}

// FeatureColumn names one numeric model input and how to read it from a row
type FeatureColumn struct {
	Name  string
	Value func(r *FeatureRow) float64
}

// FeatureColumns is the ordered numeric input schema of every trained model
var FeatureColumns = []FeatureColumn{
	{"year", func(r *FeatureRow) float64 { return float64(r.Year) }},
	{"month", func(r *FeatureRow) float64 { return float64(r.Month) }},
	{"day", func(r *FeatureRow) float64 { return float64(r.Day) }},
	{"dayofweek", func(r *FeatureRow) float64 { return float64(r.DayOfWeek) }},
	{"quarter", func(r *FeatureRow) float64 { return float64(r.Quarter) }},
	{"is_month_start", func(r *FeatureRow) float64 { return boolFloat(r.IsMonthStart) }},
	{"is_month_end", func(r *FeatureRow) float64 { return boolFloat(r.IsMonthEnd) }},
	{"is_weekend", func(r *FeatureRow) float64 { return boolFloat(r.IsWeekend) }},
	{"sales_last_7_days", func(r *FeatureRow) float64 { return r.SalesLast7Days }},
	{"sales_last_30_days", func(r *FeatureRow) float64 { return r.SalesLast30Days }},
	{"quantity_last_7_days", func(r *FeatureRow) float64 { return r.QuantityLast7Days }},
	{"quantity_last_30_days", func(r *FeatureRow) float64 { return r.QuantityLast30Days }},
	{"days_since_last_sale", func(r *FeatureRow) float64 { return r.DaysSinceLastSale }},
	{"sales_trend", func(r *FeatureRow) float64 { return r.SalesTrend }},
	{"prev_day_quantity", func(r *FeatureRow) float64 { return r.PrevDayQuantity }},
	{"prev_week_quantity", func(r *FeatureRow) float64 { return r.PrevWeekQuantity }},
}

// NumericFeatureNames returns the FeatureColumns names in order
func NumericFeatureNames() []string {
	names := make([]string, len(FeatureColumns))
	for i, c := range FeatureColumns {
		names[i] = c.Name
	}
	return names
}

// Numeric returns the row's model inputs in FeatureColumns order
func (r *FeatureRow) Numeric() []float64 {
	out := make([]float64, len(FeatureColumns))
	for i, c := range FeatureColumns {
		out[i] = c.Value(r)
	}
	return out
}

// Columns returns the row's model inputs keyed by column name
func (r *FeatureRow) Columns() map[string]float64 {
	out := make(map[string]float64, len(FeatureColumns))
	for _, c := range FeatureColumns {
		out[c.Name] = c.Value(r)
	}
	return out
}

// Target reads the regression target for horizon h
func (r *FeatureRow) Target(h Horizon) float64 {
	switch h {
	case HorizonWeekly:
		return r.WeeklyQuantity
	case HorizonMonthly:
		return r.MonthlyQuantity
	default:
		return r.Quantity
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
