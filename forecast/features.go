package forecast

import (
	"log"
	"sort"
	"time"
)

const (
	recencyCap   = 365
	neverSoldAge = 999
)

// FeatureTable is the dense day×product grid produced by GenerateFeatures
type FeatureTable struct {
	Rows       []FeatureRow
	Start      time.Time
	End        time.Time
	Days       int
	Products   int
	SourceRows int // eligible flattened sales rows the grid was built from
}

// HasTarget reports whether the grid spans enough days to compute h's forward window
func (t *FeatureTable) HasTarget(h Horizon) bool {
	return t.Days >= h.Window()
}

// dailySeries is one product's quantity and revenue per calendar day, index 0 = first day
type dailySeries struct {
	quantity  []float64
	revenue   []float64
	firstSale int // index of the first day with quantity > 0, -1 when none
}

func newDailySeries(days int) *dailySeries {
	return &dailySeries{
		quantity:  make([]float64, days),
		revenue:   make([]float64, days),
		firstSale: -1,
	}
}

func (s *dailySeries) add(day int, quantity, revenue float64) {
	s.quantity[day] += quantity
	s.revenue[day] += revenue
}

func (s *dailySeries) index() {
	s.firstSale = -1
	for i, q := range s.quantity {
		if q > 0 {
			s.firstSale = i
			return
		}
	}
}

// fillTemporal sets the rolling, recency, trend and lag features of day i.
// Every value reads only days strictly before i, except recency which is 0 on a sale day.
func (s *dailySeries) fillTemporal(r *FeatureRow, i int) {
	r.SalesLast7Days = trailingSum(s.revenue, i, 7)
	r.SalesLast30Days = trailingSum(s.revenue, i, 30)
	r.QuantityLast7Days = trailingSum(s.quantity, i, 7)
	r.QuantityLast30Days = trailingSum(s.quantity, i, 30)
	r.DaysSinceLastSale = s.daysSinceLastSale(i)
	r.SalesTrend = salesTrend(r.SalesLast7Days, r.SalesLast30Days)
	r.PrevDayQuantity = lag(s.quantity, i, 1)
	r.PrevWeekQuantity = lag(s.quantity, i, 7)
}

// fillTargets sets the forward-looking targets of day i; windows running past the end are 0
func (s *dailySeries) fillTargets(r *FeatureRow, i int) {
	r.Quantity = s.quantity[i]
	r.Total = s.revenue[i]
	r.WeeklyQuantity = forwardSum(s.quantity, i, HorizonWeekly.Window())
	r.MonthlyQuantity = forwardSum(s.quantity, i, HorizonMonthly.Window())
}

func (s *dailySeries) daysSinceLastSale(i int) float64 {
	if s.quantity[i] > 0 {
		return 0
	}
	if s.firstSale < 0 || s.firstSale >= i {
		return neverSoldAge
	}
	for j := i - 1; j >= 0 && i-j <= recencyCap; j-- {
		if s.quantity[j] > 0 {
			return float64(i - j)
		}
	}
	return recencyCap
}

// trailingSum is Σ x[i-w .. i-1], clipped at the series start
func trailingSum(x []float64, i, w int) float64 {
	lo := i - w
	if lo < 0 {
		lo = 0
	}
	var sum float64
	for _, v := range x[lo:i] {
		sum += v
	}
	return sum
}

// forwardSum is Σ x[i .. i+w-1], or 0 when the window runs past the series end
func forwardSum(x []float64, i, w int) float64 {
	if i+w > len(x) {
		return 0
	}
	var sum float64
	for _, v := range x[i : i+w] {
		sum += v
	}
	return sum
}

func lag(x []float64, i, k int) float64 {
	if i-k < 0 {
		return 0
	}
	return x[i-k]
}

// salesTrend compares the 7-day revenue, scaled to 30 days, with the 30-day revenue
func salesTrend(last7, last30 float64) float64 {
	if last30 <= 0 {
		return 0
	}
	return finite((last7*30/7 - last30) / last30)
}

func fillCalendar(r *FeatureRow, day time.Time) {
	y, m, d := day.Date()
	r.Date = day
	r.Year = y
	r.Month = int(m)
	r.Day = d
	r.DayOfWeek = (int(day.Weekday()) + 6) % 7
	r.Quarter = (int(m)-1)/3 + 1
	r.IsMonthStart = d == 1
	r.IsMonthEnd = d == time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
	r.IsWeekend = r.DayOfWeek >= 5
}

func sanitizeRow(r *FeatureRow) {
	r.SalesLast7Days = finite(r.SalesLast7Days)
	r.SalesLast30Days = finite(r.SalesLast30Days)
	r.QuantityLast7Days = finite(r.QuantityLast7Days)
	r.QuantityLast30Days = finite(r.QuantityLast30Days)
	r.SalesTrend = finite(r.SalesTrend)
	r.PrevDayQuantity = finite(r.PrevDayQuantity)
	r.PrevWeekQuantity = finite(r.PrevWeekQuantity)
	r.Quantity = finite(r.Quantity)
	r.Total = finite(r.Total)
	r.WeeklyQuantity = finite(r.WeeklyQuantity)
	r.MonthlyQuantity = finite(r.MonthlyQuantity)
}

// productMeta is what the grid keeps about each product besides its series
type productMeta struct {
	name     string
	category string
	lastSeen time.Time
}

// GenerateFeatures builds the dense day×product grid over [first sale day, last sale day].
// Days without sales are zero-filled. Each product takes the category of its most recent
// sale. Rows are ordered by date, then product id.
func GenerateFeatures(rows []SalesRow) FeatureTable {
	table := FeatureTable{SourceRows: len(rows)}
	if len(rows) == 0 {
		return table
	}

	start, end := rows[0].SaleDate, rows[0].SaleDate
	meta := make(map[string]*productMeta)
	for _, r := range rows {
		if r.SaleDate.Before(start) {
			start = r.SaleDate
		}
		if r.SaleDate.After(end) {
			end = r.SaleDate
		}
		m, ok := meta[r.ProductID]
		if !ok {
			meta[r.ProductID] = &productMeta{name: r.ProductName, category: r.Category, lastSeen: r.SaleDate}
			continue
		}
		if r.SaleDate.After(m.lastSeen) {
			m.name, m.category, m.lastSeen = r.ProductName, r.Category, r.SaleDate
		}
	}

	days := daysBetween(start, end) + 1
	productIDs := make([]string, 0, len(meta))
	for id := range meta {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	series := make(map[string]*dailySeries, len(productIDs))
	for _, id := range productIDs {
		series[id] = newDailySeries(days)
	}
	for _, r := range rows {
		series[r.ProductID].add(daysBetween(start, r.SaleDate), r.Quantity, r.Total)
	}

	table.Start, table.End = start, end
	table.Days, table.Products = days, len(productIDs)
	table.Rows = make([]FeatureRow, days*len(productIDs))

	for p, id := range productIDs {
		s := series[id]
		s.index()
		m := meta[id]
		for i := 0; i < days; i++ {
			r := &table.Rows[i*len(productIDs)+p]
			r.ProductID, r.ProductName, r.Category = id, m.name, m.category
			fillCalendar(r, start.AddDate(0, 0, i))
			s.fillTemporal(r, i)
			s.fillTargets(r, i)
			sanitizeRow(r)
		}
	}

	log.Printf("🧮 Generated %d feature rows (%d days × %d products)", len(table.Rows), days, len(productIDs))
	return table
}

// PrepareSinglePoint builds the inference row for productID on today from its sales history.
// It evaluates exactly the windows GenerateFeatures uses for a grid ending on today, so an
// empty history yields zero sums, zero lags, zero trend and days_since_last_sale = 999.
// Observations dated after today are ignored.
func PrepareSinglePoint(productID, category string, history []SaleObservation, today time.Time) FeatureRow {
	today = truncateDay(today)

	start := today
	for _, h := range history {
		d := truncateDay(h.Date)
		if d.Before(start) {
			start = d
		}
	}

	days := daysBetween(start, today) + 1
	s := newDailySeries(days)
	for _, h := range history {
		d := truncateDay(h.Date)
		if d.After(today) {
			continue
		}
		s.add(daysBetween(start, d), cleanNumber(h.Quantity), cleanNumber(h.Total))
	}
	s.index()

	r := FeatureRow{ProductID: productID, Category: normalizeCategory(category)}
	fillCalendar(&r, today)
	s.fillTemporal(&r, days-1)
	sanitizeRow(&r)

	// Targets are unknown at inference time
	r.Quantity, r.Total, r.WeeklyQuantity, r.MonthlyQuantity = 0, 0, 0, 0
	return r
}
