package history

import (
	"sort"
	"time"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/util"
)

// ProductAnalytics summarizes the purchase history of one product.
type ProductAnalytics struct {
	ProductName          string     `json:"productName"`
	PurchaseCount        int        `json:"purchaseCount"`
	DistinctPurchaseDays int        `json:"distinctPurchaseDays"`
	LastPurchase         *time.Time `json:"lastPurchase,omitempty"`
	MedianIntervalDays   *float64   `json:"medianIntervalDays,omitempty"`
	AverageQuantity      float64    `json:"averageQuantity"`
	AverageUnitPrice     float64    `json:"averageUnitPrice"`
}

// Index groups records by normalized product name.
type Index map[string][]internal.PurchaseRecord

func BuildIndex(records []internal.PurchaseRecord) Index {
	idx := Index{}
	for _, r := range records {
		key := util.NormalizeName(r.ProductName)
		if key == "" {
			continue
		}
		idx[key] = append(idx[key], r)
	}
	return idx
}

func (idx Index) Lookup(name string) []internal.PurchaseRecord {
	return idx[util.NormalizeName(name)]
}

// Analyze builds the analytics summary for records of a single product.
func Analyze(name string, records []internal.PurchaseRecord) ProductAnalytics {
	out := ProductAnalytics{ProductName: name, PurchaseCount: len(records)}
	if len(records) == 0 {
		return out
	}

	qty, price := 0.0, 0.0
	for _, r := range records {
		qty += r.Quantity
		price += r.UnitPrice
	}
	out.AverageQuantity = qty / float64(len(records))
	out.AverageUnitPrice = price / float64(len(records))

	days := PurchaseDays(records)
	out.DistinctPurchaseDays = len(days)
	if len(days) > 0 {
		last := days[len(days)-1]
		out.LastPurchase = &last
	}
	if median, ok := MedianIntervalDays(days); ok {
		out.MedianIntervalDays = &median
	}
	return out
}

// PurchaseDays returns the distinct calendar days (UTC) with a dated
// purchase, oldest first. Several lines of one order count once.
func PurchaseDays(records []internal.PurchaseRecord) []time.Time {
	seen := map[time.Time]struct{}{}
	out := []time.Time{}
	for _, r := range records {
		t, ok := r.PurchasedAt()
		if !ok {
			continue
		}
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// MedianIntervalDays is the median gap between consecutive purchase days.
// It needs at least two distinct days.
func MedianIntervalDays(days []time.Time) (float64, bool) {
	if len(days) < 2 {
		return 0, false
	}
	gaps := make([]float64, 0, len(days)-1)
	for i := 1; i < len(days); i++ {
		gaps = append(gaps, days[i].Sub(days[i-1]).Hours()/24)
	}
	sort.Float64s(gaps)
	mid := len(gaps) / 2
	if len(gaps)%2 == 1 {
		return gaps[mid], true
	}
	return (gaps[mid-1] + gaps[mid]) / 2, true
}
