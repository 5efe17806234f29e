package pruner

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/util"
)

var refDate = time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC)

func bought(name string, daysAgo int, order string) internal.PurchaseRecord {
	return internal.PurchaseRecord{
		ProductName:  name,
		PurchaseDate: refDate.AddDate(0, 0, -daysAgo).Format("2006-01-02"),
		Quantity:     1,
		OrderID:      order,
		UnitPrice:    1,
	}
}

func cart(names ...string) internal.CartSnapshot {
	items := make([]internal.CartItem, 0, len(names))
	for _, n := range names {
		items = append(items, internal.CartItem{Name: n, Quantity: 1, UnitPrice: 1, TotalPrice: 1, Available: true})
	}
	return internal.CartSnapshot{Items: items, ItemCount: len(items)}
}

func relaxed() Config {
	cfg := DefaultConfig()
	cfg.ConservativeMode = false
	return cfg
}

func TestMilkBoughtRecentlyIsRemoved(t *testing.T) {
	p := New(nil, nil)
	res, err := p.Evaluate(cart("Milk 1L"), []internal.PurchaseRecord{bought("Milk 1L", 2, "A")}, refDate, relaxed())
	require.NoError(t, err)

	require.Len(t, res.RecommendedRemovals, 1)
	d := res.RecommendedRemovals[0]
	assert.True(t, d.Prune)
	assert.Equal(t, internal.VerdictRemove, d.Verdict)
	assert.InDelta(t, 1-2.0/7, d.Confidence, 0.001)
	assert.Equal(t, "dairy", d.Context.Category)
	assert.Equal(t, internal.CadenceCategoryDefault, d.Context.CadenceSource)
	require.NotNil(t, d.Context.DaysSinceLastPurchase)
	assert.Equal(t, 2, *d.Context.DaysSinceLastPurchase)
	assert.NotEmpty(t, d.Reason)
}

func TestMilkPastCadenceIsKept(t *testing.T) {
	p := New(nil, nil)
	res, err := p.Evaluate(cart("Milk 1L"), []internal.PurchaseRecord{bought("Milk 1L", 14, "A")}, refDate, relaxed())
	require.NoError(t, err)

	assert.Empty(t, res.RecommendedRemovals)
	require.Len(t, res.KeepItems, 1)
	assert.Equal(t, 1.0, res.KeepItems[0].Confidence)
	assert.False(t, res.KeepItems[0].Prune)
}

func TestConservativeModeRaisesRemovalBar(t *testing.T) {
	p := New(nil, nil)
	records := []internal.PurchaseRecord{bought("Milk 1L", 2, "A")}

	res, err := p.Evaluate(cart("Milk 1L"), records, refDate, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, res.RecommendedRemovals)
	require.Len(t, res.UncertainItems, 1)

	records = []internal.PurchaseRecord{bought("Milk 1L", 1, "A")}
	res, err = p.Evaluate(cart("Milk 1L"), records, refDate, DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, res.RecommendedRemovals, 1)
}

func TestUnseenItemIsUncertain(t *testing.T) {
	p := New(nil, nil)
	res, err := p.Evaluate(cart("Kombucha"), []internal.PurchaseRecord{bought("Milk 1L", 2, "A")}, refDate, Config{MinPruneConfidence: 0})
	require.NoError(t, err)

	assert.Empty(t, res.RecommendedRemovals)
	require.Len(t, res.UncertainItems, 1)
	d := res.UncertainItems[0]
	assert.Equal(t, UnseenConfidence, d.Confidence)
	assert.Nil(t, d.Context.DaysSinceLastPurchase)
	assert.Equal(t, internal.CadenceNone, d.Context.CadenceSource)
	assert.Equal(t, 0, d.Context.PurchaseCount)
}

func TestRecordsWithoutValidDatesCountAsUnseen(t *testing.T) {
	p := New(nil, nil)
	records := []internal.PurchaseRecord{{ProductName: "Arroz", PurchaseDate: "ontem", OrderID: "A", Quantity: 1}}
	res, err := p.Evaluate(cart("Arroz"), records, refDate, relaxed())
	require.NoError(t, err)
	require.Len(t, res.UncertainItems, 1)
	assert.Equal(t, 1, res.UncertainItems[0].Context.PurchaseCount)
}

func TestLearnedCadenceFromMedianInterval(t *testing.T) {
	p := New(nil, nil)
	records := []internal.PurchaseRecord{
		bought("Detergente Roupa", 21, "A"),
		bought("Detergente Roupa", 11, "B"),
		bought("Detergente Roupa", 1, "C"),
	}

	d := p.Decide(cart("detergente roupa").Items[0], records, refDate, relaxed())
	assert.Equal(t, internal.CadenceLearned, d.Context.CadenceSource)
	assert.Equal(t, 10.0, d.Context.RestockCadenceDays)
	assert.Equal(t, internal.VerdictRemove, d.Verdict)
	assert.InDelta(t, 0.9, d.Confidence, 0.001)

	cfg := relaxed()
	cfg.UseLearnedCadences = false
	d = p.Decide(cart("detergente roupa").Items[0], records, refDate, cfg)
	assert.Equal(t, internal.CadenceCategoryDefault, d.Context.CadenceSource)
	assert.Equal(t, 45.0, d.Context.RestockCadenceDays)
	assert.Equal(t, "household", d.Context.Category)
}

func TestExplicitCategoryWins(t *testing.T) {
	p := New(nil, nil)
	item := internal.CartItem{Name: "Leite de aveia", Quantity: 1, Category: util.StringPtr("Pantry")}
	d := p.Decide(item, []internal.PurchaseRecord{bought("Leite de aveia", 10, "A")}, refDate, relaxed())
	assert.Equal(t, "pantry", d.Context.Category)
	assert.Equal(t, 30.0, d.Context.RestockCadenceDays)
}

func TestRemovalsSortedByConfidenceThenDays(t *testing.T) {
	p := New(nil, nil)
	records := []internal.PurchaseRecord{
		bought("Arroz", 3, "A"),
		bought("Azeite", 0, "B"),
		bought("Farinha", 3, "C"),
		bought("Champo", 3, "D"),
	}
	res, err := p.Evaluate(cart("Arroz", "Champo", "Azeite", "Farinha"), records, refDate, relaxed())
	require.NoError(t, err)

	names := []string{}
	for _, d := range res.RecommendedRemovals {
		names = append(names, d.ProductName)
	}
	assert.Equal(t, []string{"Azeite", "Champo", "Arroz", "Farinha"}, names)
}

func TestEvaluateRejectsBadConfig(t *testing.T) {
	p := New(nil, nil)
	_, err := p.Evaluate(cart("Milk"), nil, refDate, Config{MinPruneConfidence: 1.5})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	_, err = p.Evaluate(cart("Milk"), nil, refDate, Config{MinPruneConfidence: 0.5, ConservativeMargin: -0.1})
	require.Error(t, err)
}

func TestDaysSince(t *testing.T) {
	last := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, 5, DaysSince(last, refDate))
	assert.Equal(t, 0, DaysSince(refDate.AddDate(0, 0, 3), refDate))
}

func TestPruneConfidenceProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("never increases as days since purchase grow", prop.ForAll(
		func(days, extra int, cadence float64) bool {
			return PruneConfidence(float64(days+extra), cadence) <= PruneConfidence(float64(days), cadence)
		},
		gen.IntRange(0, 400), gen.IntRange(0, 400), gen.Float64Range(0.5, 120),
	))

	properties.Property("stays within [0,1]", prop.ForAll(
		func(days int, cadence float64) bool {
			c := PruneConfidence(float64(days), cadence)
			return c >= 0 && c <= 1
		},
		gen.IntRange(0, 1000), gen.Float64Range(-5, 120),
	))

	properties.TestingRun(t)
}

func TestConservativeModeNeverAddsRemovals(t *testing.T) {
	names := []string{"Leite", "Pão", "Arroz", "Detergente", "Ovos", "Champo", "Queijo", "Novidade"}
	p := New(nil, nil)

	properties := gopter.NewProperties(nil)
	properties.Property("conservative removals are a subset", prop.ForAll(
		func(ages []int, minConf, margin float64) bool {
			records := []internal.PurchaseRecord{}
			for i, age := range ages {
				records = append(records, bought(names[i%(len(names)-1)], age, string(rune('A'+i%26))))
			}
			base := Config{MinPruneConfidence: minConf, ConservativeMargin: margin, UseLearnedCadences: true}
			strict := base
			strict.ConservativeMode = true

			loose, err := p.Evaluate(cart(names...), records, refDate, base)
			if err != nil {
				return false
			}
			tight, err := p.Evaluate(cart(names...), records, refDate, strict)
			if err != nil {
				return false
			}
			allowed := map[string]bool{}
			for _, d := range loose.RecommendedRemovals {
				allowed[d.ProductName] = true
			}
			for _, d := range tight.RecommendedRemovals {
				if !allowed[d.ProductName] {
					return false
				}
			}
			return len(tight.RecommendedRemovals) <= len(loose.RecommendedRemovals)
		},
		gen.SliceOf(gen.IntRange(0, 60)), gen.Float64Range(0, 1), gen.Float64Range(0, 1),
	))
	properties.TestingRun(t)
}
