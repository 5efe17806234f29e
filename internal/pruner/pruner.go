// Package pruner recommends which items of a reconstructed cart are
// probably still in stock at home.
package pruner

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/history"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/logging"
)

// UnseenConfidence is reported for items with no usable purchase history.
const UnseenConfidence = 0.3

type Config struct {
	ConservativeMode   bool
	MinPruneConfidence float64
	UseLearnedCadences bool
	ConservativeMargin float64
}

func DefaultConfig() Config {
	return Config{
		ConservativeMode:   true,
		MinPruneConfidence: 0.7,
		UseLearnedCadences: true,
		ConservativeMargin: 0.15,
	}
}

func (c Config) Validate() error {
	if math.IsNaN(c.MinPruneConfidence) || c.MinPruneConfidence < 0 || c.MinPruneConfidence > 1 {
		return errs.Invalid("invalid_prune_config", "minPruneConfidence must be within [0,1], got %v", c.MinPruneConfidence)
	}
	if math.IsNaN(c.ConservativeMargin) || c.ConservativeMargin < 0 || c.ConservativeMargin > 1 {
		return errs.Invalid("invalid_prune_config", "conservativeMargin must be within [0,1], got %v", c.ConservativeMargin)
	}
	return nil
}

// removalGate is the prune confidence a removal needs.
func (c Config) removalGate() float64 {
	if !c.ConservativeMode {
		return c.MinPruneConfidence
	}
	return math.Min(1, c.MinPruneConfidence+c.ConservativeMargin)
}

type Pruner struct {
	catalog *Catalog
	logger  *zap.Logger
}

func New(catalog *Catalog, logger *zap.Logger) *Pruner {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Pruner{catalog: catalog, logger: logging.OrNop(logger)}
}

// Evaluate decides remove, keep or uncertain for every cart item. Items the
// household never bought are always uncertain.
func (p *Pruner) Evaluate(cart internal.CartSnapshot, records []internal.PurchaseRecord, referenceDate time.Time, cfg Config) (internal.PruneResult, error) {
	if err := cfg.Validate(); err != nil {
		return internal.PruneResult{}, err
	}

	index := history.BuildIndex(records)
	out := internal.PruneResult{
		RecommendedRemovals: []internal.PruneDecision{},
		UncertainItems:      []internal.PruneDecision{},
		KeepItems:           []internal.PruneDecision{},
	}
	for _, item := range cart.Items {
		d := p.Decide(item, index.Lookup(item.Name), referenceDate, cfg)
		switch d.Verdict {
		case internal.VerdictRemove:
			out.RecommendedRemovals = append(out.RecommendedRemovals, d)
		case internal.VerdictKeep:
			out.KeepItems = append(out.KeepItems, d)
		default:
			out.UncertainItems = append(out.UncertainItems, d)
		}
	}

	sort.SliceStable(out.RecommendedRemovals, func(i, j int) bool {
		a, b := out.RecommendedRemovals[i], out.RecommendedRemovals[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return days(a) > days(b)
	})

	p.logger.Debug("prune evaluated",
		zap.Int("items", len(cart.Items)),
		zap.Int("removals", len(out.RecommendedRemovals)),
		zap.Int("uncertain", len(out.UncertainItems)),
		zap.Int("keep", len(out.KeepItems)),
	)
	return out, nil
}

// Decide evaluates one item against its own purchase records.
func (p *Pruner) Decide(item internal.CartItem, records []internal.PurchaseRecord, referenceDate time.Time, cfg Config) internal.PruneDecision {
	category := p.catalog.Resolve(item.Name, item.Category)
	ctx := internal.PruneContext{
		Category:      category.Name,
		CadenceSource: internal.CadenceNone,
		PurchaseCount: len(records),
	}

	purchaseDays := history.PurchaseDays(records)
	if len(purchaseDays) == 0 {
		return internal.PruneDecision{
			ProductName: item.Name,
			Verdict:     internal.VerdictUncertain,
			Confidence:  UnseenConfidence,
			Reason:      "No purchase history for this item; cannot tell if it is still stocked",
			Context:     ctx,
		}
	}

	since := DaysSince(purchaseDays[len(purchaseDays)-1], referenceDate)
	ctx.DaysSinceLastPurchase = &since

	ctx.RestockCadenceDays, ctx.CadenceSource = category.CadenceDays, internal.CadenceCategoryDefault
	if cfg.UseLearnedCadences {
		if median, ok := history.MedianIntervalDays(purchaseDays); ok && median > 0 {
			ctx.RestockCadenceDays, ctx.CadenceSource = median, internal.CadenceLearned
		}
	}

	prune := PruneConfidence(float64(since), ctx.RestockCadenceDays)
	d := internal.PruneDecision{ProductName: item.Name, Context: ctx}
	switch {
	case prune >= cfg.removalGate():
		d.Verdict, d.Prune, d.Confidence = internal.VerdictRemove, true, prune
		d.Reason = fmt.Sprintf("Bought %s ago; restocked about every %s (%s), likely still stocked", dayCount(since), dayCount(ctx.RestockCadenceDays), ctx.CadenceSource)
	case 1-prune >= cfg.MinPruneConfidence:
		d.Verdict, d.Confidence = internal.VerdictKeep, 1-prune
		d.Reason = fmt.Sprintf("Last bought %s ago; due for restock every %s (%s)", dayCount(since), dayCount(ctx.RestockCadenceDays), ctx.CadenceSource)
	default:
		d.Verdict, d.Confidence = internal.VerdictUncertain, math.Max(prune, 1-prune)
		d.Reason = fmt.Sprintf("Bought %s ago against a %s cadence (%s); not enough evidence either way", dayCount(since), dayCount(ctx.RestockCadenceDays), ctx.CadenceSource)
	}
	d.Confidence = round3(d.Confidence)
	return d
}

// PruneConfidence is clamp(1 - daysSince/cadence, 0, 1): a recent purchase
// relative to the cadence means the item is likely still at home.
func PruneConfidence(daysSince, cadenceDays float64) float64 {
	if cadenceDays <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, 1-daysSince/cadenceDays))
}

// DaysSince counts whole calendar days (UTC) between the last purchase day
// and the reference date. Purchases dated after the reference count as 0.
func DaysSince(lastPurchase, referenceDate time.Time) int {
	ref := referenceDate.UTC()
	refDay := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	last := lastPurchase.UTC()
	lastDay := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	n := int(math.Floor(refDay.Sub(lastDay).Hours() / 24))
	if n < 0 {
		return 0
	}
	return n
}

// Decisions flattens a result into one list: removals, uncertain, keep.
func Decisions(r internal.PruneResult) []internal.PruneDecision {
	out := make([]internal.PruneDecision, 0, len(r.RecommendedRemovals)+len(r.UncertainItems)+len(r.KeepItems))
	out = append(out, r.RecommendedRemovals...)
	out = append(out, r.UncertainItems...)
	out = append(out, r.KeepItems...)
	return out
}

func days(d internal.PruneDecision) int {
	if d.Context.DaysSinceLastPurchase == nil {
		return -1
	}
	return *d.Context.DaysSinceLastPurchase
}

func dayCount[T int | float64](n T) string {
	if float64(n) == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%s days", trimFloat(float64(n)))
}

func trimFloat(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%.1f", v)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// CategoryOf resolves the category name the pruner uses for an item.
func (p *Pruner) CategoryOf(item internal.CartItem) string {
	return p.catalog.Resolve(item.Name, item.Category).Name
}
