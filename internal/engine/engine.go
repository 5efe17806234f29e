// Package engine runs one review session: validate, diff, prune, rank,
// enhance and assemble.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/cartdiff"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/config"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/enhance"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/logging"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/pruner"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/review"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/substitutes"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/util"
)

// RunRecorder persists a summary of each run. storage.DB implements it.
type RunRecorder interface {
	InsertRun(ctx context.Context, sessionID, kind, digest string, timings map[string]float64, counts map[string]int) error
}

type Options struct {
	Prune      pruner.Config
	Catalog    *pruner.Catalog
	SlotsLimit int
	Recorder   RunRecorder
	Now        func() time.Time
}

func OptionsFromConfig(cfg config.Config, catalog *pruner.Catalog) Options {
	return Options{
		Prune: pruner.Config{
			ConservativeMode:   cfg.PruneConservative,
			MinPruneConfidence: cfg.PruneMinConfidence,
			UseLearnedCadences: cfg.PruneLearnedCadences,
			ConservativeMargin: cfg.PruneConservativeMargin,
		},
		Catalog:    catalog,
		SlotsLimit: cfg.SlotsLimit,
	}
}

type Input struct {
	Previous      internal.CartSnapshot
	Current       internal.CartSnapshot
	History       internal.PurchaseHistory
	Candidates    map[string][]internal.SubstituteCandidate
	Slots         []internal.DeliverySlot
	ReferenceDate time.Time
}

type Engine struct {
	opts     Options
	pruner   *pruner.Pruner
	enhancer *enhance.Enhancer
	logger   *zap.Logger
}

// New builds an engine. A nil enhancer ships heuristic decisions only.
func New(opts Options, enhancer *enhance.Enhancer, logger *zap.Logger) *Engine {
	logger = logging.OrNop(logger)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if enhancer == nil {
		enhancer = enhance.New(nil, enhance.Config{}, logger)
	}
	return &Engine{
		opts:     opts,
		pruner:   pruner.New(opts.Catalog, logger),
		enhancer: enhancer,
		logger:   logger,
	}
}

// Run computes a review pack. Only input errors are returned; collaborator
// failures degrade to heuristic output.
func (e *Engine) Run(ctx context.Context, in Input) (internal.ReviewPack, error) {
	if err := e.opts.Prune.Validate(); err != nil {
		return internal.ReviewPack{}, err
	}
	if err := cartdiff.Validate("previous", in.Previous); err != nil {
		return internal.ReviewPack{}, err
	}
	if err := cartdiff.Validate("current", in.Current); err != nil {
		return internal.ReviewPack{}, err
	}

	sessionID := uuid.NewString()
	log := e.logger.With(zap.String("session", sessionID))
	timings := map[string]float64{}
	started := time.Now()
	stage := func(name string, t0 time.Time) {
		d := time.Since(t0)
		timings[name+"Ms"] = float64(d.Microseconds()) / 1000
		log.Debug("stage done", zap.String("stage", name), zap.Duration("took", d))
	}

	reference := in.ReferenceDate
	if reference.IsZero() {
		reference = e.opts.Now()
	}

	t0 := time.Now()
	diff := cartdiff.Diff(in.Previous, in.Current)
	stage("diff", t0)

	t0 = time.Now()
	pruned, err := e.pruner.Evaluate(in.Current, in.History.Records, reference, e.opts.Prune)
	if err != nil {
		return internal.ReviewPack{}, err
	}
	stage("prune", t0)

	t0 = time.Now()
	sets := e.RankUnavailable(in.Current, in.Candidates)
	stage("rank", t0)

	t0 = time.Now()
	pruneOut := e.enhancer.EnhancePrune(ctx, pruner.Decisions(pruned), in.History.Records)
	subOut := e.enhancer.EnhanceSubstitutes(ctx, sets)
	stage("enhance", t0)

	pack := review.Assemble(review.Input{
		SessionID:      sessionID,
		GeneratedAt:    e.opts.Now(),
		Diff:           diff,
		Prune:          pruned,
		PruneDecisions: pruneOut.Decisions,
		Substitutes:    subOut.Sets,
		Slots:          review.SelectSlots(in.Slots, reference, e.opts.SlotsLimit),
		Enhancement: internal.EnhancementReport{
			PruneInvoked:       pruneOut.Invoked,
			PruneReason:        pruneOut.InvocationReason,
			SubstitutesInvoked: subOut.Invoked,
			SubstitutesReason:  subOut.InvocationReason,
		},
	})
	timings["totalMs"] = float64(time.Since(started).Microseconds()) / 1000

	log.Info("review pack assembled",
		zap.Int("added", diff.Summary.AddedCount),
		zap.Int("removed", diff.Summary.RemovedCount),
		zap.Int("removals", pack.Confidence.RemovalCount),
		zap.Int("uncertain", pack.Confidence.UncertainCount),
		zap.Int("substituteSets", len(sets)),
		zap.Int("enhanced", pack.Confidence.EnhancedCount),
		zap.Float64("totalMs", timings["totalMs"]),
	)
	e.record(ctx, log, pack, timings)
	return pack, nil
}

// RankUnavailable builds one substitute set per unavailable cart item, in
// cart order. Candidates are looked up by normalized item name.
func (e *Engine) RankUnavailable(cart internal.CartSnapshot, candidates map[string][]internal.SubstituteCandidate) []internal.SubstituteSet {
	byName := make(map[string][]internal.SubstituteCandidate, len(candidates))
	for name, list := range candidates {
		key := util.NormalizeName(name)
		byName[key] = append(byName[key], list...)
	}

	sets := []internal.SubstituteSet{}
	for _, item := range cart.Items {
		if item.Available {
			continue
		}
		pool := substitutes.ExcludeIdentical(byName[util.NormalizeName(item.Name)], item)
		sets = append(sets, internal.SubstituteSet{
			Original: item,
			Category: e.pruner.CategoryOf(item),
			Ranked:   substitutes.Rank(pool, item),
		})
	}
	return sets
}

func (e *Engine) record(ctx context.Context, log *zap.Logger, pack internal.ReviewPack, timings map[string]float64) {
	if e.opts.Recorder == nil {
		return
	}
	digest, err := review.Digest(pack)
	if err != nil {
		log.Warn("pack digest failed", zap.Error(err))
	}
	counts := map[string]int{
		"removals":           pack.Confidence.RemovalCount,
		"uncertain":          pack.Confidence.UncertainCount,
		"keep":               pack.Confidence.KeepCount,
		"substitutesFound":   pack.Confidence.SubstitutesFound,
		"substitutesMissing": pack.Confidence.SubstitutesMissing,
		"enhanced":           pack.Confidence.EnhancedCount,
	}
	// The run log is best effort; a cancelled session still gets recorded.
	if err := e.opts.Recorder.InsertRun(context.WithoutCancel(ctx), pack.SessionID, "review", digest, timings, counts); err != nil {
		log.Warn("run log write failed", zap.Error(err))
	}
}
