// Package enhance asks an LLM collaborator to second-guess low-confidence
// heuristic decisions. Every failure path falls back to the heuristic.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/config"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/history"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/logging"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/util"
)

type Config struct {
	Enabled              bool
	UncertaintyThreshold float64
	SensitiveCategories  []string
	Workers              int
	MaxRetries           int
	RetryBackoff         time.Duration
	CallTimeout          time.Duration
	RequestsPerSecond    float64
}

func DefaultConfig() Config {
	return Config{
		UncertaintyThreshold: 0.6,
		SensitiveCategories:  []string{"baby", "pharmacy"},
		Workers:              3,
		MaxRetries:           2,
		RetryBackoff:         250 * time.Millisecond,
		CallTimeout:          20 * time.Second,
	}
}

func FromConfig(cfg config.Config) Config {
	return Config{
		Enabled:              cfg.EnhanceEnabled,
		UncertaintyThreshold: cfg.EnhanceUncertaintyThreshold,
		SensitiveCategories:  cfg.EnhanceSensitiveCategories,
		Workers:              cfg.EnhanceWorkers,
		MaxRetries:           cfg.EnhanceMaxRetries,
		RetryBackoff:         time.Duration(cfg.EnhanceRetryBackoffMs) * time.Millisecond,
		CallTimeout:          time.Duration(cfg.EnhanceTimeoutMs) * time.Millisecond,
		RequestsPerSecond:    cfg.EnhanceRequestsPerSecond,
	}
}

type PruneOutcome struct {
	Decisions        []internal.EnhancedPruneDecision
	Invoked          bool
	InvocationReason string
}

type SubstituteOutcome struct {
	Sets             []internal.EnhancedSubstituteSet
	Invoked          bool
	InvocationReason string
}

// Enhancer is safe for concurrent use. A nil client disables enhancement.
type Enhancer struct {
	client    Client
	cfg       Config
	limiter   *rate.Limiter
	sensitive map[string]struct{}
	logger    *zap.Logger
}

func New(client Client, cfg Config, logger *zap.Logger) *Enhancer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	sensitive := map[string]struct{}{}
	for _, c := range cfg.SensitiveCategories {
		if c = util.NormalizeName(c); c != "" {
			sensitive[c] = struct{}{}
		}
	}
	return &Enhancer{
		client:    client,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
		sensitive: sensitive,
		logger:    logging.OrNop(logger),
	}
}

// Eligible reports whether a decision with this confidence and category
// warrants an external call.
func (e *Enhancer) Eligible(confidence float64, category string) bool {
	if confidence < e.cfg.UncertaintyThreshold {
		return true
	}
	_, ok := e.sensitive[util.NormalizeName(category)]
	return ok
}

func (e *Enhancer) skipReason() string {
	switch {
	case !e.cfg.Enabled:
		return "enhancement disabled"
	case e.client == nil:
		return "no LLM client configured"
	}
	return ""
}

// itemResult is written by exactly one worker.
type itemResult struct {
	done  bool
	state callState
	err   error
}

// EnhancePrune attaches validated LLM opinions to eligible decisions. The
// returned decisions keep the input order and every heuristic field.
func (e *Enhancer) EnhancePrune(ctx context.Context, decisions []internal.PruneDecision, records []internal.PurchaseRecord) PruneOutcome {
	out := PruneOutcome{Decisions: make([]internal.EnhancedPruneDecision, len(decisions))}
	for i, d := range decisions {
		out.Decisions[i] = internal.EnhancedPruneDecision{Heuristic: d}
	}
	if reason := e.skipReason(); reason != "" {
		out.InvocationReason = reason
		return out
	}

	eligible := []int{}
	for i, d := range decisions {
		if e.Eligible(d.Confidence, d.Context.Category) {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		out.InvocationReason = fmt.Sprintf("no decisions below confidence %.2f or in sensitive categories", e.cfg.UncertaintyThreshold)
		return out
	}

	index := history.BuildIndex(records)
	results := e.dispatch(ctx, eligible, func(ctx context.Context, i int) itemResult {
		d := decisions[i]
		req, err := pruneRequest(d, history.Analyze(d.ProductName, index.Lookup(d.ProductName)))
		if err != nil {
			return itemResult{done: true, state: stateFailedFallback, err: err}
		}
		var accepted internal.PruneEnhancement
		c := e.invoke(ctx, req, func(payload []byte) error {
			enh, err := DecodePrune(payload)
			if err != nil {
				return err
			}
			if enh, err = checkPruneSafety(d, enh); err != nil {
				return err
			}
			accepted = enh
			return nil
		})
		if c.state == stateSucceeded {
			out.Decisions[i].Enhancement = &accepted
		}
		return itemResult{done: true, state: c.state, err: c.err}
	})

	out.Invoked, out.InvocationReason = summarize(ctx, "prune", results)
	e.logger.Info("prune enhancement",
		zap.Int("eligible", len(eligible)),
		zap.Bool("invoked", out.Invoked),
		zap.String("reason", out.InvocationReason),
	)
	return out
}

// EnhanceSubstitutes asks for a preferred candidate on eligible sets. Sets
// without ranked candidates are never sent.
func (e *Enhancer) EnhanceSubstitutes(ctx context.Context, sets []internal.SubstituteSet) SubstituteOutcome {
	out := SubstituteOutcome{Sets: make([]internal.EnhancedSubstituteSet, len(sets))}
	for i, s := range sets {
		out.Sets[i] = internal.EnhancedSubstituteSet{Heuristic: s}
	}
	if reason := e.skipReason(); reason != "" {
		out.InvocationReason = reason
		return out
	}

	eligible := []int{}
	for i, s := range sets {
		top, ok := s.Top()
		if ok && e.Eligible(top.Score.Overall, s.Category) {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		out.InvocationReason = fmt.Sprintf("no substitute rankings below confidence %.2f or in sensitive categories", e.cfg.UncertaintyThreshold)
		return out
	}

	results := e.dispatch(ctx, eligible, func(ctx context.Context, i int) itemResult {
		set := sets[i]
		req, err := substituteRequest(set)
		if err != nil {
			return itemResult{done: true, state: stateFailedFallback, err: err}
		}
		var accepted internal.SubstituteEnhancement
		c := e.invoke(ctx, req, func(payload []byte) error {
			enh, err := DecodeSubstitute(payload)
			if err != nil {
				return err
			}
			if enh, err = checkSubstituteSafety(set, enh); err != nil {
				return err
			}
			accepted = enh
			return nil
		})
		if c.state == stateSucceeded {
			out.Sets[i].Enhancement = &accepted
		}
		return itemResult{done: true, state: c.state, err: c.err}
	})

	out.Invoked, out.InvocationReason = summarize(ctx, "substitute", results)
	e.logger.Info("substitute enhancement",
		zap.Int("eligible", len(eligible)),
		zap.Bool("invoked", out.Invoked),
		zap.String("reason", out.InvocationReason),
	)
	return out
}

// dispatch runs fn for each index on at most Workers goroutines. Results
// land at the position of their index in the returned slice.
func (e *Enhancer) dispatch(ctx context.Context, indexes []int, fn func(context.Context, int) itemResult) []itemResult {
	results := make([]itemResult, len(indexes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for n, i := range indexes {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[n] = fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func summarize(ctx context.Context, kind string, results []itemResult) (bool, string) {
	succeeded, failed := 0, 0
	var lastErr error
	for _, r := range results {
		if r.done && r.state == stateSucceeded {
			succeeded++
			continue
		}
		failed++
		if r.err != nil {
			lastErr = r.err
		}
	}
	cancelled := ctx.Err() != nil

	switch {
	case succeeded == 0 && cancelled:
		return false, fmt.Sprintf("%s enhancement cancelled: %v; heuristic decisions kept", kind, ctx.Err())
	case succeeded == 0 && lastErr != nil:
		return false, fmt.Sprintf("%s enhancement unavailable: %v; heuristic decisions kept", kind, lastErr)
	case succeeded == 0:
		return false, fmt.Sprintf("%s enhancement produced no result; heuristic decisions kept", kind)
	case failed > 0:
		return true, fmt.Sprintf("enhanced %d of %d eligible %s decisions; %d fell back to heuristic", succeeded, len(results), kind, failed)
	default:
		return true, fmt.Sprintf("enhanced %d eligible %s decisions", succeeded, kind)
	}
}

var errMissingJustification = errors.New("less conservative than heuristic without reasoning")

// checkPruneSafety flags a removal the heuristic did not recommend and
// rejects it unless it carries reasoning.
func checkPruneSafety(heuristic internal.PruneDecision, enh internal.PruneEnhancement) (internal.PruneEnhancement, error) {
	if enh.Verdict == internal.VerdictRemove && heuristic.Verdict != internal.VerdictRemove {
		if strings.TrimSpace(enh.Reasoning) == "" {
			return enh, errMissingJustification
		}
		enh.SafetyFlags = addFlag(enh.SafetyFlags, internal.SafetyFlagLessConservative)
	}
	return enh, nil
}

// checkSubstituteSafety rejects unknown products and flags a preference
// that departs from the heuristic top choice.
func checkSubstituteSafety(set internal.SubstituteSet, enh internal.SubstituteEnhancement) (internal.SubstituteEnhancement, error) {
	known := false
	for _, r := range set.Ranked {
		if r.Candidate.ProductID == enh.PreferredProductID {
			known = true
			break
		}
	}
	if !known {
		return enh, fmt.Errorf("preferred product %q is not a candidate", enh.PreferredProductID)
	}
	if top, ok := set.Top(); ok && top.Candidate.ProductID != enh.PreferredProductID {
		if strings.TrimSpace(enh.Reasoning) == "" {
			return enh, errMissingJustification
		}
		enh.SafetyFlags = addFlag(enh.SafetyFlags, internal.SafetyFlagLessConservative)
	}
	return enh, nil
}

func addFlag(flags []string, flag string) []string {
	if slices.Contains(flags, flag) {
		return flags
	}
	return append(flags, flag)
}
