// Package review builds the ReviewPack handed to whatever renders it.
package review

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
)

type Input struct {
	SessionID      string
	GeneratedAt    time.Time
	Diff           internal.CartDiff
	Prune          internal.PruneResult
	PruneDecisions []internal.EnhancedPruneDecision
	Substitutes    []internal.EnhancedSubstituteSet
	Slots          []internal.DeliverySlot
	Enhancement    internal.EnhancementReport
}

// Assemble copies the stage outputs into a pack and summarizes confidence.
// The pack shares no slices or pointers with the input.
func Assemble(in Input) internal.ReviewPack {
	pack := internal.ReviewPack{
		SessionID:   in.SessionID,
		GeneratedAt: in.GeneratedAt.UTC(),
		Diff: internal.CartDiff{
			Added:           cloneWith(in.Diff.Added, cloneItem),
			Removed:         cloneWith(in.Diff.Removed, cloneItem),
			QuantityChanged: clone(in.Diff.QuantityChanged),
			Unchanged:       cloneWith(in.Diff.Unchanged, cloneItem),
			Summary:         in.Diff.Summary,
		},
		Prune: internal.PruneResult{
			RecommendedRemovals: cloneWith(in.Prune.RecommendedRemovals, cloneDecision),
			UncertainItems:      cloneWith(in.Prune.UncertainItems, cloneDecision),
			KeepItems:           cloneWith(in.Prune.KeepItems, cloneDecision),
		},
		PruneDecisions: cloneWith(in.PruneDecisions, cloneEnhancedDecision),
		Substitutes:    cloneWith(in.Substitutes, cloneEnhancedSet),
		Slots:          clone(in.Slots),
		Enhancement:    in.Enhancement,
	}
	pack.Confidence = Summarize(pack)
	return pack
}

// Summarize computes the confidence summary of a pack.
func Summarize(pack internal.ReviewPack) internal.ConfidenceSummary {
	s := internal.ConfidenceSummary{
		RemovalCount:   len(pack.Prune.RecommendedRemovals),
		UncertainCount: len(pack.Prune.UncertainItems),
		KeepCount:      len(pack.Prune.KeepItems),
	}

	total, n := 0.0, 0
	for _, group := range [][]internal.PruneDecision{pack.Prune.RecommendedRemovals, pack.Prune.UncertainItems, pack.Prune.KeepItems} {
		for _, d := range group {
			total += d.Confidence
			n++
		}
	}
	if n > 0 {
		s.AveragePruneConfidence = round3(total / float64(n))
	}

	topTotal := 0.0
	for _, set := range pack.Substitutes {
		if top, ok := set.Heuristic.Top(); ok {
			s.SubstitutesFound++
			topTotal += top.Score.Overall
		} else {
			s.SubstitutesMissing++
		}
		if set.WasEnhanced() {
			s.EnhancedCount++
		}
	}
	if s.SubstitutesFound > 0 {
		s.AverageTopSubstituteScore = round3(topTotal / float64(s.SubstitutesFound))
	}
	for _, d := range pack.PruneDecisions {
		if d.WasEnhanced() {
			s.EnhancedCount++
		}
	}
	return s
}

// Digest hashes the canonical JSON of a pack, ignoring its session id and
// timestamp, so reruns on identical inputs can be compared.
func Digest(pack internal.ReviewPack) (string, error) {
	pack.SessionID = ""
	pack.GeneratedAt = time.Time{}
	blob, err := json.Marshal(pack)
	if err != nil {
		return "", fmt.Errorf("marshal pack: %w", err)
	}
	canonical, err := jcs.Transform(blob)
	if err != nil {
		return "", fmt.Errorf("canonicalize pack: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func clone[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneWith[T any](in []T, fn func(T) T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneItem(it internal.CartItem) internal.CartItem {
	it.ProductID = clonePtr(it.ProductID)
	it.AvailabilityNote = clonePtr(it.AvailabilityNote)
	it.Brand = clonePtr(it.Brand)
	it.Size = clonePtr(it.Size)
	it.Category = clonePtr(it.Category)
	return it
}

func cloneDecision(d internal.PruneDecision) internal.PruneDecision {
	d.Context.DaysSinceLastPurchase = clonePtr(d.Context.DaysSinceLastPurchase)
	return d
}

func cloneRanked(r internal.RankedSubstitute) internal.RankedSubstitute {
	r.Candidate.Brand = clonePtr(r.Candidate.Brand)
	r.Candidate.Size = clonePtr(r.Candidate.Size)
	r.Candidate.ImageURL = clonePtr(r.Candidate.ImageURL)
	return r
}

func cloneEnhancedDecision(d internal.EnhancedPruneDecision) internal.EnhancedPruneDecision {
	d.Heuristic = cloneDecision(d.Heuristic)
	if d.Enhancement != nil {
		enh := *d.Enhancement
		enh.SafetyFlags = clone(enh.SafetyFlags)
		d.Enhancement = &enh
	}
	return d
}

func cloneEnhancedSet(s internal.EnhancedSubstituteSet) internal.EnhancedSubstituteSet {
	s.Heuristic.Original = cloneItem(s.Heuristic.Original)
	s.Heuristic.Ranked = cloneWith(s.Heuristic.Ranked, cloneRanked)
	if s.Enhancement != nil {
		enh := *s.Enhancement
		enh.SafetyFlags = clone(enh.SafetyFlags)
		s.Enhancement = &enh
	}
	return s
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
