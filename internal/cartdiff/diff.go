// Package cartdiff compares two cart snapshots.
package cartdiff

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/util"
)

const ReasonQuantityAdjusted = "quantity adjusted"

// Diff classifies every line of both snapshots as added, removed,
// quantity-changed or unchanged. Lines are joined on the normalized item
// name; product ids churn too much between scans to be a join key.
//
// Added, changed and unchanged follow the order of current; removed follows
// the order of previous. The output depends only on the inputs.
func Diff(previous, current internal.CartSnapshot) internal.CartDiff {
	prevLines, prevOrder := aggregate(previous.Items)
	currLines, currOrder := aggregate(current.Items)

	out := internal.CartDiff{
		Added:           []internal.CartItem{},
		Removed:         []internal.CartItem{},
		QuantityChanged: []internal.QuantityChange{},
		Unchanged:       []internal.CartItem{},
	}

	for _, key := range currOrder {
		curr := currLines[key]
		prev, ok := prevLines[key]
		switch {
		case !ok:
			out.Added = append(out.Added, curr)
		case prev.Quantity != curr.Quantity:
			out.QuantityChanged = append(out.QuantityChanged, internal.QuantityChange{
				Name:             curr.Name,
				PreviousQuantity: prev.Quantity,
				NewQuantity:      curr.Quantity,
				UnitPrice:        curr.UnitPrice,
				Reason:           ReasonQuantityAdjusted,
			})
		default:
			out.Unchanged = append(out.Unchanged, curr)
		}
	}
	for _, key := range prevOrder {
		if _, ok := currLines[key]; !ok {
			out.Removed = append(out.Removed, prevLines[key])
		}
	}

	out.Summary = internal.DiffSummary{
		AddedCount:      len(out.Added),
		RemovedCount:    len(out.Removed),
		ChangedCount:    len(out.QuantityChanged),
		UnchangedCount:  len(out.Unchanged),
		PriceDifference: roundCents(sumTotals(current.Items) - sumTotals(previous.Items)),
	}
	return out
}

// aggregate folds lines sharing a normalized name into one line so each
// name lands in exactly one bucket. The first line keeps its display fields.
func aggregate(items []internal.CartItem) (map[string]internal.CartItem, []string) {
	lines := make(map[string]internal.CartItem, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		key := util.NormalizeName(item.Name)
		existing, ok := lines[key]
		if !ok {
			lines[key] = item
			order = append(order, key)
			continue
		}
		existing.Quantity += item.Quantity
		existing.TotalPrice = roundCents(existing.TotalPrice + item.TotalPrice)
		lines[key] = existing
	}
	return lines, order
}

func sumTotals(items []internal.CartItem) float64 {
	total := 0.0
	for _, item := range items {
		total += item.TotalPrice
	}
	return total
}

func roundCents(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// Validate rejects snapshots the engine must not compute on.
func Validate(label string, s internal.CartSnapshot) error {
	for i, item := range s.Items {
		if strings.TrimSpace(item.Name) == "" {
			return errs.Invalid("invalid_snapshot", "%s cart: item %d has no name", label, i)
		}
		if item.Quantity < 0 || math.IsNaN(item.Quantity) || math.IsInf(item.Quantity, 0) {
			return errs.Invalid("invalid_snapshot", "%s cart: item %q has invalid quantity %v", label, item.Name, item.Quantity)
		}
		if item.UnitPrice < 0 || item.TotalPrice < 0 || math.IsNaN(item.UnitPrice) || math.IsNaN(item.TotalPrice) {
			return errs.Invalid("invalid_snapshot", "%s cart: item %q has a negative or invalid price", label, item.Name)
		}
	}
	return nil
}

// Digest is the sha256 of the RFC 8785 canonical JSON of the diff. Two diffs
// of identical snapshots always share a digest.
func Digest(d internal.CartDiff) (string, error) {
	blob, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal diff: %w", err)
	}
	canonical, err := jcs.Transform(blob)
	if err != nil {
		return "", fmt.Errorf("canonicalize diff: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
