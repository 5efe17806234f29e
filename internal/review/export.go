package review

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
)

const (
	SheetDiff        = "Diff"
	SheetPrune       = "Prune"
	SheetSubstitutes = "Substitutes"
	SheetSlots       = "Slots"
)

// ExportXLSX writes one sheet per section of the pack.
func ExportXLSX(pack internal.ReviewPack, outputPath string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetDiff); err != nil {
		return err
	}
	for _, name := range []string{SheetPrune, SheetSubstitutes, SheetSlots} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	writeRows(f, SheetDiff, []any{"change", "name", "previous_qty", "new_qty", "unit_price", "total_price", "reason"}, diffRows(pack.Diff))
	writeRows(f, SheetPrune, []any{"product", "verdict", "confidence", "reason", "days_since_last_purchase", "cadence_days", "cadence_source", "category", "llm_verdict", "llm_confidence", "llm_reasoning", "safety_flags"}, pruneRows(pack.PruneDecisions))
	writeRows(f, SheetSubstitutes, []any{"original", "rank", "product_id", "candidate", "brand", "unit_price", "price_delta", "overall", "brand_sim", "size_sim", "price_sim", "category_match", "reason", "llm_preferred"}, substituteRows(pack.Substitutes))
	writeRows(f, SheetSlots, []any{"start", "end", "price", "label"}, slotRows(pack.Slots))

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeRows(f *excelize.File, sheet string, headers []any, rows [][]any) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range rows {
		for c, value := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}
}

func diffRows(d internal.CartDiff) [][]any {
	rows := [][]any{}
	for _, it := range d.Added {
		rows = append(rows, []any{"added", it.Name, "", it.Quantity, it.UnitPrice, it.TotalPrice, ""})
	}
	for _, it := range d.Removed {
		rows = append(rows, []any{"removed", it.Name, it.Quantity, "", it.UnitPrice, it.TotalPrice, ""})
	}
	for _, c := range d.QuantityChanged {
		rows = append(rows, []any{"quantity_changed", c.Name, c.PreviousQuantity, c.NewQuantity, c.UnitPrice, "", c.Reason})
	}
	for _, it := range d.Unchanged {
		rows = append(rows, []any{"unchanged", it.Name, it.Quantity, it.Quantity, it.UnitPrice, it.TotalPrice, ""})
	}
	return rows
}

func pruneRows(decisions []internal.EnhancedPruneDecision) [][]any {
	rows := [][]any{}
	for _, d := range decisions {
		h := d.Heuristic
		var days any = ""
		if h.Context.DaysSinceLastPurchase != nil {
			days = *h.Context.DaysSinceLastPurchase
		}
		row := []any{h.ProductName, string(h.Verdict), h.Confidence, h.Reason, days, h.Context.RestockCadenceDays, string(h.Context.CadenceSource), h.Context.Category, "", "", "", ""}
		if e := d.Enhancement; e != nil {
			row[8], row[9], row[10], row[11] = string(e.Verdict), e.Confidence, e.Reasoning, strings.Join(e.SafetyFlags, ",")
		}
		rows = append(rows, row)
	}
	return rows
}

func substituteRows(sets []internal.EnhancedSubstituteSet) [][]any {
	rows := [][]any{}
	for _, set := range sets {
		original := set.Heuristic.Original.Name
		if len(set.Heuristic.Ranked) == 0 {
			rows = append(rows, []any{original, "", "", "no substitute found", "", "", "", "", "", "", "", "", "", ""})
			continue
		}
		preferred := ""
		if set.Enhancement != nil {
			preferred = set.Enhancement.PreferredProductID
		}
		for i, r := range set.Heuristic.Ranked {
			brand := ""
			if r.Candidate.Brand != nil {
				brand = *r.Candidate.Brand
			}
			mark := ""
			if preferred != "" && preferred == r.Candidate.ProductID {
				mark = "yes"
			}
			rows = append(rows, []any{
				original, i + 1, r.Candidate.ProductID, r.Candidate.Name, brand, r.Candidate.UnitPrice, r.PriceDelta,
				r.Score.Overall, r.Score.BrandSimilarity, r.Score.SizeSimilarity, r.Score.PriceSimilarity, r.Score.CategoryMatch,
				r.Reason, mark,
			})
		}
	}
	return rows
}

func slotRows(slots []internal.DeliverySlot) [][]any {
	rows := [][]any{}
	for _, s := range slots {
		rows = append(rows, []any{s.Start.Format("2006-01-02 15:04"), s.End.Format("2006-01-02 15:04"), s.Price, s.Label})
	}
	return rows
}

// WriteJSON writes the pack as indented JSON.
func WriteJSON(pack internal.ReviewPack, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pack); err != nil {
		return fmt.Errorf("encode review pack: %w", err)
	}
	return nil
}
