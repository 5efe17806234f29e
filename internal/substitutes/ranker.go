// Package substitutes ranks replacement candidates for unavailable items.
package substitutes

import (
	"math"
	"sort"
	"strings"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/util"
)

const (
	weightBrand    = 0.3
	weightSize     = 0.2
	weightPrice    = 0.3
	weightCategory = 0.2
)

// band is one scoring threshold together with the phrase that explains it.
// Scores and reasons are both read from these tables.
type band struct {
	score  float64
	reason string
}

var (
	brandExact   = band{1.0, "Same brand"}
	brandSimilar = band{0.7, "Similar brand"}
	brandOther   = band{0.3, "Alternative option"}
	brandUnknown = band{0.5, ""}

	sizeSame       = band{1.0, "Same size"}
	sizeClose      = band{0.9, "Very similar size"}
	sizeNear       = band{0.7, "Similar size"}
	sizeFar        = band{0.5, "Different size"}
	sizeVeryFar    = band{0.3, "Very different size"}
	sizeOneUnknown = band{0.5, ""}
	sizeUnknown    = band{0.4, ""}

	priceSame     = band{1.0, "Same price"}
	priceCheaper  = band{0.7, "Same or lower price"}
	priceSlightly = band{0.8, "Slightly more expensive"}
	priceMore     = band{0.6, "More expensive"}
	priceMuchMore = band{0.4, "Much more expensive"}
	priceWayMore  = band{0.2, "Significantly more expensive"}
	priceUnknown  = band{0.5, ""}

	categoryBands = []struct {
		min float64
		band
	}{
		{0.7, band{1.0, "Same product type"}},
		{0.5, band{0.8, "Similar product type"}},
		{0.3, band{0.6, "Related product"}},
	}
	categoryWeak = band{0.4, "Loosely related"}
	categoryNone = band{0.2, "Different product type"}
)

// Rank scores every candidate against the original item and sorts them by
// overall score, best first. Equal scores keep their input order. Candidates
// identical to the original must be removed beforehand with ExcludeIdentical.
func Rank(candidates []internal.SubstituteCandidate, original internal.CartItem) []internal.RankedSubstitute {
	out := make([]internal.RankedSubstitute, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, score(c, original))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score.Overall > out[j].Score.Overall
	})
	return out
}

// ExcludeIdentical drops candidates whose normalized name equals the original.
func ExcludeIdentical(candidates []internal.SubstituteCandidate, original internal.CartItem) []internal.SubstituteCandidate {
	out := make([]internal.SubstituteCandidate, 0, len(candidates))
	for _, c := range candidates {
		if util.EqualNames(c.Name, original.Name) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func score(c internal.SubstituteCandidate, original internal.CartItem) internal.RankedSubstitute {
	brand := brandBand(c.Brand, original.Brand)
	size := sizeBand(c, original)
	price := priceBand(c.UnitPrice, original.UnitPrice)
	category := categoryBand(c.Name, original.Name)

	s := internal.SubstituteScore{
		BrandSimilarity: brand.score,
		SizeSimilarity:  size.score,
		PriceSimilarity: price.score,
		CategoryMatch:   category.score,
	}
	s.Overall = clamp01(round3(weightBrand*s.BrandSimilarity + weightSize*s.SizeSimilarity + weightPrice*s.PriceSimilarity + weightCategory*s.CategoryMatch))

	return internal.RankedSubstitute{
		Candidate:  c,
		Score:      s,
		PriceDelta: math.Round((c.UnitPrice-original.UnitPrice)*100) / 100,
		Reason:     reason(brand, size, price, category),
	}
}

func reason(bands ...band) string {
	parts := make([]string, 0, len(bands))
	for _, b := range bands {
		if b.reason != "" {
			parts = append(parts, b.reason)
		}
	}
	if len(parts) == 0 {
		return "Alternative option"
	}
	return strings.Join(parts, ", ")
}

func brandBand(candidate, original *string) band {
	a := util.NormalizeName(util.Deref(candidate))
	b := util.NormalizeName(util.Deref(original))
	switch {
	case a == "" || b == "":
		return brandUnknown
	case a == b:
		return brandExact
	case strings.Contains(a, b) || strings.Contains(b, a):
		return brandSimilar
	default:
		return brandOther
	}
}

func sizeBand(c internal.SubstituteCandidate, original internal.CartItem) band {
	candText := sizeText(c.Size, c.Name)
	origText := sizeText(original.Size, original.Name)
	if c.Size != nil && original.Size != nil && strings.EqualFold(strings.TrimSpace(*c.Size), strings.TrimSpace(*original.Size)) {
		return sizeSame
	}

	cand, okC := util.ParseSize(candText)
	orig, okO := util.ParseSize(origText)
	switch {
	case !okC && !okO:
		return sizeUnknown
	case !okC || !okO:
		return sizeOneUnknown
	case cand.Unit != orig.Unit:
		return sizeVeryFar
	case cand.Value == orig.Value:
		return sizeSame
	}

	ratio := cand.Value / orig.Value
	switch {
	case ratio >= 0.9 && ratio <= 1.1:
		return sizeClose
	case ratio >= 0.7 && ratio <= 1.3:
		return sizeNear
	case ratio >= 0.5 && ratio <= 1.5:
		return sizeFar
	default:
		return sizeVeryFar
	}
}

func sizeText(size *string, name string) string {
	if s := strings.TrimSpace(util.Deref(size)); s != "" {
		return s
	}
	return name
}

func priceBand(candidate, original float64) band {
	if original <= 0 || candidate <= 0 || math.IsNaN(original) || math.IsNaN(candidate) {
		return priceUnknown
	}
	if math.Abs(candidate-original) < 0.005 {
		return priceSame
	}
	ratio := candidate / original
	switch {
	case ratio < 1:
		// Approaches 1.0 as the candidate price approaches the original.
		return band{round3(priceCheaper.score + 0.3*ratio), priceCheaper.reason}
	case ratio <= 1.1:
		return priceSlightly
	case ratio <= 1.2:
		return priceMore
	case ratio <= 1.3:
		return priceMuchMore
	default:
		return priceWayMore
	}
}

func categoryBand(candidateName, originalName string) band {
	tokens := util.Tokenize(originalName, 2)
	if len(tokens) == 0 {
		return categoryNone
	}
	haystack := util.NormalizeName(candidateName)
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			hits++
		}
	}
	overlap := float64(hits) / float64(len(tokens))
	for _, b := range categoryBands {
		if overlap >= b.min {
			return b.band
		}
	}
	if overlap > 0 {
		return categoryWeak
	}
	return categoryNone
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
