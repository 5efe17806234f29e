package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	unitPattern     = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(unidades|unidade|unid|un|uds|pcs|pc|kg|gr|g|ml|cl|lt|l|emb|pack)\b`)
	numberPattern   = regexp.MustCompile(`(?i)(?:^|[^0-9.,])(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)`)
	withUnitPattern = regexp.MustCompile(`(?i)(?:^|[^0-9.,])(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)\s*(unidades|unidade|unid|un|uds|pcs|pc|kg|gr|g|ml|cl|lt|l|emb|pack)\b`)
	thousandsDot    = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	thousandsComma  = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
	pricePattern    = regexp.MustCompile(`-?\d{1,3}(?:[\s.,]\d{3})*(?:[.,]\d{1,2})?|-?\d+(?:[.,]\d{1,2})?`)
)

type ParsedQty struct {
	Qty    *float64
	Unit   *string
	QtyRaw *string
}

// ParseQty extracts the last quantity in a line, preferring one followed by a unit.
func ParseQty(input string) ParsedQty {
	line := strings.ReplaceAll(input, " ", " ")

	qtyRaw := ""
	qtyToken := ""

	wm := withUnitPattern.FindAllStringSubmatch(line, -1)
	if len(wm) > 0 {
		last := wm[len(wm)-1]
		qtyRaw = strings.TrimSpace(last[1] + " " + last[2])
		qtyToken = strings.TrimSpace(last[1])
	} else {
		nm := numberPattern.FindAllStringSubmatch(line, -1)
		if len(nm) > 0 {
			last := nm[len(nm)-1]
			qtyRaw = strings.TrimSpace(last[1])
			qtyToken = strings.TrimSpace(last[1])
		}
	}

	var qtyPtr *float64
	if qtyToken != "" {
		norm := normalizeNumericToken(qtyToken)
		if parsed, err := strconv.ParseFloat(norm, 64); err == nil {
			qtyPtr = FloatPtr(parsed)
		}
	}

	var unitPtr *string
	if um := unitPattern.FindStringSubmatch(line); len(um) > 1 {
		u := normalizeUnit(um[1])
		unitPtr = &u
	}

	var qtyRawPtr *string
	if qtyRaw != "" {
		qtyRawPtr = &qtyRaw
	}

	return ParsedQty{Qty: qtyPtr, Unit: unitPtr, QtyRaw: qtyRawPtr}
}

// ParsePrice reads localized price text such as "€ 2,49", "2.49€" or
// "1.234,56 EUR". It reports false when no number is present.
func ParsePrice(input string) (float64, bool) {
	s := strings.ReplaceAll(input, " ", " ")
	s = strings.NewReplacer("€", " ", "EUR", " ", "eur", " ", "$", " ", "£", " ").Replace(s)
	token := pricePattern.FindString(strings.TrimSpace(s))
	if token == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(normalizeNumericToken(token), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch u {
	case "un", "unid", "unidade", "unidades", "uds", "pcs", "pc":
		return "un"
	case "gr", "g":
		return "g"
	case "lt", "l":
		return "l"
	case "emb", "pack":
		return "emb"
	default:
		return u
	}
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if thousandsDot.MatchString(compact) && !looksLikeDecimal(compact, '.') {
		return strings.ReplaceAll(compact, ".", "")
	}
	if thousandsComma.MatchString(compact) && !looksLikeDecimal(compact, ',') {
		return strings.ReplaceAll(compact, ",", "")
	}
	lastDot := strings.LastIndex(compact, ".")
	lastComma := strings.LastIndex(compact, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0 && lastComma > lastDot:
		return strings.ReplaceAll(strings.ReplaceAll(compact, ".", ""), ",", ".")
	case lastDot >= 0 && lastComma >= 0:
		return strings.ReplaceAll(compact, ",", "")
	case lastComma >= 0:
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}

// looksLikeDecimal treats "1.500" as a thousands group but "0.500" as a decimal.
func looksLikeDecimal(token string, sep byte) bool {
	return strings.Count(token, string(sep)) == 1 && strings.HasPrefix(token, "0")
}

func FloatPtr(v float64) *float64 { return &v }

func StringPtr(v string) *string { return &v }

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
