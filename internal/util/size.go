package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	sizePattern      = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(kg|gr|g|ml|cl|lt|l)\b`)
	multipackPattern = regexp.MustCompile(`(?i)(\d+)\s*[x×]\s*(\d+(?:[.,]\d+)?)\s*(kg|gr|g|ml|cl|lt|l)\b`)
)

// Size is a package size in its base unit: grams for mass, millilitres for volume.
type Size struct {
	Value float64
	Unit  string
}

// ParseSize extracts the package size from a size string or a product name.
// Multipacks such as "6x1L" are multiplied out.
func ParseSize(input string) (Size, bool) {
	s := strings.ReplaceAll(input, " ", " ")
	if m := multipackPattern.FindStringSubmatch(s); len(m) == 4 {
		count, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Size{}, false
		}
		each, ok := toBaseSize(m[2], m[3])
		if !ok {
			return Size{}, false
		}
		each.Value *= count
		return each, true
	}
	m := sizePattern.FindStringSubmatch(s)
	if len(m) != 3 {
		return Size{}, false
	}
	return toBaseSize(m[1], m[2])
}

func toBaseSize(number, unit string) (Size, bool) {
	value, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", "."), 64)
	if err != nil || value <= 0 {
		return Size{}, false
	}
	switch normalizeUnit(unit) {
	case "kg":
		return Size{Value: value * 1000, Unit: "g"}, true
	case "g":
		return Size{Value: value, Unit: "g"}, true
	case "l":
		return Size{Value: value * 1000, Unit: "ml"}, true
	case "cl":
		return Size{Value: value * 10, Unit: "ml"}, true
	case "ml":
		return Size{Value: value, Unit: "ml"}, true
	}
	return Size{}, false
}
