package review

import (
	"sort"
	"time"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
)

// SelectSlots keeps available slots starting after now, earliest first and
// cheapest among equal starts. A limit <= 0 keeps them all.
func SelectSlots(slots []internal.DeliverySlot, now time.Time, limit int) []internal.DeliverySlot {
	out := make([]internal.DeliverySlot, 0, len(slots))
	for _, s := range slots {
		if s.Available && s.Start.After(now) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Price < out[j].Price
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
