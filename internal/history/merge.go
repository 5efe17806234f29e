package history

import (
	"sort"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
)

// Merge folds newly synced records into the existing history.
//
// Records are deduplicated on orderId|productName with the first occurrence
// winning, so callers that need recency to win a tie must pass the newer
// records first. The result is sorted by purchase date descending, then
// order id descending, then product name, which makes the output independent
// of merge order. Merging a result with itself returns it unchanged.
func Merge(existing []internal.PurchaseRecord, existingSynced []string, incoming []internal.PurchaseRecord, incomingSynced []string) ([]internal.PurchaseRecord, []string) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	records := make([]internal.PurchaseRecord, 0, len(existing)+len(incoming))
	for _, group := range [][]internal.PurchaseRecord{existing, incoming} {
		for _, r := range group {
			key := r.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			records = append(records, r)
		}
	}
	SortRecords(records)

	return records, unionIDs(existingSynced, incomingSynced)
}

// SortRecords orders records newest first. Records with an unparseable date
// sort after every dated record.
func SortRecords(records []internal.PurchaseRecord) {
	dates := make(map[string]int64, len(records))
	for _, r := range records {
		t, ok := r.PurchasedAt()
		if !ok {
			dates[r.PurchaseDate] = minUnix
			continue
		}
		dates[r.PurchaseDate] = t.Unix()
	}
	sort.SliceStable(records, func(i, j int) bool {
		di, dj := dates[records[i].PurchaseDate], dates[records[j].PurchaseDate]
		if di != dj {
			return di > dj
		}
		if records[i].OrderID != records[j].OrderID {
			return records[i].OrderID > records[j].OrderID
		}
		return records[i].ProductName < records[j].ProductName
	})
}

const minUnix = -1 << 62

func unionIDs(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, group := range [][]string{a, b} {
		for _, id := range group {
			if id == "" {
				continue
			}
			if _, ok := set[id]; ok {
				continue
			}
			set[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// MergeHistory merges two history documents. Scalar fields are taken from
// incoming when set.
func MergeHistory(existing, incoming internal.PurchaseHistory) internal.PurchaseHistory {
	records, synced := Merge(existing.Records, existing.SyncedOrderIDs, incoming.Records, incoming.SyncedOrderIDs)
	out := internal.PurchaseHistory{
		Records:        records,
		LastSyncedAt:   existing.LastSyncedAt,
		SyncedOrderIDs: synced,
		OrdersCount:    len(synced),
	}
	if incoming.LastSyncedAt != nil {
		out.LastSyncedAt = incoming.LastSyncedAt
	}
	return out
}
