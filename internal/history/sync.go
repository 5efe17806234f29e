package history

import (
	"strings"
	"time"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
)

type SyncResult struct {
	History       internal.PurchaseHistory
	OrdersSynced  int
	OrdersSkipped int
	RecordsAdded  int
}

// Sync appends the records of orders not yet in the synced-order set. Orders
// already synced are skipped whole, so a retried sync never duplicates lines.
func Sync(existing internal.PurchaseHistory, orders []internal.OrderDetail, now time.Time) SyncResult {
	synced := make(map[string]struct{}, len(existing.SyncedOrderIDs))
	for _, id := range existing.SyncedOrderIDs {
		synced[id] = struct{}{}
	}

	var incoming []internal.PurchaseRecord
	var incomingIDs []string
	skipped := 0
	for _, order := range orders {
		id := strings.TrimSpace(order.OrderID)
		if id == "" {
			skipped++
			continue
		}
		if _, ok := synced[id]; ok {
			skipped++
			continue
		}
		synced[id] = struct{}{}
		incoming = append(incoming, ToPurchaseRecords(order)...)
		incomingIDs = append(incomingIDs, id)
	}

	before := len(existing.Records)
	records, ids := Merge(existing.Records, existing.SyncedOrderIDs, incoming, incomingIDs)
	stamp := now.UTC().Format(time.RFC3339)
	return SyncResult{
		History: internal.PurchaseHistory{
			Records:        records,
			LastSyncedAt:   &stamp,
			OrdersCount:    len(ids),
			SyncedOrderIDs: ids,
		},
		OrdersSynced:  len(incomingIDs),
		OrdersSkipped: skipped,
		RecordsAdded:  len(records) - before,
	}
}

// ToPurchaseRecords converts the lines of one order. Lines without a name are
// dropped; a missing quantity counts as one unit.
func ToPurchaseRecords(order internal.OrderDetail) []internal.PurchaseRecord {
	out := make([]internal.PurchaseRecord, 0, len(order.Items))
	for _, line := range order.Items {
		name := strings.TrimSpace(line.Name)
		if name == "" {
			continue
		}
		qty := line.Quantity
		if qty <= 0 {
			qty = 1
		}
		unitPrice := line.UnitPrice
		if unitPrice == 0 && line.LinePrice > 0 {
			unitPrice = line.LinePrice / qty
		}
		out = append(out, internal.PurchaseRecord{
			ProductID:    line.ProductID,
			ProductName:  name,
			PurchaseDate: order.Date,
			Quantity:     qty,
			OrderID:      order.OrderID,
			UnitPrice:    unitPrice,
		})
	}
	return out
}
