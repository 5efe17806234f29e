package internal

import (
	"strings"
	"time"
)

type PurchaseRecord struct {
	ProductID    *string `json:"productId,omitempty"`
	ProductName  string  `json:"productName"`
	PurchaseDate string  `json:"purchaseDate"`
	Quantity     float64 `json:"quantity"`
	OrderID      string  `json:"orderId"`
	UnitPrice    float64 `json:"unitPrice"`
}

// Key is the deduplication identity. Product ids are not reliable in
// historical orders, so the order id and the product name are used.
func (r PurchaseRecord) Key() string {
	return r.OrderID + "|" + r.ProductName
}

// PurchasedAt parses PurchaseDate. Unparseable dates report false and the
// zero time, which sorts as the earliest possible purchase.
func (r PurchaseRecord) PurchasedAt() (time.Time, bool) {
	return ParseDate(r.PurchaseDate)
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "02/01/2006"}

func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

type PurchaseHistory struct {
	Records        []PurchaseRecord `json:"records"`
	LastSyncedAt   *string          `json:"lastSyncedAt"`
	OrdersCount    int              `json:"ordersCount"`
	SyncedOrderIDs []string         `json:"syncedOrderIds"`
}

type CartItem struct {
	ProductID        *string `json:"productId,omitempty"`
	Name             string  `json:"name"`
	Quantity         float64 `json:"quantity"`
	UnitPrice        float64 `json:"unitPrice"`
	TotalPrice       float64 `json:"totalPrice"`
	Available        bool    `json:"available"`
	AvailabilityNote *string `json:"availabilityNote,omitempty"`
	Brand            *string `json:"brand,omitempty"`
	Size             *string `json:"size,omitempty"`
	Category         *string `json:"category,omitempty"`
}

type CartSnapshot struct {
	Items      []CartItem `json:"items"`
	ItemCount  int        `json:"itemCount"`
	TotalPrice float64    `json:"totalPrice"`
}

type QuantityChange struct {
	Name             string  `json:"name"`
	PreviousQuantity float64 `json:"previousQuantity"`
	NewQuantity      float64 `json:"newQuantity"`
	UnitPrice        float64 `json:"unitPrice"`
	Reason           string  `json:"reason"`
}

type DiffSummary struct {
	AddedCount      int     `json:"addedCount"`
	RemovedCount    int     `json:"removedCount"`
	ChangedCount    int     `json:"changedCount"`
	UnchangedCount  int     `json:"unchangedCount"`
	PriceDifference float64 `json:"priceDifference"`
}

type CartDiff struct {
	Added           []CartItem       `json:"added"`
	Removed         []CartItem       `json:"removed"`
	QuantityChanged []QuantityChange `json:"quantityChanged"`
	Unchanged       []CartItem       `json:"unchanged"`
	Summary         DiffSummary      `json:"summary"`
}

type PruneVerdict string

const (
	VerdictRemove    PruneVerdict = "remove"
	VerdictKeep      PruneVerdict = "keep"
	VerdictUncertain PruneVerdict = "uncertain"
)

type CadenceSource string

const (
	CadenceLearned         CadenceSource = "learned"
	CadenceCategoryDefault CadenceSource = "category_default"
	CadenceNone            CadenceSource = "none"
)

type PruneContext struct {
	DaysSinceLastPurchase *int          `json:"daysSinceLastPurchase"`
	Category              string        `json:"category"`
	RestockCadenceDays    float64       `json:"restockCadenceDays"`
	CadenceSource         CadenceSource `json:"cadenceSource"`
	PurchaseCount         int           `json:"purchaseCount"`
}

type PruneDecision struct {
	ProductName string       `json:"productName"`
	Verdict     PruneVerdict `json:"verdict"`
	Prune       bool         `json:"prune"`
	Confidence  float64      `json:"confidence"`
	Reason      string       `json:"reason"`
	Context     PruneContext `json:"context"`
}

type PruneResult struct {
	RecommendedRemovals []PruneDecision `json:"recommendedRemovals"`
	UncertainItems      []PruneDecision `json:"uncertainItems"`
	KeepItems           []PruneDecision `json:"keepItems"`
}

type SubstituteCandidate struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Brand     *string `json:"brand,omitempty"`
	Size      *string `json:"size,omitempty"`
	UnitPrice float64 `json:"unitPrice"`
	ImageURL  *string `json:"imageUrl,omitempty"`
}

type SubstituteScore struct {
	BrandSimilarity float64 `json:"brandSimilarity"`
	SizeSimilarity  float64 `json:"sizeSimilarity"`
	PriceSimilarity float64 `json:"priceSimilarity"`
	CategoryMatch   float64 `json:"categoryMatch"`
	Overall         float64 `json:"overall"`
}

type RankedSubstitute struct {
	Candidate  SubstituteCandidate `json:"candidate"`
	Score      SubstituteScore     `json:"score"`
	PriceDelta float64             `json:"priceDelta"`
	Reason     string              `json:"reason"`
}

type SubstituteSet struct {
	Original CartItem           `json:"original"`
	Category string             `json:"category"`
	Ranked   []RankedSubstitute `json:"ranked"`
}

// Top returns the best ranked substitute, if any.
func (s SubstituteSet) Top() (RankedSubstitute, bool) {
	if len(s.Ranked) == 0 {
		return RankedSubstitute{}, false
	}
	return s.Ranked[0], true
}

const SafetyFlagLessConservative = "less_conservative_than_heuristic"

// PruneEnhancement is only ever stored fully populated and validated.
type PruneEnhancement struct {
	Verdict     PruneVerdict `json:"verdict"`
	Confidence  float64      `json:"confidence"`
	Reasoning   string       `json:"reasoning"`
	SafetyFlags []string     `json:"safetyFlags"`
}

type EnhancedPruneDecision struct {
	Heuristic   PruneDecision     `json:"heuristic"`
	Enhancement *PruneEnhancement `json:"enhancement,omitempty"`
}

func (d EnhancedPruneDecision) WasEnhanced() bool {
	return d.Enhancement != nil
}

type SubstituteEnhancement struct {
	PreferredProductID string   `json:"preferredProductId"`
	Confidence         float64  `json:"confidence"`
	Reasoning          string   `json:"reasoning"`
	SafetyFlags        []string `json:"safetyFlags"`
}

type EnhancedSubstituteSet struct {
	Heuristic   SubstituteSet          `json:"heuristic"`
	Enhancement *SubstituteEnhancement `json:"enhancement,omitempty"`
}

func (s EnhancedSubstituteSet) WasEnhanced() bool {
	return s.Enhancement != nil
}

type DeliverySlot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Price     float64   `json:"price"`
	Available bool      `json:"available"`
	Label     string    `json:"label,omitempty"`
}

type ConfidenceSummary struct {
	AveragePruneConfidence    float64 `json:"averagePruneConfidence"`
	RemovalCount              int     `json:"removalCount"`
	UncertainCount            int     `json:"uncertainCount"`
	KeepCount                 int     `json:"keepCount"`
	SubstitutesFound          int     `json:"substitutesFound"`
	SubstitutesMissing        int     `json:"substitutesMissing"`
	AverageTopSubstituteScore float64 `json:"averageTopSubstituteScore"`
	EnhancedCount             int     `json:"enhancedCount"`
}

type EnhancementReport struct {
	PruneInvoked       bool   `json:"pruneInvoked"`
	PruneReason        string `json:"pruneReason"`
	SubstitutesInvoked bool   `json:"substitutesInvoked"`
	SubstitutesReason  string `json:"substitutesReason"`
}

type ReviewPack struct {
	SessionID      string                  `json:"sessionId"`
	GeneratedAt    time.Time               `json:"generatedAt"`
	Diff           CartDiff                `json:"diff"`
	Prune          PruneResult             `json:"prune"`
	PruneDecisions []EnhancedPruneDecision `json:"pruneDecisions"`
	Substitutes    []EnhancedSubstituteSet `json:"substitutes"`
	Slots          []DeliverySlot          `json:"slots"`
	Confidence     ConfidenceSummary       `json:"confidence"`
	Enhancement    EnhancementReport       `json:"enhancement"`
}

type OrderSummary struct {
	OrderID   string  `json:"orderId"`
	Date      string  `json:"date"`
	Total     float64 `json:"total"`
	ItemCount int     `json:"itemCount"`
}

type OrderLine struct {
	ProductID *string `json:"productId,omitempty"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	LinePrice float64 `json:"linePrice"`
	RawLine   string  `json:"rawLine"`
}

type OrderDetail struct {
	OrderSummary
	Items []OrderLine `json:"items"`
}
