package orders

import (
	"strings"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/util"
)

type DetectResult struct {
	IsOrder bool
	Score   float64
	Reason  string
}

var detectKeywords = []string{"encomenda", "pedido", "order", "confirmacao", "confirmation", "fatura", "recibo", "receipt", "entrega", "delivery"}

// DetectOrderConfirmation scores how likely a message is a grocery order
// confirmation. Keywords are matched on accent-free lowercase text.
func DetectOrderConfirmation(subject, text, html string) DetectResult {
	subject = util.NormalizeName(subject)
	text = util.NormalizeName(text)
	lowerHTML := strings.ToLower(html)
	body := text + " " + util.NormalizeName(lowerHTML)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(body, kw) {
			score += 0.05
		}
	}
	if orderIDPattern.MatchString(subject) || orderIDPattern.MatchString(text) || orderIDPattern.MatchString(html) {
		score += 0.3
	}
	if strings.Contains(body, "total") && strings.Contains(body, "€") {
		score += 0.15
	}
	if strings.Contains(lowerHTML, "<table") {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}

	isOrder := score >= 0.5
	reason := "rules_negative"
	if isOrder {
		reason = "rules_positive"
	}
	return DetectResult{IsOrder: isOrder, Score: score, Reason: reason}
}
