package enhance

import (
	"encoding/json"
	"fmt"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/history"
)

const pruneSystem = `You review grocery reorder decisions for one household.
Given an item, the heuristic decision and the household's purchase analytics,
answer with a JSON object: {"verdict": "remove"|"keep"|"uncertain",
"confidence": number in [0,1], "reasoning": string, "safetyFlags": [string]}.
Removing an item the household still needs is the worst outcome. When unsure, keep.`

const substituteSystem = `You pick the best replacement for an unavailable grocery item.
Choose only among the listed candidates and answer with a JSON object:
{"preferredProductId": string, "confidence": number in [0,1],
"reasoning": string, "safetyFlags": [string]}. Flag allergens, dietary
changes or large price jumps in safetyFlags.`

type prunePrompt struct {
	Item      string                   `json:"item"`
	Heuristic internal.PruneDecision   `json:"heuristic"`
	Analytics history.ProductAnalytics `json:"analytics"`
}

type substitutePrompt struct {
	Original   internal.CartItem     `json:"original"`
	Category   string                `json:"category"`
	Candidates []candidatePromptLine `json:"candidates"`
}

type candidatePromptLine struct {
	ProductID  string  `json:"productId"`
	Name       string  `json:"name"`
	Brand      string  `json:"brand,omitempty"`
	Size       string  `json:"size,omitempty"`
	UnitPrice  float64 `json:"unitPrice"`
	Score      float64 `json:"heuristicScore"`
	Reason     string  `json:"heuristicReason"`
	PriceDelta float64 `json:"priceDelta"`
}

func pruneRequest(d internal.PruneDecision, analytics history.ProductAnalytics) (Request, error) {
	body, err := json.MarshalIndent(prunePrompt{Item: d.ProductName, Heuristic: d, Analytics: analytics}, "", "  ")
	if err != nil {
		return Request{}, fmt.Errorf("marshal prune prompt: %w", err)
	}
	return Request{Kind: KindPrune, System: pruneSystem, Prompt: string(body)}, nil
}

func substituteRequest(set internal.SubstituteSet) (Request, error) {
	p := substitutePrompt{Original: set.Original, Category: set.Category}
	for _, r := range set.Ranked {
		line := candidatePromptLine{
			ProductID:  r.Candidate.ProductID,
			Name:       r.Candidate.Name,
			UnitPrice:  r.Candidate.UnitPrice,
			Score:      r.Score.Overall,
			Reason:     r.Reason,
			PriceDelta: r.PriceDelta,
		}
		if r.Candidate.Brand != nil {
			line.Brand = *r.Candidate.Brand
		}
		if r.Candidate.Size != nil {
			line.Size = *r.Candidate.Size
		}
		p.Candidates = append(p.Candidates, line)
	}
	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return Request{}, fmt.Errorf("marshal substitute prompt: %w", err)
	}
	return Request{Kind: KindSubstitute, System: substituteSystem, Prompt: string(body)}, nil
}
