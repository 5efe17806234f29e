package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/util"
)

func verifyNoLeaks(t *testing.T) {
	t.Helper()
	goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.RetryBackoff = time.Millisecond
	cfg.CallTimeout = time.Second
	return cfg
}

func decision(name string, verdict internal.PruneVerdict, confidence float64, category string) internal.PruneDecision {
	return internal.PruneDecision{
		ProductName: name,
		Verdict:     verdict,
		Prune:       verdict == internal.VerdictRemove,
		Confidence:  confidence,
		Reason:      "heuristic",
		Context:     internal.PruneContext{Category: category, CadenceSource: internal.CadenceNone},
	}
}

func heuristicOnly(decisions []internal.PruneDecision) []internal.EnhancedPruneDecision {
	out := make([]internal.EnhancedPruneDecision, len(decisions))
	for i, d := range decisions {
		out[i] = internal.EnhancedPruneDecision{Heuristic: d}
	}
	return out
}

func itemOf(t *testing.T, req Request) string {
	var p struct {
		Item string `json:"item"`
	}
	require.NoError(t, json.Unmarshal([]byte(req.Prompt), &p))
	return p.Item
}

func staticClient(payload string) (Client, *atomic.Int32) {
	calls := &atomic.Int32{}
	return ClientFunc(func(ctx context.Context, req Request) ([]byte, error) {
		calls.Add(1)
		return []byte(payload), nil
	}), calls
}

func TestSkipsWhenDisabledOrUnconfigured(t *testing.T) {
	defer verifyNoLeaks(t)
	decisions := []internal.PruneDecision{decision("Leite", internal.VerdictUncertain, 0.3, "dairy")}
	client, calls := staticClient(`{}`)

	cfg := testConfig()
	cfg.Enabled = false
	out := New(client, cfg, nil).EnhancePrune(context.Background(), decisions, nil)
	assert.False(t, out.Invoked)
	assert.Equal(t, "enhancement disabled", out.InvocationReason)
	assert.Equal(t, heuristicOnly(decisions), out.Decisions)

	out = New(nil, testConfig(), nil).EnhancePrune(context.Background(), decisions, nil)
	assert.False(t, out.Invoked)
	assert.Equal(t, "no LLM client configured", out.InvocationReason)
	assert.Zero(t, calls.Load())
}

func TestOnlyUncertainOrSensitiveItemsAreSent(t *testing.T) {
	defer verifyNoLeaks(t)
	sent := sync.Map{}
	client := ClientFunc(func(ctx context.Context, req Request) ([]byte, error) {
		sent.Store(itemOf(t, req), true)
		return []byte(`{"verdict":"keep","confidence":0.8,"reasoning":"ok"}`), nil
	})

	decisions := []internal.PruneDecision{
		decision("Leite", internal.VerdictKeep, 0.95, "dairy"),
		decision("Fraldas", internal.VerdictKeep, 0.95, "baby"),
		decision("Kombucha", internal.VerdictUncertain, 0.3, "other"),
	}
	out := New(client, testConfig(), nil).EnhancePrune(context.Background(), decisions, nil)

	assert.True(t, out.Invoked)
	_, leite := sent.Load("Leite")
	_, fraldas := sent.Load("Fraldas")
	_, kombucha := sent.Load("Kombucha")
	assert.False(t, leite)
	assert.True(t, fraldas)
	assert.True(t, kombucha)
	assert.False(t, out.Decisions[0].WasEnhanced())
	assert.True(t, out.Decisions[1].WasEnhanced())
	assert.True(t, out.Decisions[2].WasEnhanced())
}

func TestNothingEligible(t *testing.T) {
	defer verifyNoLeaks(t)
	client, calls := staticClient(`{}`)
	decisions := []internal.PruneDecision{decision("Leite", internal.VerdictKeep, 0.9, "dairy")}

	out := New(client, testConfig(), nil).EnhancePrune(context.Background(), decisions, nil)
	assert.False(t, out.Invoked)
	assert.Contains(t, out.InvocationReason, "no decisions below confidence 0.60")
	assert.Zero(t, calls.Load())
}

func TestAcceptedEnhancementKeepsHeuristic(t *testing.T) {
	defer verifyNoLeaks(t)
	client, _ := staticClient(`{"verdict":"keep","confidence":0.82,"reasoning":"bought weekly","safetyFlags":[]}`)
	d := decision("Iogurte", internal.VerdictUncertain, 0.55, "dairy")
	records := []internal.PurchaseRecord{{ProductName: "Iogurte", PurchaseDate: "2026-03-01", OrderID: "A", Quantity: 4, UnitPrice: 0.4}}

	out := New(client, testConfig(), nil).EnhancePrune(context.Background(), []internal.PruneDecision{d}, records)

	require.True(t, out.Invoked)
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, d, out.Decisions[0].Heuristic)
	require.NotNil(t, out.Decisions[0].Enhancement)
	assert.Equal(t, internal.PruneEnhancement{Verdict: internal.VerdictKeep, Confidence: 0.82, Reasoning: "bought weekly", SafetyFlags: []string{}}, *out.Decisions[0].Enhancement)
	assert.Equal(t, "enhanced 1 eligible prune decisions", out.InvocationReason)
}

func TestFailuresFallBackToHeuristic(t *testing.T) {
	defer verifyNoLeaks(t)
	decisions := []internal.PruneDecision{
		decision("Leite", internal.VerdictUncertain, 0.4, "dairy"),
		decision("Pão", internal.VerdictUncertain, 0.5, "bakery"),
	}
	tests := []struct {
		name    string
		payload string
		err     error
	}{
		{name: "service error", err: errors.New("503 from upstream")},
		{name: "not json", payload: `Sure! Here is my answer`},
		{name: "confidence out of range", payload: `{"verdict":"keep","confidence":1.7,"reasoning":"x"}`},
		{name: "unknown verdict", payload: `{"verdict":"maybe","confidence":0.5,"reasoning":"x"}`},
		{name: "missing reasoning", payload: `{"verdict":"keep","confidence":0.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client := ClientFunc(func(ctx context.Context, req Request) ([]byte, error) {
				calls.Add(1)
				if tt.err != nil {
					return nil, tt.err
				}
				return []byte(tt.payload), nil
			})
			cfg := testConfig()
			out := New(client, cfg, nil).EnhancePrune(context.Background(), decisions, nil)

			assert.False(t, out.Invoked)
			assert.Contains(t, out.InvocationReason, "heuristic decisions kept")
			if diff := cmp.Diff(heuristicOnly(decisions), out.Decisions); diff != "" {
				t.Fatalf("decisions changed (-want +got):\n%s", diff)
			}
			assert.Equal(t, int32(len(decisions)*(cfg.MaxRetries+1)), calls.Load())
		})
	}
}

func TestRetryThenSucceed(t *testing.T) {
	defer verifyNoLeaks(t)
	var calls atomic.Int32
	client := ClientFunc(func(ctx context.Context, req Request) ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("timeout")
		}
		return []byte(`{"verdict":"keep","confidence":0.7,"reasoning":"second try"}`), nil
	})
	out := New(client, testConfig(), nil).EnhancePrune(context.Background(), []internal.PruneDecision{decision("Leite", internal.VerdictUncertain, 0.4, "dairy")}, nil)
	assert.True(t, out.Invoked)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "second try", out.Decisions[0].Enhancement.Reasoning)
}

func TestLessConservativeRemovalNeedsReasoning(t *testing.T) {
	defer verifyNoLeaks(t)
	d := decision("Arroz", internal.VerdictUncertain, 0.5, "pantry")

	client, _ := staticClient(`{"verdict":"remove","confidence":0.9,"reasoning":"5kg bag bought last week"}`)
	out := New(client, testConfig(), nil).EnhancePrune(context.Background(), []internal.PruneDecision{d}, nil)
	require.True(t, out.Invoked)
	assert.Equal(t, []string{internal.SafetyFlagLessConservative}, out.Decisions[0].Enhancement.SafetyFlags)

	client, _ = staticClient(`{"verdict":"remove","confidence":0.9,"reasoning":"   "}`)
	out = New(client, testConfig(), nil).EnhancePrune(context.Background(), []internal.PruneDecision{d}, nil)
	assert.False(t, out.Invoked)
	assert.Nil(t, out.Decisions[0].Enhancement)
}

func TestCancellationResolvesToHeuristic(t *testing.T) {
	defer verifyNoLeaks(t)
	client := ClientFunc(func(ctx context.Context, req Request) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	decisions := []internal.PruneDecision{
		decision("A", internal.VerdictUncertain, 0.3, "other"),
		decision("B", internal.VerdictUncertain, 0.3, "other"),
		decision("C", internal.VerdictUncertain, 0.3, "other"),
		decision("D", internal.VerdictUncertain, 0.3, "other"),
	}
	cfg := testConfig()
	cfg.Workers = 2

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	out := New(client, cfg, nil).EnhancePrune(ctx, decisions, nil)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, out.Invoked)
	assert.Contains(t, out.InvocationReason, "cancelled")
	assert.Equal(t, heuristicOnly(decisions), out.Decisions)
}

func TestClientIgnoringContextIsAbandoned(t *testing.T) {
	defer verifyNoLeaks(t)
	release := make(chan struct{})
	defer close(release)
	client := ClientFunc(func(ctx context.Context, req Request) ([]byte, error) {
		<-release
		return []byte(`{"verdict":"keep","confidence":0.8,"reasoning":"late","safetyFlags":[]}`), nil
	})
	decisions := []internal.PruneDecision{
		decision("A", internal.VerdictUncertain, 0.3, "other"),
		decision("B", internal.VerdictUncertain, 0.3, "other"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	out := New(client, testConfig(), nil).EnhancePrune(ctx, decisions, nil)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, out.Invoked)
	assert.Contains(t, out.InvocationReason, "cancelled")
	assert.Equal(t, heuristicOnly(decisions), out.Decisions)
}

func TestCallTimeoutAbandonsStuckClient(t *testing.T) {
	defer verifyNoLeaks(t)
	release := make(chan struct{})
	defer close(release)
	client := ClientFunc(func(ctx context.Context, req Request) ([]byte, error) {
		<-release
		return nil, errors.New("too late")
	})
	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 1
	d := decision("A", internal.VerdictUncertain, 0.3, "other")

	start := time.Now()
	out := New(client, cfg, nil).EnhancePrune(context.Background(), []internal.PruneDecision{d}, nil)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, out.Invoked)
	assert.Contains(t, out.InvocationReason, "deadline exceeded")
	assert.Nil(t, out.Decisions[0].Enhancement)
}

func TestPanickingClientFallsBack(t *testing.T) {
	defer verifyNoLeaks(t)
	var calls atomic.Int32
	client := ClientFunc(func(ctx context.Context, req Request) ([]byte, error) {
		calls.Add(1)
		panic("client bug")
	})
	d := decision("A", internal.VerdictUncertain, 0.3, "other")

	out := New(client, testConfig(), nil).EnhancePrune(context.Background(), []internal.PruneDecision{d}, nil)

	assert.False(t, out.Invoked)
	assert.Contains(t, out.InvocationReason, "panicked: client bug")
	assert.Equal(t, int32(testConfig().MaxRetries+1), calls.Load())
	assert.Equal(t, heuristicOnly([]internal.PruneDecision{d}), out.Decisions)
}

func TestResultsKeepInputOrderUnderConcurrency(t *testing.T) {
	defer verifyNoLeaks(t)
	var inFlight, peak atomic.Int32
	client := ClientFunc(func(ctx context.Context, req Request) ([]byte, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		item := itemOf(t, req)
		select {
		case <-time.After(time.Duration(len(item)%4) * 3 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []byte(fmt.Sprintf(`{"verdict":"keep","confidence":0.7,"reasoning":%q}`, item)), nil
	})

	decisions := []internal.PruneDecision{}
	for i := 0; i < 12; i++ {
		decisions = append(decisions, decision(fmt.Sprintf("item-%s", string(rune('a'+i))+fmt.Sprint(i*7)), internal.VerdictUncertain, 0.3, "other"))
	}
	cfg := testConfig()
	cfg.Workers = 3
	out := New(client, cfg, nil).EnhancePrune(context.Background(), decisions, nil)

	require.True(t, out.Invoked)
	for i, d := range out.Decisions {
		assert.Equal(t, decisions[i], d.Heuristic)
		require.NotNil(t, d.Enhancement)
		assert.Equal(t, decisions[i].ProductName, d.Enhancement.Reasoning)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestEnhancementSafetyProperty(t *testing.T) {
	defer verifyNoLeaks(t)
	failures := []func(context.Context) ([]byte, error){
		func(context.Context) ([]byte, error) { return nil, errors.New("boom") },
		func(context.Context) ([]byte, error) { return []byte(`{"verdict":`), nil },
		func(context.Context) ([]byte, error) { return []byte(`[]`), nil },
		func(context.Context) ([]byte, error) { return []byte(`{"verdict":"keep","confidence":-1,"reasoning":"x"}`), nil },
		func(ctx context.Context) ([]byte, error) { return nil, context.DeadlineExceeded },
	}
	cfg := testConfig()
	cfg.MaxRetries = 0

	properties := gopter.NewProperties(nil)
	properties.Property("failing collaborator leaves decisions untouched", prop.ForAll(
		func(mode int, confidences []float64) bool {
			decisions := make([]internal.PruneDecision, 0, len(confidences))
			for i, c := range confidences {
				decisions = append(decisions, decision(fmt.Sprintf("p%d", i), internal.VerdictUncertain, c, "other"))
			}
			client := ClientFunc(func(ctx context.Context, req Request) ([]byte, error) {
				return failures[mode](ctx)
			})
			out := New(client, cfg, nil).EnhancePrune(context.Background(), decisions, nil)
			return !out.Invoked && out.InvocationReason != "" && cmp.Equal(heuristicOnly(decisions), out.Decisions)
		},
		gen.IntRange(0, len(failures)-1), gen.SliceOf(gen.Float64Range(0, 1)),
	))
	properties.TestingRun(t)
}

func rankedSet(name, category string, ids ...string) internal.SubstituteSet {
	set := internal.SubstituteSet{Original: internal.CartItem{Name: name, Quantity: 1, UnitPrice: 2}, Category: category, Ranked: []internal.RankedSubstitute{}}
	for i, id := range ids {
		set.Ranked = append(set.Ranked, internal.RankedSubstitute{
			Candidate: internal.SubstituteCandidate{ProductID: id, Name: name + " " + id, Brand: util.StringPtr("B" + id), UnitPrice: 2},
			Score:     internal.SubstituteScore{Overall: 0.5 - float64(i)*0.1},
			Reason:    "Alternative option",
		})
	}
	return set
}

func TestEnhanceSubstitutes(t *testing.T) {
	defer verifyNoLeaks(t)
	sets := []internal.SubstituteSet{
		rankedSet("Manteiga", "dairy", "m1", "m2"),
		rankedSet("Papa", "baby"),
		rankedSet("Queijo", "dairy", "q1", "q2"),
	}
	client := ClientFunc(func(ctx context.Context, req Request) ([]byte, error) {
		require.Equal(t, KindSubstitute, req.Kind)
		var p substitutePrompt
		require.NoError(t, json.Unmarshal([]byte(req.Prompt), &p))
		switch p.Original.Name {
		case "Manteiga":
			return []byte(`{"preferredProductId":"m2","confidence":0.8,"reasoning":"unsalted like the original"}`), nil
		default:
			return []byte(`{"preferredProductId":"ghost","confidence":0.8,"reasoning":"x"}`), nil
		}
	})

	out := New(client, testConfig(), nil).EnhanceSubstitutes(context.Background(), sets)

	require.True(t, out.Invoked)
	require.Len(t, out.Sets, 3)
	require.NotNil(t, out.Sets[0].Enhancement)
	assert.Equal(t, "m2", out.Sets[0].Enhancement.PreferredProductID)
	assert.Contains(t, out.Sets[0].Enhancement.SafetyFlags, internal.SafetyFlagLessConservative)
	assert.Nil(t, out.Sets[1].Enhancement, "sets without candidates are never sent")
	assert.Nil(t, out.Sets[2].Enhancement, "unknown product ids are rejected")
	assert.Equal(t, sets[2], out.Sets[2].Heuristic)
	assert.Contains(t, out.InvocationReason, "1 fell back")
}

func TestSubstituteTopChoiceIsNotFlagged(t *testing.T) {
	defer verifyNoLeaks(t)
	client, _ := staticClient(`{"preferredProductId":"m1","confidence":0.9,"reasoning":"closest match","safetyFlags":["contains_lactose"]}`)
	out := New(client, testConfig(), nil).EnhanceSubstitutes(context.Background(), []internal.SubstituteSet{rankedSet("Manteiga", "dairy", "m1", "m2")})
	require.NotNil(t, out.Sets[0].Enhancement)
	assert.Equal(t, []string{"contains_lactose"}, out.Sets[0].Enhancement.SafetyFlags)
}
