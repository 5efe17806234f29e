package enhance

import "context"

type Kind string

const (
	KindPrune      Kind = "prune"
	KindSubstitute Kind = "substitute"
)

// Request is one structured prompt for the LLM collaborator.
type Request struct {
	Kind   Kind
	System string
	Prompt string
}

// Client returns the raw JSON decision payload for a request. The payload
// is validated by the caller before use.
type Client interface {
	Complete(ctx context.Context, req Request) ([]byte, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) ([]byte, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}
