package enhance

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

type callState int

const (
	stateIdle callState = iota
	stateInvoking
	stateSucceeded
	stateFailedFallback
)

func (s callState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateInvoking:
		return "invoking"
	case stateSucceeded:
		return "succeeded"
	default:
		return "failed_fallback"
	}
}

// call tracks one item's enhancement through its states. A call ends in
// stateSucceeded or stateFailedFallback, never in between.
type call struct {
	state    callState
	attempts int
	err      error
}

// invoke runs req until accept succeeds, retries are exhausted, or ctx is
// done. accept validates the payload and keeps the decoded result.
func (e *Enhancer) invoke(ctx context.Context, req Request, accept func([]byte) error) *call {
	c := &call{state: stateIdle}
	for c.state == stateIdle || c.state == stateInvoking {
		switch c.state {
		case stateIdle:
			if err := ctx.Err(); err != nil {
				c.err, c.state = err, stateFailedFallback
				continue
			}
			c.state = stateInvoking

		case stateInvoking:
			c.attempts++
			err := e.attempt(ctx, req, accept)
			if err == nil {
				c.state = stateSucceeded
				continue
			}
			c.err = err
			if ctx.Err() != nil || c.attempts > e.cfg.MaxRetries {
				c.state = stateFailedFallback
				continue
			}
			wait := e.backoff(c.attempts)
			e.logger.Debug("enhancement retry",
				zap.String("kind", string(req.Kind)),
				zap.Int("attempt", c.attempts),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
			if !sleep(ctx, wait) {
				c.err, c.state = ctx.Err(), stateFailedFallback
			}
		}
	}
	return c
}

func (e *Enhancer) attempt(ctx context.Context, req Request, accept func([]byte) error) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	callCtx := ctx
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}
	payload, err := e.complete(callCtx, req)
	if err != nil {
		return err
	}
	return accept(payload)
}

type completion struct {
	payload []byte
	err     error
}

// complete runs the client call on its own goroutine so that a client which
// ignores ctx is abandoned once ctx is done. A panicking client becomes an
// error like any other failed attempt.
func (e *Enhancer) complete(ctx context.Context, req Request) ([]byte, error) {
	done := make(chan completion, 1)
	go func() {
		var res completion
		defer func() {
			if r := recover(); r != nil {
				res = completion{err: fmt.Errorf("%s client panicked: %v", req.Kind, r)}
			}
			done <- res
		}()
		res.payload, res.err = e.client.Complete(ctx, req)
	}()

	select {
	case res := <-done:
		return res.payload, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// backoff doubles per attempt with up to 25% jitter.
func (e *Enhancer) backoff(attempt int) time.Duration {
	base := e.cfg.RetryBackoff << (attempt - 1)
	if base <= 0 {
		return 0
	}
	return base + time.Duration(rand.Int63n(int64(base)/4+1))
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
