// Package dualread issues one logical read through both backend consistency
// tiers concurrently and delivers results with an "authoritative wins" latch:
// once the authoritative call has settled, a later speculative settlement is
// never delivered. Reconciling an authoritative result against an earlier
// speculative one is the caller's job.
package dualread

import (
	"context"
	"sync"

	"github.com/quangdm/partake/internal/core/domain"
	"github.com/quangdm/partake/internal/flowmetrics"
)

// Strategy selects which consistency tier(s) to invoke.
type Strategy int

const (
	// Both launches one call per tier concurrently.
	Both Strategy = iota
	SpeculativeOnly
	AuthoritativeOnly
)

// Callbacks receive per-tier settlements. Callbacks are dispatched one at a
// time and must not call back into Run.
type Callbacks[T any] struct {
	OnSuccess func(tier domain.Tier, value T)
	OnFailure func(tier domain.Tier, err error)
}

// Run performs the read. Under Both it returns as soon as the first launched
// call settles; the slower call keeps running and its settlement is delivered
// (or suppressed) per the latch rule. The returned error is the settlement
// error of the first call to settle, nil if it succeeded.
func Run[T any](ctx context.Context, fetch func(ctx context.Context, tier domain.Tier) (T, error), cb Callbacks[T], strategy Strategy) error {
	switch strategy {
	case SpeculativeOnly:
		return runSingle(ctx, fetch, cb, domain.Speculative)
	case AuthoritativeOnly:
		return runSingle(ctx, fetch, cb, domain.Authoritative)
	}

	l := &latch[T]{cb: cb}
	first := make(chan error, 2)

	for _, tier := range []domain.Tier{domain.Speculative, domain.Authoritative} {
		tier := tier
		go func() {
			v, err := fetch(ctx, tier)
			l.deliver(tier, v, err)
			first <- err
		}()
	}

	select {
	case err := <-first:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runSingle[T any](ctx context.Context, fetch func(ctx context.Context, tier domain.Tier) (T, error), cb Callbacks[T], tier domain.Tier) error {
	l := &latch[T]{cb: cb}
	v, err := fetch(ctx, tier)
	l.deliver(tier, v, err)
	return err
}

// latch serializes callback dispatch and suppresses speculative settlements
// once the authoritative call has settled.
type latch[T any] struct {
	mu                sync.Mutex
	authoritativeDone bool
	cb                Callbacks[T]
}

func (l *latch[T]) deliver(tier domain.Tier, v T, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tier == domain.Speculative && l.authoritativeDone {
		flowmetrics.DualReadsSuppressed.Inc()
		return
	}
	if tier == domain.Authoritative {
		l.authoritativeDone = true
	}

	if err != nil {
		flowmetrics.DualReads.WithLabelValues(tier.String(), "failure").Inc()
		if l.cb.OnFailure != nil {
			l.cb.OnFailure(tier, err)
		}
		return
	}
	flowmetrics.DualReads.WithLabelValues(tier.String(), "success").Inc()
	if l.cb.OnSuccess != nil {
		l.cb.OnSuccess(tier, v)
	}
}
