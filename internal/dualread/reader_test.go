package dualread

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quangdm/partake/internal/core/domain"
)

type recorder struct {
	mu        sync.Mutex
	successes map[domain.Tier]int
	failures  map[domain.Tier]int
	values    map[domain.Tier]int
}

func newRecorder() *recorder {
	return &recorder{
		successes: make(map[domain.Tier]int),
		failures:  make(map[domain.Tier]int),
		values:    make(map[domain.Tier]int),
	}
}

func (r *recorder) callbacks() Callbacks[int] {
	return Callbacks[int]{
		OnSuccess: func(tier domain.Tier, v int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.successes[tier]++
			r.values[tier] = v
		},
		OnFailure: func(tier domain.Tier, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failures[tier]++
		},
	}
}

func (r *recorder) success(tier domain.Tier) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes[tier]
}

func (r *recorder) failure(tier domain.Tier) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[tier]
}

func TestBothDeliversBothTiers(t *testing.T) {
	rec := newRecorder()

	err := Run(context.Background(), func(ctx context.Context, tier domain.Tier) (int, error) {
		if tier == domain.Speculative {
			return 1, nil
		}
		time.Sleep(10 * time.Millisecond)
		return 2, nil
	}, rec.callbacks(), Both)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	waitFor(t, func() bool {
		return rec.success(domain.Speculative) == 1 && rec.success(domain.Authoritative) == 1
	})
}

func TestAuthoritativeSettlingSuppressesLateSpeculative(t *testing.T) {
	rec := newRecorder()
	release := make(chan struct{})

	err := Run(context.Background(), func(ctx context.Context, tier domain.Tier) (int, error) {
		if tier == domain.Speculative {
			<-release
			return 1, nil
		}
		return 2, nil
	}, rec.callbacks(), Both)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	waitFor(t, func() bool { return rec.success(domain.Authoritative) == 1 })

	// Let the speculative call settle after the authoritative one.
	close(release)
	time.Sleep(20 * time.Millisecond)

	if got := rec.success(domain.Speculative); got != 0 {
		t.Errorf("speculative success delivered %d times, want 0 (suppressed)", got)
	}
	if got := rec.failure(domain.Speculative); got != 0 {
		t.Errorf("speculative failure delivered %d times, want 0 (suppressed)", got)
	}
}

func TestAuthoritativeFailureAlsoLatches(t *testing.T) {
	rec := newRecorder()
	release := make(chan struct{})

	_ = Run(context.Background(), func(ctx context.Context, tier domain.Tier) (int, error) {
		if tier == domain.Speculative {
			<-release
			return 1, nil
		}
		return 0, errors.New("replica unavailable")
	}, rec.callbacks(), Both)

	waitFor(t, func() bool { return rec.failure(domain.Authoritative) == 1 })

	close(release)
	time.Sleep(20 * time.Millisecond)

	if got := rec.success(domain.Speculative); got != 0 {
		t.Errorf("speculative delivered %d times after authoritative failure, want 0", got)
	}
}

func TestRunReturnsOnFirstSettlement(t *testing.T) {
	rec := newRecorder()
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := Run(context.Background(), func(ctx context.Context, tier domain.Tier) (int, error) {
		if tier == domain.Authoritative {
			<-release // never settles during the test window
			return 2, nil
		}
		return 1, nil
	}, rec.callbacks(), Both)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run blocked %v on the slower tier", elapsed)
	}
	if got := rec.success(domain.Speculative); got != 1 {
		t.Errorf("speculative delivered %d times, want 1", got)
	}
}

func TestSingleTierStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		tier     domain.Tier
		other    domain.Tier
	}{
		{"speculative only", SpeculativeOnly, domain.Speculative, domain.Authoritative},
		{"authoritative only", AuthoritativeOnly, domain.Authoritative, domain.Speculative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder()
			var calls []domain.Tier

			err := Run(context.Background(), func(ctx context.Context, tier domain.Tier) (int, error) {
				calls = append(calls, tier)
				return 5, nil
			}, rec.callbacks(), tt.strategy)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(calls) != 1 || calls[0] != tt.tier {
				t.Errorf("fetch calls = %v, want exactly one %s", calls, tt.tier)
			}
			if got := rec.success(tt.other); got != 0 {
				t.Errorf("%s delivered %d times, want 0", tt.other, got)
			}
		})
	}
}

func TestRunReturnsFirstSettlementError(t *testing.T) {
	rec := newRecorder()
	fetchErr := errors.New("boom")

	err := Run(context.Background(), func(ctx context.Context, tier domain.Tier) (int, error) {
		return 0, fetchErr
	}, rec.callbacks(), AuthoritativeOnly)
	if !errors.Is(err, fetchErr) {
		t.Errorf("Run() error = %v, want %v", err, fetchErr)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never met")
}
