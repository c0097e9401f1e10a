package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []bool
}

func (s *recordingSink) HighLoad(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, on)
}

func (s *recordingSink) snapshot() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, len(s.events))
	copy(out, s.events)
	return out
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	engine := NewEngine(nil, nil)

	var calls atomic.Int32
	v, err := Run(context.Background(), engine, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 42, nil
	}, nil, Options{Wait: time.Millisecond})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if v != 42 {
		t.Errorf("Run() = %d, want 42", v)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("operation invoked %d times, want 1", got)
	}
}

func TestRunRetriesUntilSuccess(t *testing.T) {
	engine := NewEngine(nil, nil)

	var calls atomic.Int32
	v, err := Run(context.Background(), engine, func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("connection reset by peer")
		}
		return "ok", nil
	}, nil, Options{MaxAttempts: 5, Wait: time.Millisecond})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if v != "ok" {
		t.Errorf("Run() = %q, want %q", v, "ok")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("operation invoked %d times, want 3", got)
	}
}

func TestRunAttemptCeiling(t *testing.T) {
	engine := NewEngine(nil, nil)

	opErr := errors.New("still flaky")
	var calls atomic.Int32
	_, err := Run(context.Background(), engine, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, opErr
	}, nil, Options{MaxAttempts: 4, Wait: time.Millisecond})

	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Run() error = %v, want ErrLimitExceeded", err)
	}
	if errors.Is(err, opErr) {
		t.Errorf("ceiling error should not wrap the operation error as a match target")
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("operation invoked %d times, want exactly 4", got)
	}
}

func TestRunTerminalErrorPropagatesImmediately(t *testing.T) {
	engine := NewEngine(nil, nil)

	fatal := errors.New("sale closed")
	var calls atomic.Int32
	_, err := Run(context.Background(), engine, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, fatal
	}, func(err error) bool {
		return errors.Is(err, fatal)
	}, Options{MaxAttempts: 10, Wait: time.Millisecond})

	if !errors.Is(err, fatal) {
		t.Fatalf("Run() error = %v, want the terminal error", err)
	}
	if errors.Is(err, ErrLimitExceeded) {
		t.Errorf("terminal error should not be wrapped as limit exceeded")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("operation invoked %d times, want 1", got)
	}
}

func TestRunExponentialBackoffDelays(t *testing.T) {
	engine := NewEngine(nil, nil)

	start := time.Now()
	_, err := Run(context.Background(), engine, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient")
	}, nil, Options{MaxAttempts: 3, Wait: 10 * time.Millisecond, Backoff: true})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Run() error = %v, want ErrLimitExceeded", err)
	}
	// Waits of 10ms then 20ms between three attempts.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("elapsed %v, want at least 30ms of backoff", elapsed)
	}
}

func TestCancelDuringWait(t *testing.T) {
	engine := NewEngine(nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), engine, func(ctx context.Context) (int, error) {
			return 0, errors.New("transient")
		}, nil, Options{MaxAttempts: 10, Wait: time.Minute, Token: "cancel-me"})
		done <- err
	}()

	waitForActive(t, engine, "cancel-me")
	if !engine.Cancel("cancel-me") {
		t.Fatal("Cancel returned false for an active task")
	}

	err := <-done
	var cancelled *CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("Run() error = %v, want *CancelledError", err)
	}
	if cancelled.Token != "cancel-me" {
		t.Errorf("cancelled token = %q, want %q", cancelled.Token, "cancel-me")
	}
}

func TestCancelDuringOperation(t *testing.T) {
	engine := NewEngine(nil, nil)

	block := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), engine, func(ctx context.Context) (int, error) {
			// Would succeed if allowed to finish.
			<-block
			return 7, nil
		}, nil, Options{MaxAttempts: 1, Wait: time.Millisecond, Token: "in-flight"})
		done <- err
	}()

	waitForActive(t, engine, "in-flight")
	engine.Cancel("in-flight")

	err := <-done
	var cancelled *CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("Run() error = %v, want *CancelledError", err)
	}
	close(block)
}

func TestDuplicateTokenRejectedImmediately(t *testing.T) {
	engine := NewEngine(nil, nil)

	block := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), engine, func(ctx context.Context) (int, error) {
			<-block
			return 1, nil
		}, nil, Options{Wait: time.Millisecond, Token: "dup"})
		done <- err
	}()
	waitForActive(t, engine, "dup")

	_, err := Run(context.Background(), engine, func(ctx context.Context) (int, error) {
		return 2, nil
	}, nil, Options{Wait: time.Millisecond, Token: "dup"})

	var cancelled *CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("second Run() error = %v, want *CancelledError", err)
	}
	if cancelled.Token != "dup" {
		t.Errorf("cancelled token = %q, want %q", cancelled.Token, "dup")
	}

	close(block)
	if err := <-done; err != nil {
		t.Errorf("first Run() error = %v, want nil", err)
	}
}

func TestHighLoadRaisedOnceAndCleared(t *testing.T) {
	sink := &recordingSink{}
	engine := NewEngine(sink, nil)

	_, err := Run(context.Background(), engine, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient")
	}, nil, Options{MaxAttempts: 4, Wait: time.Millisecond, HighLoadThreshold: 2})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Run() error = %v, want ErrLimitExceeded", err)
	}

	events := sink.snapshot()
	want := []bool{true, false}
	if len(events) != len(want) {
		t.Fatalf("high load events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("high load events = %v, want %v", events, want)
		}
	}
}

func TestHighLoadNotRaisedBelowThreshold(t *testing.T) {
	sink := &recordingSink{}
	engine := NewEngine(sink, nil)

	_, err := Run(context.Background(), engine, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient")
	}, nil, Options{MaxAttempts: 3, Wait: time.Millisecond, HighLoadThreshold: 5})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Run() error = %v, want ErrLimitExceeded", err)
	}
	if events := sink.snapshot(); len(events) != 0 {
		t.Errorf("high load events = %v, want none", events)
	}
}

func TestTokenReleasedAfterRun(t *testing.T) {
	engine := NewEngine(nil, nil)

	_, err := Run(context.Background(), engine, func(ctx context.Context) (int, error) {
		return 1, nil
	}, nil, Options{Wait: time.Millisecond, Token: "reusable"})
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	// Same token is usable again once the first poll finished.
	_, err = Run(context.Background(), engine, func(ctx context.Context) (int, error) {
		return 2, nil
	}, nil, Options{Wait: time.Millisecond, Token: "reusable"})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if n := engine.Registry().Len(); n != 0 {
		t.Errorf("registry has %d active tasks, want 0", n)
	}
}

func waitForActive(t *testing.T, engine *Engine, token string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if engine.Registry().Len() > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %q never became active", token)
}
