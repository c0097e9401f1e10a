// Package poll provides a generic, cancellable, exponential-backoff driver
// for asynchronous operations against an eventually-consistent backend.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quangdm/partake/internal/flowmetrics"
)

// ErrLimitExceeded is returned when a poll reaches its attempt ceiling
// without success. It is distinct from any error the wrapped operation can
// produce, so callers can tell "gave up retrying" from "failed terminally".
var ErrLimitExceeded = errors.New("poll attempt limit exceeded")

// CancelledError is returned when a poll is rejected or interrupted through
// its identity token. It is always terminal, regardless of the caller's
// terminal predicate.
type CancelledError struct {
	Token string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("poll task %q cancelled", e.Token)
}

const (
	DefaultMaxAttempts       = 10
	DefaultWait              = 500 * time.Millisecond
	DefaultHighLoadThreshold = 6
)

// Options tunes a single poll loop.
type Options struct {
	// MaxAttempts bounds the number of operation invocations. Default 10.
	MaxAttempts int
	// Wait is the base delay before a retry. Default 500ms.
	Wait time.Duration
	// Backoff doubles the wait after each retry.
	Backoff bool
	// Token is an optional stable identity for cancellation. At most one
	// poll per token may be active; a second start fails as cancelled.
	Token string
	// HighLoadThreshold is the consecutive-failure count at which a single
	// high-load warning is emitted. Default 6.
	HighLoadThreshold int
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Wait <= 0 {
		o.Wait = DefaultWait
	}
	if o.HighLoadThreshold <= 0 {
		o.HighLoadThreshold = DefaultHighLoadThreshold
	}
	return o
}

// LoadSink receives the "system under high load" side effect.
type LoadSink interface {
	HighLoad(on bool)
}

// Engine drives poll loops and owns the cancellation registry.
type Engine struct {
	reg  *Registry
	sink LoadSink
	log  *slog.Logger
}

// NewEngine creates an Engine. sink may be nil to disable high-load
// notifications.
func NewEngine(sink LoadSink, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{reg: NewRegistry(), sink: sink, log: log}
}

// Cancel rejects the in-flight poll registered under token, if any. The poll
// fails with *CancelledError even if its current attempt would have
// succeeded. The underlying network call is not aborted, only the engine's
// wait on it.
func (e *Engine) Cancel(token string) bool {
	ok := e.reg.Cancel(token)
	if ok {
		flowmetrics.PollCancelled.Inc()
	}
	return ok
}

// Registry exposes the engine's task registry.
func (e *Engine) Registry() *Registry {
	return e.reg
}

// Run invokes op until it succeeds, terminal(err) reports a terminal
// failure, the attempt ceiling is reached, or the task is cancelled.
// Attempt 0 runs immediately; later attempts wait the configured delay.
// Every attempt and every inter-attempt wait races against cancellation.
//
// Run is a package function because methods cannot carry type parameters.
func Run[T any](ctx context.Context, e *Engine, op func(context.Context) (T, error), terminal func(error) bool, opts Options) (T, error) {
	var zero T
	opts = opts.withDefaults()

	taskCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if opts.Token != "" {
		if !e.reg.add(opts.Token, cancel) {
			flowmetrics.PollCancelled.Inc()
			return zero, &CancelledError{Token: opts.Token}
		}
		defer e.reg.remove(opts.Token)
	}

	label := opts.Token
	if label == "" {
		label = "anonymous"
	}

	highLoad := false
	defer func() {
		if highLoad && e.sink != nil {
			e.sink.HighLoad(false)
		}
	}()

	var lastErr error
	wait := opts.Wait
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-taskCtx.Done():
				return zero, cause(taskCtx)
			case <-time.After(wait):
			}
			if opts.Backoff {
				wait *= 2
			}
		}

		flowmetrics.PollAttempts.WithLabelValues(label).Inc()
		v, err := invoke(taskCtx, op)
		if err == nil {
			return v, nil
		}
		lastErr = err

		var cancelled *CancelledError
		if errors.As(err, &cancelled) {
			return zero, err
		}
		if terminal != nil && terminal(err) {
			return zero, err
		}

		failures := attempt + 1
		if failures == opts.HighLoadThreshold && e.sink != nil && !highLoad {
			e.sink.HighLoad(true)
			highLoad = true
			flowmetrics.HighLoadEvents.Inc()
		}
		e.log.Debug("Poll attempt failed, will retry",
			"task", label, "attempt", failures, "max", opts.MaxAttempts, "error", err)
	}

	flowmetrics.PollExhausted.WithLabelValues(label).Inc()
	return zero, fmt.Errorf("%w: %d attempts, last error: %v", ErrLimitExceeded, opts.MaxAttempts, lastErr)
}

// invoke races op against the task's cancellation signal. A cancelled task
// stops waiting immediately; the goroutine running op is left to finish and
// its result is dropped.
func invoke[T any](ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := op(ctx)
		ch <- outcome{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, cause(ctx)
	case out := <-ch:
		return out.v, out.err
	}
}

// cause unwraps the cancellation cause, surfacing *CancelledError when the
// task was cancelled through its identity token.
func cause(ctx context.Context) error {
	if c := context.Cause(ctx); c != nil {
		return c
	}
	return ctx.Err()
}
