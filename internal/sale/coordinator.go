// Package sale drives a token-sale participation to a single successful
// outcome despite crashes, reloads, duplicate submissions, and partial
// failures. The flow is a strict state machine: initialization, ticket
// reservation, ledger transfer, backend notification, balance resync, done,
// with error exits to an aborted terminal state. Every network step runs
// through the poll engine at the authoritative consistency tier.
package sale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quangdm/partake/internal/backend"
	"github.com/quangdm/partake/internal/core/domain"
	"github.com/quangdm/partake/internal/flowmetrics"
	"github.com/quangdm/partake/internal/notify"
	"github.com/quangdm/partake/internal/poll"
)

// ErrFlowInProgress is returned when Initiate or Restore is called while a
// flow is already running on the same coordinator. States never interleave;
// a caller wanting concurrency uses separate coordinators per sale.
var ErrFlowInProgress = errors.New("a participation flow is already in progress")

// Outcome is the terminal result of a flow.
type Outcome int

const (
	OutcomeDone Outcome = iota
	// OutcomeNoOpenTicket means Restore found nothing to resume. Not an
	// error.
	OutcomeNoOpenTicket
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeNoOpenTicket:
		return "no_open_ticket"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Hooks are caller-supplied callbacks. Progress fires once per phase
// transition, for UI display only. Reload fires once on terminal success.
type Hooks struct {
	Progress func(phase domain.Phase)
	Reload   func()
}

// Journal records phase transitions per flow run, best-effort.
type Journal interface {
	Record(ctx context.Context, runID string, phase domain.Phase) error
}

// Request carries the caller's intent and its currently-known account state.
type Request struct {
	Amount  domain.Amount
	Account domain.Account
	// AvailableBalance is the caller's known balance, validated before any
	// network call.
	AvailableBalance domain.Amount
	// PriorCommitment is the amount the backend already accepted for this
	// participant in earlier flows.
	PriorCommitment domain.Amount
}

// Config assembles a coordinator's collaborators.
type Config struct {
	Round   domain.SaleRound
	Fee     domain.Amount
	Gateway backend.Gateway
	Engine  *poll.Engine
	Sink    notify.Sink
	// Journal is optional; nil disables journaling.
	Journal Journal
	Log     *slog.Logger

	// Retry tuning shared by every network step. Zero values take the poll
	// package defaults.
	Attempts          int
	Wait              time.Duration
	HighLoadThreshold int
}

// Coordinator executes one participation flow at a time for one sale round.
type Coordinator struct {
	cfg     Config
	log     *slog.Logger
	running atomic.Bool

	runID string
	hooks Hooks
	state flowState
}

// flowState is the coordinator's mutable progress, discarded on terminal
// phases.
type flowState struct {
	phase           domain.Phase
	ticket          *domain.Ticket
	height          uint64
	hasTooOldError  bool
	priorCommitment domain.Amount
	account         domain.Account
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("sale: gateway is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("sale: poll engine is required")
	}
	if cfg.Round.ID == "" {
		return nil, errors.New("sale: round ID is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.NewLogSink(cfg.Log)
	}
	return &Coordinator{cfg: cfg, log: cfg.Log}, nil
}

// Initiate starts a fresh participation. Validation failures abort before
// any network call is made.
func (c *Coordinator) Initiate(ctx context.Context, req Request, hooks Hooks) (Outcome, error) {
	if !c.running.CompareAndSwap(false, true) {
		return OutcomeAborted, ErrFlowInProgress
	}
	defer c.running.Store(false)

	c.begin(hooks, req.Account, req.PriorCommitment)
	c.setPhase(ctx, domain.PhaseInitialization)

	if err := c.validate(req); err != nil {
		return c.abort(ctx, err)
	}

	ticket, err := c.reserve(ctx, req)
	if err != nil {
		// Reservation never opened a ticket, so there is nothing to
		// release; the externally observable state stays "no open ticket".
		return c.abort(ctx, err)
	}
	c.state.ticket = ticket

	return c.advance(ctx)
}

// Restore resumes an interrupted flow, e.g. after a page reload or crash.
// It queries the backend for an open ticket; none means there is nothing to
// do. An existing ticket is adopted and the flow jumps straight to the
// transfer phase.
func (c *Coordinator) Restore(ctx context.Context, account domain.Account, priorCommitment domain.Amount, hooks Hooks) (Outcome, error) {
	if !c.running.CompareAndSwap(false, true) {
		return OutcomeAborted, ErrFlowInProgress
	}
	defer c.running.Store(false)

	c.begin(hooks, account, priorCommitment)
	c.setPhase(ctx, domain.PhaseInitialization)

	ticket, err := poll.Run(ctx, c.cfg.Engine, func(ctx context.Context) (*domain.Ticket, error) {
		return c.cfg.Gateway.OpenTicket(ctx, c.cfg.Round.ID, account)
	}, func(err error) bool {
		return !backend.IsTransient(err)
	}, c.pollOpts("open-ticket"))
	if err != nil {
		return c.abort(ctx, err)
	}
	if ticket == nil {
		c.log.Info("No open ticket to resume", "sale", c.cfg.Round.ID, "owner", account.Owner)
		return OutcomeNoOpenTicket, nil
	}

	c.log.Info("Resuming participation from open ticket",
		"sale", c.cfg.Round.ID, "ticket", ticket.ID, "amount", ticket.Amount.String())
	c.state.ticket = ticket

	return c.advance(ctx)
}

// advance runs the flow from the transfer phase to a terminal phase.
func (c *Coordinator) advance(ctx context.Context) (Outcome, error) {
	if err := c.transferStep(ctx); err != nil {
		return c.abort(ctx, err)
	}
	if err := c.notifyStep(ctx); err != nil {
		return c.abort(ctx, err)
	}
	c.resyncStep(ctx)
	return c.finish(ctx)
}

func (c *Coordinator) begin(hooks Hooks, account domain.Account, prior domain.Amount) {
	c.runID = uuid.NewString()
	c.hooks = hooks
	c.state = flowState{
		account:         account,
		priorCommitment: prior,
	}
}

// RunID identifies the current or most recent flow instance.
func (c *Coordinator) RunID() string {
	return c.runID
}

// Summary reports the ledger height the flow's transfer landed at (0 when it
// never landed) and whether the ticket fell outside the ledger replay window.
func (c *Coordinator) Summary() (height uint64, tooOld bool) {
	return c.state.height, c.state.hasTooOldError
}

func (c *Coordinator) setPhase(ctx context.Context, p domain.Phase) {
	c.state.phase = p
	flowmetrics.PhaseTransitions.WithLabelValues(p.String()).Inc()
	c.log.Debug("Phase transition", "run", c.runID, "phase", p.String())
	if c.hooks.Progress != nil {
		c.hooks.Progress(p)
	}
	if c.cfg.Journal != nil {
		if err := c.cfg.Journal.Record(ctx, c.runID, p); err != nil {
			c.log.Warn("Journal write failed", "run", c.runID, "error", err)
		}
	}
}

func (c *Coordinator) pollOpts(step string) poll.Options {
	return poll.Options{
		MaxAttempts:       c.cfg.Attempts,
		Wait:              c.cfg.Wait,
		Backoff:           true,
		Token:             fmt.Sprintf("%s:%s:%s", step, c.cfg.Round.ID, c.state.account.Owner),
		HighLoadThreshold: c.cfg.HighLoadThreshold,
	}
}

func (c *Coordinator) abort(ctx context.Context, reason error) (Outcome, error) {
	c.setPhase(ctx, domain.PhaseAborted)
	flowmetrics.FlowOutcomes.WithLabelValues(OutcomeAborted.String()).Inc()
	c.cfg.Sink.Failure(c.cfg.Round.ID, reason)
	return OutcomeAborted, reason
}

func (c *Coordinator) finish(ctx context.Context) (Outcome, error) {
	c.setPhase(ctx, domain.PhaseDone)
	// Drop the completed ticket so the participant can start another flow
	// to increase their commitment.
	c.releaseTicket(ctx)
	flowmetrics.FlowOutcomes.WithLabelValues(OutcomeDone.String()).Inc()
	c.cfg.Sink.Success(c.cfg.Round.ID, fmt.Sprintf("committed %s", c.state.ticket.Amount))
	if c.hooks.Reload != nil {
		c.hooks.Reload()
	}
	return OutcomeDone, nil
}

func (c *Coordinator) releaseTicket(ctx context.Context) {
	if err := c.cfg.Gateway.NotifyPaymentFailure(ctx, c.cfg.Round.ID, c.state.account); err != nil {
		c.log.Error("Ticket release failed", "sale", c.cfg.Round.ID, "error", err)
	}
}
