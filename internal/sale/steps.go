package sale

import (
	"context"
	"errors"
	"fmt"

	"github.com/quangdm/partake/internal/backend"
	"github.com/quangdm/partake/internal/core/domain"
	"github.com/quangdm/partake/internal/dualread"
	"github.com/quangdm/partake/internal/poll"
)

// validate rejects a request locally, before any network call.
func (c *Coordinator) validate(req Request) error {
	total, err := req.Amount.AddChecked(c.cfg.Fee)
	if err != nil {
		return &domain.ValidationError{Reason: err.Error()}
	}
	if total > req.AvailableBalance {
		return &domain.ValidationError{Reason: fmt.Sprintf(
			"amount %s plus fee %s exceeds available balance %s",
			req.Amount, c.cfg.Fee, req.AvailableBalance)}
	}
	if req.Amount < c.cfg.Round.MinPerParticipant {
		return &domain.ValidationError{Reason: fmt.Sprintf(
			"amount %s is below the per-participant floor %s",
			req.Amount, c.cfg.Round.MinPerParticipant)}
	}
	commitment, err := req.Amount.AddChecked(req.PriorCommitment)
	if err != nil {
		return &domain.ValidationError{Reason: err.Error()}
	}
	if commitment > c.cfg.Round.MaxPerParticipant {
		return &domain.ValidationError{Reason: fmt.Sprintf(
			"total commitment %s would exceed the per-participant ceiling %s",
			commitment, c.cfg.Round.MaxPerParticipant)}
	}
	return nil
}

// reserve asks the backend for a ticket, retrying transient failures with
// exponential backoff. A ticket-exists rejection is the idempotency seam:
// the existing ticket from the error payload is adopted as if freshly
// reserved, which makes re-invocation after a crash safe.
func (c *Coordinator) reserve(ctx context.Context, req Request) (*domain.Ticket, error) {
	c.setPhase(ctx, domain.PhaseTicketReservation)

	ticket, err := poll.Run(ctx, c.cfg.Engine, func(ctx context.Context) (*domain.Ticket, error) {
		return c.cfg.Gateway.ReserveTicket(ctx, c.cfg.Round.ID, req.Account, req.Amount)
	}, func(err error) bool {
		var ticketErr *domain.TicketError
		return errors.As(err, &ticketErr)
	}, c.pollOpts("reserve"))
	if err == nil {
		return ticket, nil
	}

	var ticketErr *domain.TicketError
	if errors.As(err, &ticketErr) && ticketErr.Kind == domain.TicketExists && ticketErr.Existing != nil {
		c.log.Info("Adopting already-open ticket",
			"sale", c.cfg.Round.ID, "ticket", ticketErr.Existing.ID,
			"amount", ticketErr.Existing.Amount.String())
		return ticketErr.Existing, nil
	}
	return nil, err
}

// transferStep moves ticket.Amount to the sale's collection account, tagged
// with the ticket's id and creation time so a replay is recognized by the
// ledger as the same transfer. A created-in-future rejection is retried; it
// self-resolves once the replica clock catches up.
func (c *Coordinator) transferStep(ctx context.Context) error {
	c.setPhase(ctx, domain.PhaseTransfer)
	ticket := c.state.ticket

	req := backend.TransferRequest{
		From:      ticket.Account,
		To:        c.cfg.Round.CollectionAccount,
		Amount:    ticket.Amount,
		Fee:       c.cfg.Fee,
		Memo:      ticket.ID,
		CreatedAt: ticket.CreatedAt,
	}

	height, err := poll.Run(ctx, c.cfg.Engine, func(ctx context.Context) (uint64, error) {
		return c.cfg.Gateway.Transfer(ctx, req)
	}, func(err error) bool {
		var transferErr *domain.TransferError
		return errors.As(err, &transferErr) && transferErr.Kind != domain.TransferCreatedInFuture
	}, c.pollOpts("transfer"))
	if err == nil {
		c.state.height = height
		c.log.Info("Transfer landed",
			"sale", c.cfg.Round.ID, "ticket", ticket.ID, "height", height)
		return nil
	}

	var transferErr *domain.TransferError
	if errors.As(err, &transferErr) {
		switch transferErr.Kind {
		case domain.TransferDuplicate:
			// Funds already moved in a prior attempt.
			c.state.height = transferErr.DuplicateOf
			c.log.Info("Transfer already landed in a prior attempt",
				"ticket", ticket.ID, "height", transferErr.DuplicateOf)
			return nil
		case domain.TransferTooOld:
			// The notify step is idempotent and may still succeed; the flag
			// only changes how a subsequent notify failure is handled.
			c.state.hasTooOldError = true
			c.log.Warn("Ticket is older than the ledger replay window, continuing to notify",
				"ticket", ticket.ID)
			return nil
		case domain.TransferInsufficientFunds:
			// The participant can never fund this ticket; drop it.
			c.releaseTicket(ctx)
			return err
		default:
			c.releaseTicket(ctx)
			return err
		}
	}

	// Retry exhaustion or cancellation: an unresolved transfer might still
	// land, so the ticket stays. Restore is the way to pick the flow back up.
	return err
}

// notifyStep asks the backend to reconcile the funds received by the sale's
// collection account, retrying while the backend reports "still processing".
func (c *Coordinator) notifyStep(ctx context.Context) error {
	c.setPhase(ctx, domain.PhaseNotify)
	ticket := c.state.ticket

	accepted, err := poll.Run(ctx, c.cfg.Engine, func(ctx context.Context) (domain.Amount, error) {
		return c.cfg.Gateway.NotifyParticipation(ctx, c.cfg.Round.ID, c.state.account)
	}, func(err error) bool {
		var notifyErr *domain.NotifyError
		if errors.As(err, &notifyErr) {
			return !notifyErr.Pending
		}
		return !backend.IsTransient(err)
	}, c.pollOpts("notify"))
	if err == nil {
		expected, overflow := ticket.Amount.AddChecked(c.state.priorCommitment)
		if overflow == nil && accepted != expected {
			// The backend's accepted figure is authoritative; the mismatch
			// is surfaced but the step still succeeds.
			msg := fmt.Sprintf("backend accepted %s, expected %s", accepted, expected)
			c.cfg.Sink.Warning(c.cfg.Round.ID, msg)
			c.log.Warn("Accepted amount mismatch", "sale", c.cfg.Round.ID,
				"accepted", accepted.String(), "expected", expected.String())
		}
		return nil
	}

	if c.state.hasTooOldError && isTransientNotifyFailure(err) {
		// The transfer never landed and the backend keeps reconciling a
		// ticket it can never settle; force-release it so the participant
		// is not locked out of future rounds.
		if relErr := c.cfg.Gateway.NotifyPaymentFailure(ctx, c.cfg.Round.ID, c.state.account); relErr != nil {
			c.log.Error("Failed to force-release stuck ticket",
				"sale", c.cfg.Round.ID, "ticket", ticket.ID, "error", relErr)
		}
		return err
	}

	// Leave the ticket in place: an unresolved ledger transfer might still
	// land, and offering "participate" again on top of it would double-spend
	// the user's intent.
	return err
}

func isTransientNotifyFailure(err error) bool {
	if errors.Is(err, poll.ErrLimitExceeded) {
		return true
	}
	var notifyErr *domain.NotifyError
	if errors.As(err, &notifyErr) {
		return notifyErr.Pending
	}
	return backend.IsTransient(err)
}

// resyncStep refetches the participant's balances through both consistency
// tiers. Best-effort: the participation already succeeded by this point, so
// failures are logged and never change the outcome.
func (c *Coordinator) resyncStep(ctx context.Context) {
	c.setPhase(ctx, domain.PhaseResync)

	err := dualread.Run(ctx, func(ctx context.Context, tier domain.Tier) (domain.Amount, error) {
		return c.cfg.Gateway.Balance(ctx, c.state.account, tier)
	}, dualread.Callbacks[domain.Amount]{
		OnSuccess: func(tier domain.Tier, balance domain.Amount) {
			c.log.Info("Refreshed balance", "tier", tier.String(), "balance", balance.String())
		},
		OnFailure: func(tier domain.Tier, err error) {
			c.log.Warn("Balance refresh failed", "tier", tier.String(), "error", err)
		},
	}, dualread.Both)
	if err != nil {
		c.log.Warn("Balance resync incomplete", "error", err)
	}
}
