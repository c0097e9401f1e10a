// Package backend defines the contract this layer requires from its remote
// collaborators: the ledger transfer operation, the sale-ticket operation
// set, and best-effort balance reads. Wire encodings belong to the
// implementations, not here.
package backend

import (
	"context"
	"time"

	"github.com/quangdm/partake/internal/core/domain"
)

// TransferRequest describes one ledger transfer. Memo and CreatedAt form the
// idempotency tag: replaying the same tag is recognized by the ledger as the
// same transfer, not a new one.
type TransferRequest struct {
	From      domain.Account
	To        domain.Account
	Amount    domain.Amount
	Fee       domain.Amount
	Memo      uint64
	CreatedAt time.Time
}

// Gateway is the asynchronous operation set of the replicated backend. Every
// call returns a typed success value or fails with a typed error from the
// domain taxonomy; anything else is treated as transport-level and
// classified by IsTransient.
type Gateway interface {
	// ReserveTicket asks the backend to open a participation ticket. A
	// ticket already open for this (sale, caller) fails with
	// *domain.TicketError{Kind: TicketExists} carrying the existing ticket.
	ReserveTicket(ctx context.Context, saleID string, account domain.Account, amount domain.Amount) (*domain.Ticket, error)

	// OpenTicket returns the caller's open ticket for the sale, or
	// (nil, nil) when none exists.
	OpenTicket(ctx context.Context, saleID string, account domain.Account) (*domain.Ticket, error)

	// Transfer moves funds on the ledger and returns the transaction height.
	Transfer(ctx context.Context, req TransferRequest) (uint64, error)

	// NotifyParticipation asks the backend to reconcile the funds received
	// by the sale's collection account. It returns the total amount the
	// backend has accepted for this participant.
	NotifyParticipation(ctx context.Context, saleID string, account domain.Account) (domain.Amount, error)

	// NotifyPaymentFailure asks the backend to drop the caller's open
	// ticket. It is the only ticket-releasing operation.
	NotifyPaymentFailure(ctx context.Context, saleID string, account domain.Account) error

	// Balance reads the account balance at the requested consistency tier.
	Balance(ctx context.Context, account domain.Account, tier domain.Tier) (domain.Amount, error)
}
