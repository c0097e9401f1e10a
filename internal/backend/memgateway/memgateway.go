// Package memgateway is an in-memory backend.Gateway that simulates the
// replicated backend: a lagged speculative balance view, at-most-one open
// ticket per (sale, caller), duplicate-transfer detection through the
// idempotency tag, and accepted-amount bookkeeping. It backs the demo
// binary, the CLI dry-run mode, and the end-to-end tests.
package memgateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quangdm/partake/internal/backend"
	"github.com/quangdm/partake/internal/core/domain"
)

const (
	// ReplayWindow is how far back the simulated ledger accepts a
	// transfer's creation time.
	ReplayWindow = 24 * time.Hour
	// ClockSkewWindow is how far ahead of the ledger clock a creation
	// time may be before the transfer is rejected as created-in-future.
	ClockSkewWindow = 30 * time.Second
)

type Gateway struct {
	mu sync.Mutex

	round domain.SaleRound
	fee   domain.Amount

	authoritative map[string]domain.Amount
	speculative   map[string]domain.Amount

	tickets   map[string]*domain.Ticket
	transfers map[string]uint64
	paid      map[string]domain.Amount
	accepted  map[string]domain.Amount

	height       uint64
	nextTicketID uint64

	// pendingNotifies makes the next N NotifyParticipation calls report
	// "still processing" before settling, to exercise the retry path.
	pendingNotifies int

	now func() time.Time
}

func New(round domain.SaleRound, fee domain.Amount) *Gateway {
	return &Gateway{
		round:         round,
		fee:           fee,
		authoritative: make(map[string]domain.Amount),
		speculative:   make(map[string]domain.Amount),
		tickets:       make(map[string]*domain.Ticket),
		transfers:     make(map[string]uint64),
		paid:          make(map[string]domain.Amount),
		accepted:      make(map[string]domain.Amount),
		nextTicketID:  1,
		now:           time.Now,
	}
}

// SetClock overrides the gateway's clock, for tests.
func (g *Gateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// SetBalance seeds both consistency views of an account.
func (g *Gateway) SetBalance(account domain.Account, amount domain.Amount) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authoritative[account.Key()] = amount
	g.speculative[account.Key()] = amount
}

// SetPendingNotifies makes the next n NotifyParticipation calls transient.
func (g *Gateway) SetPendingNotifies(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pendingNotifies = n
}

// CatchUp replicates the authoritative view into the speculative one,
// simulating the replica set catching up.
func (g *Gateway) CatchUp() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, v := range g.authoritative {
		g.speculative[k] = v
	}
}

func saleKey(saleID string, account domain.Account) string {
	return saleID + "|" + account.Owner
}

func tagKey(req backend.TransferRequest) string {
	return fmt.Sprintf("%d@%d@%s", req.Memo, req.CreatedAt.UnixNano(), req.From.Key())
}

func (g *Gateway) ReserveTicket(ctx context.Context, saleID string, account domain.Account, amount domain.Amount) (*domain.Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if saleID != g.round.ID {
		return nil, &domain.TicketError{Kind: domain.TicketSaleNotOpen, Message: "unknown sale " + saleID}
	}
	if amount < g.round.MinPerParticipant {
		return nil, &domain.TicketError{Kind: domain.TicketAmountTooSmall,
			Message: fmt.Sprintf("amount %s below floor %s", amount, g.round.MinPerParticipant)}
	}
	if amount > g.round.MaxPerParticipant {
		return nil, &domain.TicketError{Kind: domain.TicketAmountTooLarge,
			Message: fmt.Sprintf("amount %s above ceiling %s", amount, g.round.MaxPerParticipant)}
	}
	if len(account.Subaccount) != 0 && len(account.Subaccount) != 32 {
		return nil, &domain.TicketError{Kind: domain.TicketInvalidSubaccount,
			Message: fmt.Sprintf("subaccount must be 32 bytes, got %d", len(account.Subaccount))}
	}

	key := saleKey(saleID, account)
	if existing, ok := g.tickets[key]; ok {
		return nil, &domain.TicketError{Kind: domain.TicketExists, Existing: existing}
	}

	t := &domain.Ticket{
		ID:        g.nextTicketID,
		CreatedAt: g.now(),
		Amount:    amount,
		Account:   account,
	}
	g.nextTicketID++
	g.tickets[key] = t
	return t, nil
}

func (g *Gateway) OpenTicket(ctx context.Context, saleID string, account domain.Account) (*domain.Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tickets[saleKey(saleID, account)], nil
}

func (g *Gateway) Transfer(ctx context.Context, req backend.TransferRequest) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tag := tagKey(req)
	if height, ok := g.transfers[tag]; ok {
		return 0, &domain.TransferError{Kind: domain.TransferDuplicate, DuplicateOf: height}
	}

	now := g.now()
	if req.CreatedAt.After(now.Add(ClockSkewWindow)) {
		return 0, &domain.TransferError{Kind: domain.TransferCreatedInFuture,
			Message: "creation time ahead of ledger clock"}
	}
	if now.Sub(req.CreatedAt) > ReplayWindow {
		return 0, &domain.TransferError{Kind: domain.TransferTooOld,
			Message: "creation time outside replay window"}
	}

	balance := g.authoritative[req.From.Key()]
	total, err := req.Amount.AddChecked(req.Fee)
	if err != nil {
		return 0, &domain.TransferError{Kind: domain.TransferFailed, Message: err.Error()}
	}
	if balance < total {
		return 0, &domain.TransferError{Kind: domain.TransferInsufficientFunds, Balance: balance}
	}

	g.authoritative[req.From.Key()] = balance - total
	g.authoritative[req.To.Key()] += req.Amount
	g.height++
	g.transfers[tag] = g.height

	if req.To.Key() == g.round.CollectionAccount.Key() {
		g.paid[saleKey(g.round.ID, domain.Account{Owner: req.From.Owner})] += req.Amount
	}
	return g.height, nil
}

func (g *Gateway) NotifyParticipation(ctx context.Context, saleID string, account domain.Account) (domain.Amount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pendingNotifies > 0 {
		g.pendingNotifies--
		return 0, &domain.NotifyError{Pending: true, Message: "sale backend is reconciling the transfer"}
	}

	key := saleKey(saleID, domain.Account{Owner: account.Owner})
	pending := g.paid[key]
	if pending == 0 && g.accepted[key] == 0 {
		return 0, &domain.NotifyError{Message: "no transfer found for participant"}
	}
	g.accepted[key] += pending
	g.paid[key] = 0
	return g.accepted[key], nil
}

func (g *Gateway) NotifyPaymentFailure(ctx context.Context, saleID string, account domain.Account) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tickets, saleKey(saleID, account))
	return nil
}

func (g *Gateway) Balance(ctx context.Context, account domain.Account, tier domain.Tier) (domain.Amount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tier == domain.Authoritative {
		return g.authoritative[account.Key()], nil
	}
	return g.speculative[account.Key()], nil
}
