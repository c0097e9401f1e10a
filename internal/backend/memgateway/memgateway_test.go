package memgateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quangdm/partake/internal/backend"
	"github.com/quangdm/partake/internal/core/domain"
)

var testRound = domain.SaleRound{
	ID:                "round-1",
	MinPerParticipant: 1_00000000,
	MaxPerParticipant: 100_00000000,
	CollectionAccount: domain.Account{Owner: "collection"},
}

const testFee = domain.Amount(10_000)

func newTestGateway() *Gateway {
	return New(testRound, testFee)
}

func TestReserveTicketBounds(t *testing.T) {
	gw := newTestGateway()
	account := domain.Account{Owner: "alice"}

	tests := []struct {
		name   string
		saleID string
		amount domain.Amount
		kind   domain.TicketErrorKind
	}{
		{"below floor", "round-1", 50, domain.TicketAmountTooSmall},
		{"above ceiling", "round-1", 200_00000000, domain.TicketAmountTooLarge},
		{"unknown sale", "round-2", 5_00000000, domain.TicketSaleNotOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.ReserveTicket(context.Background(), tt.saleID, account, tt.amount)
			var ticketErr *domain.TicketError
			if !errors.As(err, &ticketErr) {
				t.Fatalf("ReserveTicket() error = %v, want *TicketError", err)
			}
			if ticketErr.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", ticketErr.Kind, tt.kind)
			}
		})
	}
}

func TestReserveTicketIdempotent(t *testing.T) {
	gw := newTestGateway()
	account := domain.Account{Owner: "alice"}

	first, err := gw.ReserveTicket(context.Background(), "round-1", account, 5_00000000)
	if err != nil {
		t.Fatalf("first ReserveTicket() error = %v", err)
	}

	_, err = gw.ReserveTicket(context.Background(), "round-1", account, 5_00000000)
	var ticketErr *domain.TicketError
	if !errors.As(err, &ticketErr) || ticketErr.Kind != domain.TicketExists {
		t.Fatalf("second ReserveTicket() error = %v, want TicketExists", err)
	}
	if ticketErr.Existing == nil || ticketErr.Existing.ID != first.ID {
		t.Errorf("Existing = %+v, want ticket %d", ticketErr.Existing, first.ID)
	}
}

func TestOpenTicketLifecycle(t *testing.T) {
	gw := newTestGateway()
	account := domain.Account{Owner: "alice"}

	ticket, err := gw.OpenTicket(context.Background(), "round-1", account)
	if err != nil || ticket != nil {
		t.Fatalf("OpenTicket() = %v, %v, want nil, nil before reservation", ticket, err)
	}

	reserved, err := gw.ReserveTicket(context.Background(), "round-1", account, 5_00000000)
	if err != nil {
		t.Fatalf("ReserveTicket() error = %v", err)
	}

	ticket, err = gw.OpenTicket(context.Background(), "round-1", account)
	if err != nil {
		t.Fatalf("OpenTicket() error = %v", err)
	}
	if ticket == nil || ticket.ID != reserved.ID {
		t.Fatalf("OpenTicket() = %+v, want ticket %d", ticket, reserved.ID)
	}

	if err := gw.NotifyPaymentFailure(context.Background(), "round-1", account); err != nil {
		t.Fatalf("NotifyPaymentFailure() error = %v", err)
	}
	ticket, err = gw.OpenTicket(context.Background(), "round-1", account)
	if err != nil || ticket != nil {
		t.Errorf("OpenTicket() = %v, %v after release, want nil, nil", ticket, err)
	}
}

func transferReq(gw *Gateway, t *testing.T, account domain.Account, amount domain.Amount) backend.TransferRequest {
	t.Helper()
	ticket, err := gw.ReserveTicket(context.Background(), "round-1", account, amount)
	if err != nil {
		var ticketErr *domain.TicketError
		if errors.As(err, &ticketErr) && ticketErr.Kind == domain.TicketExists {
			ticket = ticketErr.Existing
		} else {
			t.Fatalf("ReserveTicket() error = %v", err)
		}
	}
	return backend.TransferRequest{
		From:      account,
		To:        testRound.CollectionAccount,
		Amount:    ticket.Amount,
		Fee:       testFee,
		Memo:      ticket.ID,
		CreatedAt: ticket.CreatedAt,
	}
}

func TestTransferDuplicateDetection(t *testing.T) {
	gw := newTestGateway()
	account := domain.Account{Owner: "alice"}
	gw.SetBalance(account, 20_00000000)

	req := transferReq(gw, t, account, 5_00000000)
	height, err := gw.Transfer(context.Background(), req)
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	_, err = gw.Transfer(context.Background(), req)
	var transferErr *domain.TransferError
	if !errors.As(err, &transferErr) || transferErr.Kind != domain.TransferDuplicate {
		t.Fatalf("replayed Transfer() error = %v, want duplicate", err)
	}
	if transferErr.DuplicateOf != height {
		t.Errorf("DuplicateOf = %d, want %d", transferErr.DuplicateOf, height)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	gw := newTestGateway()
	account := domain.Account{Owner: "alice"}
	gw.SetBalance(account, 1_00000000)

	req := transferReq(gw, t, account, 5_00000000)
	_, err := gw.Transfer(context.Background(), req)
	var transferErr *domain.TransferError
	if !errors.As(err, &transferErr) || transferErr.Kind != domain.TransferInsufficientFunds {
		t.Fatalf("Transfer() error = %v, want insufficient funds", err)
	}
	if transferErr.Balance != 1_00000000 {
		t.Errorf("Balance = %s, want 1.00000000", transferErr.Balance)
	}
}

func TestTransferReplayWindow(t *testing.T) {
	gw := newTestGateway()
	account := domain.Account{Owner: "alice"}
	gw.SetBalance(account, 20_00000000)

	req := transferReq(gw, t, account, 5_00000000)

	t.Run("too old", func(t *testing.T) {
		now := time.Now()
		gw.SetClock(func() time.Time { return now.Add(25 * time.Hour) })
		_, err := gw.Transfer(context.Background(), req)
		var transferErr *domain.TransferError
		if !errors.As(err, &transferErr) || transferErr.Kind != domain.TransferTooOld {
			t.Fatalf("Transfer() error = %v, want too old", err)
		}
	})

	t.Run("created in future", func(t *testing.T) {
		now := time.Now()
		gw.SetClock(func() time.Time { return now.Add(-time.Hour) })
		_, err := gw.Transfer(context.Background(), req)
		var transferErr *domain.TransferError
		if !errors.As(err, &transferErr) || transferErr.Kind != domain.TransferCreatedInFuture {
			t.Fatalf("Transfer() error = %v, want created in future", err)
		}
	})
}

func TestNotifyParticipation(t *testing.T) {
	gw := newTestGateway()
	account := domain.Account{Owner: "alice"}
	gw.SetBalance(account, 20_00000000)

	req := transferReq(gw, t, account, 5_00000000)
	if _, err := gw.Transfer(context.Background(), req); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	gw.SetPendingNotifies(1)
	_, err := gw.NotifyParticipation(context.Background(), "round-1", account)
	var notifyErr *domain.NotifyError
	if !errors.As(err, &notifyErr) || !notifyErr.Pending {
		t.Fatalf("first NotifyParticipation() error = %v, want pending", err)
	}

	accepted, err := gw.NotifyParticipation(context.Background(), "round-1", account)
	if err != nil {
		t.Fatalf("second NotifyParticipation() error = %v", err)
	}
	if accepted != 5_00000000 {
		t.Errorf("accepted = %s, want 5.00000000", accepted)
	}
}

func TestBalanceTiers(t *testing.T) {
	gw := newTestGateway()
	account := domain.Account{Owner: "alice"}
	gw.SetBalance(account, 20_00000000)

	req := transferReq(gw, t, account, 5_00000000)
	if _, err := gw.Transfer(context.Background(), req); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	auth, _ := gw.Balance(context.Background(), account, domain.Authoritative)
	spec, _ := gw.Balance(context.Background(), account, domain.Speculative)
	if auth != 20_00000000-5_00000000-testFee {
		t.Errorf("authoritative = %s, want debited balance", auth)
	}
	if spec != 20_00000000 {
		t.Errorf("speculative = %s, want stale balance before catch-up", spec)
	}

	gw.CatchUp()
	spec, _ = gw.Balance(context.Background(), account, domain.Speculative)
	if spec != auth {
		t.Errorf("speculative = %s after catch-up, want %s", spec, auth)
	}
}
