package domain

import "fmt"

// TicketErrorKind enumerates the terminal outcomes of a reserve-ticket call.
type TicketErrorKind int

const (
	// TicketExists means a ticket was already open for this (sale, caller).
	// The coordinator absorbs it and adopts the existing ticket.
	TicketExists TicketErrorKind = iota
	TicketAmountTooSmall
	TicketAmountTooLarge
	TicketInvalidSubaccount
	TicketSaleNotOpen
	TicketSaleClosed
)

func (k TicketErrorKind) String() string {
	switch k {
	case TicketExists:
		return "ticket_exists"
	case TicketAmountTooSmall:
		return "amount_too_small"
	case TicketAmountTooLarge:
		return "amount_too_large"
	case TicketInvalidSubaccount:
		return "invalid_subaccount"
	case TicketSaleNotOpen:
		return "sale_not_open"
	case TicketSaleClosed:
		return "sale_closed"
	default:
		return "unknown"
	}
}

// TicketError is a terminal error from the sale-ticket operation set.
type TicketError struct {
	Kind TicketErrorKind
	// Existing carries the already-open ticket when Kind == TicketExists.
	Existing *Ticket
	Message  string
}

func (e *TicketError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ticket error (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("ticket error (%s)", e.Kind)
}

// TransferErrorKind enumerates the typed failures of a ledger transfer.
type TransferErrorKind int

const (
	// TransferDuplicate means the same idempotency tag already landed;
	// the funds moved in a prior attempt.
	TransferDuplicate TransferErrorKind = iota
	TransferInsufficientFunds
	// TransferTooOld means the creation time is older than the ledger's
	// replay window.
	TransferTooOld
	// TransferCreatedInFuture means the request timestamp is ahead of the
	// replica's clock. It self-resolves within seconds and is retried.
	TransferCreatedInFuture
	// TransferFailed covers every other typed ledger rejection.
	TransferFailed
)

func (k TransferErrorKind) String() string {
	switch k {
	case TransferDuplicate:
		return "duplicate"
	case TransferInsufficientFunds:
		return "insufficient_funds"
	case TransferTooOld:
		return "too_old"
	case TransferCreatedInFuture:
		return "created_in_future"
	case TransferFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TransferError is a typed failure from the ledger transfer operation.
type TransferError struct {
	Kind TransferErrorKind
	// DuplicateOf is the ledger height of the original transfer when
	// Kind == TransferDuplicate.
	DuplicateOf uint64
	// Balance is the available balance when Kind == TransferInsufficientFunds.
	Balance Amount
	Message string
}

func (e *TransferError) Error() string {
	switch e.Kind {
	case TransferDuplicate:
		return fmt.Sprintf("transfer is a duplicate of ledger height %d", e.DuplicateOf)
	case TransferInsufficientFunds:
		return fmt.Sprintf("insufficient funds: balance %s", e.Balance)
	default:
		if e.Message != "" {
			return fmt.Sprintf("transfer error (%s): %s", e.Kind, e.Message)
		}
		return fmt.Sprintf("transfer error (%s)", e.Kind)
	}
}

// NotifyError is the typed failure of the notify-participation operation.
type NotifyError struct {
	// Pending means the backend is still processing the participation;
	// the call is retried until a non-transient outcome is reported.
	Pending bool
	Message string
}

func (e *NotifyError) Error() string {
	if e.Pending {
		return "participation still processing: " + e.Message
	}
	return "participation refused: " + e.Message
}

// ValidationError is a local pre-flight rejection; no network call was made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid participation request: " + e.Reason
}
