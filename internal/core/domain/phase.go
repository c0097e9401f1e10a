package domain

// Phase is a sale participation flow state.
type Phase int

const (
	PhaseInitialization Phase = iota
	PhaseTicketReservation
	PhaseTransfer
	PhaseNotify
	PhaseResync
	PhaseDone
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialization:
		return "initialization"
	case PhaseTicketReservation:
		return "ticket_reservation"
	case PhaseTransfer:
		return "transfer"
	case PhaseNotify:
		return "notify"
	case PhaseResync:
		return "resync"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase has no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseAborted
}
