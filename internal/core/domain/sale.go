package domain

import (
	"encoding/hex"
	"time"
)

// Account identifies a participant or collection account on the ledger.
type Account struct {
	Owner      string `json:"owner"`
	Subaccount []byte `json:"subaccount,omitempty"`
}

// Key returns a stable string form usable as a map or registry key.
func (a Account) Key() string {
	if len(a.Subaccount) == 0 {
		return a.Owner
	}
	return a.Owner + ":" + hex.EncodeToString(a.Subaccount)
}

// Ticket is a backend-issued reservation of a participant's intent to join a
// sale round. The client never fabricates one; it only holds a view refreshed
// from the backend.
type Ticket struct {
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Amount    Amount    `json:"amount"`
	Account   Account   `json:"account"`
}

// SaleRound holds the client-known parameters of a capacity-limited sale.
type SaleRound struct {
	ID                string
	MinPerParticipant Amount
	MaxPerParticipant Amount
	CollectionAccount Account
}

// Tier selects the consistency level of a backend read.
type Tier int

const (
	// Speculative reads are fast and may reflect stale or unreplicated state.
	Speculative Tier = iota
	// Authoritative reads are backed by the replica set's consensus.
	Authoritative
)

func (t Tier) String() string {
	switch t {
	case Speculative:
		return "speculative"
	case Authoritative:
		return "authoritative"
	default:
		return "unknown"
	}
}
