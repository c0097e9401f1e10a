package domain

import "time"

// Receipt is the durable record of one participation flow's terminal
// outcome, written best-effort for audit and support tooling. The backend's
// ticket slot, not this record, remains the ground truth for resumption.
type Receipt struct {
	RunID      string    `db:"run_id"      json:"run_id"`
	SaleID     string    `db:"sale_id"     json:"sale_id"`
	Owner      string    `db:"owner"       json:"owner"`
	Amount     Amount    `db:"amount"      json:"amount"`
	Outcome    string    `db:"outcome"     json:"outcome"`
	Height     uint64    `db:"height"      json:"height"`
	TooOld     bool      `db:"too_old"     json:"too_old"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
}
