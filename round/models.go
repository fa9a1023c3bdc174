// Package round defines the funding round record and its storage contract.
package round

import (
	"time"

	"github.com/xraph/crowdsale/types"
)

// Phase is the lifecycle stage of a round derived from its fields and the
// current time. It is never stored.
type Phase string

const (
	PhasePending   Phase = "pending" // no round has been started
	PhaseActive    Phase = "active"
	PhaseEnded     Phase = "ended" // past end time, awaiting finalization
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Round is one time-boxed funding window.
type Round struct {
	types.Entity
	ID             uint64       `json:"id"`
	Rate           types.Amount `json:"rate"`
	SoftCap        types.Amount `json:"soft_cap_wei"`
	EndTime        time.Time    `json:"end_time"`
	TotalRaised    types.Amount `json:"total_raised"`
	Finalized      bool         `json:"finalized"`
	Successful     bool         `json:"successful"`
	FundsWithdrawn bool         `json:"funds_withdrawn"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
}

// PhaseAt reports the phase of r at now.
func (r *Round) PhaseAt(now time.Time) Phase {
	switch {
	case r == nil:
		return PhasePending
	case r.Finalized && r.Successful:
		return PhaseSucceeded
	case r.Finalized:
		return PhaseFailed
	case now.Before(r.EndTime):
		return PhaseActive
	default:
		return PhaseEnded
	}
}

// Accepting reports whether contributions are accepted at now.
func (r *Round) Accepting(now time.Time) bool {
	return r.PhaseAt(now) == PhaseActive
}

// Info is a round together with its derived phase, as served to clients.
type Info struct {
	*Round
	Phase     Phase `json:"phase"`
	IsCurrent bool  `json:"is_current"`
}
