// Package event defines the append-only ledger event log.
//
// Every committed state change appends one Event. Sequence numbers start at 1
// and are gapless within a store, so any read model (such as the leaderboard)
// can be rebuilt by replaying from Seq 0.
package event

import (
	"time"

	"github.com/xraph/crowdsale/id"
	"github.com/xraph/crowdsale/types"
)

// Kind names an event type.
type Kind string

const (
	KindInitialized          Kind = "Initialized"
	KindRoundStarted         Kind = "RoundStarted"
	KindBought               Kind = "Bought"
	KindFinalized            Kind = "Finalized"
	KindClaimed              Kind = "Claimed"
	KindRefunded             Kind = "Refunded"
	KindWithdrawn            Kind = "Withdrawn"
	KindEndTimeChanged       Kind = "EndTimeChanged"
	KindMetadataChanged      Kind = "MetadataChanged"
	KindTreasuryChanged      Kind = "TreasuryChanged"
	KindOwnershipTransferred Kind = "OwnershipTransferred"
	KindUpgraded             Kind = "Upgraded"
)

// Event is one log entry. Fields not relevant to Kind are zero.
type Event struct {
	Seq     uint64     `json:"seq"`
	ID      id.EventID `json:"id"`
	Kind    Kind       `json:"kind"`
	RoundID uint64     `json:"round_id,omitempty"`
	// Account is the buyer, claimant, refund recipient, withdrawal
	// treasury, or new owner/treasury depending on Kind.
	Account     types.Address `json:"account"`
	Amount      types.Amount  `json:"amount"`
	Tokens      types.Amount  `json:"tokens"`
	Rate        types.Amount  `json:"rate"`
	SoftCap     types.Amount  `json:"soft_cap"`
	EndTime     time.Time     `json:"end_time,omitempty"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Successful  bool          `json:"successful,omitempty"`
	Version     string        `json:"version,omitempty"`
	PrevVersion string        `json:"prev_version,omitempty"`
	At          time.Time     `json:"at"`
}

// New returns an Event of kind k stamped with at and a fresh ID.
func New(k Kind, roundID uint64, at time.Time) *Event {
	return &Event{ID: id.NewEventID(), Kind: k, RoundID: roundID, At: at.UTC()}
}
