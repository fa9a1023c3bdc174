// Package sale holds the global crowdsale state stored at the entry point.
package sale

import (
	"github.com/xraph/crowdsale/types"
)

// State is the singleton global record.
type State struct {
	types.Entity
	Initialized    bool          `json:"initialized"`
	Owner          types.Address `json:"owner"`
	Treasury       types.Address `json:"treasury"`
	CurrentRoundID uint64        `json:"current_round_id"`
	// Balance is the pooled base currency held for all rounds.
	Balance types.Amount `json:"balance"`
	// Implementation is the active release version behind the entry point.
	Implementation string `json:"implementation,omitempty"`
	// Layout lists the storage fields of the active release, oldest first.
	Layout []string `json:"layout,omitempty"`
}
