// Package contribution defines per-round, per-address contribution records.
package contribution

import (
	"github.com/xraph/crowdsale/types"
)

// Contribution is keyed by (RoundID, Contributor).
type Contribution struct {
	types.Entity
	RoundID           uint64        `json:"round_id"`
	Contributor       types.Address `json:"contributor"`
	ContributionWei   types.Amount  `json:"contribution_wei"`
	EntitlementTokens types.Amount  `json:"entitlement_tokens"`
	ClaimedOrRefunded bool          `json:"claimed_or_refunded"`
}

// Empty returns the zero record for (roundID, contributor).
func Empty(roundID uint64, contributor types.Address) *Contribution {
	return &Contribution{RoundID: roundID, Contributor: contributor}
}
