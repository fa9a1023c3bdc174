package crowdsale

import "github.com/xraph/crowdsale/types"

// Re-exported value types so callers can stay in the root package.

// Amount is re-exported from types.
type Amount = types.Amount

// Address is re-exported from types.
type Address = types.Address

var (
	NewAmount      = types.NewAmount
	ParseAmount    = types.ParseAmount
	ParseEther     = types.ParseEther
	MustParseEther = types.MustParseEther
	ParseAddress   = types.ParseAddress
)
