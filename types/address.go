package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a 20-byte account address.
type Address = common.Address

// ZeroAddress is the all-zero address. It never holds a role and never
// receives mints or payouts.
var ZeroAddress Address

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return ZeroAddress, fmt.Errorf("address: invalid hex address %q", s)
	}
	return common.HexToAddress(s), nil
}

// MustParseAddress is like ParseAddress but panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}
