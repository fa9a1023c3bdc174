package crowdsale

import "github.com/xraph/crowdsale/id"

// ID is the TypeID carried by events, mints and transfers.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
