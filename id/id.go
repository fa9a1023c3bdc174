// Package id issues the TypeID identifiers carried by crowdsale log entries
// and receipts.
//
// Rounds are numbered and contributions are keyed by (round, address), so
// only records without a natural key get one. The suffix is UUIDv7-based, which
// keeps IDs of the same kind ordered by creation time.
package id

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the record kind encoded ahead of the underscore.
type Prefix string

const (
	PrefixEvent    Prefix = "evt"
	PrefixMint     Prefix = "mint"
	PrefixTransfer Prefix = "xfer"
	PrefixRelease  Prefix = "rel"
)

// ErrPrefixMismatch is returned when a parsed ID belongs to another kind.
var ErrPrefixMismatch = errors.New("id: prefix mismatch")

// ID is a prefixed TypeID. The zero value is Nil and renders as "".
//
//nolint:recvcheck // pointer receivers only where the ID is decoded in place.
type ID struct {
	tid typeid.TypeID
	set bool
}

// Nil is the empty ID.
var Nil ID

type (
	EventID    = ID
	MintID     = ID
	TransferID = ID
	ReleaseID  = ID
)

// New mints an ID of the given kind. Prefixes are package constants, so a
// generation failure is a programming error.
func New(p Prefix) ID {
	tid, err := typeid.Generate(string(p))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", p, err))
	}
	return ID{tid: tid, set: true}
}

func NewEventID() ID    { return New(PrefixEvent) }
func NewMintID() ID     { return New(PrefixMint) }
func NewTransferID() ID { return New(PrefixTransfer) }
func NewReleaseID() ID  { return New(PrefixRelease) }

// Parse decodes any well-formed TypeID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, errors.New("id: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, set: true}, nil
}

// ParseAs decodes s and requires it to be of kind p.
func ParseAs(s string, p Prefix) (ID, error) {
	v, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := v.Prefix(); got != p {
		return Nil, fmt.Errorf("%w: want %q, got %q", ErrPrefixMismatch, p, got)
	}
	return v, nil
}

// ParseEventID decodes a persisted event log ID.
func ParseEventID(s string) (ID, error) { return ParseAs(s, PrefixEvent) }

func (i ID) IsNil() bool { return !i.set }

func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*i = Nil
		return nil
	}
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Value stores Nil as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.set {
		return nil, nil //nolint:nilnil // NULL column
	}
	return i.tid.String(), nil
}

func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	}
	return fmt.Errorf("id: cannot scan %T", src)
}
