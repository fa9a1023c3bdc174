package event

import "context"

type Store interface {
	// AppendEvent assigns e.Seq and persists e.
	AppendEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)
}

// ListOpts selects events with Seq > AfterSeq in ascending order.
// A zero Limit means no limit.
type ListOpts struct {
	AfterSeq uint64
	Kinds    []Kind
	RoundID  uint64
	Limit    int
}

// Matches reports whether e passes the filters.
func (o ListOpts) Matches(e *Event) bool {
	if e.Seq <= o.AfterSeq {
		return false
	}
	if o.RoundID != 0 && e.RoundID != o.RoundID {
		return false
	}
	if len(o.Kinds) == 0 {
		return true
	}
	for _, k := range o.Kinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}
