package sale

import "context"

// Store persists the singleton State. GetSaleState returns a zero State
// before the first put.
type Store interface {
	GetSaleState(ctx context.Context) (*State, error)
	PutSaleState(ctx context.Context, s *State) error
}
