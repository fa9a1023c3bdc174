// Package wallet moves base currency out of the sale to external accounts.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/crowdsale/id"
	"github.com/xraph/crowdsale/types"
)

var (
	ErrZeroTransfer        = errors.New("wallet: transfer amount is zero")
	ErrTransferToZero      = errors.New("wallet: transfer to the zero address")
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")
)

// Transferer pays base currency to an account. The ledger calls it last in
// refund and withdraw, after the resolution flag is written.
type Transferer interface {
	Transfer(ctx context.Context, to types.Address, amount types.Amount) (*Receipt, error)
}

// TransferFunc adapts a function to Transferer.
type TransferFunc func(ctx context.Context, to types.Address, amount types.Amount) (*Receipt, error)

// Transfer implements Transferer.
func (f TransferFunc) Transfer(ctx context.Context, to types.Address, amount types.Amount) (*Receipt, error) {
	return f(ctx, to, amount)
}

// Receipt records one payout.
type Receipt struct {
	ID     id.TransferID `json:"id"`
	To     types.Address `json:"to"`
	Amount types.Amount  `json:"amount"`
	At     time.Time     `json:"at"`
}

// Bank is an in-process account book. It stands in for the chain: buyers are
// charged before their value is attached to Buy, and payouts credit the
// recipient. Balances live in memory only; every payout is also written to
// the logger as a structured record so it survives a restart. Deployments
// that move real funds inject their own Transferer.
type Bank struct {
	mu       sync.RWMutex
	balances map[types.Address]types.Amount
	logger   *slog.Logger
}

// NewBank returns an empty Bank.
func NewBank(logger *slog.Logger) *Bank {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bank{balances: make(map[types.Address]types.Amount), logger: logger}
}

var _ Transferer = (*Bank)(nil)

// Transfer credits amount to to.
func (b *Bank) Transfer(_ context.Context, to types.Address, amount types.Amount) (*Receipt, error) {
	if amount.IsZero() {
		return nil, ErrZeroTransfer
	}
	if to == types.ZeroAddress {
		return nil, ErrTransferToZero
	}
	if err := b.Deposit(to, amount); err != nil {
		return nil, err
	}
	r := &Receipt{ID: id.NewTransferID(), To: to, Amount: amount, At: time.Now().UTC()}
	b.logger.Info("wallet payout",
		"receipt", r.ID.String(),
		"to", to.Hex(),
		"amount_wei", amount.String(),
		"at", r.At,
	)
	return r, nil
}

// Deposit adds amount to account.
func (b *Bank) Deposit(account types.Address, amount types.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := b.balances[account].Add(amount)
	if err != nil {
		return fmt.Errorf("wallet: deposit: %w", err)
	}
	b.balances[account] = next
	return nil
}

// Charge removes amount from account, as when value is attached to a call.
func (b *Bank) Charge(account types.Address, amount types.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := b.balances[account].Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance,
			account.Hex(), b.balances[account].String(), amount.String())
	}
	b.balances[account] = next
	return nil
}

// Balance returns account's balance.
func (b *Bank) Balance(account types.Address) types.Amount {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[account]
}
