package crowdsale_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/store/memory"
	"github.com/xraph/crowdsale/token"
	"github.com/xraph/crowdsale/types"
	"github.com/xraph/crowdsale/wallet"
)

var (
	owner    = types.MustParseAddress("0x00000000000000000000000000000000000000a1")
	treasury = types.MustParseAddress("0x00000000000000000000000000000000000000b2")
	saleAddr = types.MustParseAddress("0x00000000000000000000000000000000000000c3")
	alice    = types.MustParseAddress("0x00000000000000000000000000000000000a11ce")
	bob      = types.MustParseAddress("0x0000000000000000000000000000000000000b0b")
	mallory  = types.MustParseAddress("0x000000000000000000000000000000000000bad1")
)

func ether(s string) types.Amount { return types.MustParseEther(s) }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	token  *token.Authority
	bank   *wallet.Bank
	clock  *fakeClock
	ledger *crowdsale.Ledger
}

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// newHarness builds an initialized sale with a deployed token, the ledger
// granted the minter role, and funded contributor wallets.
func newHarness(t *testing.T, opts ...crowdsale.Option) *harness {
	t.Helper()

	ctx := context.Background()
	s := memory.New()
	clk := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tok := token.New(s, token.WithLogger(quietLogger()), token.WithClock(clk.Now))
	bank := wallet.NewBank(quietLogger())

	base := []crowdsale.Option{
		crowdsale.WithLogger(quietLogger()),
		crowdsale.WithAddress(saleAddr),
		crowdsale.WithMinter(tok),
		crowdsale.WithTransferer(bank),
		crowdsale.WithClock(clk.Now),
	}
	l := crowdsale.New(s, append(base, opts...)...)

	require.NoError(t, l.Start(ctx))
	require.NoError(t, tok.Deploy(ctx, owner))
	require.NoError(t, tok.GrantRole(ctx, owner, access.RoleMinter, saleAddr))
	require.NoError(t, l.Initialize(ctx, owner, treasury))

	for _, who := range []types.Address{alice, bob, mallory} {
		require.NoError(t, bank.Deposit(who, ether("10")))
	}

	return &harness{t: t, ctx: ctx, store: s, token: tok, bank: bank, clock: clk, ledger: l}
}

// startRound opens a round ending in one minute.
func (h *harness) startRound(rate uint64, softCap string) uint64 {
	h.t.Helper()
	r, err := h.ledger.StartRound(h.ctx, owner, crowdsale.RoundParams{
		Rate:    types.NewAmount(rate),
		SoftCap: ether(softCap),
		EndTime: h.clock.Now().Add(time.Minute),
		Title:   "round",
	})
	require.NoError(h.t, err)
	return r.ID
}

// buy charges the buyer's wallet and attaches the value to Buy.
func (h *harness) buy(buyer types.Address, amount string) (*contribution.Contribution, error) {
	h.t.Helper()
	v := ether(amount)
	require.NoError(h.t, h.bank.Charge(buyer, v))
	c, err := h.ledger.Buy(h.ctx, buyer, v)
	if err != nil {
		require.NoError(h.t, h.bank.Deposit(buyer, v))
	}
	return c, err
}

func (h *harness) mustBuy(buyer types.Address, amount string) *contribution.Contribution {
	h.t.Helper()
	c, err := h.buy(buyer, amount)
	require.NoError(h.t, err)
	return c
}

// endAndFinalize moves past the round end and finalizes the current round.
func (h *harness) endAndFinalize() bool {
	h.t.Helper()
	h.clock.Advance(2 * time.Minute)
	r, err := h.ledger.Finalize(h.ctx, owner)
	require.NoError(h.t, err)
	return r.Successful
}

func (h *harness) tokenBalance(who types.Address) types.Amount {
	h.t.Helper()
	bal, err := h.token.BalanceOf(h.ctx, who)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) held() types.Amount {
	h.t.Helper()
	bal, err := h.ledger.Balance(h.ctx)
	require.NoError(h.t, err)
	return bal
}
