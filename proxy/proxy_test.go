package proxy_test

import (
	"context"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/proxy"
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
)

func releases() []proxy.Release {
	return []proxy.Release{
		{Version: "v1", Layout: proxy.BaseLayout},
		{Version: "v2", Layout: append(slices.Clone(proxy.BaseLayout), "roundMetadata")},
		{Version: "v3-broken", Layout: []string{"treasury", "owner"}},
	}
}

func newEntryPoint(t *testing.T, s *memory.Store) *proxy.EntryPoint {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	tok := token.New(s, token.WithLogger(logger))
	opts := []proxy.Option{
		proxy.WithLogger(logger),
		proxy.WithLedgerOptions(
			crowdsale.WithMinter(tok),
			crowdsale.WithTransferer(wallet.NewBank(logger)),
		),
	}
	for _, r := range releases() {
		opts = append(opts, proxy.WithRelease(r))
	}
	return proxy.New(s, saleAddr, opts...)
}

func TestOpenInitializesFreshStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := newEntryPoint(t, s)

	_, err := p.Rounds(ctx)
	require.ErrorIs(t, err, proxy.ErrNotOpen)

	require.NoError(t, p.Open(ctx, owner, treasury, "v1"))
	assert.Equal(t, "v1", p.Version())
	assert.Equal(t, saleAddr, p.Address())
	assert.Equal(t, []string{"v1", "v2", "v3-broken"}, p.Releases())

	st, err := p.SaleState(ctx)
	require.NoError(t, err)
	assert.True(t, st.Initialized)
	assert.Equal(t, owner, st.Owner)
	assert.Equal(t, "v1", st.Implementation)
	assert.Equal(t, proxy.BaseLayout, st.Layout)
}

func TestOpenUnknownRelease(t *testing.T) {
	p := newEntryPoint(t, memory.New())
	err := p.Open(context.Background(), owner, treasury, "v9")
	require.ErrorIs(t, err, proxy.ErrUnknownRelease)
}

func TestRegisterDuplicate(t *testing.T) {
	p := newEntryPoint(t, memory.New())
	err := p.Register(proxy.Release{Version: "v1"})
	require.ErrorIs(t, err, proxy.ErrDuplicateRelease)
}

func TestUpgradePreservesState(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := newEntryPoint(t, s)
	require.NoError(t, p.Open(ctx, owner, treasury, "v1"))

	r, err := p.StartRound(ctx, owner, crowdsale.RoundParams{
		Rate:    types.NewAmount(100),
		SoftCap: types.MustParseEther("1"),
		EndTime: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = p.Buy(ctx, alice, types.MustParseEther("2"))
	require.NoError(t, err)

	require.NoError(t, p.Upgrade(ctx, owner, "v2"))
	assert.Equal(t, "v2", p.Version())
	assert.Equal(t, "v2", p.Ledger().Version())

	c, err := p.Contribution(ctx, r.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", c.ContributionWei.String())
	assert.Equal(t, "200000000000000000000", c.EntitlementTokens.String())

	// The new release keeps accepting contributions into the same round.
	_, err = p.Buy(ctx, alice, types.MustParseEther("1"))
	require.NoError(t, err)
	got, err := p.Round(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MustParseEther("3"), got.TotalRaised)

	evts, err := p.Events(ctx, event.ListOpts{Kinds: []event.Kind{event.KindUpgraded}})
	require.NoError(t, err)
	require.NotEmpty(t, evts)
	last := evts[len(evts)-1]
	assert.Equal(t, "v2", last.Version)
	assert.Equal(t, "v1", last.PrevVersion)
}

func TestUpgradeRejections(t *testing.T) {
	ctx := context.Background()
	p := newEntryPoint(t, memory.New())

	require.ErrorIs(t, p.Upgrade(ctx, owner, "v2"), proxy.ErrNotOpen)
	require.NoError(t, p.Open(ctx, owner, treasury, "v1"))

	err := p.Upgrade(ctx, alice, "v2")
	require.ErrorIs(t, err, access.ErrUnauthorized)
	assert.Equal(t, "v1", p.Version())

	err = p.Upgrade(ctx, owner, "v3-broken")
	require.ErrorIs(t, err, crowdsale.ErrLayoutNotAppendOnly)
	assert.Equal(t, "v1", p.Version())

	err = p.Upgrade(ctx, owner, "v7")
	require.ErrorIs(t, err, proxy.ErrUnknownRelease)
	assert.Equal(t, "v1", p.Version())
}

func TestReopenUsesStoredRelease(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	first := newEntryPoint(t, s)
	require.NoError(t, first.Open(ctx, owner, treasury, "v1"))
	require.NoError(t, first.Upgrade(ctx, owner, "v2"))

	second := newEntryPoint(t, s)
	require.NoError(t, second.Open(ctx, owner, treasury, "v1"))
	assert.Equal(t, "v2", second.Version())

	st, err := second.SaleState(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, st.Owner)
	assert.Len(t, st.Layout, len(proxy.BaseLayout)+1)
}
