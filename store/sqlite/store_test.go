package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/sale"
	"github.com/xraph/crowdsale/types"
)

var (
	alice = types.MustParseAddress("0x00000000000000000000000000000000000A11cE")
	bob   = types.MustParseAddress("0x0000000000000000000000000000000000000b0b")
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "crowdsale.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTempStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestSaleStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	st, err := s.GetSaleState(ctx)
	require.NoError(t, err)
	assert.False(t, st.Initialized)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &sale.State{
		Entity:         types.NewEntity(now),
		Initialized:    true,
		Owner:          alice,
		Treasury:       bob,
		CurrentRoundID: 3,
		Balance:        types.MustParseEther("12.5"),
		Implementation: "v2",
		Layout:         []string{"owner", "treasury"},
	}
	require.NoError(t, s.PutSaleState(ctx, in))

	got, err := s.GetSaleState(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestRounds(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r := &round.Round{
		Entity:  types.NewEntity(now),
		ID:      1,
		Rate:    types.NewAmount(1000),
		SoftCap: types.MustParseEther("5"),
		EndTime: now.Add(time.Hour),
		Title:   "Seed",
	}
	require.NoError(t, s.CreateRound(ctx, r))
	require.Error(t, s.CreateRound(ctx, r))

	_, err := s.GetRound(ctx, 9)
	require.ErrorIs(t, err, crowdsale.ErrRoundNotFound)

	r.TotalRaised = types.MustParseEther("6")
	r.Finalized, r.Successful = true, true
	require.NoError(t, s.UpdateRound(ctx, r))

	got, err := s.GetRound(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	require.ErrorIs(t, s.UpdateRound(ctx, &round.Round{ID: 7}), crowdsale.ErrRoundNotFound)

	require.NoError(t, s.CreateRound(ctx, &round.Round{ID: 2, EndTime: now}))
	all, err := s.ListRounds(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(1), all[0].ID)
}

func TestContributions(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	_, err := s.GetContribution(ctx, 1, alice)
	require.ErrorIs(t, err, crowdsale.ErrContributionNotFound)

	c := contribution.Empty(1, alice)
	c.ContributionWei = types.MustParseEther("1")
	c.EntitlementTokens = types.MustParseEther("1000")
	require.NoError(t, s.PutContribution(ctx, c))

	c.ClaimedOrRefunded = true
	require.NoError(t, s.PutContribution(ctx, c))
	require.NoError(t, s.PutContribution(ctx, contribution.Empty(1, bob)))

	got, err := s.GetContribution(ctx, 1, alice)
	require.NoError(t, err)
	assert.True(t, got.ClaimedOrRefunded)
	assert.Equal(t, alice, got.Contributor)

	list, err := s.ListContributions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, alice, list[0].Contributor)
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, k := range []event.Kind{event.KindRoundStarted, event.KindBought, event.KindBought, event.KindFinalized} {
		e := event.New(k, 1, at)
		e.Account = alice
		e.Amount = types.NewAmount(uint64(i))
		require.NoError(t, s.AppendEvent(ctx, e))
		assert.Equal(t, uint64(i+1), e.Seq)
	}

	all, err := s.ListEvents(ctx, event.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, at, all[0].At)
	assert.True(t, all[0].EndTime.IsZero())

	bought, err := s.ListEvents(ctx, event.ListOpts{AfterSeq: 2, Kinds: []event.Kind{event.KindBought}})
	require.NoError(t, err)
	require.Len(t, bought, 1)
	assert.Equal(t, uint64(3), bought[0].Seq)
	assert.Equal(t, alice, bought[0].Account)

	limited, err := s.ListEvents(ctx, event.ListOpts{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestTokenLedger(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)

	require.NoError(t, s.CreditTokens(ctx, alice, types.NewAmount(10)))
	require.NoError(t, s.CreditTokens(ctx, alice, types.NewAmount(5)))
	require.NoError(t, s.CreditTokens(ctx, bob, types.NewAmount(1)))

	bal, err := s.TokenBalance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, types.NewAmount(15), bal)

	supply, err := s.TokenSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.NewAmount(16), supply)

	require.NoError(t, s.GrantRole(ctx, access.RoleMinter, bob))
	require.NoError(t, s.GrantRole(ctx, access.RoleMinter, bob))
	ok, err := s.HasRole(ctx, access.RoleMinter, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := s.RoleMembers(ctx, access.RoleMinter)
	require.NoError(t, err)
	assert.Equal(t, []types.Address{bob}, members)

	require.NoError(t, s.RevokeRole(ctx, access.RoleMinter, bob))
	ok, err = s.HasRole(ctx, access.RoleMinter, bob)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(ctx context.Context) error {
		require.NoError(t, s.PutContribution(ctx, contribution.Empty(1, alice)))
		return s.Atomic(ctx, func(ctx context.Context) error {
			require.NoError(t, s.CreditTokens(ctx, alice, types.NewAmount(3)))
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetContribution(ctx, 1, alice)
	require.ErrorIs(t, err, crowdsale.ErrContributionNotFound)
	bal, err := s.TokenBalance(ctx, alice)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}
