package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/sale"
	"github.com/xraph/crowdsale/types"
)

var alice = types.MustParseAddress("0x00000000000000000000000000000000000A11cE")

func TestModelConversions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r := &round.Round{
		Entity:      types.NewEntity(now),
		ID:          4,
		Rate:        types.NewAmount(250),
		SoftCap:     types.MustParseEther("3"),
		EndTime:     now.Add(time.Hour),
		TotalRaised: types.MustParseEther("1.25"),
		Title:       "Growth",
	}
	back, err := fromRoundModel(toRoundModel(r))
	require.NoError(t, err)
	assert.Equal(t, r, back)

	c := contribution.Empty(4, alice)
	c.Entity = types.NewEntity(now)
	c.ContributionWei = types.MustParseEther("1")
	m := toContributionModel(c)
	assert.Equal(t, "0x00000000000000000000000000000000000a11ce", m.Contributor)
	cback, err := fromContributionModel(m)
	require.NoError(t, err)
	assert.Equal(t, c, cback)

	e := event.New(event.KindUpgraded, 0, now)
	e.Seq = 9
	e.Version, e.PrevVersion = "v2", "v1"
	em := toEventModel(e)
	assert.Nil(t, em.EndTime)
	eback, err := fromEventModel(em)
	require.NoError(t, err)
	assert.Equal(t, e, eback)
}

func TestMigrationsAreOrdered(t *testing.T) {
	seen := make(map[string]bool)
	for i, m := range Migrations {
		assert.False(t, seen[m.Version], "duplicate version %s", m.Version)
		seen[m.Version] = true
		if i > 0 {
			assert.Greater(t, m.Version, Migrations[i-1].Version)
		}
		assert.NotEmpty(t, m.Up)
		assert.NotEmpty(t, m.Down)
	}
}

// TestStoreAgainstDatabase runs when CROWDSALE_TEST_POSTGRES_DSN points at a
// disposable database.
func TestStoreAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("CROWDSALE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CROWDSALE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))
	_, err = s.Pool().Exec(ctx, `TRUNCATE crowdsale_events, crowdsale_contributions, crowdsale_rounds,
		crowdsale_sale, crowdsale_token_balances, crowdsale_token_supply, crowdsale_token_roles`)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.PutSaleState(ctx, &sale.State{
		Entity: types.NewEntity(now), Initialized: true, Owner: alice, Treasury: alice,
		Balance: types.MustParseEther("2"), Layout: []string{"owner"},
	}))
	st, err := s.GetSaleState(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.MustParseEther("2"), st.Balance)
	assert.Equal(t, []string{"owner"}, st.Layout)

	err = s.Atomic(ctx, func(ctx context.Context) error {
		if err := s.CreateRound(ctx, &round.Round{Entity: types.NewEntity(now), ID: 1, EndTime: now}); err != nil {
			return err
		}
		return crowdsale.ErrRoundEnded
	})
	require.ErrorIs(t, err, crowdsale.ErrRoundEnded)
	_, err = s.GetRound(ctx, 1)
	require.ErrorIs(t, err, crowdsale.ErrRoundNotFound)

	e := event.New(event.KindBought, 1, now)
	e.Amount = types.MustParseEther("0.5")
	require.NoError(t, s.AppendEvent(ctx, e))
	assert.Equal(t, uint64(1), e.Seq)
	evts, err := s.ListEvents(ctx, event.ListOpts{Kinds: []event.Kind{event.KindBought}})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, e.Amount, evts[0].Amount)

	require.NoError(t, s.CreditTokens(ctx, alice, types.NewAmount(7)))
	supply, err := s.TokenSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.NewAmount(7), supply)
}
