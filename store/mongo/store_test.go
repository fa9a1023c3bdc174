package mongo

import (
	"context"
	"os"
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

var alice = types.MustParseAddress("0x00000000000000000000000000000000000A11cE")

func TestModelConversions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := &sale.State{
		Entity:         types.NewEntity(now),
		Initialized:    true,
		Owner:          alice,
		CurrentRoundID: 2,
		Balance:        types.MustParseEther("4"),
		Implementation: "v1",
		Layout:         []string{"owner"},
	}
	sback, err := fromSaleModel(toSaleModel(st))
	require.NoError(t, err)
	assert.Equal(t, st, sback)

	r := &round.Round{Entity: types.NewEntity(now), ID: 2, Rate: types.NewAmount(9), EndTime: now}
	rback, err := fromRoundModel(toRoundModel(r))
	require.NoError(t, err)
	assert.Equal(t, r, rback)

	c := contribution.Empty(2, alice)
	c.Entity = types.NewEntity(now)
	m := toContributionModel(c)
	assert.Equal(t, "2:0x00000000000000000000000000000000000a11ce", m.ID)
	cback, err := fromContributionModel(m)
	require.NoError(t, err)
	assert.Equal(t, c, cback)

	e := event.New(event.KindEndTimeChanged, 2, now)
	e.Seq = 3
	e.EndTime = now.Add(time.Hour)
	eback, err := fromEventModel(toEventModel(e))
	require.NoError(t, err)
	assert.Equal(t, e, eback)
}

func TestRoleDocID(t *testing.T) {
	assert.NotEqual(t,
		roleDocID(access.RoleOwner, alice),
		roleDocID(access.RoleMinter, alice),
	)
}

// TestStoreAgainstDatabase runs when CROWDSALE_TEST_MONGO_URI points at a
// replica set.
func TestStoreAgainstDatabase(t *testing.T) {
	uri := os.Getenv("CROWDSALE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CROWDSALE_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	s, err := Connect(ctx, uri, "crowdsale_test_"+time.Now().Format("20060102150405"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.DB().Drop(context.Background())
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))

	err = s.Atomic(ctx, func(ctx context.Context) error {
		e := event.New(event.KindBought, 1, time.Now())
		if err := s.AppendEvent(ctx, e); err != nil {
			return err
		}
		return crowdsale.ErrRoundEnded
	})
	require.ErrorIs(t, err, crowdsale.ErrRoundEnded)

	e := event.New(event.KindBought, 1, time.Now())
	require.NoError(t, s.AppendEvent(ctx, e))
	assert.Equal(t, uint64(1), e.Seq, "rolled back append must not consume a sequence number")

	require.NoError(t, s.CreditTokens(ctx, alice, types.NewAmount(5)))
	bal, err := s.TokenBalance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, types.NewAmount(5), bal)

	require.NoError(t, s.GrantRole(ctx, access.RoleMinter, alice))
	members, err := s.RoleMembers(ctx, access.RoleMinter)
	require.NoError(t, err)
	assert.Equal(t, []types.Address{alice}, members)
}
