package crowdsale_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/store/memory"
	"github.com/xraph/crowdsale/types"
)

func TestStartRoundRejections(t *testing.T) {
	h := newHarness(t)
	future := h.clock.Now().Add(time.Hour)

	tests := []struct {
		name    string
		caller  types.Address
		params  crowdsale.RoundParams
		wantErr error
	}{
		{"non-owner", alice, crowdsale.RoundParams{Rate: types.NewAmount(1), EndTime: future}, crowdsale.ErrUnauthorized},
		{"zero address", types.ZeroAddress, crowdsale.RoundParams{Rate: types.NewAmount(1), EndTime: future}, crowdsale.ErrUnauthorized},
		{"zero rate", owner, crowdsale.RoundParams{EndTime: future}, crowdsale.ErrZeroRate},
		{"end time now", owner, crowdsale.RoundParams{Rate: types.NewAmount(1), EndTime: h.clock.Now()}, crowdsale.ErrEndTimeInPast},
		{"end time past", owner, crowdsale.RoundParams{Rate: types.NewAmount(1), EndTime: h.clock.Now().Add(-time.Hour)}, crowdsale.ErrEndTimeInPast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.ledger.StartRound(h.ctx, tt.caller, tt.params)
			assert.ErrorIs(t, err, tt.wantErr)

			id, err := h.ledger.CurrentRoundID(h.ctx)
			require.NoError(t, err)
			assert.Zero(t, id, "rejected start must not allocate a round")
		})
	}
}

func TestOperationsBeforeInitialize(t *testing.T) {
	l := crowdsale.New(memory.New(), crowdsale.WithLogger(quietLogger()))
	ctx := context.Background()

	_, err := l.StartRound(ctx, owner, crowdsale.RoundParams{Rate: types.NewAmount(1), EndTime: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, crowdsale.ErrNotInitialized)

	_, err = l.Buy(ctx, alice, ether("1"))
	assert.ErrorIs(t, err, crowdsale.ErrNoActiveRound)

	require.NoError(t, l.Initialize(ctx, owner, treasury))
	assert.ErrorIs(t, l.Initialize(ctx, owner, treasury), crowdsale.ErrAlreadyInitialized)
	assert.True(t, crowdsale.IsValidation(l.Initialize(ctx, types.ZeroAddress, treasury)))
}

func TestBuyRejections(t *testing.T) {
	h := newHarness(t)

	_, err := h.buy(alice, "1")
	assert.ErrorIs(t, err, crowdsale.ErrNoActiveRound)

	h.startRound(200, "1")

	_, err = h.ledger.Buy(h.ctx, alice, types.Amount{})
	assert.ErrorIs(t, err, crowdsale.ErrZeroAmount)
	assert.True(t, crowdsale.IsZeroValue(err))

	_, err = h.ledger.Buy(h.ctx, types.ZeroAddress, ether("1"))
	assert.True(t, crowdsale.IsValidation(err))

	h.clock.Advance(time.Minute)
	_, err = h.buy(alice, "1")
	assert.ErrorIs(t, err, crowdsale.ErrRoundEnded)

	_, err = h.ledger.Finalize(h.ctx, owner)
	require.NoError(t, err)
	_, err = h.buy(alice, "1")
	assert.ErrorIs(t, err, crowdsale.ErrRoundFinalized)

	assert.True(t, h.held().IsZero())
	assert.Equal(t, "10", h.bank.Balance(alice).FormatEther())
}

func TestBuyAccumulates(t *testing.T) {
	h := newHarness(t)
	id := h.startRound(200, "1")

	h.mustBuy(alice, "0.01")
	h.mustBuy(alice, "0.02")
	c := h.mustBuy(alice, "0.03")

	assert.Equal(t, "0.06", c.ContributionWei.FormatEther())
	assert.Equal(t, "12", c.EntitlementTokens.FormatEther())
	assert.False(t, c.ClaimedOrRefunded)
	assert.True(t, h.tokenBalance(alice).IsZero(), "buy must not mint")
	require.NoError(t, h.ledger.VerifyRound(h.ctx, id))
}

func TestAdminOnlyOperations(t *testing.T) {
	h := newHarness(t)
	id := h.startRound(200, "0.01")
	h.mustBuy(alice, "0.05")
	h.clock.Advance(2 * time.Minute)

	_, err := h.ledger.Finalize(h.ctx, alice)
	assert.True(t, crowdsale.IsAuthorizationError(err))

	_, err = h.ledger.Finalize(h.ctx, owner)
	require.NoError(t, err)

	_, err = h.ledger.Withdraw(h.ctx, alice)
	assert.ErrorIs(t, err, crowdsale.ErrUnauthorized)
	_, err = h.ledger.SetRoundMetadata(h.ctx, alice, id, "x", "y")
	assert.ErrorIs(t, err, crowdsale.ErrUnauthorized)
	assert.ErrorIs(t, h.ledger.SetTreasury(h.ctx, alice, alice), crowdsale.ErrUnauthorized)
	assert.ErrorIs(t, h.ledger.TransferOwnership(h.ctx, alice, alice), crowdsale.ErrUnauthorized)

	r, err := h.ledger.Round(h.ctx, id)
	require.NoError(t, err)
	assert.False(t, r.FundsWithdrawn)
}

func TestWithdrawRejections(t *testing.T) {
	t.Run("unfinalized", func(t *testing.T) {
		h := newHarness(t)
		h.startRound(200, "0.01")
		_, err := h.ledger.Withdraw(h.ctx, owner)
		assert.ErrorIs(t, err, crowdsale.ErrRoundNotFinalized)
	})

	t.Run("failed round", func(t *testing.T) {
		h := newHarness(t)
		h.startRound(200, "1")
		h.mustBuy(alice, "0.01")
		require.False(t, h.endAndFinalize())
		_, err := h.ledger.Withdraw(h.ctx, owner)
		assert.ErrorIs(t, err, crowdsale.ErrRoundNotSuccessful)
	})

	t.Run("twice", func(t *testing.T) {
		h := newHarness(t)
		h.startRound(200, "0.01")
		h.mustBuy(alice, "0.05")
		require.True(t, h.endAndFinalize())
		_, err := h.ledger.Withdraw(h.ctx, owner)
		require.NoError(t, err)
		_, err = h.ledger.Withdraw(h.ctx, owner)
		assert.ErrorIs(t, err, crowdsale.ErrAlreadyWithdrawn)
		assert.Equal(t, "0.05", h.bank.Balance(treasury).FormatEther())
	})

	t.Run("zero raised", func(t *testing.T) {
		h := newHarness(t)
		h.startRound(200, "0")
		require.True(t, h.endAndFinalize())
		_, err := h.ledger.Withdraw(h.ctx, owner)
		require.NoError(t, err)
		assert.True(t, h.bank.Balance(treasury).IsZero())
	})
}

func TestSetEndTime(t *testing.T) {
	h := newHarness(t)
	id := h.startRound(200, "1")

	later := h.clock.Now().Add(time.Hour)
	r, err := h.ledger.SetEndTime(h.ctx, owner, id, later)
	require.NoError(t, err)
	assert.True(t, r.EndTime.Equal(later))

	h.clock.Advance(30 * time.Minute)
	h.mustBuy(alice, "0.01")

	h.clock.Advance(time.Hour)
	_, err = h.ledger.Finalize(h.ctx, owner)
	require.NoError(t, err)

	_, err = h.ledger.SetEndTime(h.ctx, owner, id, later.Add(time.Hour))
	assert.ErrorIs(t, err, crowdsale.ErrRoundFinalized)

	_, err = h.ledger.SetEndTime(h.ctx, owner, id, time.Time{})
	assert.True(t, crowdsale.IsValidation(err))
}

func TestRoundMetadataAndInfo(t *testing.T) {
	h := newHarness(t)

	info, err := h.ledger.RoundInfo(h.ctx, crowdsale.CurrentRound)
	require.NoError(t, err)
	assert.Equal(t, round.PhasePending, info.Phase)

	id := h.startRound(200, "0.01")
	_, err = h.ledger.SetRoundMetadata(h.ctx, owner, id, "Seed", "First round")
	require.NoError(t, err)

	info, err = h.ledger.RoundInfo(h.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, round.PhaseActive, info.Phase)
	assert.True(t, info.IsCurrent)
	assert.Equal(t, "Seed", info.Title)
	assert.Equal(t, "First round", info.Description)

	h.clock.Advance(2 * time.Minute)
	info, err = h.ledger.RoundInfo(h.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, round.PhaseEnded, info.Phase)

	_, err = h.ledger.Finalize(h.ctx, owner)
	require.NoError(t, err)
	info, err = h.ledger.RoundInfo(h.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, round.PhaseFailed, info.Phase)

	_, err = h.ledger.RoundInfo(h.ctx, 42)
	assert.True(t, crowdsale.IsNotFound(err))
}

func TestTreasuryAndOwnership(t *testing.T) {
	h := newHarness(t)
	newTreasury := types.MustParseAddress("0x00000000000000000000000000000000000000d4")

	require.NoError(t, h.ledger.SetTreasury(h.ctx, owner, newTreasury))
	got, err := h.ledger.Treasury(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, newTreasury, got)

	require.NoError(t, h.ledger.TransferOwnership(h.ctx, owner, bob))
	gotOwner, err := h.ledger.Owner(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, bob, gotOwner)

	_, err = h.ledger.StartRound(h.ctx, owner, crowdsale.RoundParams{Rate: types.NewAmount(1), EndTime: h.clock.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, crowdsale.ErrUnauthorized)
	_, err = h.ledger.StartRound(h.ctx, bob, crowdsale.RoundParams{Rate: types.NewAmount(1), EndTime: h.clock.Now().Add(time.Hour)})
	assert.NoError(t, err)

	assert.True(t, crowdsale.IsValidation(h.ledger.SetTreasury(h.ctx, bob, types.ZeroAddress)))
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	h.startRound(200, "1")
	h.mustBuy(alice, "0.01")
	_, _ = h.buy(alice, "0") // rejected, must not appear
	require.False(t, h.endAndFinalize())
	_, err := h.ledger.Refund(h.ctx, alice)
	require.NoError(t, err)

	events, err := h.ledger.Events(h.ctx, event.ListOpts{})
	require.NoError(t, err)

	var kinds []event.Kind
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []event.Kind{
		event.KindInitialized,
		event.KindRoundStarted,
		event.KindBought,
		event.KindFinalized,
		event.KindRefunded,
	}, kinds)

	bought := events[2]
	assert.Equal(t, alice, bought.Account)
	assert.Equal(t, "0.01", bought.Amount.FormatEther())
	assert.Equal(t, "2", bought.Tokens.FormatEther())

	started := events[1]
	assert.Equal(t, "200", started.Rate.String())
	assert.Equal(t, "round", started.Title)

	filtered, err := h.ledger.Events(h.ctx, event.ListOpts{AfterSeq: 2, Kinds: []event.Kind{event.KindRefunded}})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, uint64(5), filtered[0].Seq)
}
