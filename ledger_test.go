package crowdsale_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/types"
)

func TestSuccessPath(t *testing.T) {
	h := newHarness(t)
	id := h.startRound(200, "0.1")

	c := h.mustBuy(alice, "0.05")
	assert.True(t, c.EntitlementTokens.Equal(ether("10")), "entitlement = %s", c.EntitlementTokens)
	h.mustBuy(bob, "0.05")

	r, err := h.ledger.Round(h.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "0.1", r.TotalRaised.FormatEther())
	require.NoError(t, h.ledger.VerifyRound(h.ctx, id))

	assert.True(t, h.endAndFinalize())

	_, err = h.ledger.Claim(h.ctx, alice)
	require.NoError(t, err)
	assert.True(t, h.tokenBalance(alice).Equal(ether("10")))

	before := h.bank.Balance(treasury)
	_, err = h.ledger.Withdraw(h.ctx, owner)
	require.NoError(t, err)
	gained, err := h.bank.Balance(treasury).Sub(before)
	require.NoError(t, err)
	assert.True(t, gained.Equal(r.TotalRaised))

	r, err = h.ledger.Round(h.ctx, id)
	require.NoError(t, err)
	assert.True(t, r.FundsWithdrawn)
	assert.True(t, h.held().IsZero())
}

func TestFailurePath(t *testing.T) {
	h := newHarness(t)
	id := h.startRound(200, "1")

	h.mustBuy(alice, "0.01")
	before := h.bank.Balance(alice)

	assert.False(t, h.endAndFinalize())

	_, err := h.ledger.Refund(h.ctx, alice)
	require.NoError(t, err)
	gained, err := h.bank.Balance(alice).Sub(before)
	require.NoError(t, err)
	assert.Equal(t, "0.01", gained.FormatEther())

	c, err := h.ledger.Contribution(h.ctx, id, alice)
	require.NoError(t, err)
	assert.True(t, c.ClaimedOrRefunded)

	_, err = h.ledger.Refund(h.ctx, alice)
	assert.ErrorIs(t, err, crowdsale.ErrAlreadyResolved)
	assert.True(t, crowdsale.IsDoubleResolution(err))
	assert.Equal(t, "10", h.bank.Balance(alice).FormatEther())
}

func TestDoubleClaimRejected(t *testing.T) {
	h := newHarness(t)
	h.startRound(200, "0.01")
	h.mustBuy(alice, "0.05")
	require.True(t, h.endAndFinalize())

	_, err := h.ledger.Claim(h.ctx, alice)
	require.NoError(t, err)

	_, err = h.ledger.Claim(h.ctx, alice)
	assert.ErrorIs(t, err, crowdsale.ErrAlreadyResolved)
	assert.True(t, h.tokenBalance(alice).Equal(ether("10")))

	supply, err := h.token.TotalSupply(h.ctx)
	require.NoError(t, err)
	assert.True(t, supply.Equal(ether("10")))
}

func TestRoundIsolation(t *testing.T) {
	h := newHarness(t)

	first := h.startRound(200, "0.01")
	h.mustBuy(alice, "0.05")
	require.True(t, h.endAndFinalize())
	_, err := h.ledger.Withdraw(h.ctx, owner)
	require.NoError(t, err)

	second := h.startRound(500, "0.01")
	h.mustBuy(alice, "0.05")

	c1, err := h.ledger.Contribution(h.ctx, first, alice)
	require.NoError(t, err)
	c2, err := h.ledger.Contribution(h.ctx, second, alice)
	require.NoError(t, err)

	assert.True(t, c1.EntitlementTokens.Equal(ether("10")), "round 1 = %s", c1.EntitlementTokens)
	assert.True(t, c2.EntitlementTokens.Equal(ether("25")), "round 2 = %s", c2.EntitlementTokens)
	assert.True(t, c1.ContributionWei.Equal(c2.ContributionWei))
}

func TestRoundCreationGate(t *testing.T) {
	h := newHarness(t)
	h.startRound(200, "1")
	h.mustBuy(alice, "0.01")

	next := crowdsale.RoundParams{Rate: types.NewAmount(100), EndTime: h.clock.Now().Add(time.Hour)}

	_, err := h.ledger.StartRound(h.ctx, owner, next)
	assert.ErrorIs(t, err, crowdsale.ErrPreviousRoundNotFinalized)
	assert.True(t, crowdsale.IsRoundCreationError(err))

	require.False(t, h.endAndFinalize())

	_, err = h.ledger.StartRound(h.ctx, owner, next)
	assert.ErrorIs(t, err, crowdsale.ErrBalanceNotDrained)

	_, err = h.ledger.Refund(h.ctx, alice)
	require.NoError(t, err)
	require.True(t, h.held().IsZero())

	r, err := h.ledger.StartRound(h.ctx, owner, next)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r.ID)

	current, err := h.ledger.CurrentRoundID(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), current)
}

func TestEscapeHatchResolvesHistoricalRound(t *testing.T) {
	h := newHarness(t)

	first := h.startRound(200, "0.01")
	h.mustBuy(alice, "0.05")
	require.True(t, h.endAndFinalize())
	_, err := h.ledger.WithdrawRound(h.ctx, owner, first)
	require.NoError(t, err)

	h.startRound(300, "5")

	// Claim against round 1 while round 2 is current.
	_, err = h.ledger.Claim(h.ctx, alice)
	assert.ErrorIs(t, err, crowdsale.ErrRoundNotFinalized)

	_, err = h.ledger.ClaimRound(h.ctx, alice, first)
	require.NoError(t, err)
	assert.True(t, h.tokenBalance(alice).Equal(ether("10")))
}

func TestTotalRaisedMatchesContributions(t *testing.T) {
	h := newHarness(t)
	id := h.startRound(7, "100")

	buys := []struct {
		who    types.Address
		amount string
	}{
		{alice, "0.3"}, {bob, "1.25"}, {alice, "0.7"}, {mallory, "0.000000000000000001"}, {bob, "2"},
	}
	for _, b := range buys {
		h.mustBuy(b.who, b.amount)
		require.NoError(t, h.ledger.VerifyRound(h.ctx, id))
	}

	r, err := h.ledger.Round(h.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "4.250000000000000001", r.TotalRaised.FormatEther())

	c, err := h.ledger.Contribution(h.ctx, id, alice)
	require.NoError(t, err)
	assert.Equal(t, "1", c.ContributionWei.FormatEther())
	assert.Equal(t, "7", c.EntitlementTokens.FormatEther())

	cs, err := h.ledger.Contributions(h.ctx, id)
	require.NoError(t, err)
	assert.Len(t, cs, 3)
	assert.True(t, h.held().Equal(r.TotalRaised))
}

func TestClaimAndRefundAreExclusive(t *testing.T) {
	t.Run("successful round", func(t *testing.T) {
		h := newHarness(t)
		h.startRound(200, "0.01")
		h.mustBuy(alice, "0.05")
		require.True(t, h.endAndFinalize())

		_, err := h.ledger.Refund(h.ctx, alice)
		assert.ErrorIs(t, err, crowdsale.ErrRoundSuccessful)
		_, err = h.ledger.Claim(h.ctx, alice)
		require.NoError(t, err)
		_, err = h.ledger.Refund(h.ctx, alice)
		assert.Error(t, err)
	})

	t.Run("failed round", func(t *testing.T) {
		h := newHarness(t)
		h.startRound(200, "1")
		h.mustBuy(alice, "0.05")
		require.False(t, h.endAndFinalize())

		_, err := h.ledger.Claim(h.ctx, alice)
		assert.ErrorIs(t, err, crowdsale.ErrRoundNotSuccessful)
		_, err = h.ledger.Refund(h.ctx, alice)
		require.NoError(t, err)
		_, err = h.ledger.Claim(h.ctx, alice)
		assert.Error(t, err)
		assert.True(t, h.tokenBalance(alice).IsZero())
	})
}

func TestNothingToResolve(t *testing.T) {
	h := newHarness(t)
	h.startRound(200, "0.01")
	h.mustBuy(alice, "0.05")
	require.True(t, h.endAndFinalize())

	_, err := h.ledger.Claim(h.ctx, bob)
	assert.ErrorIs(t, err, crowdsale.ErrNothingToClaim)
	assert.True(t, crowdsale.IsZeroValue(err))

	h2 := newHarness(t)
	h2.startRound(200, "1")
	h2.mustBuy(alice, "0.05")
	require.False(t, h2.endAndFinalize())

	_, err = h2.ledger.Refund(h2.ctx, bob)
	assert.ErrorIs(t, err, crowdsale.ErrNothingToRefund)
}

func TestFinalizeIsPermanent(t *testing.T) {
	h := newHarness(t)
	id := h.startRound(200, "1")
	h.mustBuy(alice, "0.5")

	_, err := h.ledger.Finalize(h.ctx, owner)
	assert.ErrorIs(t, err, crowdsale.ErrRoundNotEnded)

	require.False(t, h.endAndFinalize())

	for range 3 {
		_, err = h.ledger.FinalizeRound(h.ctx, owner, id)
		assert.ErrorIs(t, err, crowdsale.ErrAlreadyFinalized)
		assert.True(t, crowdsale.IsPhaseError(err))
	}

	r, err := h.ledger.Round(h.ctx, id)
	require.NoError(t, err)
	assert.True(t, r.Finalized)
	assert.False(t, r.Successful)
}

func TestSoftCapBoundaryIsInclusive(t *testing.T) {
	h := newHarness(t)
	h.startRound(1, "0.1")
	h.mustBuy(alice, "0.1")
	assert.True(t, h.endAndFinalize())
}
