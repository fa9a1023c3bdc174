package scheduler_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/scheduler"
	"github.com/xraph/crowdsale/store/memory"
	"github.com/xraph/crowdsale/types"
)

var (
	owner   = types.MustParseAddress("0x00000000000000000000000000000000000000a1")
	alice   = types.MustParseAddress("0x00000000000000000000000000000000000a11ce")
	mallory = types.MustParseAddress("0x000000000000000000000000000000000000bad1")
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLedger(t *testing.T) (*crowdsale.Ledger, *clock) {
	t.Helper()
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := crowdsale.New(memory.New(),
		crowdsale.WithLogger(slog.New(slog.DiscardHandler)),
		crowdsale.WithClock(clk.Now),
	)
	require.NoError(t, l.Start(ctx))
	require.NoError(t, l.Initialize(ctx, owner, owner))
	_, err := l.StartRound(ctx, owner, crowdsale.RoundParams{
		Rate:    types.NewAmount(10),
		SoftCap: types.MustParseEther("1"),
		EndTime: clk.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = l.Buy(ctx, alice, types.MustParseEther("2"))
	require.NoError(t, err)
	return l, clk
}

func quiet() scheduler.Option { return scheduler.WithLogger(slog.New(slog.DiscardHandler)) }

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	l, clk := newLedger(t)
	m, err := scheduler.New(l, owner, quiet())
	require.NoError(t, err)

	r, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Nil(t, r, "active round must not be finalized")

	clk.Advance(2 * time.Hour)
	r, err = m.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.Finalized)
	assert.True(t, r.Successful)

	r, err = m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Nil(t, r, "finalized round is left alone")
}

func TestRunOnceWithoutRound(t *testing.T) {
	ctx := context.Background()
	l := crowdsale.New(memory.New(), crowdsale.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, l.Initialize(ctx, owner, owner))

	m, err := scheduler.New(l, owner, quiet())
	require.NoError(t, err)
	r, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestRunOnceUnauthorized(t *testing.T) {
	l, clk := newLedger(t)
	clk.Advance(2 * time.Hour)

	m, err := scheduler.New(l, mallory, quiet())
	require.NoError(t, err)
	_, err = m.RunOnce(context.Background())
	require.ErrorIs(t, err, crowdsale.ErrUnauthorized)
}

func TestScheduledFinalize(t *testing.T) {
	l, clk := newLedger(t)
	clk.Advance(2 * time.Hour)

	m, err := scheduler.New(l, owner, quiet(), scheduler.WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Stop() })

	require.Eventually(t, func() bool {
		r, err := l.Round(context.Background(), 1)
		return err == nil && r.Finalized
	}, 2*time.Second, 10*time.Millisecond)
}
