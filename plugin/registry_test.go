package plugin_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/plugin"
	"github.com/xraph/crowdsale/round"
)

type recorder struct {
	name string
	mu   sync.Mutex
	seen []string
	fail bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) record(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func (r *recorder) OnRoundStarted(_ context.Context, rd *round.Round) error {
	return r.record("started")
}

func (r *recorder) OnBought(_ context.Context, e *event.Event) error {
	return r.record("bought:" + e.Account.Hex())
}

func (r *recorder) OnUpgraded(_ context.Context, from, to string) error {
	return r.record(from + "->" + to)
}

type sleeper struct{}

func (sleeper) Name() string { return "sleeper" }

func (sleeper) OnRejected(ctx context.Context, _ string, _ error) error {
	time.Sleep(time.Second)
	return nil
}

func newRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.DiscardHandler))
}

func TestRegister(t *testing.T) {
	r := newRegistry()
	a := &recorder{name: "a"}
	require.NoError(t, r.Register(a))
	require.Error(t, r.Register(&recorder{name: "a"}))
	require.NoError(t, r.Register(&recorder{name: "b"}))

	assert.Equal(t, 2, r.Count())
	assert.Same(t, a, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.List(), 2)
}

func TestEmitDispatchesOnlyImplementedHooks(t *testing.T) {
	r := newRegistry()
	a := &recorder{name: "a"}
	require.NoError(t, r.Register(a))

	ctx := context.Background()
	r.EmitRoundStarted(ctx, &round.Round{ID: 1})
	r.EmitBought(ctx, &event.Event{Kind: event.KindBought})
	r.EmitClaimed(ctx, &event.Event{Kind: event.KindClaimed})
	r.EmitUpgraded(ctx, "v1", "v2")

	assert.Equal(t, []string{
		"started",
		"bought:0x0000000000000000000000000000000000000000",
		"v1->v2",
	}, a.calls())
}

func TestFailingHookDoesNotStopOthers(t *testing.T) {
	r := newRegistry()
	bad := &recorder{name: "bad", fail: true}
	good := &recorder{name: "good"}
	require.NoError(t, r.Register(bad))
	require.NoError(t, r.Register(good))

	r.EmitRoundStarted(context.Background(), &round.Round{ID: 1})
	assert.Len(t, bad.calls(), 1)
	assert.Len(t, good.calls(), 1)
}

func TestHookTimeout(t *testing.T) {
	r := newRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(sleeper{}))

	start := time.Now()
	r.EmitRejected(context.Background(), "buy", errors.New("nope"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
