package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// ErrHookTimeout is logged when a plugin does not return within the timeout.
var ErrHookTimeout = errors.New("plugin: hook timed out")

// Registry holds plugins in registration order and fans lifecycle hooks out
// to the ones that implement them. A failing or slow plugin is logged and
// skipped; it never fails the operation that fired the hook.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	byName  map[string]Plugin
	logger  *slog.Logger
	timeout time.Duration
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Plugin),
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithTimeout sets the per-hook deadline. Non-positive values are ignored.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds p. Names must be unique.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("plugin: %q already registered", name)
	}
	r.byName[name] = p
	r.plugins = append(r.plugins, p)

	r.logger.Info("crowdsale plugin registered", "plugin", name, "hooks", hookNames(p))
	return nil
}

// Get returns the plugin registered under name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.plugins)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

func hookNames(p Plugin) []string {
	checks := []struct {
		name string
		ok   bool
	}{
		{"OnInit", implements[OnInit](p)},
		{"OnShutdown", implements[OnShutdown](p)},
		{"OnRoundStarted", implements[OnRoundStarted](p)},
		{"OnRoundFinalized", implements[OnRoundFinalized](p)},
		{"OnRoundUpdated", implements[OnRoundUpdated](p)},
		{"OnBought", implements[OnBought](p)},
		{"OnClaimed", implements[OnClaimed](p)},
		{"OnRefunded", implements[OnRefunded](p)},
		{"OnWithdrawn", implements[OnWithdrawn](p)},
		{"OnAdminChanged", implements[OnAdminChanged](p)},
		{"OnUpgraded", implements[OnUpgraded](p)},
		{"OnRejected", implements[OnRejected](p)},
	}
	var out []string
	for _, c := range checks {
		if c.ok {
			out = append(out, c.name)
		}
	}
	return out
}

func implements[H any](p Plugin) bool {
	_, ok := p.(H)
	return ok
}

// dispatch calls fn on every plugin implementing H, in registration order.
func dispatch[H any](ctx context.Context, r *Registry, hook string, fn func(H) error) {
	for _, p := range r.List() {
		h, ok := p.(H)
		if !ok {
			continue
		}
		if err := r.guard(ctx, func() error { return fn(h) }); err != nil {
			r.logger.Warn("crowdsale plugin hook failed",
				"plugin", p.Name(),
				"hook", hook,
				"error", err,
			)
		}
	}
}

// guard runs fn on its own goroutine and stops waiting after the timeout.
func (r *Registry) guard(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := make(chan error, 1)
	go func() { res <- fn() }()

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrHookTimeout
		}
		return ctx.Err()
	}
}

func (r *Registry) EmitInit(ctx context.Context, sale any) {
	dispatch(ctx, r, "OnInit", func(h OnInit) error { return h.OnInit(ctx, sale) })
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(ctx, r, "OnShutdown", func(h OnShutdown) error { return h.OnShutdown(ctx) })
}

func (r *Registry) EmitRoundStarted(ctx context.Context, rd *round.Round) {
	dispatch(ctx, r, "OnRoundStarted", func(h OnRoundStarted) error { return h.OnRoundStarted(ctx, rd) })
}

func (r *Registry) EmitRoundFinalized(ctx context.Context, rd *round.Round) {
	dispatch(ctx, r, "OnRoundFinalized", func(h OnRoundFinalized) error { return h.OnRoundFinalized(ctx, rd) })
}

func (r *Registry) EmitRoundUpdated(ctx context.Context, rd *round.Round) {
	dispatch(ctx, r, "OnRoundUpdated", func(h OnRoundUpdated) error { return h.OnRoundUpdated(ctx, rd) })
}

func (r *Registry) EmitBought(ctx context.Context, e *event.Event) {
	dispatch(ctx, r, "OnBought", func(h OnBought) error { return h.OnBought(ctx, e) })
}

func (r *Registry) EmitClaimed(ctx context.Context, e *event.Event) {
	dispatch(ctx, r, "OnClaimed", func(h OnClaimed) error { return h.OnClaimed(ctx, e) })
}

func (r *Registry) EmitRefunded(ctx context.Context, e *event.Event) {
	dispatch(ctx, r, "OnRefunded", func(h OnRefunded) error { return h.OnRefunded(ctx, e) })
}

func (r *Registry) EmitWithdrawn(ctx context.Context, e *event.Event) {
	dispatch(ctx, r, "OnWithdrawn", func(h OnWithdrawn) error { return h.OnWithdrawn(ctx, e) })
}

func (r *Registry) EmitAdminChanged(ctx context.Context, e *event.Event) {
	dispatch(ctx, r, "OnAdminChanged", func(h OnAdminChanged) error { return h.OnAdminChanged(ctx, e) })
}

func (r *Registry) EmitUpgraded(ctx context.Context, from, to string) {
	dispatch(ctx, r, "OnUpgraded", func(h OnUpgraded) error { return h.OnUpgraded(ctx, from, to) })
}

// EmitRejected reports a failed operation. opErr is the caller's error.
func (r *Registry) EmitRejected(ctx context.Context, op string, opErr error) {
	dispatch(ctx, r, "OnRejected", func(h OnRejected) error { return h.OnRejected(ctx, op, opErr) })
}
