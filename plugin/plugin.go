// Package plugin provides lifecycle hooks for the crowdsale ledger.
// Plugins implement Plugin plus any subset of the hook interfaces; hooks run
// after the state change has committed and cannot veto it.
package plugin

import (
	"context"

	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, ledger any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Round hooks
// ──────────────────────────────────────────────────

// OnRoundStarted is called after a round is created.
type OnRoundStarted interface {
	Plugin
	OnRoundStarted(ctx context.Context, r *round.Round) error
}

// OnRoundFinalized is called after a round is sealed.
type OnRoundFinalized interface {
	Plugin
	OnRoundFinalized(ctx context.Context, r *round.Round) error
}

// OnRoundUpdated is called after an admin correction to a round.
type OnRoundUpdated interface {
	Plugin
	OnRoundUpdated(ctx context.Context, r *round.Round) error
}

// ──────────────────────────────────────────────────
// Contribution hooks
// ──────────────────────────────────────────────────

// OnBought is called after a contribution is recorded.
type OnBought interface {
	Plugin
	OnBought(ctx context.Context, e *event.Event) error
}

// OnClaimed is called after entitlement tokens are minted to a contributor.
type OnClaimed interface {
	Plugin
	OnClaimed(ctx context.Context, e *event.Event) error
}

// OnRefunded is called after a contribution is refunded.
type OnRefunded interface {
	Plugin
	OnRefunded(ctx context.Context, e *event.Event) error
}

// OnWithdrawn is called after raised funds are paid to the treasury.
type OnWithdrawn interface {
	Plugin
	OnWithdrawn(ctx context.Context, e *event.Event) error
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnAdminChanged is called after an ownership, treasury or initialization
// change.
type OnAdminChanged interface {
	Plugin
	OnAdminChanged(ctx context.Context, e *event.Event) error
}

// OnUpgraded is called after the active implementation release changes.
type OnUpgraded interface {
	Plugin
	OnUpgraded(ctx context.Context, from, to string) error
}

// OnRejected is called when a state-changing operation is rejected.
type OnRejected interface {
	Plugin
	OnRejected(ctx context.Context, op string, err error) error
}
