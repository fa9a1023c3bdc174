// Package observability provides a metrics extension for the crowdsale ledger
// that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"math/big"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/plugin"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin           = (*MetricsExtension)(nil)
	_ plugin.OnInit           = (*MetricsExtension)(nil)
	_ plugin.OnRoundStarted   = (*MetricsExtension)(nil)
	_ plugin.OnRoundFinalized = (*MetricsExtension)(nil)
	_ plugin.OnRoundUpdated   = (*MetricsExtension)(nil)
	_ plugin.OnBought         = (*MetricsExtension)(nil)
	_ plugin.OnClaimed        = (*MetricsExtension)(nil)
	_ plugin.OnRefunded       = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawn      = (*MetricsExtension)(nil)
	_ plugin.OnAdminChanged   = (*MetricsExtension)(nil)
	_ plugin.OnUpgraded       = (*MetricsExtension)(nil)
	_ plugin.OnRejected       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records sale-wide lifecycle metrics.
// Register it as a ledger plugin to track funding activity.
type MetricsExtension struct {
	factory MetricFactory

	// Round metrics
	RoundStarted   Counter
	RoundSucceeded Counter
	RoundFailed    Counter
	RoundUpdated   Counter
	RoundRaisedEth Histogram

	// Contribution metrics
	Contributions   Counter
	ContributedEth  Counter
	ContributionEth Histogram
	Claims          Counter
	TokensClaimed   Counter
	Refunds         Counter
	RefundedEth     Counter

	// Treasury metrics
	Withdrawals  Counter
	WithdrawnEth Counter

	// Administration metrics
	AdminChanges Counter
	Upgrades     Counter

	// Rejection metrics
	Rejected          Counter
	RejectedAuth      Counter
	RejectedPhase     Counter
	RejectedRetryable Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		RoundStarted:   factory.Counter("crowdsale.round.started"),
		RoundSucceeded: factory.Counter("crowdsale.round.succeeded"),
		RoundFailed:    factory.Counter("crowdsale.round.failed"),
		RoundUpdated:   factory.Counter("crowdsale.round.updated"),
		RoundRaisedEth: factory.Histogram("crowdsale.round.raised_eth"),

		Contributions:   factory.Counter("crowdsale.contribution.bought"),
		ContributedEth:  factory.Counter("crowdsale.contribution.bought_eth"),
		ContributionEth: factory.Histogram("crowdsale.contribution.size_eth"),
		Claims:          factory.Counter("crowdsale.contribution.claimed"),
		TokensClaimed:   factory.Counter("crowdsale.contribution.claimed_tokens"),
		Refunds:         factory.Counter("crowdsale.contribution.refunded"),
		RefundedEth:     factory.Counter("crowdsale.contribution.refunded_eth"),

		Withdrawals:  factory.Counter("crowdsale.treasury.withdrawn"),
		WithdrawnEth: factory.Counter("crowdsale.treasury.withdrawn_eth"),

		AdminChanges: factory.Counter("crowdsale.admin.changed"),
		Upgrades:     factory.Counter("crowdsale.implementation.upgraded"),

		Rejected:          factory.Counter("crowdsale.operation.rejected"),
		RejectedAuth:      factory.Counter("crowdsale.operation.rejected.unauthorized"),
		RejectedPhase:     factory.Counter("crowdsale.operation.rejected.phase"),
		RejectedRetryable: factory.Counter("crowdsale.operation.rejected.retryable"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Round lifecycle hooks
// ──────────────────────────────────────────────────

// OnRoundStarted implements plugin.OnRoundStarted.
func (m *MetricsExtension) OnRoundStarted(_ context.Context, _ *round.Round) error {
	m.RoundStarted.Inc()
	return nil
}

// OnRoundFinalized implements plugin.OnRoundFinalized.
func (m *MetricsExtension) OnRoundFinalized(_ context.Context, r *round.Round) error {
	if r.Successful {
		m.RoundSucceeded.Inc()
	} else {
		m.RoundFailed.Inc()
	}
	m.RoundRaisedEth.Observe(ether(r.TotalRaised))
	return nil
}

// OnRoundUpdated implements plugin.OnRoundUpdated.
func (m *MetricsExtension) OnRoundUpdated(_ context.Context, _ *round.Round) error {
	m.RoundUpdated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Contribution hooks
// ──────────────────────────────────────────────────

// OnBought implements plugin.OnBought.
func (m *MetricsExtension) OnBought(_ context.Context, e *event.Event) error {
	v := ether(e.Amount)
	m.Contributions.Inc()
	m.ContributedEth.Add(v)
	m.ContributionEth.Observe(v)
	return nil
}

// OnClaimed implements plugin.OnClaimed.
func (m *MetricsExtension) OnClaimed(_ context.Context, e *event.Event) error {
	m.Claims.Inc()
	m.TokensClaimed.Add(ether(e.Tokens))
	return nil
}

// OnRefunded implements plugin.OnRefunded.
func (m *MetricsExtension) OnRefunded(_ context.Context, e *event.Event) error {
	m.Refunds.Inc()
	m.RefundedEth.Add(ether(e.Amount))
	return nil
}

// OnWithdrawn implements plugin.OnWithdrawn.
func (m *MetricsExtension) OnWithdrawn(_ context.Context, e *event.Event) error {
	m.Withdrawals.Inc()
	m.WithdrawnEth.Add(ether(e.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Administration hooks
// ──────────────────────────────────────────────────

// OnAdminChanged implements plugin.OnAdminChanged.
func (m *MetricsExtension) OnAdminChanged(_ context.Context, _ *event.Event) error {
	m.AdminChanges.Inc()
	return nil
}

// OnUpgraded implements plugin.OnUpgraded.
func (m *MetricsExtension) OnUpgraded(_ context.Context, _, _ string) error {
	m.Upgrades.Inc()
	return nil
}

// OnRejected implements plugin.OnRejected.
func (m *MetricsExtension) OnRejected(_ context.Context, _ string, err error) error {
	m.Rejected.Inc()
	switch {
	case crowdsale.IsAuthorizationError(err):
		m.RejectedAuth.Inc()
	case crowdsale.IsPhaseError(err):
		m.RejectedPhase.Inc()
	case crowdsale.IsRetryable(err):
		m.RejectedRetryable.Inc()
	}
	return nil
}

var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(types.EtherDecimals), nil))

// ether converts wei to a float ether value for metrics. Precision loss is
// acceptable here.
func ether(a types.Amount) float64 {
	f := new(big.Float).SetInt(a.Uint256().ToBig())
	v, _ := f.Quo(f, weiPerEther).Float64()
	return v
}
