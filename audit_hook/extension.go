// Package audithook bridges crowdsale lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/plugin"
	"github.com/xraph/crowdsale/round"
)

var (
	_ plugin.Plugin           = (*Extension)(nil)
	_ plugin.OnRoundStarted   = (*Extension)(nil)
	_ plugin.OnRoundFinalized = (*Extension)(nil)
	_ plugin.OnRoundUpdated   = (*Extension)(nil)
	_ plugin.OnBought         = (*Extension)(nil)
	_ plugin.OnClaimed        = (*Extension)(nil)
	_ plugin.OnRefunded       = (*Extension)(nil)
	_ plugin.OnWithdrawn      = (*Extension)(nil)
	_ plugin.OnAdminChanged   = (*Extension)(nil)
	_ plugin.OnUpgraded       = (*Extension)(nil)
	_ plugin.OnRejected       = (*Extension)(nil)
)

// Recorder receives audit events. Implementations must be safe for
// concurrent use; hooks fire after commit from whichever goroutine ran the
// operation.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry. RoundID and Actor are zero when the
// action is not tied to a round or an account.
type AuditEvent struct {
	At         time.Time      `json:"at"`
	Action     string         `json:"action"`
	Category   string         `json:"category"`
	Severity   string         `json:"severity"`
	Outcome    string         `json:"outcome"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	RoundID    uint64         `json:"round_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error { return f(ctx, event) }

// Extension bridges crowdsale lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	filter   filter
	logger   *slog.Logger
}

// New returns an audit plugin writing to r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extension) Name() string { return "crowdsale-audit" }

func (e *Extension) OnRoundStarted(ctx context.Context, r *round.Round) error {
	return e.emit(ctx, &AuditEvent{
		Action:     ActionRoundStarted,
		Category:   CategoryFunding,
		Severity:   SeverityInfo,
		Resource:   ResourceRound,
		ResourceID: roundID(r.ID),
		RoundID:    r.ID,
		Metadata: map[string]any{
			"rate":         r.Rate.String(),
			"soft_cap_wei": r.SoftCap.String(),
			"end_time":     r.EndTime,
			"title":        r.Title,
		},
	})
}

func (e *Extension) OnRoundFinalized(ctx context.Context, r *round.Round) error {
	return e.emit(ctx, &AuditEvent{
		Action:     ActionRoundFinalized,
		Category:   CategoryFunding,
		Severity:   SeverityInfo,
		Resource:   ResourceRound,
		ResourceID: roundID(r.ID),
		RoundID:    r.ID,
		Metadata: map[string]any{
			"successful":   r.Successful,
			"total_raised": r.TotalRaised.String(),
		},
	})
}

// OnRoundUpdated is a warning: changing an end time moves the refund window.
func (e *Extension) OnRoundUpdated(ctx context.Context, r *round.Round) error {
	return e.emit(ctx, &AuditEvent{
		Action:     ActionRoundUpdated,
		Category:   CategoryAccess,
		Severity:   SeverityWarning,
		Resource:   ResourceRound,
		ResourceID: roundID(r.ID),
		RoundID:    r.ID,
		Metadata:   map[string]any{"end_time": r.EndTime, "title": r.Title},
	})
}

func (e *Extension) OnBought(ctx context.Context, evt *event.Event) error {
	return e.emit(ctx, movement(ActionContributionBought, ResourceContribution, CategoryFunding, evt))
}

func (e *Extension) OnClaimed(ctx context.Context, evt *event.Event) error {
	return e.emit(ctx, movement(ActionContributionClaimed, ResourceContribution, CategoryPayout, evt))
}

func (e *Extension) OnRefunded(ctx context.Context, evt *event.Event) error {
	return e.emit(ctx, movement(ActionContributionRefunded, ResourceContribution, CategoryPayout, evt))
}

func (e *Extension) OnWithdrawn(ctx context.Context, evt *event.Event) error {
	return e.emit(ctx, movement(ActionFundsWithdrawn, ResourceTreasury, CategoryPayout, evt))
}

func (e *Extension) OnAdminChanged(ctx context.Context, evt *event.Event) error {
	return e.emit(ctx, &AuditEvent{
		At:         evt.At,
		Action:     ActionAdminChanged,
		Category:   CategoryAccess,
		Severity:   SeverityWarning,
		Resource:   ResourceSale,
		ResourceID: evt.ID.String(),
		Actor:      evt.Account.Hex(),
		Metadata:   map[string]any{"change": string(evt.Kind)},
	})
}

func (e *Extension) OnUpgraded(ctx context.Context, from, to string) error {
	return e.emit(ctx, &AuditEvent{
		Action:     ActionUpgraded,
		Category:   CategoryUpgrade,
		Severity:   SeverityCritical,
		Resource:   ResourceImplementation,
		ResourceID: to,
		Metadata:   map[string]any{"from": from, "to": to},
	})
}

// OnRejected records authorization failures as errors and every other
// rejection as a warning.
func (e *Extension) OnRejected(ctx context.Context, op string, opErr error) error {
	severity := SeverityWarning
	if crowdsale.IsAuthorizationError(opErr) {
		severity = SeverityError
	}
	evt := &AuditEvent{
		Action:     ActionOperationRejected,
		Category:   CategoryAccess,
		Severity:   severity,
		Outcome:    OutcomeFailure,
		Resource:   ResourceSale,
		ResourceID: op,
		Metadata:   map[string]any{"operation": op},
	}
	if opErr != nil {
		evt.Reason = opErr.Error()
	}
	return e.emit(ctx, evt)
}

func roundID(id uint64) string { return strconv.FormatUint(id, 10) }

// movement describes a value transfer recorded in the event log.
func movement(action, resource, category string, evt *event.Event) *AuditEvent {
	return &AuditEvent{
		At:         evt.At,
		Action:     action,
		Category:   category,
		Severity:   SeverityInfo,
		Resource:   resource,
		ResourceID: evt.ID.String(),
		RoundID:    evt.RoundID,
		Actor:      evt.Account.Hex(),
		Metadata: map[string]any{
			"seq":        evt.Seq,
			"amount_wei": evt.Amount.String(),
			"tokens":     evt.Tokens.String(),
		},
	}
}

// emit fills defaults and hands evt to the recorder when the filter passes.
// Recorder failures are logged, never returned, so audit problems cannot
// surface as hook errors.
func (e *Extension) emit(ctx context.Context, evt *AuditEvent) error {
	if !e.filter.allows(evt.Action, evt.Category, evt.Severity) {
		return nil
	}
	if evt.Outcome == "" {
		evt.Outcome = OutcomeSuccess
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Warn("crowdsale audit record failed",
			"action", evt.Action,
			"resource_id", evt.ResourceID,
			"error", err,
		)
	}
	return nil
}
