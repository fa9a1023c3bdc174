// Package scheduler runs the auto-finalize job: an admin actor that
// finalizes the current round once its end time has passed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/types"
)

// JobName names the auto-finalize job.
const JobName = "auto_finalize"

// Finalizer is the part of the entry point the job drives.
type Finalizer interface {
	RoundInfo(ctx context.Context, roundID uint64) (*round.Info, error)
	FinalizeRound(ctx context.Context, caller types.Address, roundID uint64) (*round.Round, error)
}

// Manager owns the gocron scheduler.
type Manager struct {
	scheduler gocron.Scheduler
	sale      Finalizer
	caller    types.Address
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithInterval sets how often the job runs. Default one minute.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithTimeout bounds a single run. Default 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager finalizing as caller, which must hold the owner role.
func New(sale Finalizer, caller types.Address, opts ...Option) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}
	m := &Manager{
		scheduler: s,
		sale:      sale,
		caller:    caller,
		interval:  time.Minute,
		timeout:   30 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// Start registers the job and starts the scheduler. The first run happens
// immediately.
func (m *Manager) Start() error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(m.execute),
		gocron.WithName(JobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", JobName, err)
	}
	m.scheduler.Start()
	m.logger.Info("scheduler: started", "job", JobName, "interval", m.interval)
	return nil
}

// Stop cancels a running job and shuts the scheduler down.
func (m *Manager) Stop() error {
	m.cancel()
	if err := m.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	m.logger.Info("scheduler: stopped")
	return nil
}

func (m *Manager) execute() {
	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()
	if _, err := m.RunOnce(ctx); err != nil {
		m.logger.Warn("scheduler: auto-finalize failed", "error", err)
	}
}

// RunOnce finalizes the current round if it has ended. It returns the
// finalized round, or nil when there was nothing to do.
func (m *Manager) RunOnce(ctx context.Context) (*round.Round, error) {
	info, err := m.sale.RoundInfo(ctx, crowdsale.CurrentRound)
	if err != nil {
		return nil, err
	}
	if info.Round == nil || info.Phase != round.PhaseEnded {
		return nil, nil
	}

	r, err := m.sale.FinalizeRound(ctx, m.caller, info.Round.ID)
	if errors.Is(err, crowdsale.ErrAlreadyFinalized) || errors.Is(err, crowdsale.ErrRoundFinalized) {
		// Finalized by someone else since RoundInfo.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finalize round %d: %w", info.Round.ID, err)
	}

	m.logger.Info("scheduler: round finalized",
		"round_id", r.ID,
		"successful", r.Successful,
		"total_raised", r.TotalRaised.String(),
	)
	return r, nil
}
