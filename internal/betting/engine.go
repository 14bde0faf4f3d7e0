package betting

import (
	"context"
	"time"

	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/metrics"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/kyotei-project/backend/internal/notify"
)

// Store is the warehouse surface the engine needs.
type Store interface {
	RacesForDate(ctx context.Context, date models.Date) ([]models.Race, error)
	EnsureFunds(ctx context.Context, funds []models.VirtualFund) error
	Funds(ctx context.Context) ([]models.VirtualFund, error)
	CreatePendingBet(ctx context.Context, bet *models.VirtualBet) (bool, error)
	PendingBetsDue(ctx context.Context, from, to time.Time) ([]models.VirtualBet, error)
	PendingBetsPastDeadline(ctx context.Context, cutoff time.Time) ([]models.VirtualBet, error)
	ConfirmedBets(ctx context.Context, cutoff time.Time) ([]models.VirtualBet, error)
	BoatOneProgram(ctx context.Context, key models.RaceKey) (*models.ProgramEntry, error)
	LatestOdds(ctx context.Context, key models.RaceKey, kind models.OddsKind, combination string) (*models.OddsTick, error)
	TransitionBet(ctx context.Context, bet *models.VirtualBet, from models.BetStatus) error
	RaceOutcome(ctx context.Context, key models.RaceKey) (*models.RaceOutcome, error)
	SettleBet(ctx context.Context, bet *models.VirtualBet, initialBalance int64) (bool, error)
}

// OddsRefresher scrapes a race's odds on demand.
type OddsRefresher interface {
	Refresh(ctx context.Context, key models.RaceKey) error
}

// Config holds the engine timings.
type Config struct {
	DecisionWindow time.Duration
	ExpiryGrace    time.Duration
	OddsMaxAge     time.Duration
}

// Engine runs the bet lifecycle: registration, decision, expiry and settlement.
type Engine struct {
	store     Store
	registry  *Registry
	refresher OddsRefresher
	clock     clock.Clock
	notifier  notify.Notifier
	metrics   *metrics.PipelineMetrics
	cfg       Config
}

// NewEngine creates an Engine. refresher and notifier may be nil.
func NewEngine(store Store, registry *Registry, refresher OddsRefresher, clk clock.Clock, notifier notify.Notifier, pm *metrics.PipelineMetrics, cfg Config) *Engine {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if pm == nil {
		pm = metrics.Default
	}
	return &Engine{
		store:     store,
		registry:  registry,
		refresher: refresher,
		clock:     clk,
		notifier:  notifier,
		metrics:   pm,
		cfg:       cfg,
	}
}

// Registry returns the strategy registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) notify(ctx context.Context, text string) {
	if err := e.notifier.Notify(ctx, text); err != nil {
		logger.Warn("notify: %v", err)
	}
}
