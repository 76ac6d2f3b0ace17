package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/a-marczewski/netsel/internal/api"
	"github.com/a-marczewski/netsel/internal/config"
	"github.com/a-marczewski/netsel/internal/evaluator"
	"github.com/a-marczewski/netsel/internal/logging"
	"github.com/a-marczewski/netsel/internal/metrics"
	"github.com/a-marczewski/netsel/internal/profile"
	"github.com/a-marczewski/netsel/internal/scan"
	"github.com/a-marczewski/netsel/internal/score"
)

// App wires the daemon's components together.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     *profile.Store
	Scores    *score.Service
	Evaluator *evaluator.Evaluator
	Scanner   scan.Scanner
	Registry  *prometheus.Registry

	mu          sync.Mutex
	cycles      int
	lastOutcome string
	lastCycleAt time.Time
}

// New builds the application from configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := profile.NewStore(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	client := score.NewClient(cfg.ScorerBaseURL, cfg.OracleTimeout)
	scores := score.NewService(score.NewTTLCache(cfg.ScoreTTL), client, cfg.OracleTimeout, logger)

	var scanner scan.Scanner
	if cfg.FixturePath != "" {
		scanner = scan.NewFixtureScanner(cfg.FixturePath)
	} else {
		scanner = scan.NewIWScanner(cfg.Interface, false, logger)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Scores:    scores,
		Evaluator: evaluator.New(scores, store, client, cfg.Principal, logger, m),
		Scanner:   scanner,
		Registry:  registry,
	}, nil
}

// RunCycle performs one scan-and-evaluate cycle and returns the selected
// profile, if any.
func (a *App) RunCycle(ctx context.Context) (*profile.Profile, error) {
	observations, err := a.Scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	a.Evaluator.Refresh(observations)

	evalCtx, cancel := context.WithTimeout(ctx, a.Config.OracleTimeout)
	selected := a.Evaluator.Evaluate(evalCtx, observations, nil, "", false, a.Config.AllowUntrusted)
	cancel()

	a.mu.Lock()
	a.cycles++
	a.lastCycleAt = time.Now()
	if selected != nil {
		a.lastOutcome = evaluator.OutcomeSelected
	} else {
		a.lastOutcome = "none"
	}
	a.mu.Unlock()

	return selected, nil
}

// Run executes cycles on the configured interval until the context is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	var server *api.Server
	if a.Config.APIEnabled {
		server = api.NewServer(a.Config.APIListenAddr, a.Status, a.Registry, a.Logger)
		server.Start()
	}

	a.Logger.Info("netsel started",
		zap.String("interface", a.Config.Interface),
		zap.String("scorer", a.Config.ScorerBaseURL),
		zap.Duration("interval", a.Config.ScanInterval),
		zap.Bool("allow_untrusted", a.Config.AllowUntrusted))

	ticker := time.NewTicker(a.Config.ScanInterval)
	defer ticker.Stop()

	for {
		if _, err := a.RunCycle(ctx); err != nil && ctx.Err() == nil {
			a.Logger.Warn("cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := server.Shutdown(shutdownCtx); err != nil {
					a.Logger.Warn("diagnostics server shutdown failed", zap.Error(err))
				}
				cancel()
			}
			return nil
		case <-ticker.C:
		}
	}
}

// Status returns the diagnostics snapshot.
func (a *App) Status() api.Status {
	a.mu.Lock()
	cycles := a.cycles
	lastOutcome := a.lastOutcome
	lastCycleAt := a.lastCycleAt
	a.mu.Unlock()

	profiles, err := a.Store.Count()
	if err != nil {
		a.Logger.Warn("profile count failed", zap.Error(err))
	}

	return api.Status{
		Evaluator:   a.Evaluator.Name(),
		Cycles:      cycles,
		LastOutcome: lastOutcome,
		LastCycleAt: lastCycleAt,
		Profiles:    profiles,
	}
}

// Close releases the application's resources.
func (a *App) Close() {
	a.Scores.Close()
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("failed to close profile store", zap.Error(err))
	}
	a.Logger.Sync()
}
