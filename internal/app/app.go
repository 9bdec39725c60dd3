// Package app assembles the dispatcher, health monitor and API collaborators
// from configuration. Both the API server and the operator CLI build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/edvin/outreach/internal/api"
	"github.com/edvin/outreach/internal/audience"
	"github.com/edvin/outreach/internal/config"
	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/db"
	"github.com/edvin/outreach/internal/dispatch"
	"github.com/edvin/outreach/internal/health"
	"github.com/edvin/outreach/internal/personalize"
	"github.com/edvin/outreach/internal/query"
	"github.com/edvin/outreach/internal/resolver"
	"github.com/edvin/outreach/internal/sender"
)

// App holds the long-lived collaborators of one process.
type App struct {
	CorePool   *pgxpool.Pool
	SourceDB   *sql.DB
	Location   *time.Location
	Services   *core.Services
	Audience   *audience.Provider
	Resolver   *resolver.Resolver
	Engine     *personalize.Engine
	Dispatcher *dispatch.Dispatcher
	Monitor    *health.Monitor
	Thresholds health.Thresholds
}

// New connects to both databases and wires every component.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	formatOpts, err := FormatOptions(cfg, loc)
	if err != nil {
		return nil, err
	}

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect core database: %w", err)
	}
	sourceDB, err := db.NewSourceDB(ctx, cfg.SourceDatabaseURL)
	if err != nil {
		corePool.Close()
		return nil, fmt.Errorf("connect source database: %w", err)
	}

	services := core.NewServices(corePool, loc)
	exec := query.NewSQLExecutor(sourceDB, cfg.QueryTimeout, query.BindDollar)
	provider := audience.NewProvider(exec, logger)
	res := resolver.New(exec, resolver.NewRegistry(loc), formatOpts, logger)
	engine := personalize.NewEngine(provider, res, cfg.DispatchWorkers, logger)
	client := sender.NewClient(cfg.SendAPIURL, cfg.SendAPIKey, cfg.SendTimeout, cfg.SendRatePerSecond)

	dispatcher := dispatch.New(dispatch.DepsFromServices(services, engine, client), dispatch.Options{
		BatchSize:  cfg.DispatchBatchSize,
		StaleAfter: cfg.StaleRunningAfter,
		Location:   loc,
	}, logger)

	th := health.DefaultThresholds()
	th.StaleRunningAfter = cfg.StaleRunningAfter
	monitor := health.NewMonitor(services.Dashboard, services.Jobs, services.ExecutionLogs, services.TriggerSignals, th, loc)

	return &App{
		CorePool:   corePool,
		SourceDB:   sourceDB,
		Location:   loc,
		Services:   services,
		Audience:   provider,
		Resolver:   res,
		Engine:     engine,
		Dispatcher: dispatcher,
		Monitor:    monitor,
		Thresholds: th,
	}, nil
}

// Components returns the collaborators the HTTP API exposes.
func (a *App) Components() api.Components {
	return api.Components{
		Services:   a.Services,
		Dispatcher: a.Dispatcher,
		Health:     a.Monitor,
		Audience:   a.Audience,
		Previewer:  a.Engine,
		Thresholds: a.Thresholds,
	}
}

// Ready pings both databases.
func (a *App) Ready(ctx context.Context) error {
	if err := a.CorePool.Ping(ctx); err != nil {
		return fmt.Errorf("ping core db: %w", err)
	}
	if err := a.SourceDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping source db: %w", err)
	}
	return nil
}

func (a *App) Close() {
	a.SourceDB.Close()
	a.CorePool.Close()
}

// FormatOptions builds the value formatting settings from configuration.
func FormatOptions(cfg *config.Config, loc *time.Location) (resolver.FormatOptions, error) {
	tag, err := language.Parse(cfg.FormatLocale)
	if err != nil {
		return resolver.FormatOptions{}, fmt.Errorf("invalid FORMAT_LOCALE %q: %w", cfg.FormatLocale, err)
	}
	return resolver.FormatOptions{Locale: tag, CurrencySuffix: cfg.CurrencySuffix, Location: loc}, nil
}
