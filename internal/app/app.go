package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"yield-health-alerts/internal/alerting"
	"yield-health-alerts/internal/config"
	"yield-health-alerts/internal/dispatch"
	"yield-health-alerts/internal/fetcher"
	"yield-health-alerts/internal/scheduler"
	"yield-health-alerts/internal/service"
	"yield-health-alerts/internal/storage"
	"yield-health-alerts/internal/storage/migrations"
	"yield-health-alerts/internal/suppress"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFeed() fetcher.SnapshotFeed {
	return fetcher.NewHTTPFeed(fetcher.FeedOptions{
		BaseURL:   a.Config.Feed.BaseURL,
		Timeout:   a.Config.Feed.RequestTimeout,
		UserAgent: a.Config.Feed.UserAgent,
	}, a.Logger)
}

func (a *App) newQuoteFetcher() fetcher.QuoteFetcher {
	if a.Config.Quotes.Source == "onchain" {
		return fetcher.NewOnchainQuotes(fetcher.OnchainQuoteOptions{
			RPCURL:      a.Config.Quotes.RPCURL,
			Aggregators: a.Config.Quotes.Aggregators,
			Timeout:     a.Config.Quotes.RequestTimeout,
		}, a.Logger)
	}
	return fetcher.NewHTTPQuotes(fetcher.QuoteOptions{
		BaseURL:   a.Config.Quotes.BaseURL,
		Symbols:   a.Config.Quotes.Symbols,
		Timeout:   a.Config.Quotes.RequestTimeout,
		UserAgent: a.Config.Quotes.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running sweep service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the sweep service")
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	notifier := a.newNotifier()
	if notifier == nil && a.Config.Alerting.Enabled {
		a.Logger.Warn().Msg("no delivery channel enabled; alerts will be logged but not delivered")
	}

	policy := suppress.NewPolicy(store, a.Config.Alerting.Cooldowns, a.Logger)
	dispatcher := dispatch.New(store, notifier, dispatch.Options{Bucket: a.Config.Alerting.DedupeSlot}, a.Logger)

	svc := service.New(a.Config, sched, service.Dependencies{
		Feed:       a.newFeed(),
		Quotes:     a.newQuoteFetcher(),
		Snapshots:  store,
		Positions:  store,
		Samples:    store,
		Settings:   store,
		Log:        store,
		Policy:     policy,
		Dispatcher: dispatcher,
	}, a.Logger)

	a.Logger.Info().Msg("starting position-health sweep service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("sweep service stopped")
	return nil
}

// Migrate applies the embedded schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database.dsn is required to migrate")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Run(ctx, pool); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	a.Logger.Info().Msg("migrations applied")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting a position's APY history.
type ExportOptions struct {
	PositionID string
	From       *time.Time
	To         *time.Time
	PNGPath    string
	CSVPath    string
	MaxPoints  int
}

// SimulateOptions drive one synthetic depeg evaluation.
type SimulateOptions struct {
	UserID   string
	Symbol   string
	Price    string
	Severity string
	Lower    string
}
