package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"yield-health-alerts/internal/apy"
	"yield-health-alerts/internal/config"
	"yield-health-alerts/internal/detect"
	"yield-health-alerts/internal/dispatch"
	"yield-health-alerts/internal/fetcher"
	"yield-health-alerts/internal/scheduler"
	"yield-health-alerts/internal/storage"
	"yield-health-alerts/internal/suppress"
)

// Dependencies carry the collaborators the sweep service orchestrates.
type Dependencies struct {
	Feed       fetcher.SnapshotFeed
	Quotes     fetcher.QuoteFetcher
	Snapshots  storage.SnapshotStore
	Positions  storage.PositionStore
	Samples    storage.APYSampleStore
	Settings   storage.SettingsStore
	Log        storage.NotificationLogStore
	Policy     *suppress.Policy
	Dispatcher *dispatch.Dispatcher
}

// Service runs the periodic position-health sweep: ingest valuations,
// recompute returns, detect breaches, and dispatch approved alerts.
type Service struct {
	deps      Dependencies
	scheduler *scheduler.Scheduler
	logger    zerolog.Logger

	apyOpts   apy.Options
	workers   int
	alertsOn  bool
	retention time.Duration
}

// New constructs the sweep service.
func New(cfg *config.Config, sched *scheduler.Scheduler, deps Dependencies, logger zerolog.Logger) *Service {
	workers := cfg.Sweep.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Service{
		deps:      deps,
		scheduler: sched,
		logger:    logger.With().Str("component", "service").Logger(),
		apyOpts:   apy.Options{MinWindow: cfg.APY.MinObservationWindow},
		workers:   workers,
		alertsOn:  cfg.Alerting.Enabled,
		retention: cfg.Alerting.LogRetention,
	}
}

// Run begins the scheduled sweep loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Sweep)
}

// Sweep executes one full evaluation cycle. Each unit of work (one position,
// one user) has independently atomic effects, so cancellation between units
// leaves no partial state behind.
func (s *Service) Sweep(ctx context.Context, bucket time.Time) error {
	if err := s.ingest(ctx); err != nil {
		s.logger.Error().Err(err).Msg("snapshot ingestion failed")
	}

	if err := s.evaluatePositions(ctx, bucket); err != nil {
		return err
	}

	if err := s.evaluateDepegs(ctx); err != nil {
		return err
	}

	s.pruneLog(ctx)
	return nil
}

// pruneLog trims notification-log entries past the retention horizon. The log
// is append-only within the retention window; pruning never touches entries a
// cooldown could still consult, since every cooldown is far shorter.
func (s *Service) pruneLog(ctx context.Context) {
	if s.retention <= 0 || s.deps.Log == nil {
		return
	}
	cutoff := time.Now().UTC().Add(-s.retention)
	if err := s.deps.Log.DeleteLogEntriesBefore(ctx, cutoff); err != nil {
		s.logger.Error().Err(err).Time("cutoff", cutoff).Msg("notification log pruning failed")
	}
}

// ingest drains the discovery feed into the snapshot ledger.
func (s *Service) ingest(ctx context.Context) error {
	if s.deps.Feed == nil {
		return nil
	}

	updates, err := s.deps.Feed.FetchUpdates(ctx)
	if err != nil {
		return fmt.Errorf("fetch feed updates: %w", err)
	}

	for _, update := range updates {
		if err := ctx.Err(); err != nil {
			return err
		}

		position := storage.Position{
			ID:       update.PositionID,
			UserID:   update.UserID,
			Protocol: update.Protocol,
			Asset:    update.Asset,
		}
		if err := s.deps.Positions.UpsertPosition(ctx, position); err != nil {
			s.logger.Error().Err(err).Str("position_id", update.PositionID).Msg("failed to upsert position")
			continue
		}

		snapshot := storage.Snapshot{
			PositionID: update.PositionID,
			Timestamp:  update.Timestamp,
			Valuation:  update.Valuation,
			IsReset:    update.IsReset,
		}
		err := s.deps.Snapshots.AppendSnapshot(ctx, snapshot)
		var outOfOrder *storage.OutOfOrderError
		switch {
		case errors.As(err, &outOfOrder):
			// Rejected, never reordered. Points at a clock or feed anomaly.
			s.logger.Warn().
				Str("position_id", update.PositionID).
				Time("ts", update.Timestamp).
				Time("latest", outOfOrder.Latest).
				Msg("out-of-order snapshot rejected")
		case err != nil:
			s.logger.Error().Err(err).Str("position_id", update.PositionID).Msg("failed to append snapshot")
		}

		if update.IsClosed {
			if err := s.deps.Positions.ArchivePosition(ctx, update.PositionID, update.Timestamp); err != nil {
				s.logger.Error().Err(err).Str("position_id", update.PositionID).Msg("failed to archive position")
				continue
			}
			s.logger.Info().Str("position_id", update.PositionID).Msg("position fully exited, archived")
		}
	}

	return nil
}

// evaluatePositions recomputes APY for every active position and raises
// drop alerts, one unit of work per position across a bounded worker pool.
func (s *Service) evaluatePositions(ctx context.Context, bucket time.Time) error {
	positions, err := s.deps.Positions.ListActivePositions(ctx)
	if err != nil {
		return fmt.Errorf("list active positions: %w", err)
	}

	jobs := make(chan storage.Position)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for position := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if err := s.evaluatePosition(ctx, bucket, position); err != nil {
					s.logger.Error().Err(err).Str("position_id", position.ID).Msg("position evaluation failed")
				}
			}
		}()
	}

feed:
	for _, position := range positions {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- position:
		}
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}

func (s *Service) evaluatePosition(ctx context.Context, bucket time.Time, position storage.Position) error {
	segment, err := s.deps.Snapshots.CurrentSegment(ctx, position.ID)
	if err != nil {
		return fmt.Errorf("load current segment: %w", err)
	}

	result, ok := apy.Compute(segment, s.apyOpts)
	if !ok {
		s.logger.Debug().Str("position_id", position.ID).Msg("segment carries insufficient data, skipping")
		return nil
	}

	// The baseline is whatever was most recently persisted before this
	// cycle; a first-ever computation has none and cannot trigger a drop.
	var previous *float64
	if prior, found, err := s.deps.Samples.LatestAPYSample(ctx, position.ID); err != nil {
		return fmt.Errorf("load previous apy: %w", err)
	} else if found {
		value := prior.APY
		previous = &value
	}

	sample := storage.APYSample{
		PositionID:   position.ID,
		Bucket:       bucket,
		APY:          result.APY,
		PeriodReturn: result.PeriodReturn,
	}
	if err := s.deps.Samples.UpsertAPYSample(ctx, sample); err != nil {
		return fmt.Errorf("persist apy sample: %w", err)
	}

	s.logger.Debug().
		Str("position_id", position.ID).
		Float64("apy", result.APY).
		Float64("period_return", result.PeriodReturn).
		Msg("apy recomputed")

	if !s.alertsOn {
		return nil
	}

	settings, found, err := s.deps.Settings.GetSettings(ctx, position.UserID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !found {
		return nil
	}

	breach, breached := detect.EvaluateAPYDrop(settings, position.ID, previous, result.APY)
	if !breached {
		return nil
	}

	return s.raise(ctx, position.UserID, breach)
}

// evaluateDepegs checks current stablecoin quotes against every depeg
// subscriber, one unit of work per user.
func (s *Service) evaluateDepegs(ctx context.Context) error {
	if !s.alertsOn || s.deps.Quotes == nil {
		return nil
	}

	quotes, err := s.deps.Quotes.FetchQuotes(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("quote fetch failed, skipping depeg evaluation")
		return nil
	}
	if len(quotes) == 0 {
		return nil
	}

	subscribers, err := s.deps.Settings.ListDepegSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("list depeg subscribers: %w", err)
	}

	jobs := make(chan storage.NotificationSettings)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for settings := range jobs {
				if ctx.Err() != nil {
					continue
				}
				s.evaluateUserDepegs(ctx, settings, quotes)
			}
		}()
	}

feed:
	for _, subscriber := range subscribers {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- subscriber:
		}
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}

func (s *Service) evaluateUserDepegs(ctx context.Context, settings storage.NotificationSettings, quotes []fetcher.Quote) {
	for _, quote := range quotes {
		breach, breached := detect.EvaluateDepeg(settings, quote.Symbol, quote.Price)
		if !breached {
			continue
		}
		if err := s.raise(ctx, settings.UserID, breach); err != nil {
			s.logger.Error().Err(err).
				Str("user_id", settings.UserID).
				Str("symbol", quote.Symbol).
				Msg("depeg alert failed")
		}
	}
}

func (s *Service) raise(ctx context.Context, userID string, breach detect.Breach) error {
	now := time.Now().UTC()

	approved, err := s.deps.Policy.Approve(ctx, userID, breach, now)
	if err != nil {
		return fmt.Errorf("suppression check: %w", err)
	}
	if !approved {
		return nil
	}

	return s.deps.Dispatcher.Dispatch(ctx, userID, breach, now)
}
