// Package realtime runs the self-rearming cursor sync job: read the
// persisted cursor, process one feed page, persist the new cursor, release
// the coordination lock, re-arm.
package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"order-feed-sync/internal/feed"
	"order-feed-sync/internal/scheduler"
	"order-feed-sync/internal/storage"
)

// PageRunner is the slice of the syncer the realtime job needs.
type PageRunner interface {
	RunPage(ctx context.Context, side feed.Side, cursor string) (string, error)
}

// Config tunes the realtime job.
type Config struct {
	Delay        time.Duration
	StartupDelay time.Duration
	LockName     string
	LockHoldoff  time.Duration
	CursorKey    string
}

// Runner executes realtime sync attempts under the shared sync lock.
type Runner struct {
	syncer  PageRunner
	cache   storage.CursorCache
	locker  storage.SyncLocker
	sched   *scheduler.Scheduler
	cfg     Config
	logger  zerolog.Logger
	attempt int64
}

// New constructs a Runner.
func New(cfg Config, sync PageRunner, cache storage.CursorCache, locker storage.SyncLocker, logger zerolog.Logger) *Runner {
	if cfg.CursorKey == "" {
		cfg.CursorKey = "lastSyncCursor"
	}
	if cfg.LockName == "" {
		cfg.LockName = "realtime-order-sync"
	}
	return &Runner{
		syncer: sync,
		cache:  cache,
		locker: locker,
		sched:  scheduler.New(scheduler.Options{Delay: cfg.Delay, StartupDelay: cfg.StartupDelay}, logger),
		cfg:    cfg,
		logger: logger.With().Str("component", "realtime").Logger(),
	}
}

// Run drives RunOnce through the rearm loop until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	return r.sched.Run(ctx, r.RunOnce)
}

// RunOnce executes one realtime sync attempt. Inner failures are logged and
// swallowed: the cursor stays put and the next cycle recovers from it. The
// sync lock, once acquired, is released exactly once on every path.
func (r *Runner) RunOnce(ctx context.Context) error {
	r.attempt++
	runID := uuid.NewString()

	release, acquired, err := r.locker.AcquireSyncLock(ctx, r.cfg.LockName, r.cfg.LockHoldoff)
	if err != nil {
		r.logger.Error().Err(err).Int64("attempt", r.attempt).Msg("sync lock acquisition failed")
		return nil
	}
	if !acquired {
		r.logger.Debug().Int64("attempt", r.attempt).Msg("sync lock held elsewhere, skipping cycle")
		return nil
	}
	defer release(false)

	r.syncPage(ctx, runID)
	return nil
}

func (r *Runner) syncPage(ctx context.Context, runID string) {
	prev, err := r.cache.GetCursor(ctx, r.cfg.CursorKey)
	if err != nil {
		r.logger.Error().Err(err).Int64("attempt", r.attempt).Str("run_id", runID).Msg("cursor read failed")
		return
	}

	next, err := r.syncer.RunPage(ctx, feed.SideListings, prev)
	if err != nil {
		r.logger.Error().
			Err(err).
			Int64("attempt", r.attempt).
			Str("run_id", runID).
			Str("cursor", prev).
			Msg("realtime sync failed")
		return
	}

	if next == prev {
		r.logger.Warn().
			Str("run_id", runID).
			Str("cursor", prev).
			Msg("feed cursor did not move")
	}

	if next != "" {
		if err := r.cache.SetCursor(ctx, r.cfg.CursorKey, next); err != nil {
			r.logger.Error().Err(err).Str("run_id", runID).Str("cursor", next).Msg("cursor persist failed")
			return
		}
	}

	r.logger.Info().
		Str("run_id", runID).
		Int64("attempt", r.attempt).
		Str("cursor", next).
		Msg("realtime sync cycle complete")
}
