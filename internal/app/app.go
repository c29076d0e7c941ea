package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"order-feed-sync/internal/config"
	"order-feed-sync/internal/discovery"
	"order-feed-sync/internal/feed"
	"order-feed-sync/internal/protocol"
	"order-feed-sync/internal/queue"
	"order-feed-sync/internal/realtime"
	"order-feed-sync/internal/scheduler"
	"order-feed-sync/internal/storage"
	"order-feed-sync/internal/syncer"
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

func (a *App) openStore(ctx context.Context) (*storage.Store, *pgxpool.Pool, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, pool, closer, nil
}

func (a *App) newFeedClient() *feed.Client {
	return feed.NewClient(feed.Options{
		BaseURL:           a.Config.Feed.BaseURL,
		Network:           a.Config.Feed.Network,
		APIKey:            a.Config.Feed.APIKey,
		APIKeyHeader:      a.Config.Feed.APIKeyHeader,
		UserAgent:         a.Config.Feed.UserAgent,
		Timeout:           a.Config.Feed.RequestTimeout,
		RequestsPerSecond: a.Config.Feed.RequestsPerSecond,
		Burst:             a.Config.Feed.Burst,
	}, a.Logger)
}

func (a *App) newSyncer(store *storage.Store, pool *pgxpool.Pool) *syncer.Syncer {
	parser := protocol.NewParser(a.Config.Feed.Network, a.Logger)
	jobs := queue.NewPGQueue(pool, a.Logger)
	return syncer.New(syncer.Config{
		PageSize:         a.Config.Sync.PageSize,
		ParseConcurrency: a.Config.Sync.ParseConcurrency,
		RetryDelay:       a.Config.Sync.RetryDelay,
		Source:           a.Config.Sync.Source,
	}, a.newFeedClient(), parser, store, jobs, a.Logger)
}

func (a *App) newRefresher(store *storage.Store) *discovery.Refresher {
	rankings := discovery.NewRankings(discovery.RankingsOptions{
		BaseURL:   a.rankingsBaseURL(),
		UserAgent: a.Config.Feed.UserAgent,
		Timeout:   a.Config.Discovery.RequestTimeout,
	}, a.Logger)
	return discovery.NewRefresher(discovery.Config{
		MaxCollections: a.Config.Discovery.MaxCollections,
		PageSize:       a.Config.Discovery.PageSize,
		TokenSample:    a.Config.Discovery.TokenSample,
	}, rankings, store, a.Logger)
}

func (a *App) rankingsBaseURL() string {
	if a.Config.Discovery.BaseURL != "" {
		return a.Config.Discovery.BaseURL
	}
	return a.Config.Feed.BaseURL
}

// Run executes the long-running sync service: the realtime cursor job plus
// the periodic offer-probing cycle.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, pool, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sync := a.newSyncer(store, pool)

	runner := realtime.New(realtime.Config{
		Delay:        a.Config.Realtime.Delay,
		StartupDelay: a.Config.Realtime.StartupDelay,
		LockName:     a.Config.Realtime.LockName,
		LockHoldoff:  a.Config.Realtime.LockHoldoff,
		CursorKey:    a.Config.Realtime.CursorKey,
	}, sync, store, store, a.Logger)

	prober := discovery.NewProber(store, a.newRefresher(store), sync, a.Logger)
	probeSched := scheduler.New(scheduler.Options{
		Delay:        a.Config.Discovery.ProbeDelay,
		StartupDelay: a.Config.Realtime.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Msg("starting order feed sync service")

	errc := make(chan error, 2)
	go func() { errc <- runner.Run(ctx) }()
	go func() { errc <- probeSched.Run(ctx, prober.RunCycle) }()

	err = <-errc
	cancel()
	<-errc

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("order feed sync service stopped")
	return nil
}

// SyncOptions hold parameters for a one-shot sync run.
type SyncOptions struct {
	Side     string
	Contract string
	Slug     string
	MaxItems int
}

// SyncOnce runs a single one-shot fetch pass; failures propagate.
func (a *App) SyncOnce(ctx context.Context, opts SyncOptions) error {
	store, pool, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sync := a.newSyncer(store, pool)

	side := feed.Side(opts.Side)
	if side == "" {
		side = feed.SideListings
	}

	if opts.Slug != "" {
		return sync.SyncSlug(ctx, opts.Slug, side)
	}

	return sync.Run(ctx, syncer.Options{
		Side:     side,
		Contract: opts.Contract,
		MaxItems: opts.MaxItems,
	})
}

// Probe runs one offer-probing cycle over the stored probe set.
func (a *App) Probe(ctx context.Context) error {
	store, pool, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sync := a.newSyncer(store, pool)
	prober := discovery.NewProber(store, a.newRefresher(store), sync, a.Logger)
	return prober.RunCycle(ctx)
}

// RefreshCollections rebuilds the collection probe set.
func (a *App) RefreshCollections(ctx context.Context) error {
	store, _, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return a.newRefresher(store).Refresh(ctx)
}
