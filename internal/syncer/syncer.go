// Package syncer drives the page-by-page walk over the marketplace order
// feed: fetch, parse fan-out, deduplicating persistence, downstream enqueue.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"order-feed-sync/internal/feed"
	"order-feed-sync/internal/protocol"
	"order-feed-sync/internal/queue"
	"order-feed-sync/internal/storage"
)

// PageFetcher is the slice of the feed client the syncer depends on.
type PageFetcher interface {
	FetchOrders(ctx context.Context, req feed.PageRequest) (feed.Page, error)
	FetchBySlug(ctx context.Context, slug string, side feed.Side) (feed.Page, error)
	FetchTokenOffers(ctx context.Context, contract, token string) (feed.Page, error)
}

// Parser converts one raw record into a typed order, reporting success.
type Parser interface {
	Parse(raw feed.RawOrderRecord) (protocol.ParsedOrder, bool)
}

// Config tunes the fetch loop.
type Config struct {
	PageSize         int
	ParseConcurrency int
	RetryDelay       time.Duration
	Source           string
}

// Options parameterise one sync run.
type Options struct {
	Side         feed.Side
	Source       string
	Contract     string
	MaxItems     int
	ListedAfter  time.Time
	ListedBefore time.Time
	Expedited    bool
}

// Syncer walks the feed until the duplicate-page heuristic, an error, or the
// item cap stops it.
type Syncer struct {
	feed   PageFetcher
	parser Parser
	store  storage.OrderStore
	queue  queue.Queue
	cfg    Config
	logger zerolog.Logger
}

// New constructs a Syncer.
func New(cfg Config, fetcher PageFetcher, parser Parser, store storage.OrderStore, q queue.Queue, logger zerolog.Logger) *Syncer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.ParseConcurrency <= 0 {
		cfg.ParseConcurrency = 20
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Source == "" {
		cfg.Source = "feed"
	}
	return &Syncer{
		feed:   fetcher,
		parser: parser,
		store:  store,
		queue:  q,
		cfg:    cfg,
		logger: logger.With().Str("component", "syncer").Logger(),
	}
}

// Run walks the feed from the top until a fully-duplicate page, the optional
// item cap, or an unrecoverable error. Enqueue failures propagate on this
// one-shot path.
func (s *Syncer) Run(ctx context.Context, opts Options) error {
	if opts.Side == "" {
		opts.Side = feed.SideListings
	}
	source := opts.Source
	if source == "" {
		source = s.cfg.Source
	}

	cursor := ""
	total := 0
	done := false

	for !done && (opts.MaxItems == 0 || total < opts.MaxItems) {
		req := feed.PageRequest{
			Side:         opts.Side,
			Limit:        s.cfg.PageSize,
			Cursor:       cursor,
			Contract:     opts.Contract,
			ListedAfter:  opts.ListedAfter,
			ListedBefore: opts.ListedBefore,
		}

		page, err := s.fetchPage(ctx, req)
		if err != nil {
			return fmt.Errorf("fetch page (cursor %q): %w", cursor, err)
		}

		cursor = page.Next
		total += len(page.Orders)

		inserted, parsed, err := s.processPage(ctx, page.Orders, source)
		if err != nil {
			return err
		}

		// A non-empty page with nothing new means everything older is
		// already synced, assuming the feed stays creation-time descending.
		// An empty page alone does not stop the walk.
		if len(page.Orders) > 0 && inserted == 0 {
			done = true
		}

		if err := s.queue.Enqueue(ctx, parsed, opts.Expedited); err != nil {
			return fmt.Errorf("enqueue parsed orders: %w", err)
		}

		s.logger.Debug().
			Str("side", string(opts.Side)).
			Int("page_orders", len(page.Orders)).
			Int64("inserted", inserted).
			Int("parsed", len(parsed)).
			Msg("page processed")
	}

	s.logger.Info().
		Str("side", string(opts.Side)).
		Str("source", source).
		Int("total", total).
		Bool("exhausted", done).
		Msg("sync run finished")
	return nil
}

// RunPage processes exactly one page seeded at the given cursor and returns
// the next cursor. Enqueue failures are logged, not propagated, so the
// realtime caller always reaches its lock release.
func (s *Syncer) RunPage(ctx context.Context, side feed.Side, cursor string) (string, error) {
	page, err := s.fetchPage(ctx, feed.PageRequest{
		Side:   side,
		Limit:  s.cfg.PageSize,
		Cursor: cursor,
	})
	if err != nil {
		return "", fmt.Errorf("fetch page (cursor %q): %w", cursor, err)
	}

	inserted, parsed, err := s.processPage(ctx, page.Orders, s.cfg.Source)
	if err != nil {
		return "", err
	}

	if err := s.queue.Enqueue(ctx, parsed, true); err != nil {
		s.logger.Error().Err(err).Int("orders", len(parsed)).Msg("downstream enqueue failed")
	}

	s.logger.Debug().
		Str("side", string(side)).
		Int("page_orders", len(page.Orders)).
		Int64("inserted", inserted).
		Msg("realtime page processed")

	return page.Next, nil
}

// SyncSlug persists one page of orders scoped to a collection slug.
func (s *Syncer) SyncSlug(ctx context.Context, slug string, side feed.Side) error {
	page, err := s.feed.FetchBySlug(ctx, slug, side)
	if err != nil {
		return fmt.Errorf("fetch slug %q: %w", slug, err)
	}

	_, parsed, err := s.processPage(ctx, page.Orders, s.cfg.Source)
	if err != nil {
		return err
	}

	return s.queue.Enqueue(ctx, parsed, false)
}

// SyncTokenOffers persists one page of offers for a contract/token pair.
func (s *Syncer) SyncTokenOffers(ctx context.Context, contract, token string) error {
	page, err := s.feed.FetchTokenOffers(ctx, contract, token)
	if err != nil {
		return fmt.Errorf("fetch offers %s/%s: %w", contract, token, err)
	}

	_, parsed, err := s.processPage(ctx, page.Orders, "probe")
	if err != nil {
		return err
	}

	return s.queue.Enqueue(ctx, parsed, false)
}

// fetchPage wraps one page request with the rate-limit retry policy: a 429
// with an established cursor retries the same cursor after a fixed delay; a
// 429 before any cursor exists propagates, as does every other failure.
func (s *Syncer) fetchPage(ctx context.Context, req feed.PageRequest) (feed.Page, error) {
	for {
		page, err := s.feed.FetchOrders(ctx, req)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, feed.ErrRateLimited) || req.Cursor == "" {
			return feed.Page{}, err
		}

		s.logger.Warn().
			Str("cursor", req.Cursor).
			Dur("delay", s.cfg.RetryDelay).
			Msg("feed rate limited, retrying same cursor")

		select {
		case <-ctx.Done():
			return feed.Page{}, ctx.Err()
		case <-time.After(s.cfg.RetryDelay):
		}
	}
}

// processPage parses the page's records with bounded concurrency, persists
// all of them as one batch, and returns the newly-inserted count plus the
// successfully parsed orders in page order.
func (s *Syncer) processPage(ctx context.Context, records []feed.RawOrderRecord, source string) (int64, []protocol.ParsedOrder, error) {
	if len(records) == 0 {
		return 0, nil, nil
	}

	rows := make([]storage.OrderRow, len(records))
	parsedSlots := make([]*protocol.ParsedOrder, len(records))

	sem := make(chan struct{}, s.cfg.ParseConcurrency)
	var wg sync.WaitGroup
	for i, record := range records {
		wg.Add(1)
		go func(i int, record feed.RawOrderRecord) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if parsed, ok := s.parser.Parse(record); ok {
				rows[i] = rowFromParsed(record, parsed, source)
				parsedSlots[i] = &parsed
			} else {
				rows[i] = rowFromFallback(record, source)
			}
		}(i, record)
	}
	wg.Wait()

	inserted, err := s.store.InsertOrders(ctx, rows)
	if err != nil {
		return 0, nil, fmt.Errorf("persist page: %w", err)
	}

	parsed := make([]protocol.ParsedOrder, 0, len(records))
	for _, slot := range parsedSlots {
		if slot != nil {
			parsed = append(parsed, *slot)
		}
	}
	return inserted, parsed, nil
}
