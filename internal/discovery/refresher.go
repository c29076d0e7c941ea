package discovery

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"order-feed-sync/internal/storage"
)

// Config bounds the ranking refresh.
type Config struct {
	MaxCollections int
	PageSize       int
	TokenSample    int
}

// Refresher rebuilds the collection probe set from the ranking source.
type Refresher struct {
	source RankingSource
	probes storage.ProbeStore
	cfg    Config
	logger zerolog.Logger

	// pick chooses a token index; injectable for deterministic tests.
	pick func(n int) int
}

// NewRefresher constructs a Refresher.
func NewRefresher(cfg Config, source RankingSource, probes storage.ProbeStore, logger zerolog.Logger) *Refresher {
	if cfg.MaxCollections <= 0 {
		cfg.MaxCollections = 1000
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.TokenSample <= 0 {
		cfg.TokenSample = 50
	}
	return &Refresher{
		source: source,
		probes: probes,
		cfg:    cfg,
		logger: logger.With().Str("component", "discovery").Logger(),
		pick:   rand.IntN,
	}
}

// Refresh walks the ranking source, builds one probe per collection with a
// token sampled uniformly at random, and replaces the stored set wholesale.
// Per-collection failures are logged and skipped; a ranking page failure
// aborts the whole refresh.
func (r *Refresher) Refresh(ctx context.Context) error {
	collections, err := r.listRanked(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	probes := make([]storage.CollectionProbe, 0, len(collections))
	skipped := 0
	for _, collection := range collections {
		tokens, err := r.source.SampleTokens(ctx, collection.Slug, r.cfg.TokenSample)
		if err != nil {
			skipped++
			r.logger.Warn().Err(err).Str("slug", collection.Slug).Msg("token sampling failed, skipping collection")
			continue
		}
		if len(tokens) == 0 {
			skipped++
			r.logger.Debug().Str("slug", collection.Slug).Msg("collection has no tokens, skipping")
			continue
		}

		// A random token improves probe-success odds: the feed may 404 on
		// arbitrary ids, and any token in the sample works as a probe.
		probes = append(probes, storage.CollectionProbe{
			Slug:           collection.Slug,
			Contract:       strings.ToLower(collection.Contract),
			TokenID:        tokens[r.pick(len(tokens))],
			TrailingVolume: collection.TrailingVolume,
			RefreshedAt:    now,
		})
	}

	if err := r.probes.ReplaceProbes(ctx, probes); err != nil {
		return fmt.Errorf("replace probes: %w", err)
	}

	r.logger.Info().
		Int("collections", len(collections)).
		Int("probes", len(probes)).
		Int("skipped", skipped).
		Msg("collection probe set refreshed")
	return nil
}

// listRanked paginates the ranking source up to the collection cap, stopping
// early on a short page.
func (r *Refresher) listRanked(ctx context.Context) ([]RankedCollection, error) {
	collections := make([]RankedCollection, 0, r.cfg.MaxCollections)
	cursor := ""

	for len(collections) < r.cfg.MaxCollections {
		page, next, err := r.source.ListCollections(ctx, r.cfg.PageSize, cursor)
		if err != nil {
			return nil, fmt.Errorf("list ranked collections: %w", err)
		}

		collections = append(collections, page...)

		if len(page) < r.cfg.PageSize || next == "" {
			break
		}
		cursor = next
	}

	if len(collections) > r.cfg.MaxCollections {
		collections = collections[:r.cfg.MaxCollections]
	}
	return collections, nil
}
