package discovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"order-feed-sync/internal/storage"
)

// OfferSyncer is the slice of the syncer the prober needs.
type OfferSyncer interface {
	SyncTokenOffers(ctx context.Context, contract, token string) error
}

// Prober runs one offer-probing pass over the stored probe set.
type Prober struct {
	probes    storage.ProbeStore
	refresher *Refresher
	syncer    OfferSyncer
	logger    zerolog.Logger
}

// NewProber constructs a Prober.
func NewProber(probes storage.ProbeStore, refresher *Refresher, syncer OfferSyncer, logger zerolog.Logger) *Prober {
	return &Prober{
		probes:    probes,
		refresher: refresher,
		syncer:    syncer,
		logger:    logger.With().Str("component", "prober").Logger(),
	}
}

// RunCycle probes offers for every stored collection. An empty probe set
// triggers a refresh first. Per-probe failures are logged and skipped.
func (p *Prober) RunCycle(ctx context.Context) error {
	count, err := p.probes.CountProbes(ctx)
	if err != nil {
		return fmt.Errorf("count probes: %w", err)
	}
	if count == 0 {
		if err := p.refresher.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh collections: %w", err)
		}
	}

	probes, err := p.probes.ListProbes(ctx)
	if err != nil {
		return fmt.Errorf("list probes: %w", err)
	}

	probed := 0
	failed := 0
	for _, probe := range probes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.syncer.SyncTokenOffers(ctx, probe.Contract, probe.TokenID); err != nil {
			failed++
			p.logger.Warn().
				Err(err).
				Str("slug", probe.Slug).
				Str("contract", probe.Contract).
				Str("token", probe.TokenID).
				Msg("offer probe failed")
			continue
		}
		probed++
	}

	p.logger.Info().Int("probed", probed).Int("failed", failed).Msg("probe cycle complete")
	return nil
}
