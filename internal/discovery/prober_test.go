package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"order-feed-sync/internal/storage"
)

type fakeOfferSyncer struct {
	calls  [][2]string
	errFor map[string]error
}

func (s *fakeOfferSyncer) SyncTokenOffers(_ context.Context, contract, token string) error {
	s.calls = append(s.calls, [2]string{contract, token})
	return s.errFor[contract]
}

func TestRunCycleRefreshesWhenEmpty(t *testing.T) {
	page := rankedPage(2, 0)
	source := &fakeSource{pages: [][]RankedCollection{page}, tokens: tokensFor(page)}
	store := &fakeProbeStore{}
	sync := &fakeOfferSyncer{}

	p := NewProber(store, newTestRefresher(source, store), sync, zerolog.Nop())
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(store.replaced) != 1 {
		t.Fatal("empty probe set must trigger a refresh first")
	}
	if len(sync.calls) != 2 {
		t.Fatalf("expected 2 probes synced, got %d", len(sync.calls))
	}
}

func TestRunCycleSkipsRefreshWhenPopulated(t *testing.T) {
	source := &fakeSource{}
	store := &fakeProbeStore{
		probes: []storage.CollectionProbe{{Slug: "a", Contract: "0x1", TokenID: "7"}},
		count:  1,
	}
	sync := &fakeOfferSyncer{}

	p := NewProber(store, newTestRefresher(source, store), sync, zerolog.Nop())
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if source.listCalls != 0 {
		t.Fatal("populated probe set must not trigger a refresh")
	}
	if len(sync.calls) != 1 || sync.calls[0] != [2]string{"0x1", "7"} {
		t.Fatalf("unexpected probe calls: %#v", sync.calls)
	}
}

func TestRunCycleIsolatesProbeFailures(t *testing.T) {
	store := &fakeProbeStore{
		probes: []storage.CollectionProbe{
			{Slug: "a", Contract: "0x1", TokenID: "1"},
			{Slug: "b", Contract: "0x2", TokenID: "2"},
		},
		count: 2,
	}
	sync := &fakeOfferSyncer{errFor: map[string]error{"0x1": errors.New("404")}}

	p := NewProber(store, newTestRefresher(&fakeSource{}, store), sync, zerolog.Nop())
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("单个 probe 失败不应中断整轮: %v", err)
	}
	if len(sync.calls) != 2 {
		t.Fatalf("both probes must be attempted, got %d", len(sync.calls))
	}
}
