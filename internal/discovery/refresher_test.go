package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"order-feed-sync/internal/storage"
)

type fakeSource struct {
	pages     [][]RankedCollection
	nexts     []string
	listCalls int
	listErr   error
	tokens    map[string][]string
	tokenErrs map[string]error
}

func (s *fakeSource) ListCollections(_ context.Context, _ int, _ string) ([]RankedCollection, string, error) {
	if s.listErr != nil {
		return nil, "", s.listErr
	}
	if s.listCalls >= len(s.pages) {
		return nil, "", nil
	}
	page := s.pages[s.listCalls]
	next := ""
	if s.listCalls < len(s.nexts) {
		next = s.nexts[s.listCalls]
	}
	s.listCalls++
	return page, next, nil
}

func (s *fakeSource) SampleTokens(_ context.Context, slug string, _ int) ([]string, error) {
	if err := s.tokenErrs[slug]; err != nil {
		return nil, err
	}
	return s.tokens[slug], nil
}

type fakeProbeStore struct {
	replaced   [][]storage.CollectionProbe
	probes     []storage.CollectionProbe
	count      int64
	replaceErr error
}

func (s *fakeProbeStore) ReplaceProbes(_ context.Context, probes []storage.CollectionProbe) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.replaced = append(s.replaced, probes)
	s.probes = probes
	s.count = int64(len(probes))
	return nil
}

func (s *fakeProbeStore) ListProbes(_ context.Context) ([]storage.CollectionProbe, error) {
	return s.probes, nil
}

func (s *fakeProbeStore) CountProbes(_ context.Context) (int64, error) {
	return s.count, nil
}

func rankedPage(n, offset int) []RankedCollection {
	page := make([]RankedCollection, n)
	for i := range page {
		page[i] = RankedCollection{
			Slug:           fmt.Sprintf("col-%d", offset+i),
			Contract:       fmt.Sprintf("0xC%036d", offset+i),
			TrailingVolume: decimal.NewFromInt(int64(1000 - offset - i)),
		}
	}
	return page
}

func tokensFor(pages ...[]RankedCollection) map[string][]string {
	tokens := map[string][]string{}
	for _, page := range pages {
		for _, c := range page {
			tokens[c.Slug] = []string{"1", "2", "3"}
		}
	}
	return tokens
}

func newTestRefresher(source *fakeSource, store *fakeProbeStore) *Refresher {
	r := NewRefresher(Config{MaxCollections: 40, PageSize: 20, TokenSample: 50}, source, store, zerolog.Nop())
	r.pick = func(int) int { return 0 }
	return r
}

func TestRefreshStopsOnShortPage(t *testing.T) {
	page := rankedPage(5, 0)
	source := &fakeSource{pages: [][]RankedCollection{page}, nexts: []string{"n1"}, tokens: tokensFor(page)}
	store := &fakeProbeStore{}

	if err := newTestRefresher(source, store).Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if source.listCalls != 1 {
		t.Fatalf("短页应停止翻页, 实际 %d 次", source.listCalls)
	}
	if len(store.replaced) != 1 || len(store.replaced[0]) != 5 {
		t.Fatalf("probe set not replaced wholesale: %#v", store.replaced)
	}
}

func TestRefreshHonoursCollectionCap(t *testing.T) {
	p1, p2, p3 := rankedPage(20, 0), rankedPage(20, 20), rankedPage(20, 40)
	source := &fakeSource{
		pages:  [][]RankedCollection{p1, p2, p3},
		nexts:  []string{"n1", "n2", "n3"},
		tokens: tokensFor(p1, p2, p3),
	}
	store := &fakeProbeStore{}

	if err := newTestRefresher(source, store).Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if source.listCalls != 2 {
		t.Fatalf("cap reached after 2 pages, got %d calls", source.listCalls)
	}
	if len(store.probes) != 40 {
		t.Fatalf("expected 40 probes, got %d", len(store.probes))
	}
}

func TestRefreshIsolatesCollectionFailures(t *testing.T) {
	page := rankedPage(3, 0)
	source := &fakeSource{
		pages:     [][]RankedCollection{page},
		tokens:    tokensFor(page),
		tokenErrs: map[string]error{"col-1": errors.New("404")},
	}
	store := &fakeProbeStore{}

	if err := newTestRefresher(source, store).Refresh(context.Background()); err != nil {
		t.Fatalf("单个 collection 失败不应中断刷新: %v", err)
	}
	if len(store.probes) != 2 {
		t.Fatalf("expected 2 probes after one failure, got %d", len(store.probes))
	}
}

func TestRefreshSkipsEmptyCollections(t *testing.T) {
	page := rankedPage(2, 0)
	tokens := tokensFor(page)
	tokens["col-0"] = nil
	source := &fakeSource{pages: [][]RankedCollection{page}, tokens: tokens}
	store := &fakeProbeStore{}

	if err := newTestRefresher(source, store).Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(store.probes) != 1 || store.probes[0].Slug != "col-1" {
		t.Fatalf("tokenless collection must be skipped: %#v", store.probes)
	}
}

func TestRefreshPicksTokenFromSample(t *testing.T) {
	page := rankedPage(1, 0)
	source := &fakeSource{pages: [][]RankedCollection{page}, tokens: tokensFor(page)}
	store := &fakeProbeStore{}

	r := newTestRefresher(source, store)
	r.pick = func(n int) int { return n - 1 }

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if store.probes[0].TokenID != "3" {
		t.Fatalf("token 应取自采样集合: %#v", store.probes[0])
	}
}

func TestRefreshPropagatesRankingFailure(t *testing.T) {
	source := &fakeSource{listErr: errors.New("ranking source down")}
	store := &fakeProbeStore{}

	if err := newTestRefresher(source, store).Refresh(context.Background()); err == nil {
		t.Fatal("ranking page failure must abort the refresh")
	}
	if len(store.replaced) != 0 {
		t.Fatal("failed refresh must not touch the stored set")
	}
}
