// Package discovery keeps the collection probe set fresh and drives the
// offer-probing cycle over it.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RankedCollection is one entry from the collection ranking source.
type RankedCollection struct {
	Slug           string          `json:"slug"`
	Contract       string          `json:"contract_address"`
	TrailingVolume decimal.Decimal `json:"trailing_volume"`
}

// RankingSource lists collections by trailing volume and samples token ids.
type RankingSource interface {
	ListCollections(ctx context.Context, limit int, cursor string) ([]RankedCollection, string, error)
	SampleTokens(ctx context.Context, slug string, limit int) ([]string, error)
}

// RankingsOptions parameterise the rankings client.
type RankingsOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Rankings fetches ranked collections from the independent ranking source.
type Rankings struct {
	opts    RankingsOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewRankings constructs a rankings client.
func NewRankings(opts RankingsOptions, logger zerolog.Logger) *Rankings {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Rankings{
		opts:    opts,
		logger:  logger.With().Str("component", "rankings_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// ListCollections retrieves one page of collections sorted by trailing volume.
func (r *Rankings) ListCollections(ctx context.Context, limit int, cursor string) ([]RankedCollection, string, error) {
	q := url.Values{}
	q.Set("order_by", "seven_day_volume")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page struct {
		Collections []RankedCollection `json:"collections"`
		Next        string             `json:"next"`
	}
	if err := r.get(ctx, "/api/v2/collections", q, &page); err != nil {
		return nil, "", err
	}
	return page.Collections, page.Next, nil
}

// SampleTokens retrieves up to limit token identifiers for a collection.
func (r *Rankings) SampleTokens(ctx context.Context, slug string, limit int) ([]string, error) {
	if slug == "" {
		return nil, errors.New("collection slug required")
	}
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page struct {
		Tokens []struct {
			Identifier string `json:"identifier"`
		} `json:"nfts"`
	}
	if err := r.get(ctx, "/api/v2/collections/"+url.PathEscape(slug)+"/nfts", q, &page); err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(page.Tokens))
	for _, token := range page.Tokens {
		if token.Identifier != "" {
			tokens = append(tokens, token.Identifier)
		}
	}
	return tokens, nil
}

func (r *Rankings) get(ctx context.Context, path string, q url.Values, out any) error {
	if r.baseURL == "" {
		return errors.New("rankings base url not configured")
	}

	endpoint := r.baseURL + path
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rankings api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode rankings response: %w", err)
	}
	return nil
}

var _ RankingSource = (*Rankings)(nil)
