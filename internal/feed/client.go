package feed

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
	"golang.org/x/time/rate"
)

// ErrRateLimited marks an upstream 429; callers decide whether the
// position in the feed is safe to retry from.
var ErrRateLimited = errors.New("feed rate limited")

// Options parameterise the feed client.
type Options struct {
	BaseURL           string
	Network           string
	APIKey            string
	APIKeyHeader      string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the marketplace order feed API.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewClient constructs a feed client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	if opts.Network == "" {
		opts.Network = "ethereum"
	}
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = "X-API-KEY"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "feed_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		baseURL: baseURL,
	}
}

// FetchOrders retrieves one page of orders, creation-time descending.
func (c *Client) FetchOrders(ctx context.Context, req PageRequest) (Page, error) {
	q := url.Values{}
	q.Set("order_by", "created_date")
	q.Set("order_direction", "desc")
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	if req.Contract != "" {
		q.Set("asset_contract_address", req.Contract)
	}
	if !req.ListedAfter.IsZero() {
		q.Set("listed_after", strconv.FormatInt(req.ListedAfter.Unix(), 10))
	}
	if !req.ListedBefore.IsZero() {
		q.Set("listed_before", strconv.FormatInt(req.ListedBefore.Unix(), 10))
	}

	return c.get(ctx, c.sidePath(req.Side), q)
}

// FetchBySlug retrieves a single page of orders scoped to a collection slug.
func (c *Client) FetchBySlug(ctx context.Context, slug string, side Side) (Page, error) {
	if slug == "" {
		return Page{}, errors.New("collection slug required")
	}
	q := url.Values{}
	q.Set("collection_slug", slug)
	q.Set("order_by", "created_date")
	q.Set("order_direction", "desc")
	return c.get(ctx, c.sidePath(side), q)
}

// FetchTokenOffers retrieves offers for one contract/token pair.
func (c *Client) FetchTokenOffers(ctx context.Context, contract, token string) (Page, error) {
	if contract == "" || token == "" {
		return Page{}, errors.New("contract and token required")
	}
	q := url.Values{}
	q.Set("asset_contract_address", contract)
	q.Set("token_ids", token)
	return c.get(ctx, c.sidePath(SideOffers), q)
}

func (c *Client) sidePath(side Side) string {
	return fmt.Sprintf("/api/v2/orders/%s/seaport/%s", c.opts.Network, side)
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (Page, error) {
	if c.baseURL == "" {
		return Page{}, errors.New("feed base url not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	endpoint := c.baseURL + path
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if c.opts.APIKey != "" {
		req.Header.Set(c.opts.APIKeyHeader, c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Page{}, fmt.Errorf("%w: %s", ErrRateLimited, path)
	}
	if resp.StatusCode != http.StatusOK {
		return Page{}, parseHTTPError(resp.StatusCode, payload)
	}

	var page Page
	if err := json.Unmarshal(payload, &page); err != nil {
		return Page{}, fmt.Errorf("decode feed page: %w", err)
	}

	return page, nil
}

type errorResponse struct {
	Errors  []string `json:"errors"`
	Detail  string   `json:"detail"`
	Message string   `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if len(apiErr.Errors) > 0 {
			return fmt.Errorf("feed api error (%d): %s", status, strings.Join(apiErr.Errors, "; "))
		}
		if apiErr.Detail != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Detail)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("feed api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("feed api error (%d)", status)
}
