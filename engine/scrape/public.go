package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/pkg/fn"
	"github.com/lurkhq/lurk/pkg/resilience"
)

const publicBaseURL = "https://www.reddit.com"

// PublicOpts configures the unauthenticated client.
type PublicOpts struct {
	BaseURL   string // defaults to the public site
	UserAgent string
	Timeout   time.Duration
	Coord     *resilience.Coordinator
	Logger    *slog.Logger
}

// PublicClient reads the public JSON listings. Every request flows through
// the public rate-limit class and retries transient failures.
type PublicClient struct {
	base   string
	agent  string
	client *http.Client
	coord  *resilience.Coordinator
	logger *slog.Logger
	now    func() time.Time
	retry  fn.RetryOpts
}

// NewPublicClient creates a PublicClient.
func NewPublicClient(opts PublicOpts) *PublicClient {
	if opts.BaseURL == "" {
		opts.BaseURL = publicBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "lurk/1.0 (personal media archiver)"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Coord == nil {
		opts.Coord = resilience.NewCoordinator(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &PublicClient{
		base:  strings.TrimSuffix(opts.BaseURL, "/"),
		agent: opts.UserAgent,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		coord:  opts.Coord,
		logger: opts.Logger,
		now:    time.Now,
		retry: fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: 2 * time.Second,
			MaxWait:     30 * time.Second,
			Jitter:      true,
			Retryable:   domain.Retryable,
		},
	}
}

// SubredditPosts implements Scraper.
func (c *PublicClient) SubredditPosts(ctx context.Context, name, listing, period string, limit int) ([]domain.PostRecord, error) {
	path := fmt.Sprintf("/r/%s/%s.json", url.PathEscape(name), listing)
	query := url.Values{"raw_json": {"1"}}
	if period != "" {
		query.Set("t", period)
	}
	return c.paginate(ctx, path, query, limit)
}

// UserPosts implements Scraper.
func (c *PublicClient) UserPosts(ctx context.Context, name string, limit int) ([]domain.PostRecord, error) {
	path := fmt.Sprintf("/user/%s/submitted.json", url.PathEscape(name))
	return c.paginate(ctx, path, url.Values{"raw_json": {"1"}}, limit)
}

// PostByURL implements Scraper. The permalink's JSON form is an array whose
// first listing holds the post itself.
func (c *PublicClient) PostByURL(ctx context.Context, raw string) (*domain.PostRecord, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, domain.Wrap(domain.KindValidation, "parse post url", err)
	}
	path := strings.TrimSuffix(u.Path, "/") + ".json"

	body, err := c.get(ctx, path, url.Values{"raw_json": {"1"}})
	if err != nil {
		return nil, err
	}

	var listings []listingResponse
	if err := json.Unmarshal(body, &listings); err != nil {
		// Share links resolve to a single listing rather than the pair.
		var single listingResponse
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			return nil, domain.Wrap(domain.KindProcessing, "decode post", err)
		}
		listings = []listingResponse{single}
	}
	if len(listings) == 0 {
		return nil, domain.NewRecord(domain.KindTargetNotFound, "no post at "+raw)
	}
	recs := toRecords(listings[0].Data.Children, c.now())
	if len(recs) == 0 {
		return nil, domain.NewRecord(domain.KindTargetNotFound, "no post at "+raw)
	}
	return &recs[0], nil
}

func (c *PublicClient) paginate(ctx context.Context, path string, query url.Values, limit int) ([]domain.PostRecord, error) {
	return walkListing(ctx, c.get, path, query, limit, c.now)
}

// get performs one rate-limited, retried GET and returns the body.
func (c *PublicClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	full := c.base + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	opts := c.retry
	opts.OnRetry = func(attempt int, err error) {
		c.logger.Warn("retrying request", "url", full, "attempt", attempt, "error", err)
	}
	result := fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[[]byte] {
		var body []byte
		err := c.coord.Do(ctx, resilience.ClassPublic, func(ctx context.Context) error {
			var err error
			body, err = c.doGet(ctx, full)
			return err
		})
		return fn.FromPair(body, err)
	})
	return result.Unwrap()
}

func (c *PublicClient) doGet(ctx context.Context, full string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindValidation, "build request", err)
	}
	req.Header.Set("User-Agent", c.agent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindNetwork, "get "+full, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, statusError(resp.StatusCode, full)
	}
	return io.ReadAll(resp.Body)
}
