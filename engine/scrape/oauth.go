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
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/pkg/fn"
	"github.com/lurkhq/lurk/pkg/resilience"
)

const (
	oauthTokenURL = "https://www.reddit.com/api/v1/access_token"
	oauthBaseURL  = "https://oauth.reddit.com"

	// tokenSlack refreshes tokens slightly before upstream expiry.
	tokenSlack = 60 * time.Second
)

// Credentials are the script-app password-grant inputs.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

func (c Credentials) validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return domain.NewRecord(domain.KindConfiguration,
			"missing credentials: "+strings.Join(missing, ", "))
	}
	return nil
}

// OAuthOpts configures the authenticated client.
type OAuthOpts struct {
	Credentials Credentials
	TokenURL    string // defaults to the public token endpoint
	BaseURL     string // defaults to the OAuth API host
	UserAgent   string
	Timeout     time.Duration
	Coord       *resilience.Coordinator
	Logger      *slog.Logger
}

// OAuthClient reads the authenticated API, including the saved and upvoted
// feeds. Tokens are acquired lazily and refreshed before expiry.
type OAuthClient struct {
	creds    Credentials
	tokenURL string
	base     string
	agent    string
	client   *http.Client
	coord    *resilience.Coordinator
	logger   *slog.Logger
	now      func() time.Time
	retry    fn.RetryOpts

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewOAuthClient creates an OAuthClient. Credentials are validated eagerly
// so a misconfigured run fails before any network traffic.
func NewOAuthClient(opts OAuthOpts) (*OAuthClient, error) {
	if err := opts.Credentials.validate(); err != nil {
		return nil, err
	}
	if opts.TokenURL == "" {
		opts.TokenURL = oauthTokenURL
	}
	if opts.BaseURL == "" {
		opts.BaseURL = oauthBaseURL
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
	return &OAuthClient{
		creds:    opts.Credentials,
		tokenURL: opts.TokenURL,
		base:     strings.TrimSuffix(opts.BaseURL, "/"),
		agent:    opts.UserAgent,
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
	}, nil
}

// SubredditPosts implements Scraper.
func (c *OAuthClient) SubredditPosts(ctx context.Context, name, listing, period string, limit int) ([]domain.PostRecord, error) {
	path := fmt.Sprintf("/r/%s/%s.json", url.PathEscape(name), listing)
	query := url.Values{"raw_json": {"1"}}
	if period != "" {
		query.Set("t", period)
	}
	return walkListing(ctx, c.get, path, query, limit, c.now)
}

// UserPosts implements Scraper.
func (c *OAuthClient) UserPosts(ctx context.Context, name string, limit int) ([]domain.PostRecord, error) {
	path := fmt.Sprintf("/user/%s/submitted.json", url.PathEscape(name))
	return walkListing(ctx, c.get, path, url.Values{"raw_json": {"1"}}, limit, c.now)
}

// PostByURL implements Scraper.
func (c *OAuthClient) PostByURL(ctx context.Context, raw string) (*domain.PostRecord, error) {
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

// Saved implements AuthedScraper.
func (c *OAuthClient) Saved(ctx context.Context, limit int) ([]domain.PostRecord, error) {
	path := fmt.Sprintf("/user/%s/saved.json", url.PathEscape(c.creds.Username))
	return walkListing(ctx, c.get, path, url.Values{"raw_json": {"1"}, "type": {"links"}}, limit, c.now)
}

// Upvoted implements AuthedScraper.
func (c *OAuthClient) Upvoted(ctx context.Context, limit int) ([]domain.PostRecord, error) {
	path := fmt.Sprintf("/user/%s/upvoted.json", url.PathEscape(c.creds.Username))
	return walkListing(ctx, c.get, path, url.Values{"raw_json": {"1"}}, limit, c.now)
}

// ensureToken returns a valid bearer token, fetching one when absent or
// near expiry.
func (c *OAuthClient) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expires.Add(-tokenSlack)) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.creds.Username},
		"password":   {c.creds.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", domain.Wrap(domain.KindValidation, "build token request", err)
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.agent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", domain.Wrap(domain.KindNetwork, "token request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", domain.NewRecord(domain.KindAuthentication,
			fmt.Sprintf("token request failed with http %d", resp.StatusCode))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", domain.Wrap(domain.KindAuthentication, "decode token", err)
	}
	if tok.Error != "" || tok.AccessToken == "" {
		return "", domain.NewRecord(domain.KindAuthentication, "token rejected: "+tok.Error)
	}
	c.token = tok.AccessToken
	c.expires = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.logger.Debug("oauth token refreshed", "expires_in", tok.ExpiresIn)
	return c.token, nil
}

// get performs one rate-limited, retried, authenticated GET.
func (c *OAuthClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
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
		err := c.coord.Do(ctx, resilience.ClassAPI, func(ctx context.Context) error {
			var err error
			body, err = c.doGet(ctx, full)
			return err
		})
		return fn.FromPair(body, err)
	})
	return result.Unwrap()
}

func (c *OAuthClient) doGet(ctx context.Context, full string) ([]byte, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindValidation, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.agent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindNetwork, "get "+full, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token may have been revoked; drop it so the next attempt refreshes.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		io.Copy(io.Discard, resp.Body)
		return nil, statusError(resp.StatusCode, full)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, statusError(resp.StatusCode, full)
	}
	return io.ReadAll(resp.Body)
}
