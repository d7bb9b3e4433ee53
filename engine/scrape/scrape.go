// Package scrape fetches post records from the upstream platform. The public
// client reads the unauthenticated JSON listings; the OAuth client adds the
// account-scoped saved and upvoted feeds.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lurkhq/lurk/engine/domain"
)

// Scraper is the read surface every acquisition handler needs.
type Scraper interface {
	// SubredditPosts fetches up to limit posts from a subreddit listing.
	// period applies only to top and controversial listings.
	SubredditPosts(ctx context.Context, name, listing, period string, limit int) ([]domain.PostRecord, error)
	// UserPosts fetches up to limit submissions by a user.
	UserPosts(ctx context.Context, name string, limit int) ([]domain.PostRecord, error)
	// PostByURL fetches the single post a permalink points at.
	PostByURL(ctx context.Context, url string) (*domain.PostRecord, error)
}

// AuthedScraper extends Scraper with feeds that require a logged-in account.
type AuthedScraper interface {
	Scraper
	Saved(ctx context.Context, limit int) ([]domain.PostRecord, error)
	Upvoted(ctx context.Context, limit int) ([]domain.PostRecord, error)
}

// pageSize is the upstream per-request maximum.
const pageSize = 100

// getter performs one GET against a client's base URL and returns the body.
type getter func(ctx context.Context, path string, query url.Values) ([]byte, error)

// walkListing pages the after cursor until limit records are collected or
// the listing ends.
func walkListing(ctx context.Context, get getter, path string, query url.Values, limit int, now func() time.Time) ([]domain.PostRecord, error) {
	var out []domain.PostRecord
	after := ""
	for len(out) < limit {
		page := min(pageSize, limit-len(out))
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("limit", fmt.Sprint(page))
		if after != "" {
			q.Set("after", after)
		}

		body, err := get(ctx, path, q)
		if err != nil {
			return out, err
		}
		var resp listingResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return out, domain.Wrap(domain.KindProcessing, "decode listing", err)
		}
		out = append(out, toRecords(resp.Data.Children, now())...)

		after = resp.Data.After
		if after == "" || len(resp.Data.Children) == 0 {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// statusError maps an HTTP status to the error taxonomy.
func statusError(status int, url string) error {
	msg := fmt.Sprintf("http %d from %s", status, url)
	switch {
	case status == http.StatusNotFound:
		return domain.NewRecord(domain.KindTargetNotFound, msg)
	case status == http.StatusForbidden:
		return domain.NewRecord(domain.KindTargetAccessDenied, msg)
	case status == http.StatusUnauthorized:
		return domain.NewRecord(domain.KindAuthentication, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.NewRecord(domain.KindNetwork, msg)
	default:
		return domain.NewRecord(domain.KindProcessing, msg)
	}
}
