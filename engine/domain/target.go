package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// TargetKind is the variant tag of a resolved acquisition target.
type TargetKind string

const (
	TargetUser      TargetKind = "user"
	TargetSubreddit TargetKind = "subreddit"
	TargetSaved     TargetKind = "saved"
	TargetUpvoted   TargetKind = "upvoted"
	TargetURL       TargetKind = "url"
	TargetUnknown   TargetKind = "unknown"
)

// Listing orders for subreddit targets.
const (
	ListingHot           = "hot"
	ListingNew           = "new"
	ListingTop           = "top"
	ListingControversial = "controversial"
	ListingRising        = "rising"
)

// Periods scope top/controversial listings.
var validPeriods = map[string]bool{
	"hour": true, "day": true, "week": true, "month": true, "year": true, "all": true,
}

var validListings = map[string]bool{
	ListingHot: true, ListingNew: true, ListingTop: true,
	ListingControversial: true, ListingRising: true,
}

var bareNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// TargetInfo is a resolved acquisition target.
type TargetInfo struct {
	Kind     TargetKind        `json:"kind"`
	Value    string            `json:"value"`
	Original string            `json:"original"`
	Listing  string            `json:"listing,omitempty"`
	Period   string            `json:"period,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ValidListing reports whether s is a known listing order.
func ValidListing(s string) bool { return validListings[s] }

// ValidPeriod reports whether s is a known time period.
func ValidPeriod(s string) bool { return validPeriods[s] }

// BareSubredditName reports whether s can be treated as a bare subreddit name.
func BareSubredditName(s string) bool { return bareNamePattern.MatchString(s) }

// Canonical renders the target back to its canonical input string.
// Resolving Canonical() again yields an identical TargetInfo.
func (t TargetInfo) Canonical() string {
	switch t.Kind {
	case TargetUser:
		return "u/" + t.Value
	case TargetSubreddit:
		return "r/" + t.Value
	case TargetSaved, TargetUpvoted:
		return string(t.Kind)
	case TargetURL:
		return t.Value
	default:
		return t.Original
	}
}

// RequiresAuth reports whether the target needs an authenticated scraper.
func (t TargetInfo) RequiresAuth() bool {
	return t.Kind == TargetSaved || t.Kind == TargetUpvoted
}

func (t TargetInfo) String() string {
	if t.Kind == TargetSubreddit && t.Listing != "" {
		return fmt.Sprintf("r/%s (%s)", t.Value, t.Listing)
	}
	return t.Canonical()
}

// NormalizeListing maps unknown listings to "new" and fills the default
// period for top/controversial.
func (t *TargetInfo) NormalizeListing(defaultListing, defaultPeriod string) {
	if t.Kind != TargetSubreddit {
		return
	}
	if t.Listing == "" {
		t.Listing = defaultListing
	}
	if !validListings[t.Listing] {
		t.Listing = ListingNew
	}
	if t.Listing == ListingTop || t.Listing == ListingControversial {
		if t.Period == "" {
			t.Period = defaultPeriod
		}
		if !validPeriods[t.Period] {
			t.Period = "all"
		}
	} else {
		t.Period = ""
	}
}

// IsPlatformURL reports whether raw looks like an absolute URL on the
// upstream platform.
func IsPlatformURL(raw string) bool {
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "https://") && !strings.HasPrefix(lower, "http://") {
		return false
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(lower, "https://"), "http://")
	host, _, _ := strings.Cut(rest, "/")
	return host == "reddit.com" || host == "www.reddit.com" ||
		host == "old.reddit.com" || host == "redd.it"
}
