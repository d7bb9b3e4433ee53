// Package acquire resolves user-supplied target strings and fetches their
// posts concurrently with per-target isolation, timeouts, and retries.
package acquire

import (
	"strings"

	"github.com/lurkhq/lurk/engine/domain"
)

// Resolve parses one raw target into a typed TargetInfo. Subreddit targets
// inherit the configured default listing and period.
func Resolve(raw, defaultListing, defaultPeriod string) (domain.TargetInfo, error) {
	trimmed := strings.TrimSpace(raw)
	info := domain.TargetInfo{Kind: domain.TargetUnknown, Original: raw}
	if trimmed == "" {
		return info, domain.NewRecord(domain.KindValidation, "empty target")
	}

	lower := strings.ToLower(trimmed)
	switch {
	case lower == "saved":
		info.Kind = domain.TargetSaved
		info.Value = "saved"
	case lower == "upvoted":
		info.Kind = domain.TargetUpvoted
		info.Value = "upvoted"
	case hasAnyPrefix(trimmed, "u/", "/u/"):
		name := trimPrefixes(trimmed, "/u/", "u/")
		if name == "" || !domain.BareSubredditName(name) {
			return info, domain.NewRecord(domain.KindValidation, "invalid user target "+raw)
		}
		info.Kind = domain.TargetUser
		info.Value = name
	case hasAnyPrefix(trimmed, "r/", "/r/"):
		name := trimPrefixes(trimmed, "/r/", "r/")
		if name == "" || !domain.BareSubredditName(name) {
			return info, domain.NewRecord(domain.KindValidation, "invalid subreddit target "+raw)
		}
		info.Kind = domain.TargetSubreddit
		info.Value = name
	case domain.IsPlatformURL(trimmed):
		info.Kind = domain.TargetURL
		info.Value = trimmed
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		return info, domain.NewRecord(domain.KindValidation, "not a platform url: "+raw)
	case domain.BareSubredditName(trimmed):
		info.Kind = domain.TargetSubreddit
		info.Value = trimmed
	default:
		return info, domain.NewRecord(domain.KindValidation, "unrecognized target "+raw)
	}

	if info.Kind == domain.TargetSubreddit {
		info.NormalizeListing(defaultListing, defaultPeriod)
	}
	return info, nil
}

// ResolveAll resolves every raw target, returning resolved targets and the
// per-input errors for the ones that failed.
func ResolveAll(raws []string, defaultListing, defaultPeriod string) ([]domain.TargetInfo, map[string]error) {
	targets := make([]domain.TargetInfo, 0, len(raws))
	failed := make(map[string]error)
	for _, raw := range raws {
		info, err := Resolve(raw, defaultListing, defaultPeriod)
		if err != nil {
			failed[raw] = err
			continue
		}
		targets = append(targets, info)
	}
	return targets, failed
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func trimPrefixes(s string, prefixes ...string) string {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return strings.TrimPrefix(s, p)
		}
	}
	return s
}
