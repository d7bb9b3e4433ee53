// Package filter prunes the acquired post batch through a chain of
// predicate filters with AND or OR composition. A filter that errors never
// drops a post: the post is admitted and a warning recorded.
package filter

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lurkhq/lurk/engine/domain"
)

// Filter is one predicate over a post.
type Filter interface {
	Name() string
	ValidateConfig() []error
	// Match reports whether the post passes. An error means the filter
	// could not decide.
	Match(post *domain.PostRecord) (bool, error)
}

// ScoreFilter passes posts whose score lies within the configured bounds.
// A nil bound is ignored.
type ScoreFilter struct {
	Min *int
	Max *int
}

func (f *ScoreFilter) Name() string { return "score" }

func (f *ScoreFilter) ValidateConfig() []error {
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return []error{domain.NewRecord(domain.KindConfiguration,
			fmt.Sprintf("score filter: min %d exceeds max %d", *f.Min, *f.Max))}
	}
	return nil
}

func (f *ScoreFilter) Match(post *domain.PostRecord) (bool, error) {
	if f.Min != nil && post.Score < *f.Min {
		return false, nil
	}
	if f.Max != nil && post.Score > *f.Max {
		return false, nil
	}
	return true, nil
}

// DateFilter passes posts created within [From, To], inclusive. Bounds
// accept ISO-8601 dates, ISO timestamps, or epoch seconds.
type DateFilter struct {
	From string
	To   string

	from time.Time
	to   time.Time
}

func (f *DateFilter) Name() string { return "date" }

func (f *DateFilter) ValidateConfig() []error {
	var errs []error
	var err error
	if f.From != "" {
		if f.from, err = parseWhen(f.From); err != nil {
			errs = append(errs, domain.NewRecord(domain.KindConfiguration,
				"date filter: bad from value "+f.From))
		}
	}
	if f.To != "" {
		if f.to, err = parseWhen(f.To); err != nil {
			errs = append(errs, domain.NewRecord(domain.KindConfiguration,
				"date filter: bad to value "+f.To))
		}
	}
	if !f.from.IsZero() && !f.to.IsZero() && f.from.After(f.to) {
		errs = append(errs, domain.NewRecord(domain.KindConfiguration,
			"date filter: from is after to"))
	}
	return errs
}

func (f *DateFilter) Match(post *domain.PostRecord) (bool, error) {
	created := post.CreatedAt()
	if !f.from.IsZero() && created.Before(f.from) {
		return false, nil
	}
	if !f.to.IsZero() && created.After(f.to) {
		return false, nil
	}
	return true, nil
}

func parseWhen(s string) (time.Time, error) {
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}
	for _, layout := range []string{domain.ISOFormat, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

// KeywordFilter requires every include term and forbids every exclude term
// in the post's title and selftext.
type KeywordFilter struct {
	Include       []string
	Exclude       []string
	CaseSensitive bool
	Regex         bool
	WholeWords    bool

	includeRE []*regexp.Regexp
	excludeRE []*regexp.Regexp
}

func (f *KeywordFilter) Name() string { return "keyword" }

func (f *KeywordFilter) ValidateConfig() []error {
	var errs []error
	f.includeRE = f.includeRE[:0]
	f.excludeRE = f.excludeRE[:0]
	compile := func(terms []string, dst *[]*regexp.Regexp) {
		for _, term := range terms {
			re, err := f.compile(term)
			if err != nil {
				errs = append(errs, domain.NewRecord(domain.KindConfiguration,
					"keyword filter: bad pattern "+term))
				continue
			}
			*dst = append(*dst, re)
		}
	}
	compile(f.Include, &f.includeRE)
	compile(f.Exclude, &f.excludeRE)
	return errs
}

func (f *KeywordFilter) compile(term string) (*regexp.Regexp, error) {
	pattern := term
	if !f.Regex {
		pattern = regexp.QuoteMeta(term)
	}
	if f.WholeWords {
		pattern = `\b(?:` + pattern + `)\b`
	}
	if !f.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

func (f *KeywordFilter) Match(post *domain.PostRecord) (bool, error) {
	if len(f.includeRE)+len(f.excludeRE) != len(f.Include)+len(f.Exclude) {
		if errs := f.ValidateConfig(); len(errs) > 0 {
			return false, errs[0]
		}
	}
	text := post.SearchText()
	for _, re := range f.includeRE {
		if !re.MatchString(text) {
			return false, nil
		}
	}
	for _, re := range f.excludeRE {
		if re.MatchString(text) {
			return false, nil
		}
	}
	return true, nil
}

// DomainFilter passes posts whose link domain is allowed and not blocked.
type DomainFilter struct {
	Allow []string
	Block []string
}

func (f *DomainFilter) Name() string { return "domain" }

func (f *DomainFilter) ValidateConfig() []error { return nil }

func (f *DomainFilter) Match(post *domain.PostRecord) (bool, error) {
	d := strings.ToLower(post.Domain)
	if len(f.Allow) > 0 && !containsDomain(f.Allow, d) {
		return false, nil
	}
	if containsDomain(f.Block, d) {
		return false, nil
	}
	return true, nil
}

func containsDomain(list []string, d string) bool {
	for _, entry := range list {
		entry = strings.ToLower(entry)
		if d == entry || strings.HasSuffix(d, "."+entry) {
			return true
		}
	}
	return false
}

// MediaTypeFilter constrains the detected content type and the media URL's
// file extension.
type MediaTypeFilter struct {
	AllowTypes []string
	BlockTypes []string
	AllowExts  []string
	BlockExts  []string
}

func (f *MediaTypeFilter) Name() string { return "media_type" }

func (f *MediaTypeFilter) ValidateConfig() []error {
	known := []string{"image", "video", "gallery", "text", "poll", "crosspost", "external"}
	var errs []error
	for _, t := range append(slices.Clone(f.AllowTypes), f.BlockTypes...) {
		if !slices.Contains(known, strings.ToLower(t)) {
			errs = append(errs, domain.NewRecord(domain.KindConfiguration,
				"media_type filter: unknown type "+t))
		}
	}
	return errs
}

func (f *MediaTypeFilter) Match(post *domain.PostRecord) (bool, error) {
	ct := string(domain.DetectContentType(post))
	if len(f.AllowTypes) > 0 && !containsFold(f.AllowTypes, ct) {
		return false, nil
	}
	if containsFold(f.BlockTypes, ct) {
		return false, nil
	}

	ext := urlExt(post.MediaURL)
	if len(f.AllowExts) > 0 && !containsExt(f.AllowExts, ext) {
		return false, nil
	}
	if ext != "" && containsExt(f.BlockExts, ext) {
		return false, nil
	}
	return true, nil
}

func urlExt(raw string) string {
	lower := strings.ToLower(raw)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	if i := strings.LastIndexByte(lower, '.'); i >= 0 && !strings.ContainsRune(lower[i:], '/') {
		return lower[i:]
	}
	return ""
}

func containsFold(list []string, v string) bool {
	for _, entry := range list {
		if strings.EqualFold(strings.TrimSpace(entry), v) {
			return true
		}
	}
	return false
}

// containsExt compares extensions with or without the leading dot.
func containsExt(list []string, ext string) bool {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, entry := range list {
		if strings.TrimPrefix(strings.ToLower(strings.TrimSpace(entry)), ".") == ext {
			return true
		}
	}
	return false
}

// NSFWFilter applies the configured over-18 policy.
type NSFWFilter struct {
	Mode string // include | exclude | only
}

func (f *NSFWFilter) Name() string { return "nsfw" }

func (f *NSFWFilter) ValidateConfig() []error {
	switch f.Mode {
	case "include", "exclude", "only":
		return nil
	}
	return []error{domain.NewRecord(domain.KindConfiguration,
		"nsfw filter: unknown mode "+f.Mode)}
}

func (f *NSFWFilter) Match(post *domain.PostRecord) (bool, error) {
	switch f.Mode {
	case "exclude":
		return !post.IsNSFW, nil
	case "only":
		return post.IsNSFW, nil
	default:
		return true, nil
	}
}
