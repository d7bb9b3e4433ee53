package filter

import (
	"log/slog"
	"strings"
	"time"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/internal/config"
)

// Mode is the chain composition.
type Mode string

const (
	ModeAnd Mode = "and"
	ModeOr  Mode = "or"
)

// Decision records one post's outcome through the chain.
type Decision struct {
	PostID   string        `json:"post_id"`
	Passed   bool          `json:"passed"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Chain composes filters with AND or OR semantics. An empty chain passes
// everything.
type Chain struct {
	filters []Filter
	mode    Mode
	logger  *slog.Logger
	now     func() time.Time
}

// NewChain creates a Chain. Unknown modes default to AND.
func NewChain(mode Mode, logger *slog.Logger, filters ...Filter) *Chain {
	if mode != ModeOr {
		mode = ModeAnd
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{filters: filters, mode: mode, logger: logger, now: time.Now}
}

// Len returns the number of filters.
func (c *Chain) Len() int { return len(c.filters) }

// Validate collects configuration errors from every filter.
func (c *Chain) Validate() []error {
	var errs []error
	for _, f := range c.filters {
		errs = append(errs, f.ValidateConfig()...)
	}
	return errs
}

// Apply runs every post through the chain and returns the survivors, one
// decision per input post, and warnings for filters that errored.
func (c *Chain) Apply(posts []domain.PostRecord) ([]domain.PostRecord, []Decision, []string) {
	survivors := make([]domain.PostRecord, 0, len(posts))
	decisions := make([]Decision, 0, len(posts))
	var warnings []string

	for i := range posts {
		post := &posts[i]
		start := c.now()
		passed, reason, warns := c.evaluate(post)
		decisions = append(decisions, Decision{
			PostID:   post.ID,
			Passed:   passed,
			Reason:   reason,
			Duration: c.now().Sub(start),
		})
		warnings = append(warnings, warns...)
		if passed {
			survivors = append(survivors, *post)
		}
	}
	return survivors, decisions, warnings
}

// evaluate runs one post through every filter. A filter error counts as an
// uncertain pass for that filter.
func (c *Chain) evaluate(post *domain.PostRecord) (bool, string, []string) {
	if len(c.filters) == 0 {
		return true, "", nil
	}

	var warnings []string
	var failedNames []string
	anyPassed := false
	for _, f := range c.filters {
		ok, err := f.Match(post)
		if err != nil {
			warnings = append(warnings,
				"filter "+f.Name()+" errored on post "+post.ID+": "+err.Error())
			c.logger.Warn("filter error, including post",
				"filter", f.Name(), "post", post.ID, "error", err)
			ok = true
		}
		if ok {
			anyPassed = true
			if c.mode == ModeOr {
				return true, "passed " + f.Name(), warnings
			}
		} else {
			failedNames = append(failedNames, f.Name())
			// Keep evaluating so the decision names every failed filter.
		}
	}

	if c.mode == ModeOr {
		if anyPassed {
			return true, "", warnings
		}
		return false, "no filter passed", warnings
	}
	if len(failedNames) > 0 {
		return false, "failed " + strings.Join(failedNames, ","), warnings
	}
	return true, "", warnings
}

// FromConfig builds the chain the configuration asks for. Filters with no
// configured inputs are omitted; the NSFW filter is always present.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Chain {
	var filters []Filter
	if cfg.MinScore != nil || cfg.MaxScore != nil {
		filters = append(filters, &ScoreFilter{Min: cfg.MinScore, Max: cfg.MaxScore})
	}
	if cfg.DateFrom != "" || cfg.DateTo != "" {
		filters = append(filters, &DateFilter{From: cfg.DateFrom, To: cfg.DateTo})
	}
	if len(cfg.KeywordsInclude) > 0 || len(cfg.KeywordsExclude) > 0 {
		filters = append(filters, &KeywordFilter{
			Include:       cfg.KeywordsInclude,
			Exclude:       cfg.KeywordsExclude,
			CaseSensitive: cfg.KeywordCaseSensitive,
			Regex:         cfg.KeywordRegex,
			WholeWords:    cfg.KeywordWholeWords,
		})
	}
	if len(cfg.DomainsAllow) > 0 || len(cfg.DomainsBlock) > 0 {
		filters = append(filters, &DomainFilter{Allow: cfg.DomainsAllow, Block: cfg.DomainsBlock})
	}
	if len(cfg.MediaTypes) > 0 || len(cfg.ExcludeMediaTypes) > 0 ||
		len(cfg.FileExtensions) > 0 || len(cfg.ExcludeFileExtensions) > 0 {
		filters = append(filters, &MediaTypeFilter{
			AllowTypes: cfg.MediaTypes,
			BlockTypes: cfg.ExcludeMediaTypes,
			AllowExts:  cfg.FileExtensions,
			BlockExts:  cfg.ExcludeFileExtensions,
		})
	}
	if cfg.NSFWMode != "" && cfg.NSFWMode != config.NSFWInclude {
		filters = append(filters, &NSFWFilter{Mode: cfg.NSFWMode})
	}
	return NewChain(Mode(strings.ToLower(cfg.FilterComposition)), logger, filters...)
}
