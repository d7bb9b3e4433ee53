package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/engine/pipeline"
	"github.com/lurkhq/lurk/internal/config"
	"github.com/lurkhq/lurk/pkg/metrics"
)

func scored(id string, score int) domain.PostRecord {
	return domain.PostRecord{ID: id, Title: "post " + id, Score: score, CreatedUTC: 1700000000}
}

func intp(v int) *int { return &v }

func TestAndChainRejects(t *testing.T) {
	chain := NewChain(ModeAnd, nil,
		&ScoreFilter{Min: intp(10), Max: intp(100)})
	posts := []domain.PostRecord{scored("a", 5), scored("b", 50), scored("c", 500)}

	survivors, decisions, warnings := chain.Apply(posts)
	if len(survivors) != 1 || survivors[0].ID != "b" {
		t.Fatalf("survivors: %+v", survivors)
	}
	if len(decisions) != 3 {
		t.Fatalf("expected one decision per post, got %d", len(decisions))
	}
	want := []bool{false, true, false}
	for i, d := range decisions {
		if d.Passed != want[i] {
			t.Fatalf("decision %d: %+v", i, d)
		}
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

func TestEmptyChainPassesEverything(t *testing.T) {
	for _, mode := range []Mode{ModeAnd, ModeOr} {
		chain := NewChain(mode, nil)
		survivors, _, _ := chain.Apply([]domain.PostRecord{scored("a", 1), scored("b", 2)})
		if len(survivors) != 2 {
			t.Fatalf("mode %s: empty chain must pass all posts", mode)
		}
	}
}

func TestOrChainPassesOnAnyFilter(t *testing.T) {
	chain := NewChain(ModeOr, nil,
		&ScoreFilter{Min: intp(1000)},
		&NSFWFilter{Mode: "only"})
	posts := []domain.PostRecord{
		{ID: "high", Score: 2000},
		{ID: "nsfw", Score: 1, IsNSFW: true},
		{ID: "neither", Score: 1},
	}
	survivors, _, _ := chain.Apply(posts)
	if len(survivors) != 2 {
		t.Fatalf("survivors: %+v", survivors)
	}
}

// brokenFilter always errors; posts must be admitted with a warning.
type brokenFilter struct{}

func (brokenFilter) Name() string                              { return "broken" }
func (brokenFilter) ValidateConfig() []error                   { return nil }
func (brokenFilter) Match(*domain.PostRecord) (bool, error)    { return false, errors.New("boom") }

func TestFilterErrorAdmitsPost(t *testing.T) {
	chain := NewChain(ModeAnd, nil, brokenFilter{})
	survivors, decisions, warnings := chain.Apply([]domain.PostRecord{scored("a", 1)})
	if len(survivors) != 1 {
		t.Fatal("erroring filter must not drop the post")
	}
	if !decisions[0].Passed {
		t.Fatal("decision must record a pass")
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
}

func TestAndMonotonicity(t *testing.T) {
	// A post passing the full AND set passes every subset.
	full := []Filter{
		&ScoreFilter{Min: intp(10)},
		&NSFWFilter{Mode: "exclude"},
		&DomainFilter{Block: []string{"spam.example"}},
	}
	post := domain.PostRecord{ID: "p", Score: 50, Domain: "imgur.com"}

	fullChain := NewChain(ModeAnd, nil, full...)
	if s, _, _ := fullChain.Apply([]domain.PostRecord{post}); len(s) != 1 {
		t.Fatal("post must pass the full chain")
	}
	for drop := range full {
		subset := make([]Filter, 0, len(full)-1)
		for i, f := range full {
			if i != drop {
				subset = append(subset, f)
			}
		}
		chain := NewChain(ModeAnd, nil, subset...)
		if s, _, _ := chain.Apply([]domain.PostRecord{post}); len(s) != 1 {
			t.Fatalf("dropping filter %d must not reject the post", drop)
		}
	}
}

func TestKeywordFilter(t *testing.T) {
	f := &KeywordFilter{Include: []string{"golang"}, Exclude: []string{"crypto"}}
	if errs := f.ValidateConfig(); len(errs) != 0 {
		t.Fatal(errs)
	}

	cases := []struct {
		title string
		text  string
		want  bool
	}{
		{"Why Golang rocks", "", true},
		{"Why Rust rocks", "", false},
		{"golang and crypto", "", false},
		{"title", "long selftext about golang", true},
	}
	for _, tc := range cases {
		post := domain.PostRecord{ID: "x", Title: tc.title, SelfText: tc.text}
		got, err := f.Match(&post)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("%q/%q: got %v", tc.title, tc.text, got)
		}
	}
}

func TestKeywordWholeWords(t *testing.T) {
	f := &KeywordFilter{Include: []string{"go"}, WholeWords: true}
	if errs := f.ValidateConfig(); len(errs) != 0 {
		t.Fatal(errs)
	}
	yes := domain.PostRecord{ID: "a", Title: "learning go today"}
	no := domain.PostRecord{ID: "b", Title: "goose migration"}
	if ok, _ := f.Match(&yes); !ok {
		t.Fatal("whole word present must pass")
	}
	if ok, _ := f.Match(&no); ok {
		t.Fatal("substring inside a word must not pass")
	}
}

func TestDateFilterBounds(t *testing.T) {
	f := &DateFilter{From: "2023-11-01", To: "2023-12-01"}
	if errs := f.ValidateConfig(); len(errs) != 0 {
		t.Fatal(errs)
	}
	in := domain.PostRecord{ID: "in", CreatedUTC: 1700000000} // 2023-11-14
	out := domain.PostRecord{ID: "out", CreatedUTC: 1640000000} // 2021-12-20
	if ok, _ := f.Match(&in); !ok {
		t.Fatal("in-range post must pass")
	}
	if ok, _ := f.Match(&out); ok {
		t.Fatal("out-of-range post must fail")
	}
}

func TestDomainFilterSuffixes(t *testing.T) {
	f := &DomainFilter{Allow: []string{"imgur.com"}}
	yes := domain.PostRecord{Domain: "i.imgur.com"}
	no := domain.PostRecord{Domain: "example.com"}
	if ok, _ := f.Match(&yes); !ok {
		t.Fatal("subdomain of allowed domain must pass")
	}
	if ok, _ := f.Match(&no); ok {
		t.Fatal("unlisted domain must fail when allow list set")
	}
}

func TestMediaTypeFilter(t *testing.T) {
	f := &MediaTypeFilter{AllowTypes: []string{"image"}, BlockExts: []string{"gif"}}
	jpg := domain.PostRecord{MediaURL: "https://i.redd.it/a.jpg"}
	gif := domain.PostRecord{MediaURL: "https://i.redd.it/a.gif"}
	vid := domain.PostRecord{IsVideo: true, MediaURL: "https://v.redd.it/x"}
	if ok, _ := f.Match(&jpg); !ok {
		t.Fatal("jpg image must pass")
	}
	if ok, _ := f.Match(&gif); ok {
		t.Fatal("blocked extension must fail")
	}
	if ok, _ := f.Match(&vid); ok {
		t.Fatal("video must fail the image-only filter")
	}
}

func TestStageShrinksBatch(t *testing.T) {
	cfg := &config.Config{
		MinScore:          intp(10),
		NSFWMode:          config.NSFWExclude,
		FilterComposition: "and",
	}
	run := pipeline.NewContext(cfg, nil)
	defer run.Bus.Close()
	run.Posts = []domain.PostRecord{scored("a", 5), scored("b", 50)}

	stage := NewStage(nil, nil)
	res, err := stage.Process(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	if len(run.Posts) != 1 || run.Posts[0].ID != "b" {
		t.Fatalf("posts: %+v", run.Posts)
	}
	if res.Data["posts_before"] != 2 || res.Data["posts_after"] != 1 {
		t.Fatalf("data: %+v", res.Data)
	}
	if len(run.Posts) > res.Processed {
		t.Fatal("filter output may never exceed its input")
	}
}

func TestStageCountsFilteredPosts(t *testing.T) {
	cfg := &config.Config{
		MinScore:          intp(10),
		NSFWMode:          config.NSFWExclude,
		FilterComposition: "and",
	}
	run := pipeline.NewContext(cfg, nil)
	defer run.Bus.Close()
	run.Posts = []domain.PostRecord{scored("a", 5), scored("b", 50), scored("c", 3)}

	met := metrics.NewSet(metrics.New())
	stage := NewStage(met, nil)
	if _, err := stage.Process(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if got := met.PostsFiltered.Value(); got != 2 {
		t.Fatalf("posts_filtered: %d", got)
	}
}

func TestStageRejectsBadFilterConfig(t *testing.T) {
	cfg := &config.Config{
		MinScore:          intp(100),
		MaxScore:          intp(10),
		NSFWMode:          config.NSFWExclude,
		FilterComposition: "and",
	}
	run := pipeline.NewContext(cfg, nil)
	defer run.Bus.Close()

	stage := NewStage(nil, nil)
	if _, err := stage.Process(context.Background(), run); err == nil {
		t.Fatal("invalid filter config must fail the stage")
	}
}
