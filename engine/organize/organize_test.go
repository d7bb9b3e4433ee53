package organize

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/engine/pipeline"
	"github.com/lurkhq/lurk/internal/config"
)

func writeTemp(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStageMovesIntoSubredditLayout(t *testing.T) {
	out := t.TempDir()
	img := writeTemp(t, out, "p1.jpg", "img")
	sidecar := writeTemp(t, out, "p1.jpg.json", "{}")

	cfg := &config.Config{OutputDir: out, Organize: true}
	run := pipeline.NewContext(cfg, nil)
	defer run.Bus.Close()
	run.Posts = []domain.PostRecord{
		{
			ID: "p1", Subreddit: "pics",
			Annotations: domain.Annotations{
				OutputPaths: []string{img},
				SidecarPath: sidecar,
			},
		},
		{ID: "p2", Subreddit: "pics"}, // no outputs, untouched
	}

	stage := NewStage(nil)
	res, err := stage.Process(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Data["moved"] != 2 {
		t.Fatalf("result: %+v", res.Data)
	}

	want := filepath.Join(out, "pics", "p1", "p1.jpg")
	if run.Posts[0].Annotations.OutputPaths[0] != want {
		t.Fatalf("annotation: %v", run.Posts[0].Annotations.OutputPaths)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatal("file not moved")
	}
	if _, err := os.Stat(img); !os.IsNotExist(err) {
		t.Fatal("original must be gone")
	}
	if run.Posts[0].Annotations.SidecarPath != filepath.Join(out, "pics", "p1", "p1.jpg.json") {
		t.Fatalf("sidecar: %s", run.Posts[0].Annotations.SidecarPath)
	}
}

func TestStageDisabledIsNoop(t *testing.T) {
	out := t.TempDir()
	img := writeTemp(t, out, "p1.jpg", "img")

	cfg := &config.Config{OutputDir: out, Organize: false}
	run := pipeline.NewContext(cfg, nil)
	defer run.Bus.Close()
	run.Posts = []domain.PostRecord{
		{ID: "p1", Subreddit: "pics", Annotations: domain.Annotations{OutputPaths: []string{img}}},
	}

	res, err := NewStage(nil).Process(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	if res.Data["moved"] != 0 {
		t.Fatalf("moved: %v", res.Data["moved"])
	}
	if _, err := os.Stat(img); err != nil {
		t.Fatal("file must stay in place")
	}
}

func TestStageMissingSourceKeepsGoing(t *testing.T) {
	out := t.TempDir()
	real := writeTemp(t, out, "ok.jpg", "x")

	cfg := &config.Config{OutputDir: out, Organize: true}
	run := pipeline.NewContext(cfg, nil)
	defer run.Bus.Close()
	run.Posts = []domain.PostRecord{
		{ID: "gone", Subreddit: "a", Annotations: domain.Annotations{OutputPaths: []string{filepath.Join(out, "missing.jpg")}}},
		{ID: "ok", Subreddit: "a", Annotations: domain.Annotations{OutputPaths: []string{real}}},
	}

	res, err := NewStage(nil).Process(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("partial stage must stay successful")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors: %v", res.Errors)
	}
	if _, err := os.Stat(filepath.Join(out, "a", "ok", "ok.jpg")); err != nil {
		t.Fatal("second post must still be organized")
	}
}
