package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/engine/pipeline"
	"github.com/lurkhq/lurk/internal/config"
)

func samplePosts() []domain.PostRecord {
	return []domain.PostRecord{
		{
			ID: "aaa", Title: "first post", Author: "alice", Subreddit: "pics",
			Permalink: "https://www.reddit.com/r/pics/comments/aaa/",
			MediaURL:  "https://i.redd.it/aaa.jpg", Domain: "i.redd.it",
			CreatedUTC: 1700000000, CreatedISO: "2023-11-14T22:13:20Z",
			Score: 42, NumComments: 7,
			Annotations: domain.Annotations{HandledBy: "image", OutputPaths: []string{"/out/aaa.jpg"}},
		},
		{
			ID: "bbb", Title: "ask me anything", Author: "bob", Subreddit: "golang",
			IsSelf: true, SelfText: "hello world",
			CreatedUTC: 1700001000, CreatedISO: "2023-11-14T22:30:00Z",
			Score: 5,
		},
	}
}

func TestFilenamePattern(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	info := FormatInfo{Name: "json", Extension: ".json", SupportsCompression: true}
	got := Filename("/tmp/exports", "run", info, false, now)
	if got != filepath.Join("/tmp/exports", "run_20240309_140506.json") {
		t.Fatalf("got %q", got)
	}
	if got := Filename("/tmp", "", info, true, now); !strings.HasSuffix(got, "lurk_20240309_140506.json.lz4") {
		t.Fatalf("got %q", got)
	}
}

func TestRegistryAliases(t *testing.T) {
	reg := NewRegistry()
	for alias, want := range map[string]string{
		"json": "json", "md": "markdown", "db": "sqlite", "CSV": "csv", " sqlite3 ": "sqlite",
	} {
		e, ok := reg.Lookup(alias)
		if !ok || e.Info().Name != want {
			t.Fatalf("alias %q: got %v", alias, e)
		}
	}
	if _, ok := reg.Lookup("xml"); ok {
		t.Fatal("unknown format must not resolve")
	}
	if len(reg.Formats()) != 4 {
		t.Fatalf("formats: %v", reg.Formats())
	}
}

func TestJSONExportIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	e := &JSONExporter{}
	posts := samplePosts()

	p1 := filepath.Join(dir, "a.json")
	p2 := filepath.Join(dir, "b.json")
	if err := e.Export(context.Background(), posts, p1, Options{}); err != nil {
		t.Fatal(err)
	}
	if err := e.Export(context.Background(), posts, p2, Options{}); err != nil {
		t.Fatal(err)
	}
	b1, _ := os.ReadFile(p1)
	b2, _ := os.ReadFile(p2)
	if !bytes.Equal(b1, b2) {
		t.Fatal("identical batches must produce identical bytes")
	}

	var env jsonEnvelope
	if err := json.Unmarshal(b1, &env); err != nil {
		t.Fatal(err)
	}
	if env.Count != 2 || len(env.Posts) != 2 || env.Posts[0].ID != "aaa" {
		t.Fatalf("envelope: %+v", env)
	}
}

func TestJSONExportCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.json.lz4")
	e := &JSONExporter{}
	if err := e.Export(context.Background(), samplePosts(), path, Options{Compress: true}); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data, err := io.ReadAll(lz4.NewReader(f))
	if err != nil {
		t.Fatal(err)
	}
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Count != 2 {
		t.Fatalf("envelope: %+v", env)
	}
}

func TestCSVExportRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.csv")
	e := &CSVExporter{}
	if err := e.Export(context.Background(), samplePosts(), path, Options{}); err != nil {
		t.Fatal(err)
	}
	f, _ := os.Open(path)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows: %d", len(rows))
	}
	if rows[0][0] != "id" || rows[1][0] != "aaa" || rows[2][13] != "text" {
		t.Fatalf("rows: %v", rows)
	}
}

func TestSQLiteExportUpserts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	e := &SQLiteExporter{}
	posts := samplePosts()
	if err := e.Export(context.Background(), posts, path, Options{}); err != nil {
		t.Fatal(err)
	}
	posts[0].Score = 100
	if err := e.Export(context.Background(), posts, path, Options{}); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var count, score int
	if err := db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("SELECT score FROM posts WHERE id = 'aaa'").Scan(&score); err != nil {
		t.Fatal(err)
	}
	if count != 2 || score != 100 {
		t.Fatalf("count=%d score=%d", count, score)
	}
}

func TestMarkdownExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.md")
	e := &MarkdownExporter{}
	if err := e.Export(context.Background(), samplePosts(), path, Options{}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	body := string(data)
	for _, want := range []string{"# Export digest", "| aaa |", "## ask me anything", "u/bob in r/golang"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestValidateOptions(t *testing.T) {
	good := map[string]map[string]any{"json": {"pretty": true, "compress": false}}
	if errs := ValidateOptions(good); len(errs) != 0 {
		t.Fatal(errs)
	}
	bad := map[string]map[string]any{"json": {"indent": 2}}
	if errs := ValidateOptions(bad); len(errs) == 0 {
		t.Fatal("unknown option key must be rejected")
	}
	typed := map[string]map[string]any{"csv": {"pretty": "yes"}}
	if errs := ValidateOptions(typed); len(errs) == 0 {
		t.Fatal("wrong option type must be rejected")
	}
}

func TestEstimateSizeScales(t *testing.T) {
	e := &JSONExporter{}
	small := e.EstimateSize(samplePosts())
	var big []domain.PostRecord
	for i := 0; i < 50; i++ {
		big = append(big, samplePosts()...)
	}
	if e.EstimateSize(big) < small*10 {
		t.Fatal("estimate must scale with batch size")
	}
}

func TestStageWritesAllFormats(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		ExportFormats: []string{"json", "csv", "markdown"},
		ExportDir:     dir,
		ExportPrefix:  "batch",
	}
	run := pipeline.NewContext(cfg, nil)
	defer run.Bus.Close()
	run.Posts = samplePosts()

	stage := NewStage(nil, nil, nil)
	stage.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	res, err := stage.Process(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	files, ok := res.Data["files"].([]string)
	if !ok || len(files) != 3 {
		t.Fatalf("files: %v", res.Data["files"])
	}
	for _, f := range files {
		if !strings.Contains(f, "batch_20240102_030405") {
			t.Fatalf("filename: %s", f)
		}
		if _, err := os.Stat(f); err != nil {
			t.Fatal(err)
		}
	}
}

func TestStageRejectsUnknownFormat(t *testing.T) {
	cfg := &config.Config{ExportFormats: []string{"json", "xml"}}
	stage := NewStage(nil, nil, nil)
	if errs := stage.ValidateConfig(cfg); len(errs) != 1 {
		t.Fatalf("errs: %v", errs)
	}
}
