// Package export serializes acquired post records into archive files. Each
// format is an Exporter registered under its canonical name plus aliases;
// output filenames carry the export timestamp so runs never clobber each
// other.
package export

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lurkhq/lurk/engine/domain"
)

// FormatInfo describes an export format's capabilities.
type FormatInfo struct {
	Name                string `json:"name"`
	Extension           string `json:"extension"`
	Description         string `json:"description"`
	SupportsStreaming   bool   `json:"supports_streaming"`
	SupportsIncremental bool   `json:"supports_incremental"`
	SupportsCompression bool   `json:"supports_compression"`
}

// Options tune a single export. Zero value is a valid default.
type Options struct {
	Pretty   bool // indent output where the format allows it
	Compress bool // lz4-compress output where the format allows it
}

// Exporter writes a batch of posts to a file.
type Exporter interface {
	Info() FormatInfo
	Export(ctx context.Context, posts []domain.PostRecord, path string, opts Options) error
	// EstimateSize predicts the uncompressed output size in bytes.
	EstimateSize(posts []domain.PostRecord) int64
}

// Registry maps format names and aliases to exporters.
type Registry struct {
	mu        sync.RWMutex
	exporters map[string]Exporter
	aliases   map[string]string
}

// NewRegistry returns a registry preloaded with the built-in formats.
func NewRegistry() *Registry {
	r := &Registry{
		exporters: make(map[string]Exporter),
		aliases:   make(map[string]string),
	}
	r.Register(&JSONExporter{}, "js")
	r.Register(&CSVExporter{})
	r.Register(&SQLiteExporter{}, "db", "sqlite3")
	r.Register(&MarkdownExporter{}, "md")
	return r
}

// Register adds an exporter under its canonical name and optional aliases.
func (r *Registry) Register(e Exporter, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := e.Info().Name
	r.exporters[name] = e
	for _, a := range aliases {
		r.aliases[a] = name
	}
}

// Lookup resolves a name or alias to its exporter.
func (r *Registry) Lookup(name string) (Exporter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	e, ok := r.exporters[key]
	return e, ok
}

// Formats lists the registered formats sorted by name.
func (r *Registry) Formats() []FormatInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FormatInfo, 0, len(r.exporters))
	for _, e := range r.exporters {
		out = append(out, e.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Filename builds the timestamped output path for one export.
func Filename(dir, prefix string, info FormatInfo, compress bool, now time.Time) string {
	if prefix == "" {
		prefix = "lurk"
	}
	name := prefix + "_" + now.UTC().Format("20060102_150405") + info.Extension
	if compress && info.SupportsCompression {
		name += ".lz4"
	}
	return filepath.Join(dir, name)
}

// estimateBySample predicts output size by serializing a small prefix of the
// batch and scaling. overhead covers fixed headers and footers.
func estimateBySample(posts []domain.PostRecord, overhead int64, encode func(*domain.PostRecord) int) int64 {
	if len(posts) == 0 {
		return overhead
	}
	sample := len(posts)
	if sample > 10 {
		sample = 10
	}
	var total int64
	for i := 0; i < sample; i++ {
		total += int64(encode(&posts[i]))
	}
	return overhead + total*int64(len(posts))/int64(sample)
}

func jsonSize(p *domain.PostRecord) int {
	b, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	return len(b)
}
