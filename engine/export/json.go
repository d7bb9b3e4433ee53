package export

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/lurkhq/lurk/engine/domain"
)

// jsonEnvelope is the on-disk JSON document. It deliberately carries no
// timestamp so identical batches produce identical bytes.
type jsonEnvelope struct {
	Count int                 `json:"count"`
	Posts []domain.PostRecord `json:"posts"`
}

// JSONExporter writes the full post records as a single JSON document,
// optionally lz4-compressed.
type JSONExporter struct{}

func (e *JSONExporter) Info() FormatInfo {
	return FormatInfo{
		Name:                "json",
		Extension:           ".json",
		Description:         "full post records as a JSON document",
		SupportsStreaming:   true,
		SupportsCompression: true,
	}
}

func (e *JSONExporter) Export(ctx context.Context, posts []domain.PostRecord, path string, opts Options) error {
	if err := ctx.Err(); err != nil {
		return domain.Wrap(domain.KindProcessing, "export json", err)
	}
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	var lw *lz4.Writer
	if opts.Compress {
		lw = lz4.NewWriter(f)
		w = lw
	}

	enc := json.NewEncoder(w)
	if opts.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(jsonEnvelope{Count: len(posts), Posts: posts}); err != nil {
		return domain.Wrap(domain.KindProcessing, "encode json", err)
	}
	if lw != nil {
		if err := lw.Close(); err != nil {
			return domain.Wrap(domain.KindFilesystem, "flush lz4", err)
		}
	}
	if err := f.Close(); err != nil {
		return domain.Wrap(domain.KindFilesystem, "close "+path, err)
	}
	return nil
}

func (e *JSONExporter) EstimateSize(posts []domain.PostRecord) int64 {
	return estimateBySample(posts, 32, jsonSize)
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, domain.Wrap(domain.KindFilesystem, "mkdir", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, domain.Wrap(domain.KindFilesystem, "create "+path, err)
	}
	return f, nil
}
