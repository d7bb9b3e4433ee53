package export

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/lurkhq/lurk/engine/domain"
)

var csvHeader = []string{
	"id", "title", "author", "subreddit", "permalink", "media_url", "domain",
	"created_iso", "score", "num_comments", "is_nsfw", "is_video", "is_self",
	"content_type", "handled_by", "output_paths",
}

// CSVExporter writes a flat spreadsheet view of the batch. Nested payloads
// (polls, galleries, awards) are reduced to their counts.
type CSVExporter struct{}

func (e *CSVExporter) Info() FormatInfo {
	return FormatInfo{
		Name:              "csv",
		Extension:         ".csv",
		Description:       "flattened post rows for spreadsheets",
		SupportsStreaming: true,
	}
}

func (e *CSVExporter) Export(ctx context.Context, posts []domain.PostRecord, path string, _ Options) error {
	if err := ctx.Err(); err != nil {
		return domain.Wrap(domain.KindProcessing, "export csv", err)
	}
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return domain.Wrap(domain.KindFilesystem, "write csv header", err)
	}
	for i := range posts {
		if err := w.Write(csvRow(&posts[i])); err != nil {
			return domain.Wrap(domain.KindFilesystem, "write csv row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return domain.Wrap(domain.KindFilesystem, "flush csv", err)
	}
	if err := f.Close(); err != nil {
		return domain.Wrap(domain.KindFilesystem, "close "+path, err)
	}
	return nil
}

func csvRow(p *domain.PostRecord) []string {
	return []string{
		p.ID, p.Title, p.Author, p.Subreddit, p.Permalink, p.MediaURL, p.Domain,
		p.CreatedISO,
		strconv.Itoa(p.Score), strconv.Itoa(p.NumComments),
		strconv.FormatBool(p.IsNSFW), strconv.FormatBool(p.IsVideo), strconv.FormatBool(p.IsSelf),
		string(domain.DetectContentType(p)),
		p.Annotations.HandledBy,
		strings.Join(p.Annotations.OutputPaths, ";"),
	}
}

func (e *CSVExporter) EstimateSize(posts []domain.PostRecord) int64 {
	return estimateBySample(posts, 160, func(p *domain.PostRecord) int {
		n := 0
		for _, field := range csvRow(p) {
			n += len(field) + 1
		}
		return n
	})
}
