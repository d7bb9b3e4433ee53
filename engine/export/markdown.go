package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/lurkhq/lurk/engine/domain"
)

// MarkdownExporter writes a human-readable digest: a summary table followed
// by a section per post.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Info() FormatInfo {
	return FormatInfo{
		Name:        "markdown",
		Extension:   ".md",
		Description: "human-readable digest with a summary table",
	}
}

func (e *MarkdownExporter) Export(ctx context.Context, posts []domain.PostRecord, path string, _ Options) error {
	if err := ctx.Err(); err != nil {
		return domain.Wrap(domain.KindProcessing, "export markdown", err)
	}
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "# Export digest\n\n%d posts\n\n", len(posts))

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"ID", "Subreddit", "Title", "Score", "Type"})
	for i := range posts {
		p := &posts[i]
		tw.AppendRow(table.Row{
			p.ID, p.Subreddit, truncate(p.Title, 60), p.Score,
			string(domain.DetectContentType(p)),
		})
	}
	b.WriteString(tw.RenderMarkdown())
	b.WriteString("\n")

	for i := range posts {
		p := &posts[i]
		fmt.Fprintf(&b, "\n## %s\n\n", p.Title)
		fmt.Fprintf(&b, "- id: `%s`\n- author: u/%s in r/%s\n- score: %d (%d comments)\n- posted: %s\n",
			p.ID, p.Author, p.Subreddit, p.Score, p.NumComments, p.CreatedISO)
		if p.Permalink != "" {
			fmt.Fprintf(&b, "- [permalink](%s)\n", p.Permalink)
		}
		if p.Annotations.HandledBy != "" {
			fmt.Fprintf(&b, "- handled by %s, %d file(s)\n",
				p.Annotations.HandledBy, len(p.Annotations.OutputPaths))
		}
	}

	if _, err := f.WriteString(b.String()); err != nil {
		return domain.Wrap(domain.KindFilesystem, "write "+path, err)
	}
	if err := f.Close(); err != nil {
		return domain.Wrap(domain.KindFilesystem, "close "+path, err)
	}
	return nil
}

func (e *MarkdownExporter) EstimateSize(posts []domain.PostRecord) int64 {
	return estimateBySample(posts, 64, func(p *domain.PostRecord) int {
		return len(p.Title)*2 + len(p.Permalink) + 180
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
