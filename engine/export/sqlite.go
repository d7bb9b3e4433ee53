package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/lurkhq/lurk/engine/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS posts (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	author        TEXT,
	subreddit     TEXT,
	permalink     TEXT,
	media_url     TEXT,
	domain        TEXT,
	selftext      TEXT,
	created_utc   INTEGER,
	created_iso   TEXT,
	score         INTEGER,
	num_comments  INTEGER,
	is_nsfw       INTEGER,
	is_video      INTEGER,
	is_self       INTEGER,
	content_type  TEXT,
	handled_by    TEXT,
	payload       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_subreddit ON posts(subreddit);
CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_utc);
`

// SQLiteExporter writes posts into a queryable SQLite database. The full
// record is kept as JSON in the payload column; the scalar columns exist for
// indexing and ad hoc queries. Re-exporting into the same file upserts.
type SQLiteExporter struct{}

func (e *SQLiteExporter) Info() FormatInfo {
	return FormatInfo{
		Name:                "sqlite",
		Extension:           ".db",
		Description:         "queryable SQLite database with a JSON payload column",
		SupportsIncremental: true,
	}
}

func (e *SQLiteExporter) Export(ctx context.Context, posts []domain.PostRecord, path string, _ Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.Wrap(domain.KindFilesystem, "mkdir", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return domain.Wrap(domain.KindFilesystem, "open sqlite "+path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return domain.Wrap(domain.KindProcessing, "create schema", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.KindProcessing, "begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO posts (id, title, author, subreddit, permalink, media_url,
			domain, selftext, created_utc, created_iso, score, num_comments,
			is_nsfw, is_video, is_self, content_type, handled_by, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, score = excluded.score,
			num_comments = excluded.num_comments, handled_by = excluded.handled_by,
			payload = excluded.payload`)
	if err != nil {
		return domain.Wrap(domain.KindProcessing, "prepare insert", err)
	}
	defer stmt.Close()

	for i := range posts {
		p := &posts[i]
		payload, merr := json.Marshal(p)
		if merr != nil {
			return domain.Wrap(domain.KindProcessing, "encode post "+p.ID, merr)
		}
		_, err = stmt.ExecContext(ctx,
			p.ID, p.Title, p.Author, p.Subreddit, p.Permalink, p.MediaURL,
			p.Domain, p.SelfText, p.CreatedUTC, p.CreatedISO, p.Score, p.NumComments,
			p.IsNSFW, p.IsVideo, p.IsSelf,
			string(domain.DetectContentType(p)), p.Annotations.HandledBy, string(payload))
		if err != nil {
			return domain.Wrap(domain.KindProcessing, "insert post "+p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.KindProcessing, "commit export", err)
	}
	return nil
}

func (e *SQLiteExporter) EstimateSize(posts []domain.PostRecord) int64 {
	// Page and index overhead roughly doubles the raw payload.
	return estimateBySample(posts, 8192, jsonSize) * 2
}
