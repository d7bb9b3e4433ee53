package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/pkg/resilience"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	targets    TEXT NOT NULL,
	metadata   TEXT,
	started_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status, updated_at);
`

// SQLiteStore persists sessions in a local SQLite file. All statements run
// under the database rate-limit class.
type SQLiteStore struct {
	db    *sql.DB
	coord *resilience.Coordinator
	now   func() time.Time
}

// OpenSQLite opens or creates the session database at path.
func OpenSQLite(path string, coord *resilience.Coordinator) (*SQLiteStore, error) {
	if coord == nil {
		coord = resilience.NewCoordinator(nil)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.Wrap(domain.KindFilesystem, "open session db "+path, err)
	}
	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, domain.Wrap(domain.KindProcessing, "create session schema", err)
	}
	return &SQLiteStore{db: db, coord: coord, now: time.Now}, nil
}

func (s *SQLiteStore) do(ctx context.Context, f func(context.Context) error) error {
	return s.coord.Do(ctx, resilience.ClassDatabase, f)
}

func (s *SQLiteStore) CreateSession(ctx context.Context, id string, targets []string) error {
	return s.do(ctx, func(ctx context.Context) error {
		now := s.now().UTC().Unix()
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, status, targets, started_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			id, StatusRunning, strings.Join(targets, "\n"), now, now)
		if err != nil {
			return domain.Wrap(domain.KindProcessing, "create session "+id, err)
		}
		return nil
	})
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, id, status string) error {
	return s.do(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
			status, s.now().UTC().Unix(), id)
		if err != nil {
			return domain.Wrap(domain.KindProcessing, "update session "+id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NewRecord(domain.KindValidation, "unknown session "+id)
		}
		return nil
	})
}

func (s *SQLiteStore) SetMetadata(ctx context.Context, id string, meta map[string]any) error {
	return s.do(ctx, func(ctx context.Context) error {
		payload, err := json.Marshal(meta)
		if err != nil {
			return domain.Wrap(domain.KindProcessing, "encode metadata", err)
		}
		res, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET metadata = ?, updated_at = ? WHERE id = ?`,
			string(payload), s.now().UTC().Unix(), id)
		if err != nil {
			return domain.Wrap(domain.KindProcessing, "set metadata "+id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NewRecord(domain.KindValidation, "unknown session "+id)
		}
		return nil
	})
}

func (s *SQLiteStore) FindResumable(ctx context.Context, maxAge time.Duration) ([]Session, error) {
	var sessions []Session
	err := s.do(ctx, func(ctx context.Context) error {
		cutoff := s.now().UTC().Add(-maxAge).Unix()
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, status, targets, metadata, started_at, updated_at
			 FROM sessions
			 WHERE status IN (?, ?) AND updated_at >= ?
			 ORDER BY updated_at DESC`,
			StatusRunning, StatusInterrupted, cutoff)
		if err != nil {
			return domain.Wrap(domain.KindProcessing, "query sessions", err)
		}
		defer rows.Close()
		for rows.Next() {
			var sess Session
			var targets string
			var meta sql.NullString
			var started, updated int64
			if err := rows.Scan(&sess.ID, &sess.Status, &targets, &meta, &started, &updated); err != nil {
				return domain.Wrap(domain.KindProcessing, "scan session", err)
			}
			if targets != "" {
				sess.Targets = strings.Split(targets, "\n")
			}
			if meta.Valid && meta.String != "" {
				if err := json.Unmarshal([]byte(meta.String), &sess.Metadata); err != nil {
					return domain.Wrap(domain.KindProcessing, "decode metadata "+sess.ID, err)
				}
			}
			sess.StartedAt = time.Unix(started, 0).UTC()
			sess.UpdatedAt = time.Unix(updated, 0).UTC()
			sessions = append(sessions, sess)
		}
		return rows.Err()
	})
	return sessions, err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ Store = (*SQLiteStore)(nil)
