// Package state persists run sessions so interrupted runs can be found and
// resumed. The SQLite store is the only implementation; the interface exists
// so the app can run without persistence when no session database is
// configured.
package state

import (
	"context"
	"time"
)

// Session statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// Session is one pipeline run's persisted record.
type Session struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	Targets   []string       `json:"targets"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Resumable reports whether the session is worth offering for resume.
func (s *Session) Resumable() bool {
	return s.Status == StatusRunning || s.Status == StatusInterrupted
}

// Store persists sessions.
type Store interface {
	CreateSession(ctx context.Context, id string, targets []string) error
	UpdateSessionStatus(ctx context.Context, id, status string) error
	SetMetadata(ctx context.Context, id string, meta map[string]any) error
	// FindResumable returns running or interrupted sessions updated within
	// maxAge, newest first.
	FindResumable(ctx context.Context, maxAge time.Duration) ([]Session, error)
	Close() error
}

// Nop is the store used when persistence is disabled.
type Nop struct{}

func (Nop) CreateSession(context.Context, string, []string) error     { return nil }
func (Nop) UpdateSessionStatus(context.Context, string, string) error { return nil }
func (Nop) SetMetadata(context.Context, string, map[string]any) error { return nil }
func (Nop) FindResumable(context.Context, time.Duration) ([]Session, error) {
	return nil, nil
}
func (Nop) Close() error { return nil }
