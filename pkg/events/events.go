// Package events provides the in-process event bus that carries pipeline
// lifecycle events to subscribed observers, plus the standard observers
// (console, file log, statistics aggregator, NATS bridge).
package events

import (
	"time"
)

// Type identifies an event class. Subscribers select by exact type or "*".
type Type string

const (
	TypeStageStarted   Type = "stage.started"
	TypeStageCompleted Type = "stage.completed"
	TypeStageFailed    Type = "stage.failed"
	TypePostDiscovered Type = "post.discovered"
	TypePostProcessed  Type = "post.processed"
	TypeErrorOccurred  Type = "error"
	TypeStatistics     Type = "statistics"
)

// Envelope wraps every published event.
type Envelope struct {
	Type          Type      `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Payload       any       `json:"payload"`
}

// StageStarted is emitted when the executor enters a stage.
type StageStarted struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config,omitempty"`
}

// StageCompleted is emitted when a stage finishes successfully.
type StageCompleted struct {
	Name      string         `json:"name"`
	Duration  time.Duration  `json:"duration"`
	Processed int            `json:"processed"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Data      map[string]any `json:"data,omitempty"`
}

// StageFailed is emitted when a stage fails past recovery.
type StageFailed struct {
	Name      string        `json:"name"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error"`
	ErrorCode int           `json:"error_code"`
}

// PostDiscovered is emitted per target as posts arrive from acquisition.
type PostDiscovered struct {
	Source  string   `json:"source"`
	Target  string   `json:"target"`
	Kind    string   `json:"kind"`
	Count   int      `json:"count"`
	Preview []string `json:"preview,omitempty"` // at most 3 titles
}

// PostProcessed is emitted as a handler finishes a post.
type PostProcessed struct {
	PostID   string        `json:"post_id"`
	Handler  string        `json:"handler"`
	Success  bool          `json:"success"`
	Files    int           `json:"files"`
	Duration time.Duration `json:"duration"`
}

// ErrorOccurred is emitted for every recoverable and unrecoverable failure.
type ErrorOccurred struct {
	Kind        string         `json:"kind"`
	Message     string         `json:"message"`
	Stage       string         `json:"stage,omitempty"`
	Recoverable bool           `json:"recoverable"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Statistics is the end-of-run aggregate.
type Statistics struct {
	PostsAcquired  int                      `json:"posts_acquired"`
	PostsFiltered  int                      `json:"posts_filtered"`
	PostsProcessed int                      `json:"posts_processed"`
	PostsExported  int                      `json:"posts_exported"`
	Errors         int                      `json:"errors"`
	StageDurations map[string]time.Duration `json:"stage_durations,omitempty"`
}
