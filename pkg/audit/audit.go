// Package audit records security-relevant events to a rotating log and
// watches the recent window for suspicious patterns.
package audit

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType names a class of security event.
type EventType string

const (
	EventAuthSuccess       EventType = "auth.success"
	EventAuthFailure       EventType = "auth.failure"
	EventAccessDenied      EventType = "access.denied"
	EventFileWrite         EventType = "file.write"
	EventConfigChange      EventType = "config.change"
	EventPluginLoaded      EventType = "plugin.loaded"
	EventPluginBlocked     EventType = "plugin.blocked"
	EventValidationFailure EventType = "validation.failure"
	EventRateLimitHit      EventType = "ratelimit.hit"
	EventSuspicious        EventType = "suspicious.activity"
)

// Severity orders events for alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is one auditable occurrence.
type SecurityEvent struct {
	Type     EventType         `json:"type"`
	Severity Severity          `json:"severity"`
	Actor    string            `json:"actor,omitempty"`
	Resource string            `json:"resource,omitempty"`
	Message  string            `json:"message"`
	Time     time.Time         `json:"time"`
	Details  map[string]string `json:"details,omitempty"`
}

// Options configures the audit log destination.
type Options struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func (o *Options) fill() {
	if o.MaxSizeMB <= 0 {
		o.MaxSizeMB = 10
	}
	if o.MaxBackups <= 0 {
		o.MaxBackups = 5
	}
	if o.MaxAgeDays <= 0 {
		o.MaxAgeDays = 30
	}
}

// Auditor writes security events and runs them through the detector.
type Auditor struct {
	mu       sync.Mutex
	logger   *slog.Logger
	closer   io.Closer
	detector *Detector
	now      func() time.Time
}

// NewAuditor opens the rotating audit log at opts.Path. A nil opts or empty
// path sends events to the default logger only.
func NewAuditor(opts *Options) *Auditor {
	a := &Auditor{
		logger:   slog.Default().With("component", "audit"),
		detector: NewDetector(),
		now:      time.Now,
	}
	if opts != nil && opts.Path != "" {
		opts.fill()
		sink := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		a.closer = sink
		a.logger = slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return a
}

// Record writes the event and any escalations the detector raises for it.
// Escalations are recorded once and never re-fed into the detector.
func (a *Auditor) Record(ev SecurityEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ev.Time.IsZero() {
		ev.Time = a.now()
	}
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	a.write(ev)

	for _, esc := range a.detector.Observe(ev) {
		a.write(esc)
	}
}

func (a *Auditor) write(ev SecurityEvent) {
	attrs := []any{
		"event", string(ev.Type),
		"severity", string(ev.Severity),
	}
	if ev.Actor != "" {
		attrs = append(attrs, "actor", ev.Actor)
	}
	if ev.Resource != "" {
		attrs = append(attrs, "resource", ev.Resource)
	}
	for k, v := range ev.Details {
		attrs = append(attrs, k, v)
	}
	switch ev.Severity {
	case SeverityCritical:
		a.logger.Error(ev.Message, attrs...)
	case SeverityWarning:
		a.logger.Warn(ev.Message, attrs...)
	default:
		a.logger.Info(ev.Message, attrs...)
	}
}

// Close flushes and closes the underlying log file.
func (a *Auditor) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
