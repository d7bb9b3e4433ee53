package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure; it drives the default recovery strategy.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindValidation
	KindAuthentication
	KindNetwork
	KindTargetNotFound
	KindTargetAccessDenied
	KindProcessing
	KindUnsupportedFormat
	KindFilesystem
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindConfiguration:      "configuration",
	KindValidation:         "validation",
	KindAuthentication:     "authentication",
	KindNetwork:            "network",
	KindTargetNotFound:     "target_not_found",
	KindTargetAccessDenied: "target_access_denied",
	KindProcessing:         "processing",
	KindUnsupportedFormat:  "unsupported_format",
	KindFilesystem:         "filesystem",
}

var kindCodes = map[Kind]int{
	KindUnknown:            1999,
	KindConfiguration:      1001,
	KindValidation:         1002,
	KindAuthentication:     1003,
	KindNetwork:            1004,
	KindTargetNotFound:     1005,
	KindTargetAccessDenied: 1006,
	KindProcessing:         1007,
	KindUnsupportedFormat:  1008,
	KindFilesystem:         1009,
}

func (k Kind) String() string { return kindNames[k] }

// Code returns the numeric error code for the kind.
func (k Kind) Code() int { return kindCodes[k] }

// Fatal kinds abort a run regardless of the executor's error policy.
func (k Kind) Fatal() bool {
	return k == KindConfiguration || k == KindAuthentication
}

// ErrorContext locates a failure. Operation is always set.
type ErrorContext struct {
	Operation     string `json:"operation"`
	Stage         string `json:"stage,omitempty"`
	Target        string `json:"target,omitempty"`
	PostID        string `json:"post_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// RecoverySuggestion is an actionable hint attached to a Record.
type RecoverySuggestion struct {
	Action      string `json:"action"`
	Description string `json:"description"`
	Automatic   bool   `json:"automatic"`
	Priority    int    `json:"priority"`
}

// Record is the structured error surfaced at every boundary where recovery
// might matter.
type Record struct {
	Kind        Kind                 `json:"kind"`
	Code        int                  `json:"code"`
	Message     string               `json:"message"`
	Context     ErrorContext         `json:"context"`
	Suggestions []RecoverySuggestion `json:"suggestions,omitempty"`
	Cause       error                `json:"-"`
}

// NewRecord creates a Record with the kind's default code and suggestions.
func NewRecord(kind Kind, msg string) *Record {
	return &Record{
		Kind:        kind,
		Code:        kind.Code(),
		Message:     msg,
		Suggestions: defaultSuggestions(kind),
	}
}

// Wrap creates a Record around a cause with the operation context set.
func Wrap(kind Kind, op string, cause error) *Record {
	rec := NewRecord(kind, cause.Error())
	rec.Context.Operation = op
	rec.Cause = cause
	return rec
}

// Wrapf creates a Record with a formatted message and a cause.
func Wrapf(kind Kind, cause error, format string, args ...any) *Record {
	rec := NewRecord(kind, fmt.Sprintf(format, args...))
	rec.Cause = cause
	return rec
}

func (r *Record) Error() string {
	var b strings.Builder
	b.WriteString(r.Kind.String())
	if r.Context.Operation != "" {
		b.WriteString(": ")
		b.WriteString(r.Context.Operation)
	}
	b.WriteString(": ")
	b.WriteString(r.Message)
	return b.String()
}

func (r *Record) Unwrap() error { return r.Cause }

// WithOp sets the operation context and returns the record.
func (r *Record) WithOp(op string) *Record {
	r.Context.Operation = op
	return r
}

// WithStage sets the stage context and returns the record.
func (r *Record) WithStage(stage string) *Record {
	r.Context.Stage = stage
	return r
}

// WithTarget sets the target context and returns the record.
func (r *Record) WithTarget(target string) *Record {
	r.Context.Target = target
	return r
}

// WithPost sets the post context and returns the record.
func (r *Record) WithPost(id string) *Record {
	r.Context.PostID = id
	return r
}

// WithSession sets session and correlation ids and returns the record.
func (r *Record) WithSession(sessionID, correlationID string) *Record {
	r.Context.SessionID = sessionID
	r.Context.CorrelationID = correlationID
	return r
}

// KindOf extracts the Kind from any error. Non-Record errors are KindUnknown.
func KindOf(err error) Kind {
	var rec *Record
	if errors.As(err, &rec) {
		return rec.Kind
	}
	return KindUnknown
}

// AsRecord returns the error as a *Record, wrapping it as KindProcessing
// when it is not one already.
func AsRecord(err error, op string) *Record {
	var rec *Record
	if errors.As(err, &rec) {
		return rec
	}
	return Wrap(KindProcessing, op, err)
}

// Retryable reports whether the error kind is transient.
func Retryable(err error) bool {
	return KindOf(err) == KindNetwork
}

func defaultSuggestions(kind Kind) []RecoverySuggestion {
	switch kind {
	case KindNetwork:
		return []RecoverySuggestion{{
			Action:      "retry",
			Description: "retry with exponential backoff; transient network failures usually clear",
			Automatic:   true,
			Priority:    1,
		}}
	case KindAuthentication:
		return []RecoverySuggestion{{
			Action:      "abort",
			Description: "check client_id/client_secret/username/password credentials",
			Priority:    1,
		}}
	case KindConfiguration:
		return []RecoverySuggestion{{
			Action:      "abort",
			Description: "fix the configuration value named in the message and re-run",
			Priority:    1,
		}}
	case KindTargetNotFound, KindTargetAccessDenied, KindUnsupportedFormat:
		return []RecoverySuggestion{{
			Action:      "skip",
			Description: "skip this item and continue with the rest of the batch",
			Automatic:   true,
			Priority:    2,
		}}
	case KindValidation:
		return []RecoverySuggestion{{
			Action:      "skip",
			Description: "the input cannot be processed as given",
			Automatic:   true,
			Priority:    2,
		}}
	case KindFilesystem:
		return []RecoverySuggestion{{
			Action:      "retry",
			Description: "check free space and permissions on the output directory",
			Priority:    2,
		}}
	default:
		return nil
	}
}
