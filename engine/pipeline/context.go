// Package pipeline runs an ordered list of stages over a shared context:
// acquisition fills the post batch, filtering prunes it, processing
// materializes media, organization and export produce the final artifacts.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/internal/config"
	"github.com/lurkhq/lurk/pkg/events"
)

// Context is the per-run record threaded through stages. Posts are appended
// by acquisition, pruned by the filter stage, and only annotated afterwards.
type Context struct {
	Config        *config.Config
	Bus           *events.Bus
	SessionID     string
	CorrelationID string

	Posts   []domain.PostRecord
	Targets []domain.TargetInfo

	mu      sync.Mutex
	results map[string]*StageResult
}

// NewContext creates a run context. A nil bus gets a small local bus so
// stages can emit unconditionally.
func NewContext(cfg *config.Config, bus *events.Bus) *Context {
	if bus == nil {
		bus = events.NewBus(16, nil)
	}
	sessionID := uuid.NewString()
	correlationID := uuid.NewString()
	bus.SetSession(sessionID, correlationID)
	return &Context{
		Config:        cfg,
		Bus:           bus,
		SessionID:     sessionID,
		CorrelationID: correlationID,
		results:       make(map[string]*StageResult),
	}
}

// SetResult records a stage result. Each stage name is write-once.
func (c *Context) SetResult(name string, r *StageResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.results[name]; dup {
		return domain.NewRecord(domain.KindProcessing,
			fmt.Sprintf("stage result for %q already recorded", name))
	}
	c.results[name] = r
	return nil
}

// Result returns the recorded result for a stage.
func (c *Context) Result(name string) (*StageResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[name]
	return r, ok
}

// Results returns a copy of the stage-result map.
func (c *Context) Results() map[string]*StageResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*StageResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// StageResult is the outcome of one stage invocation.
type StageResult struct {
	Stage     string         `json:"stage"`
	Success   bool           `json:"success"`
	Partial   bool           `json:"partial,omitempty"`
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Errors    []error        `json:"-"`
	Warnings  []string       `json:"warnings,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// NewStageResult creates an empty successful result for a stage.
func NewStageResult(stage string) *StageResult {
	return &StageResult{Stage: stage, Success: true, Data: make(map[string]any)}
}

// AddError records an error and flips success unless the stage has marked
// itself partial.
func (r *StageResult) AddError(err error) {
	r.Errors = append(r.Errors, err)
	r.Failed++
	if !r.Partial {
		r.Success = false
	}
}

// Warn records a non-fatal warning.
func (r *StageResult) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
