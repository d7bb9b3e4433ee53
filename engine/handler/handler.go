// Package handler routes each post to a content handler by detected content
// type and materializes media into the output directory. Built-in handlers
// cover images, videos, galleries, self text, polls, crossposts, and
// external links; plugins register through the same registry.
package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lurkhq/lurk/engine/domain"
)

// Config is the per-handler configuration slice passed at dispatch.
type Config struct {
	OutputDir        string
	FilenameTemplate string
	EmbedMetadata    bool
	CreateSidecars   bool
	Options          map[string]any // handler-specific knobs
}

// Result reports one handled post.
type Result struct {
	Success        bool          `json:"success"`
	Files          []string      `json:"files,omitempty"`
	Operations     []string      `json:"operations,omitempty"`
	EmbeddedMeta   bool          `json:"embedded_metadata"`
	SidecarCreated bool          `json:"sidecar_created"`
	Duration       time.Duration `json:"duration"`
	Err            error         `json:"-"`
}

// ContentHandler materializes posts of the content types it supports.
// Handlers must be re-entrant and confine side effects to the output dir.
type ContentHandler interface {
	Name() string
	// Priority orders candidates; lower wins.
	Priority() int
	SupportedContentTypes() []domain.ContentType
	CanHandle(post *domain.PostRecord, ct domain.ContentType) bool
	Process(ctx context.Context, post *domain.PostRecord, cfg Config) Result
}

// Registry holds handlers keyed by name and selects by priority.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]ContentHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]ContentHandler)}
}

// Register adds a handler. Re-registering a name replaces the handler.
func (r *Registry) Register(h ContentHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h
}

// Unregister removes a handler by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Names lists registered handler names sorted by priority then name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := make([]ContentHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		hs = append(hs, h)
	}
	sortHandlers(hs)
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Name()
	}
	return out
}

// Select returns the highest-priority handler that supports ct and accepts
// the post. Selection is deterministic: priority, then name as tiebreak.
func (r *Registry) Select(post *domain.PostRecord, ct domain.ContentType) (ContentHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	candidates := make([]ContentHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		if supportsType(h, ct) {
			candidates = append(candidates, h)
		}
	}
	sortHandlers(candidates)
	for _, h := range candidates {
		if h.CanHandle(post, ct) {
			return h, true
		}
	}
	return nil, false
}

func supportsType(h ContentHandler, ct domain.ContentType) bool {
	for _, t := range h.SupportedContentTypes() {
		if t == ct {
			return true
		}
	}
	return false
}

func sortHandlers(hs []ContentHandler) {
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].Priority() != hs[j].Priority() {
			return hs[i].Priority() < hs[j].Priority()
		}
		return hs[i].Name() < hs[j].Name()
	})
}
