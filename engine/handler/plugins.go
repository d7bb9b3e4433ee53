package handler

import (
	"log/slog"

	"github.com/lurkhq/lurk/pkg/plugin"
)

// RegisterPlugins adapts loaded plugins into the registry. A plugin whose
// factory does not produce a ContentHandler is logged and skipped; the rest
// of the batch still registers.
func RegisterPlugins(reg *Registry, loaded []*plugin.Loaded, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	registered := 0
	for _, l := range loaded {
		h, ok := l.Factory.(ContentHandler)
		if !ok {
			if f, isFunc := l.Factory.(func() any); isFunc {
				h, ok = f().(ContentHandler)
			}
		}
		if !ok {
			logger.Warn("plugin factory does not implement ContentHandler, skipping",
				"plugin", l.Manifest.Name, "dir", l.Dir)
			continue
		}
		reg.Register(h)
		registered++
		logger.Info("plugin handler registered",
			"plugin", l.Manifest.Name, "handler", h.Name(), "priority", h.Priority())
	}
	return registered
}
