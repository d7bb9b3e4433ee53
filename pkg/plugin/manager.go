package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goplugin "plugin"
	"sync"

	"github.com/lurkhq/lurk/pkg/audit"
)

// Loaded is a vetted, opened plugin. Factory is whatever the plugin's
// NewHandler symbol returned; the host adapts it to its handler interface.
type Loaded struct {
	Manifest *Manifest
	Dir      string
	Factory  any
	cleanup  func() error
}

// Manager discovers and loads plugins from configured directories.
type Manager struct {
	mu      sync.Mutex
	logger  *slog.Logger
	auditor *audit.Auditor
	loaded  []*Loaded

	// open is swappable in tests where no real .so exists.
	open func(path string) (factory any, cleanup func() error, err error)
}

// NewManager creates a Manager. auditor may be nil.
func NewManager(logger *slog.Logger, auditor *audit.Auditor) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, auditor: auditor, open: openShared}
}

// Discover returns manifests for every plugin directory under root without
// loading anything. Directories with a broken manifest are reported and
// skipped.
func (m *Manager) Discover(root string) ([]*Manifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		mf, err := LoadManifest(dir)
		if err != nil {
			m.logger.Warn("skipping plugin", "dir", dir, "error", err)
			continue
		}
		out = append(out, mf)
	}
	return out, nil
}

// Load vets and opens every plugin under root. Blocked plugins are audited
// and skipped; they never fail the whole load.
func (m *Manager) Load(root string) ([]*Loaded, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Loaded
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		lp, err := m.loadOne(dir)
		if err != nil {
			m.logger.Warn("plugin not loaded", "dir", dir, "error", err)
			continue
		}
		if lp != nil {
			m.loaded = append(m.loaded, lp)
			out = append(out, lp)
		}
	}
	return out, nil
}

func (m *Manager) loadOne(dir string) (*Loaded, error) {
	mf, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	scan, err := ScanDir(dir)
	if err != nil {
		return nil, err
	}
	if scan.Blocked() {
		m.audit(audit.SecurityEvent{
			Type:     audit.EventPluginBlocked,
			Severity: audit.SeverityWarning,
			Actor:    mf.Name,
			Resource: dir,
			Message:  fmt.Sprintf("plugin blocked: %s risk, %d findings", scan.Level, len(scan.Findings)),
		})
		m.logger.Warn("plugin blocked by scan",
			"plugin", mf.Name, "risk", scan.Level.String(), "findings", len(scan.Findings))
		return nil, nil
	}

	factory, cleanup, err := m.open(filepath.Join(dir, mf.Entry))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", mf.Entry, err)
	}
	m.audit(audit.SecurityEvent{
		Type:     audit.EventPluginLoaded,
		Actor:    mf.Name,
		Resource: dir,
		Message:  fmt.Sprintf("plugin %s v%s loaded", mf.Name, mf.Version),
	})
	m.logger.Info("plugin loaded", "plugin", mf.Name, "version", mf.Version, "handles", mf.Handles)
	return &Loaded{Manifest: mf, Dir: dir, Factory: factory, cleanup: cleanup}, nil
}

func (m *Manager) audit(ev audit.SecurityEvent) {
	if m.auditor != nil {
		m.auditor.Record(ev)
	}
}

// Close runs every loaded plugin's cleanup hook. Errors are logged, not
// returned; shutdown must not stall on a misbehaving plugin.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lp := range m.loaded {
		if lp.cleanup == nil {
			continue
		}
		if err := lp.cleanup(); err != nil {
			m.logger.Warn("plugin cleanup failed", "plugin", lp.Manifest.Name, "error", err)
		}
	}
	m.loaded = nil
}

// openShared opens a built plugin object. NewHandler is required; Cleanup is
// optional.
func openShared(path string) (any, func() error, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, nil, err
	}
	sym, err := p.Lookup("NewHandler")
	if err != nil {
		return nil, nil, fmt.Errorf("missing NewHandler symbol: %w", err)
	}
	factory, ok := sym.(func() any)
	if !ok {
		return nil, nil, fmt.Errorf("NewHandler has wrong type %T", sym)
	}
	var cleanup func() error
	if cs, err := p.Lookup("Cleanup"); err == nil {
		if fn, ok := cs.(func() error); ok {
			cleanup = fn
		}
	}
	return factory(), cleanup, nil
}
