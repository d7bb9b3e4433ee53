package workerpool

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// Pool names managed by the Manager.
const (
	PoolAsync      = "async"
	PoolDownloads  = "downloads"
	PoolProcessing = "processing"
	PoolThread     = "thread"
)

// ManagerOpts tunes the managed pools.
type ManagerOpts struct {
	AsyncMax      int
	DownloadsMax  int
	ProcessingMax int
	ScaleInterval time.Duration
	Logger        *slog.Logger
}

// Manager owns the process-wide pools: adaptive pools for I/O-bound work and
// a fixed pool for CPU-bound work sized to min(32, cores*4).
type Manager struct {
	pools map[string]*Pool
}

// NewManager creates and starts all pools.
func NewManager(opts ManagerOpts) *Manager {
	if opts.AsyncMax <= 0 {
		opts.AsyncMax = 10
	}
	if opts.DownloadsMax <= 0 {
		opts.DownloadsMax = 15
	}
	if opts.ProcessingMax <= 0 {
		opts.ProcessingMax = 8
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	threadWorkers := runtime.NumCPU() * 4
	if threadWorkers > 32 {
		threadWorkers = 32
	}

	adaptive := func(name string, max int) *Pool {
		return NewPool(PoolOpts{
			Name:          name,
			Min:           2,
			Max:           max,
			QueueSize:     max * 8,
			ScaleInterval: opts.ScaleInterval,
			Logger:        opts.Logger,
		})
	}

	return &Manager{pools: map[string]*Pool{
		PoolAsync:      adaptive(PoolAsync, opts.AsyncMax),
		PoolDownloads:  adaptive(PoolDownloads, opts.DownloadsMax),
		PoolProcessing: adaptive(PoolProcessing, opts.ProcessingMax),
		PoolThread: NewPool(PoolOpts{
			Name:          PoolThread,
			Min:           threadWorkers,
			Max:           threadWorkers,
			QueueSize:     threadWorkers * 4,
			ScaleInterval: opts.ScaleInterval,
			Logger:        opts.Logger,
		}),
	}}
}

// Pool returns the named pool, or the async pool for unknown names.
func (m *Manager) Pool(name string) *Pool {
	if p, ok := m.pools[name]; ok {
		return p
	}
	return m.pools[PoolAsync]
}

// Submit enqueues a task on the named pool.
func (m *Manager) Submit(ctx context.Context, pool string, task Task) (*Handle, error) {
	return m.Pool(pool).Submit(ctx, task)
}

// Metrics snapshots every pool.
func (m *Manager) Metrics() map[string]PoolMetrics {
	out := make(map[string]PoolMetrics, len(m.pools))
	for name, p := range m.pools {
		out[name] = p.Metrics()
	}
	return out
}

// Shutdown drains and stops all pools.
func (m *Manager) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, p := range m.pools {
		if err := p.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
