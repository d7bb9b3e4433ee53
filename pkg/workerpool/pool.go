// Package workerpool provides adaptive worker pools for I/O-bound work and a
// fixed pool for CPU-bound transformations. Pools autoscale between min and
// max workers based on queue depth and observed CPU/memory pressure.
package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

var (
	ErrQueueFull  = errors.New("task queue is full")
	ErrPoolClosed = errors.New("pool is shut down")
)

// Task is a unit of work executed by a pool worker.
type Task func(ctx context.Context) error

// Handle tracks the completion of a submitted task.
type Handle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task finishes or ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PoolMetrics is a snapshot of pool activity.
type PoolMetrics struct {
	ActiveWorkers int           `json:"active_workers"`
	QueuedTasks   int           `json:"queued_tasks"`
	Completed     int64         `json:"completed"`
	Failed        int64         `json:"failed"`
	AvgTaskTime   time.Duration `json:"avg_task_time"`
	CPUPercent    float64       `json:"cpu_percent"`
	MemPercent    float64       `json:"mem_percent"`
	LastScale     time.Time     `json:"last_scale"`
}

// PoolOpts configures an adaptive pool.
type PoolOpts struct {
	Name      string
	Min       int
	Max       int
	QueueSize int

	// ScaleInterval is both the monitor cadence and the minimum gap
	// between scale decisions.
	ScaleInterval      time.Duration
	ScaleUpThreshold   float64 // queue utilization above this scales up
	ScaleDownThreshold float64 // queue utilization below this scales down
	CPUTarget          float64 // scale up on backlog only while CPU below this
	MaxMemoryPercent   float64 // never scale up above this memory utilization

	// SubmitTimeout bounds how long Submit blocks on a full queue.
	SubmitTimeout time.Duration

	Logger *slog.Logger
}

func (o *PoolOpts) fill() {
	if o.Min <= 0 {
		o.Min = 1
	}
	if o.Max < o.Min {
		o.Max = o.Min
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.ScaleInterval <= 0 {
		o.ScaleInterval = 5 * time.Second
	}
	if o.ScaleUpThreshold <= 0 {
		o.ScaleUpThreshold = 0.75
	}
	if o.ScaleDownThreshold <= 0 {
		o.ScaleDownThreshold = 0.1
	}
	if o.CPUTarget <= 0 {
		o.CPUTarget = 80
	}
	if o.MaxMemoryPercent <= 0 {
		o.MaxMemoryPercent = 85
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 3 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type job struct {
	ctx    context.Context
	task   Task
	handle *Handle
}

// Pool is an adaptive worker pool.
type Pool struct {
	opts  PoolOpts
	queue chan job

	mu        sync.Mutex
	workers   int
	completed int64
	failed    int64
	totalTime time.Duration
	lastScale time.Time
	lastCPU   float64
	lastMem   float64
	closed    bool

	quit    chan struct{} // one receive stops one worker
	stopAll chan struct{}
	wg      sync.WaitGroup

	// sample reports (cpu%, mem%); replaceable in tests.
	sample func() (float64, float64)
}

// NewPool creates a pool and starts Min workers plus the scaling monitor.
func NewPool(opts PoolOpts) *Pool {
	opts.fill()
	p := &Pool{
		opts:    opts,
		queue:   make(chan job, opts.QueueSize),
		quit:    make(chan struct{}, opts.Max),
		stopAll: make(chan struct{}),
		sample:  sampleSystem,
	}
	for i := 0; i < opts.Min; i++ {
		p.startWorker()
	}
	p.wg.Add(1)
	go p.monitor()
	return p
}

// sampleSystem reads system CPU and memory utilization.
func sampleSystem() (float64, float64) {
	var cpuPct, memPct float64
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		cpuPct = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		memPct = vm.UsedPercent
	}
	return cpuPct, memPct
}

// Submit enqueues a task, blocking up to SubmitTimeout when the queue is
// full, and returns a completion handle.
func (p *Pool) Submit(ctx context.Context, task Task) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	h := &Handle{done: make(chan struct{})}
	j := job{ctx: ctx, task: task, handle: h}

	select {
	case p.queue <- j:
		return h, nil
	default:
	}

	t := time.NewTimer(p.opts.SubmitTimeout)
	defer t.Stop()
	select {
	case p.queue <- j:
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, ErrQueueFull
	}
}

func (p *Pool) startWorker() {
	p.mu.Lock()
	p.workers++
	p.mu.Unlock()
	p.wg.Add(1)
	go p.worker()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopAll:
			return
		case <-p.quit:
			p.mu.Lock()
			p.workers--
			p.mu.Unlock()
			return
		case j := <-p.queue:
			p.run(j)
		}
	}
}

// run executes one job under a context that honors both the submitter's
// cancellation and pool shutdown.
func (p *Pool) run(j job) {
	ctx, cancel := context.WithCancel(j.ctx)
	go func() {
		select {
		case <-p.stopAll:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	err := j.task(ctx)
	elapsed := time.Since(start)
	cancel()

	p.mu.Lock()
	p.totalTime += elapsed
	if err != nil {
		p.failed++
	} else {
		p.completed++
	}
	p.mu.Unlock()

	j.handle.err = err
	close(j.handle.done)
}

func (p *Pool) monitor() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.ScaleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopAll:
			return
		case <-ticker.C:
			p.maybeScale()
		}
	}
}

// maybeScale applies one scaling decision based on queue utilization and
// system pressure.
func (p *Pool) maybeScale() {
	p.mu.Lock()
	sample := p.sample
	p.mu.Unlock()
	cpuPct, memPct := sample()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCPU = cpuPct
	p.lastMem = memPct

	if time.Since(p.lastScale) < p.opts.ScaleInterval {
		return
	}

	depth := len(p.queue)
	util := float64(depth) / float64(cap(p.queue))

	switch {
	case p.workers < p.opts.Max &&
		memPct < p.opts.MaxMemoryPercent &&
		(util > p.opts.ScaleUpThreshold || (depth > 0 && cpuPct < p.opts.CPUTarget)):
		p.lastScale = time.Now()
		p.opts.Logger.Debug("pool scaling up",
			"pool", p.opts.Name, "workers", p.workers+1, "queue_util", util)
		p.mu.Unlock()
		p.startWorker()
		p.mu.Lock()
	case p.workers > p.opts.Min && depth == 0 && util < p.opts.ScaleDownThreshold:
		p.lastScale = time.Now()
		p.opts.Logger.Debug("pool scaling down",
			"pool", p.opts.Name, "workers", p.workers-1)
		select {
		case p.quit <- struct{}{}:
		default:
		}
	}
}

// Metrics returns a snapshot copy of pool metrics.
func (p *Pool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := PoolMetrics{
		ActiveWorkers: p.workers,
		QueuedTasks:   len(p.queue),
		Completed:     p.completed,
		Failed:        p.failed,
		CPUPercent:    p.lastCPU,
		MemPercent:    p.lastMem,
		LastScale:     p.lastScale,
	}
	if total := p.completed + p.failed; total > 0 {
		m.AvgTaskTime = p.totalTime / time.Duration(total)
	}
	return m
}

// Shutdown stops accepting work, waits for queued tasks to drain until ctx
// expires, then stops all workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		for len(p.queue) > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
	}

	close(p.stopAll)
	p.wg.Wait()
	return err
}
