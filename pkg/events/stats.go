package events

import (
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// StatsObserver aggregates counts and durations from the event stream and
// renders an end-of-run summary table.
type StatsObserver struct {
	mu sync.Mutex

	discovered int
	processed  int
	succeeded  int
	failed     int
	errors     int
	bytesOut   int64

	stageDurations map[string]time.Duration
	handlerCounts  map[string]int
}

// NewStatsObserver creates an empty aggregator.
func NewStatsObserver() *StatsObserver {
	return &StatsObserver{
		stageDurations: make(map[string]time.Duration),
		handlerCounts:  make(map[string]int),
	}
}

// Attach subscribes the observer to all bus events.
func (s *StatsObserver) Attach(bus *Bus) func() {
	return bus.Subscribe("*", s.OnEvent)
}

// OnEvent accumulates one envelope.
func (s *StatsObserver) OnEvent(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p := env.Payload.(type) {
	case PostDiscovered:
		s.discovered += p.Count
	case PostProcessed:
		s.processed++
		if p.Success {
			s.succeeded++
		} else {
			s.failed++
		}
		s.handlerCounts[p.Handler]++
	case StageCompleted:
		s.stageDurations[p.Name] = p.Duration
	case StageFailed:
		s.stageDurations[p.Name] = p.Duration
		s.errors++
	case ErrorOccurred:
		s.errors++
	}
}

// AddBytes records bytes written by exporters and handlers.
func (s *StatsObserver) AddBytes(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesOut += n
}

// Snapshot returns the aggregate as a Statistics payload.
func (s *StatsObserver) Snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	durations := make(map[string]time.Duration, len(s.stageDurations))
	for k, v := range s.stageDurations {
		durations[k] = v
	}
	return Statistics{
		PostsAcquired:  s.discovered,
		PostsProcessed: s.processed,
		Errors:         s.errors,
		StageDurations: durations,
	}
}

// Render writes the summary table.
func (s *StatsObserver) Render(out io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Stage", "Duration"})

	names := make([]string, 0, len(s.stageDurations))
	for name := range s.stageDurations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.AppendRow(table.Row{name, s.stageDurations[name].Round(time.Millisecond)})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"posts discovered", s.discovered})
	t.AppendRow(table.Row{"posts processed", s.processed})
	t.AppendRow(table.Row{"succeeded", s.succeeded})
	t.AppendRow(table.Row{"failed", s.failed})
	t.AppendRow(table.Row{"errors", s.errors})
	if s.bytesOut > 0 {
		t.AppendRow(table.Row{"bytes written", humanize.Bytes(uint64(s.bytesOut))})
	}
	t.Render()
}
