package events

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeSelectorMatching(t *testing.T) {
	bus := NewBus(16, nil)
	defer bus.Close()

	var mu sync.Mutex
	var all, stages []Type

	bus.Subscribe("*", func(env Envelope) {
		mu.Lock()
		all = append(all, env.Type)
		mu.Unlock()
	})
	bus.Subscribe(string(TypeStageStarted), func(env Envelope) {
		mu.Lock()
		stages = append(stages, env.Type)
		mu.Unlock()
	})

	bus.Emit(TypeStageStarted, StageStarted{Name: "filter"})
	bus.Emit(TypePostDiscovered, PostDiscovered{Target: "r/golang", Count: 3})

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, all, 2)
	require.Len(t, stages, 1)
	assert.Equal(t, TypeStageStarted, stages[0])
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(16, nil)
	defer bus.Close()

	count := 0
	cancel := bus.Subscribe("*", func(Envelope) { count++ })
	bus.Emit(TypeStatistics, Statistics{})
	cancel()
	bus.Emit(TypeStatistics, Statistics{})
	assert.Equal(t, 1, count)
}

func TestPanickingHandlerIsSkipped(t *testing.T) {
	bus := NewBus(16, nil)
	defer bus.Close()

	reached := false
	bus.Subscribe("*", func(Envelope) { panic("bad observer") })
	bus.Subscribe("*", func(Envelope) { reached = true })

	bus.Emit(TypeErrorOccurred, ErrorOccurred{Message: "x"})
	assert.True(t, reached, "later subscribers must still run")
}

func TestEmitAsyncDrainedOnClose(t *testing.T) {
	bus := NewBus(64, nil)

	var mu sync.Mutex
	got := 0
	bus.Subscribe("*", func(Envelope) {
		mu.Lock()
		got++
		mu.Unlock()
	})
	for i := 0; i < 20; i++ {
		bus.EmitAsync(TypePostProcessed, PostProcessed{PostID: "p"})
	}
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 20, got)
}

func TestEnvelopeCarriesSession(t *testing.T) {
	bus := NewBus(16, nil)
	defer bus.Close()
	bus.SetSession("sess-1", "corr-1")

	var env Envelope
	bus.Subscribe("*", func(e Envelope) { env = e })
	bus.Emit(TypeStageStarted, StageStarted{Name: "acquisition"})

	assert.Equal(t, "sess-1", env.SessionID)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.False(t, env.Timestamp.IsZero())
}

func TestStatsObserverAggregates(t *testing.T) {
	bus := NewBus(16, nil)
	defer bus.Close()

	stats := NewStatsObserver()
	stats.Attach(bus)

	bus.Emit(TypePostDiscovered, PostDiscovered{Target: "r/foo", Count: 5})
	bus.Emit(TypePostDiscovered, PostDiscovered{Target: "r/bar", Count: 5})
	bus.Emit(TypePostProcessed, PostProcessed{PostID: "a", Handler: "image", Success: true})
	bus.Emit(TypePostProcessed, PostProcessed{PostID: "b", Handler: "video", Success: false})
	bus.Emit(TypeStageCompleted, StageCompleted{Name: "filter", Duration: 20 * time.Millisecond})
	bus.Emit(TypeErrorOccurred, ErrorOccurred{Message: "x"})

	snap := stats.Snapshot()
	assert.Equal(t, 10, snap.PostsAcquired)
	assert.Equal(t, 2, snap.PostsProcessed)
	assert.Equal(t, 1, snap.Errors)
	assert.Contains(t, snap.StageDurations, "filter")

	var buf bytes.Buffer
	stats.Render(&buf)
	assert.True(t, strings.Contains(buf.String(), "filter"))
}

func TestConsoleObserverOutput(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleObserver(&buf, true)

	c.OnEvent(Envelope{Type: TypeStageStarted, Payload: StageStarted{Name: "export"}})
	c.OnEvent(Envelope{Type: TypePostDiscovered, Payload: PostDiscovered{
		Target: "u/alice", Count: 2, Preview: []string{"first", "second"},
	}})

	out := buf.String()
	assert.Contains(t, out, "export")
	assert.Contains(t, out, "u/alice")
	assert.Contains(t, out, "first")
}
