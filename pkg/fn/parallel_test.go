package fn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestParMapPreservesOrder(t *testing.T) {
	in := []int{1, 2, 3, 4, 5}
	out := ParMap(in, 2, func(v int) int { return v * 10 })
	for i, v := range out {
		if v != in[i]*10 {
			t.Fatalf("index %d: expected %d, got %d", i, in[i]*10, v)
		}
	}
}

func TestParMapBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	in := make([]int, 50)
	ParMap(in, 3, func(int) int {
		cur := active.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		active.Add(-1)
		return 0
	})
	if peak.Load() > 3 {
		t.Fatalf("expected at most 3 concurrent workers, saw %d", peak.Load())
	}
}

func TestParMapCtxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := ParMapCtx(ctx, []int{1, 2, 3}, 1, func(context.Context, int) Result[int] {
		return Ok(0)
	})
	for i, r := range out {
		_, err := r.Unwrap()
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("index %d: expected cancellation, got %v", i, err)
		}
	}
}

func TestCollectFirstError(t *testing.T) {
	boom := errors.New("boom")
	r := Collect([]Result[int]{Ok(1), Err[int](boom), Ok(3)})
	_, err := r.Unwrap()
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
