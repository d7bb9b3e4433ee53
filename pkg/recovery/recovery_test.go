package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/lurkhq/lurk/engine/domain"
)

func TestDefaultStrategies(t *testing.T) {
	m := NewManager(nil, nil)
	cases := []struct {
		kind domain.Kind
		want Strategy
	}{
		{domain.KindNetwork, StrategyRetry},
		{domain.KindConfiguration, StrategyAbort},
		{domain.KindAuthentication, StrategyAbort},
		{domain.KindValidation, StrategySkip},
		{domain.KindTargetNotFound, StrategySkip},
		{domain.KindProcessing, StrategySkip},
		{domain.KindUnknown, StrategyIgnore},
	}
	for _, tc := range cases {
		if got := m.StrategyFor(tc.kind); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.kind, tc.want, got)
		}
	}
}

func TestOverrides(t *testing.T) {
	m := NewManager(nil, map[domain.Kind]Strategy{
		domain.KindProcessing: StrategyRetry,
	})
	if got := m.StrategyFor(domain.KindProcessing); got != StrategyRetry {
		t.Fatalf("expected override retry, got %s", got)
	}
}

func TestRecoverOutcome(t *testing.T) {
	m := NewManager(nil, nil)

	out := m.Recover(context.Background(), domain.NewRecord(domain.KindNetwork, "timeout"))
	if !out.Success || out.Strategy != StrategyRetry {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	out = m.Recover(context.Background(), domain.NewRecord(domain.KindAuthentication, "denied"))
	if out.Success || out.Strategy != StrategyAbort {
		t.Fatalf("abort must not report success: %+v", out)
	}

	// Plain errors wrap into processing → skip.
	out = m.Recover(context.Background(), errors.New("boom"))
	if out.Strategy != StrategySkip {
		t.Fatalf("expected skip for wrapped plain error, got %s", out.Strategy)
	}
}
