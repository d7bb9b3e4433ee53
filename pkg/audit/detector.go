package audit

import (
	"fmt"
	"time"
)

const (
	windowSize = 100
	windowAge  = 300 * time.Second

	repeatFailureThreshold = 5
	authFailureThreshold   = 10
	accessDeniedThreshold  = 5
	resourceScanThreshold  = 15
)

// Detector keeps a sliding window of recent events and flags patterns that
// look like credential stuffing, privilege probing, or resource scanning.
type Detector struct {
	window []SecurityEvent
}

// NewDetector returns an empty detector.
func NewDetector() *Detector {
	return &Detector{window: make([]SecurityEvent, 0, windowSize)}
}

// Observe adds ev to the window and returns any escalation events triggered
// by it. Escalations carry SeverityCritical and must not be fed back in.
func (d *Detector) Observe(ev SecurityEvent) []SecurityEvent {
	if ev.Type == EventSuspicious {
		return nil
	}
	d.trim(ev.Time)
	d.window = append(d.window, ev)
	if len(d.window) > windowSize {
		d.window = d.window[len(d.window)-windowSize:]
	}

	var out []SecurityEvent
	if n := d.countSameKey(ev); isFailure(ev.Type) && n >= repeatFailureThreshold {
		out = append(out, escalation(ev,
			fmt.Sprintf("%d repeated %s events for %q within window", n, ev.Type, ev.Actor)))
	}
	if ev.Type == EventAuthFailure {
		if n := d.countType(EventAuthFailure); n > authFailureThreshold {
			out = append(out, escalation(ev,
				fmt.Sprintf("authentication failure rate exceeded: %d in window", n)))
		}
	}
	if ev.Type == EventAccessDenied {
		if n := d.countType(EventAccessDenied); n >= accessDeniedThreshold {
			out = append(out, escalation(ev,
				fmt.Sprintf("possible privilege probing: %d access denials in window", n)))
		}
	}
	if n := d.distinctResources(ev.Actor); n >= resourceScanThreshold {
		out = append(out, escalation(ev,
			fmt.Sprintf("possible resource scan: %q touched %d distinct resources", ev.Actor, n)))
	}
	return out
}

func (d *Detector) trim(now time.Time) {
	cutoff := now.Add(-windowAge)
	i := 0
	for i < len(d.window) && d.window[i].Time.Before(cutoff) {
		i++
	}
	d.window = d.window[i:]
}

func (d *Detector) countSameKey(ev SecurityEvent) int {
	n := 0
	for _, e := range d.window {
		if e.Type == ev.Type && e.Actor == ev.Actor {
			n++
		}
	}
	return n
}

func (d *Detector) countType(t EventType) int {
	n := 0
	for _, e := range d.window {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (d *Detector) distinctResources(actor string) int {
	seen := make(map[string]struct{})
	for _, e := range d.window {
		if e.Actor == actor && e.Resource != "" {
			seen[e.Resource] = struct{}{}
		}
	}
	return len(seen)
}

func isFailure(t EventType) bool {
	switch t {
	case EventAuthFailure, EventAccessDenied, EventValidationFailure, EventPluginBlocked:
		return true
	}
	return false
}

func escalation(trigger SecurityEvent, msg string) SecurityEvent {
	return SecurityEvent{
		Type:     EventSuspicious,
		Severity: SeverityCritical,
		Actor:    trigger.Actor,
		Resource: trigger.Resource,
		Message:  msg,
		Time:     trigger.Time,
		Details:  map[string]string{"trigger": string(trigger.Type)},
	}
}
