package repair

import (
	"sync"
	"time"

	"termpool/internal/model"
)

type killEvent struct {
	terminalID string
	at         time.Time
}

// InstabilityDetector counts KILL-level repairs in a sliding window and raises
// at most one alert per window
type InstabilityDetector struct {
	mu         sync.Mutex
	window     time.Duration
	threshold  int
	events     []killEvent
	lastRaised time.Time
	now        func() time.Time
}

// NewInstabilityDetector creates a detector raising when threshold kills land within window
func NewInstabilityDetector(window time.Duration, threshold int) *InstabilityDetector {
	return &InstabilityDetector{
		window:    window,
		threshold: threshold,
		now:       time.Now,
	}
}

// Record notes a KILL on terminalID and returns an alert when the window fills
func (d *InstabilityDetector) Record(terminalID string) *model.InstabilityAlert {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.events = append(d.events, killEvent{terminalID: terminalID, at: now})
	d.prune(now)

	if len(d.events) < d.threshold {
		return nil
	}
	if !d.lastRaised.IsZero() && now.Sub(d.lastRaised) < d.window {
		return nil
	}
	d.lastRaised = now

	ids := make([]string, 0, len(d.events))
	for _, e := range d.events {
		ids = append(ids, e.terminalID)
	}
	return &model.InstabilityAlert{
		Count:       len(d.events),
		Window:      d.window,
		TerminalIDs: ids,
		RaisedAt:    now,
	}
}

// Recent number of kills inside the current window
func (d *InstabilityDetector) Recent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune(d.now())
	return len(d.events)
}

func (d *InstabilityDetector) prune(now time.Time) {
	cutoff := now.Add(-d.window)
	i := 0
	for i < len(d.events) && d.events[i].at.Before(cutoff) {
		i++
	}
	d.events = d.events[i:]
}
