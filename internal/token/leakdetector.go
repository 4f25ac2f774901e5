package token

import (
	"fmt"
	"sync"
	"time"
)

// LeakAlert reports that a single token has been used from more distinct
// devices than its policy allows within the detector's window — a signal
// the token was copied off its issuing device.
type LeakAlert struct {
	TokenID         string
	DistinctDevices int
	FirstSeen       time.Time
	LastSeen        time.Time
	Message         string
}

type usageRecord struct {
	deviceID string
	seenAt   time.Time
}

// LeakDetector tracks, per token, which devices have presented it within
// a sliding time window, and raises one alert per distinct over-threshold
// episode rather than re-alerting on every subsequent call.
type LeakDetector struct {
	mu                 sync.Mutex
	usage              map[string][]usageRecord
	alerted            map[string]bool
	maxDevicesPerToken int
	window             time.Duration
	now                func() time.Time
}

// NewLeakDetector creates a detector that alerts once a token has been
// seen from more than maxDevicesPerToken distinct devices within window.
func NewLeakDetector(maxDevicesPerToken int, window time.Duration) *LeakDetector {
	return &LeakDetector{
		usage:              make(map[string][]usageRecord),
		alerted:            make(map[string]bool),
		maxDevicesPerToken: maxDevicesPerToken,
		window:             window,
		now:                time.Now,
	}
}

// RecordUsage logs one presentation of tokenID by deviceID, pruning
// entries that have aged out of the window.
func (d *LeakDetector) RecordUsage(tokenID, deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	records := d.prune(d.usage[tokenID], now)
	d.usage[tokenID] = append(records, usageRecord{deviceID: deviceID, seenAt: now})
}

func (d *LeakDetector) prune(records []usageRecord, now time.Time) []usageRecord {
	cutoff := now.Add(-d.window)
	kept := make([]usageRecord, 0, len(records))
	for _, r := range records {
		if r.seenAt.After(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

// CheckAnomaly returns a LeakAlert the first time tokenID's window-bounded
// usage exceeds maxDevicesPerToken distinct devices. It does not re-alert
// on subsequent calls while the token remains over threshold (edge-
// triggered); once usage drops back at or below threshold the alert is
// rearmed so a later breach raises again.
func (d *LeakDetector) CheckAnomaly(tokenID string) *LeakAlert {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	records := d.prune(d.usage[tokenID], now)
	d.usage[tokenID] = records

	devices := make(map[string]bool, len(records))
	var first, last time.Time
	for i, r := range records {
		devices[r.deviceID] = true
		if i == 0 || r.seenAt.Before(first) {
			first = r.seenAt
		}
		if r.seenAt.After(last) {
			last = r.seenAt
		}
	}
	distinct := len(devices)

	if distinct <= d.maxDevicesPerToken {
		delete(d.alerted, tokenID)
		return nil
	}
	if d.alerted[tokenID] {
		return nil
	}
	d.alerted[tokenID] = true

	return &LeakAlert{
		TokenID:         tokenID,
		DistinctDevices: distinct,
		FirstSeen:       first,
		LastSeen:        last,
		Message:         fmt.Sprintf("token %s used from %d distinct devices within %s, exceeding limit of %d", tokenID, distinct, d.window, d.maxDevicesPerToken),
	}
}

// GetUsageByDevice returns a snapshot of per-device usage counts for
// tokenID within the current window.
func (d *LeakDetector) GetUsageByDevice(tokenID string) map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	records := d.prune(d.usage[tokenID], d.now())
	d.usage[tokenID] = records

	out := make(map[string]int, len(records))
	for _, r := range records {
		out[r.deviceID]++
	}
	return out
}
