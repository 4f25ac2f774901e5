// Package anomaly implements a sliding-window event-rate detector. The
// Broker records one event per inbound frame a device sends after its
// handshake, so the score flags devices sending frames unreasonably fast;
// connection attempts themselves are not recorded.
package anomaly

import (
	"sync"
	"time"
)

// Config shapes the detection window and alert sensitivity.
type Config struct {
	WindowSize     int
	WindowDuration time.Duration
	AlertThreshold float64
	MaxReasonable  float64
}

// Alert describes a detected burst of recorded events.
type Alert struct {
	Score     float64
	Count     int
	SpanSecs  float64
	Threshold float64
}

// Detector tracks recent event timestamps for a single device and scores
// how anomalous the current rate is.
type Detector struct {
	mu     sync.Mutex
	cfg    Config
	events []time.Time
	now    func() time.Time
}

// New creates a detector with the given configuration.
func New(cfg Config) *Detector {
	if cfg.MaxReasonable <= 0 {
		cfg.MaxReasonable = 10.0
	}
	return &Detector{cfg: cfg, now: time.Now}
}

// Record registers one event at the current time.
func (d *Detector) Record() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, d.now())
	d.prune()
}

// prune drops events outside WindowDuration or beyond WindowSize entries.
// Caller must hold the lock.
func (d *Detector) prune() {
	cutoff := d.now().Add(-d.cfg.WindowDuration)
	i := 0
	for i < len(d.events) && d.events[i].Before(cutoff) {
		i++
	}
	d.events = d.events[i:]
	if d.cfg.WindowSize > 0 && len(d.events) > d.cfg.WindowSize {
		d.events = d.events[len(d.events)-d.cfg.WindowSize:]
	}
}

// Score returns the current anomaly score in [0, 100]: the connect rate
// (events per second over the observed span) normalized against
// MaxReasonable and capped at 1.0, scaled to a percentage.
func (d *Detector) Score() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune()
	return d.score()
}

func (d *Detector) score() float64 {
	if len(d.events) < 2 {
		return 0
	}
	spanSecs := d.events[len(d.events)-1].Sub(d.events[0]).Seconds()
	if spanSecs < 0.001 {
		spanSecs = 0.001
	}
	rate := float64(len(d.events)) / spanSecs
	ratio := rate / d.cfg.MaxReasonable
	if ratio > 1.0 {
		ratio = 1.0
	}
	return ratio * 100
}

// CheckAlert returns an Alert when the current score meets or exceeds the
// configured threshold, or nil otherwise.
func (d *Detector) CheckAlert() *Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune()
	score := d.score()
	if score < d.cfg.AlertThreshold {
		return nil
	}
	var spanSecs float64
	if len(d.events) >= 2 {
		spanSecs = d.events[len(d.events)-1].Sub(d.events[0]).Seconds()
	}
	return &Alert{Score: score, Count: len(d.events), SpanSecs: spanSecs, Threshold: d.cfg.AlertThreshold}
}
