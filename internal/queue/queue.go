// Package queue implements the bounded per-device offline-message queue:
// messages destined for a device that's currently unreachable are held
// here until the device reconnects and the queue is drained.
package queue

import (
	"sync"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/config"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

// Manager holds one bounded FIFO per device.
type Manager struct {
	mu      sync.Mutex
	cfg     config.QueueConfig
	queues  map[string][]models.OfflineQueueEntry
	now     func() time.Time
}

// NewManager creates a queue manager with the given per-device cap and
// overflow policy.
func NewManager(cfg config.QueueConfig) *Manager {
	return &Manager{cfg: cfg, queues: make(map[string][]models.OfflineQueueEntry), now: time.Now}
}

// Enqueue appends a message for deviceID. If the device's queue is already
// at capacity, the configured OverflowPolicy decides whether the oldest
// entry is evicted to make room or the new message is rejected.
func (m *Manager) Enqueue(deviceID string, payload interface{}) (accepted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[deviceID]
	if m.cfg.MaxPerDevice > 0 && len(q) >= m.cfg.MaxPerDevice {
		switch m.cfg.Overflow {
		case config.OverflowReject:
			return false
		default: // OverflowEvictOldest
			q = q[1:]
		}
	}
	q = append(q, models.OfflineQueueEntry{DeviceID: deviceID, Message: payload, EnqueuedAt: m.now()})
	m.queues[deviceID] = q
	return true
}

// Len reports how many messages are queued for deviceID.
func (m *Manager) Len(deviceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[deviceID])
}

// Drain removes and returns every queued entry for deviceID, oldest first.
func (m *Manager) Drain(deviceID string) []models.OfflineQueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[deviceID]
	delete(m.queues, deviceID)
	return q
}

// Deliverer delivers a single queued entry to its now-reachable device,
// satisfied by the routing package's direct-route function.
type Deliverer func(entry models.OfflineQueueEntry) error

// DeliverTo drains deviceID's queue and attempts delivery of every entry in
// FIFO order through deliver. It does not stop at the first failure —
// every entry gets an attempt — and reports how many succeeded versus
// failed.
func (m *Manager) DeliverTo(deviceID string, deliver Deliverer) (delivered, failed int) {
	for _, entry := range m.Drain(deviceID) {
		if err := deliver(entry); err != nil {
			failed++
			continue
		}
		delivered++
	}
	return delivered, failed
}
