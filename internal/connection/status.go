package connection

import (
	"sync"

	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

// StatusChange is published whenever a connection's status transitions.
type StatusChange struct {
	ConnectionID string
	Old          models.ConnStatus
	New          models.ConnStatus
}

// StatusTracker tracks the orthogonal health/trust status of each live
// connection and fans out transitions to subscribers. Subscriber channels
// are bounded; a slow subscriber has its oldest pending notification
// dropped rather than blocking the tracker (per the drop-oldest
// backpressure decision).
type StatusTracker struct {
	mu          sync.Mutex
	status      map[string]models.ConnStatus
	subscribers []chan StatusChange
}

// NewStatusTracker creates an empty status tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{status: make(map[string]models.ConnStatus)}
}

// Subscribe returns a channel that receives every subsequent status
// change, buffered to bufSize entries.
func (t *StatusTracker) Subscribe(bufSize int) <-chan StatusChange {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan StatusChange, bufSize)
	t.subscribers = append(t.subscribers, ch)
	return ch
}

// Get returns the current status for connectionID, defaulting to Active
// for a connection this tracker hasn't seen yet.
func (t *StatusTracker) Get(connectionID string) models.ConnStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.status[connectionID]; ok {
		return s
	}
	return models.StatusActive
}

// Set transitions connectionID to newStatus and notifies subscribers, if
// the status actually changed.
func (t *StatusTracker) Set(connectionID string, newStatus models.ConnStatus) {
	t.mu.Lock()
	old := t.status[connectionID]
	if old == "" {
		old = models.StatusActive
	}
	if old == newStatus {
		t.mu.Unlock()
		return
	}
	t.status[connectionID] = newStatus
	subs := make([]chan StatusChange, len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.Unlock()

	change := StatusChange{ConnectionID: connectionID, Old: old, New: newStatus}
	for _, ch := range subs {
		select {
		case ch <- change:
		default:
			// drop-oldest: make room for the newest change rather than block
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}

// Forget removes connectionID's tracked status, typically on disconnect.
func (t *StatusTracker) Forget(connectionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.status, connectionID)
}
