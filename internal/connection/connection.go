// Package connection implements the Broker's live-connection registry: a
// device's WebSocket handle, tracked by connection ID with secondary
// indices by device and user, each write-serialized behind its own lock.
package connection

import (
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("connection: not found")

// Writer is the narrow surface a routed message needs from a live socket.
// gorilla/websocket.Conn satisfies it.
type Writer interface {
	WriteMessage(messageType int, data []byte) error
}

// Handle is one live connection: its socket, owning identities, and a
// per-connection send lock so concurrent routers never interleave writes
// on the same socket.
type Handle struct {
	ConnectionID string
	DeviceID     string
	UserID       string
	ConnectedAt  time.Time

	sendMu sync.Mutex
	conn   Writer
}

// Send writes data to the connection's socket under its exclusive lock.
func (h *Handle) Send(messageType int, data []byte) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	return h.conn.WriteMessage(messageType, data)
}

// NewHandle wraps an established socket as a registry-managed handle.
func NewHandle(connectionID, deviceID, userID string, conn Writer, now time.Time) *Handle {
	return &Handle{ConnectionID: connectionID, DeviceID: deviceID, UserID: userID, ConnectedAt: now, conn: conn}
}

// Registry tracks every live connection, indexed by connection ID, device
// ID, and user ID.
type Registry struct {
	mu        sync.RWMutex
	byConn    map[string]*Handle
	byDevice  map[string]*Handle
	byUser    map[string][]*Handle
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn:   make(map[string]*Handle),
		byDevice: make(map[string]*Handle),
		byUser:   make(map[string][]*Handle),
	}
}

// Register adds a handle to the registry. If deviceID already has a live
// connection, the prior one is evicted from the indices (it is the
// caller's responsibility to close its socket) — a device has at most one
// active connection at a time.
func (r *Registry) Register(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.byDevice[h.DeviceID]; ok {
		r.removeLocked(prior)
	}
	r.byConn[h.ConnectionID] = h
	r.byDevice[h.DeviceID] = h
	r.byUser[h.UserID] = append(r.byUser[h.UserID], h)
}

// Unregister removes a connection by ID.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byConn[connectionID]; ok {
		r.removeLocked(h)
	}
}

func (r *Registry) removeLocked(h *Handle) {
	delete(r.byConn, h.ConnectionID)
	if r.byDevice[h.DeviceID] == h {
		delete(r.byDevice, h.DeviceID)
	}
	users := r.byUser[h.UserID]
	for i, candidate := range users {
		if candidate == h {
			r.byUser[h.UserID] = append(users[:i], users[i+1:]...)
			break
		}
	}
	if len(r.byUser[h.UserID]) == 0 {
		delete(r.byUser, h.UserID)
	}
}

// ByDevice returns the live connection for deviceID, if any.
func (r *Registry) ByDevice(deviceID string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byDevice[deviceID]
	return h, ok
}

// ByUser returns every live connection belonging to userID.
func (r *Registry) ByUser(userID string) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, len(r.byUser[userID]))
	copy(out, r.byUser[userID])
	return out
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
