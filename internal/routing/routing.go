// Package routing delivers outbound messages to their target device: a
// direct write if the device has a live local connection, falling back
// through relay services if not, and fanning a single message out to a
// named group of devices for multicast.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/edda-mesh/bifrost-heimdall/internal/connection"
	"github.com/edda-mesh/bifrost-heimdall/internal/message"
	"github.com/edda-mesh/bifrost-heimdall/internal/relay"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// ErrDeviceNotConnected means no live local connection exists for the
// target device — the caller should fall back to a relay or queue.
var ErrDeviceNotConnected = errors.New("routing: device not connected")

// Router delivers envelopes to devices, falling back from a direct local
// write to the Asgard and then Yggdrasil relays.
type Router struct {
	Registry  *connection.Registry
	Asgard    relay.Client
	Yggdrasil relay.Client
}

// NewRouter creates a Router. Pass relay.NopClient{} for any relay slot
// that isn't configured in this deployment.
func NewRouter(registry *connection.Registry, asgard, yggdrasil relay.Client) *Router {
	return &Router{Registry: registry, Asgard: asgard, Yggdrasil: yggdrasil}
}

// Direct writes env straight to deviceID's live local socket, if any.
func (r *Router) Direct(deviceID string, env message.Envelope) error {
	h, ok := r.Registry.ByDevice(deviceID)
	if !ok {
		return ErrDeviceNotConnected
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return h.Send(websocket.TextMessage, body)
}

// RouteWithFallback tries Direct, then Asgard, then Yggdrasil, in that
// order, returning the last error encountered if every path fails. A relay
// slot that reports relay.ErrNotConfigured is skipped and does not replace
// the earlier error, so with no relay configured the Direct error is
// returned.
func (r *Router) RouteWithFallback(ctx context.Context, deviceID string, env message.Envelope) error {
	lastErr := r.Direct(deviceID, env)
	if lastErr == nil {
		return nil
	}
	if err := r.Asgard.Deliver(ctx, env); err == nil {
		return nil
	} else if !errors.Is(err, relay.ErrNotConfigured) {
		lastErr = err
	}
	if err := r.Yggdrasil.Deliver(ctx, env); err == nil {
		return nil
	} else if !errors.Is(err, relay.ErrNotConfigured) {
		lastErr = err
	}
	return lastErr
}

// MulticastResult summarizes a fan-out delivery attempt.
type MulticastResult struct {
	Delivered int
	Failed    int
}

// Multicast routes a copy of env, with TargetDeviceID set to the member, to
// every member of group independently: one member's failure never aborts
// delivery to the others.
func (r *Router) Multicast(ctx context.Context, memberDeviceIDs []string, env message.Envelope) MulticastResult {
	var delivered, failed int64
	var g errgroup.Group
	for _, deviceID := range memberDeviceIDs {
		deviceID := deviceID
		g.Go(func() error {
			memberEnv := env
			memberEnv.TargetDeviceID = deviceID
			if err := r.RouteWithFallback(ctx, deviceID, memberEnv); err != nil {
				atomic.AddInt64(&failed, 1)
				return nil
			}
			atomic.AddInt64(&delivered, 1)
			return nil
		})
	}
	_ = g.Wait()
	return MulticastResult{Delivered: int(delivered), Failed: int(failed)}
}
