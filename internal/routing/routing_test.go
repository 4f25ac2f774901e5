package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/connection"
	"github.com/edda-mesh/bifrost-heimdall/internal/message"
	"github.com/edda-mesh/bifrost-heimdall/internal/relay"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	sent [][]byte
}

func (w *fakeWriter) WriteMessage(_ int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, data)
	return nil
}

type fakeRelay struct {
	fail bool
	mu   sync.Mutex
	got  []message.Envelope
}

func (r *fakeRelay) Deliver(_ context.Context, env message.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("relay down")
	}
	r.got = append(r.got, env)
	return nil
}

func TestDirectDeliversToLiveConnection(t *testing.T) {
	reg := connection.NewRegistry()
	w := &fakeWriter{}
	reg.Register(connection.NewHandle("c1", "dev1", "user1", w, time.Now()))

	router := NewRouter(reg, relay.NopClient{}, relay.NopClient{})
	err := router.Direct("dev1", message.Envelope{MessageID: "m1"})
	require.NoError(t, err)
	require.Len(t, w.sent, 1)
}

func TestDirectFailsWhenDeviceNotConnected(t *testing.T) {
	router := NewRouter(connection.NewRegistry(), relay.NopClient{}, relay.NopClient{})
	err := router.Direct("dev1", message.Envelope{MessageID: "m1"})
	require.ErrorIs(t, err, ErrDeviceNotConnected)
}

func TestRouteWithFallbackFallsThroughToAsgard(t *testing.T) {
	asgard := &fakeRelay{}
	router := NewRouter(connection.NewRegistry(), asgard, relay.NopClient{})

	err := router.RouteWithFallback(context.Background(), "dev1", message.Envelope{MessageID: "m1"})
	require.NoError(t, err)
	require.Len(t, asgard.got, 1)
}

func TestRouteWithFallbackFallsThroughToYggdrasilWhenAsgardFails(t *testing.T) {
	asgard := &fakeRelay{fail: true}
	yggdrasil := &fakeRelay{}
	router := NewRouter(connection.NewRegistry(), asgard, yggdrasil)

	err := router.RouteWithFallback(context.Background(), "dev1", message.Envelope{MessageID: "m1"})
	require.NoError(t, err)
	require.Len(t, yggdrasil.got, 1)
}

func TestRouteWithFallbackReturnsLastErrorWhenAllFail(t *testing.T) {
	router := NewRouter(connection.NewRegistry(), relay.NopClient{}, relay.NopClient{})
	err := router.RouteWithFallback(context.Background(), "dev1", message.Envelope{MessageID: "m1"})
	require.ErrorIs(t, err, ErrDeviceNotConnected)
}

func TestMulticastDoesNotAbortOnPerMemberFailure(t *testing.T) {
	reg := connection.NewRegistry()
	w := &fakeWriter{}
	reg.Register(connection.NewHandle("c1", "dev1", "user1", w, time.Now()))

	router := NewRouter(reg, relay.NopClient{}, relay.NopClient{})
	result := router.Multicast(context.Background(), []string{"dev1", "dev2", "dev3"}, message.Envelope{MessageID: "m1"})
	require.Equal(t, 1, result.Delivered)
	require.Equal(t, 2, result.Failed)
}
