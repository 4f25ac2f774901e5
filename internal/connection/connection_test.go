package connection

import (
	"sync"
	"testing"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
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

func TestRegisterAndLookupByDeviceAndUser(t *testing.T) {
	reg := NewRegistry()
	h := NewHandle("conn1", "dev1", "user1", &fakeWriter{}, time.Now())
	reg.Register(h)

	got, ok := reg.ByDevice("dev1")
	require.True(t, ok)
	require.Equal(t, h, got)

	users := reg.ByUser("user1")
	require.Len(t, users, 1)
	require.Equal(t, 1, reg.Count())
}

func TestRegisterEvictsPriorConnectionForSameDevice(t *testing.T) {
	reg := NewRegistry()
	h1 := NewHandle("conn1", "dev1", "user1", &fakeWriter{}, time.Now())
	h2 := NewHandle("conn2", "dev1", "user1", &fakeWriter{}, time.Now())
	reg.Register(h1)
	reg.Register(h2)

	got, ok := reg.ByDevice("dev1")
	require.True(t, ok)
	require.Equal(t, "conn2", got.ConnectionID)
	require.Equal(t, 1, reg.Count())
}

func TestUnregisterRemovesAllIndices(t *testing.T) {
	reg := NewRegistry()
	h := NewHandle("conn1", "dev1", "user1", &fakeWriter{}, time.Now())
	reg.Register(h)
	reg.Unregister("conn1")

	_, ok := reg.ByDevice("dev1")
	require.False(t, ok)
	require.Empty(t, reg.ByUser("user1"))
	require.Equal(t, 0, reg.Count())
}

func TestHandleSendIsSerializedUnderLock(t *testing.T) {
	w := &fakeWriter{}
	h := NewHandle("conn1", "dev1", "user1", w, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Send(1, []byte("x"))
		}()
	}
	wg.Wait()
	require.Len(t, w.sent, 50)
}

func TestStatusTrackerDefaultsToActive(t *testing.T) {
	tr := NewStatusTracker()
	require.Equal(t, models.StatusActive, tr.Get("conn1"))
}

func TestStatusTrackerSetNotifiesSubscribers(t *testing.T) {
	tr := NewStatusTracker()
	ch := tr.Subscribe(4)
	tr.Set("conn1", models.StatusSuspicious)

	change := <-ch
	require.Equal(t, models.StatusActive, change.Old)
	require.Equal(t, models.StatusSuspicious, change.New)
	require.Equal(t, models.StatusSuspicious, tr.Get("conn1"))
}

func TestStatusTrackerNoNotifyOnNoChange(t *testing.T) {
	tr := NewStatusTracker()
	ch := tr.Subscribe(4)
	tr.Set("conn1", models.StatusActive)

	select {
	case <-ch:
		t.Fatal("expected no notification for a no-op status set")
	default:
	}
}

func TestStatusTrackerDropsOldestOnFullSubscriberBuffer(t *testing.T) {
	tr := NewStatusTracker()
	ch := tr.Subscribe(1)
	tr.Set("conn1", models.StatusIdle)
	tr.Set("conn1", models.StatusSuspicious)

	change := <-ch
	require.Equal(t, models.StatusSuspicious, change.New)
}
