package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/store"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestPutThenGetDevice(t *testing.T) {
	s := New()
	ctx := context.Background()
	d := models.Device{DeviceID: "dev1", UserID: "user1", RegisteredAt: time.Now()}
	require.NoError(t, s.PutDevice(ctx, d))

	got, err := s.GetDevice(ctx, "dev1")
	require.NoError(t, err)
	require.Equal(t, "user1", got.UserID)
}

func TestGetDeviceNotFound(t *testing.T) {
	s := New()
	_, err := s.GetDevice(context.Background(), "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListDevicesByUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.PutDevice(ctx, models.Device{DeviceID: "dev1", UserID: "user1"}))
	require.NoError(t, s.PutDevice(ctx, models.Device{DeviceID: "dev2", UserID: "user1"}))
	require.NoError(t, s.PutDevice(ctx, models.Device{DeviceID: "dev3", UserID: "user2"}))

	list, err := s.ListDevicesByUser(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestChallengeAdapterSatisfiesChallengeStore(t *testing.T) {
	s := New()
	adapter := store.ChallengeAdapter{Store: s}
	c := models.Challenge{ChallengeID: "c1", IssuedToDevice: "dev1"}
	require.NoError(t, adapter.Put(c))

	got, ok, err := adapter.Get("c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dev1", got.IssuedToDevice)

	require.NoError(t, adapter.MarkConsumed("c1"))
}

func TestTokenAdapterSatisfiesTokenStore(t *testing.T) {
	s := New()
	adapter := store.TokenAdapter{Store: s}
	tok := models.Token{TokenID: "t1", Kind: models.TokenSession}
	require.NoError(t, adapter.Put(tok))

	got, ok, err := adapter.Get("t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, models.TokenSession, got.Kind)

	require.NoError(t, adapter.Revoke("t1"))
}

func TestMeshAdapterSatisfiesMeshStore(t *testing.T) {
	s := New()
	adapter := store.MeshAdapter{Store: s}
	m := models.MeshMembership{Device: "dev1", OwnerUser: "user1", Active: true}
	require.NoError(t, adapter.Put(m))

	got, ok, err := adapter.Get("dev1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Active)

	list, err := adapter.ListByOwner("user1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}
