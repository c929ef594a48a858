package lmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmap-io/dmap/lib/cmap"
	cmaptesting "github.com/dmap-io/dmap/lib/cmap/testing"
	"github.com/dmap-io/dmap/lib/store"
)

func TestLocalMapConformance(t *testing.T) {
	cmaptesting.RunIMapTests(t, "LocalMap", func() store.IMap {
		return NewLocalMap(nil)
	})
}

func TestLocalMapFactoryInjection(t *testing.T) {
	svc := cmap.NewService(nil)
	svc.Put("preseeded", []byte("v"))

	m := NewLocalMap(func() *cmap.Service { return svc })
	vv, loaded, err := m.Get("preseeded")
	require.NoError(t, err)
	require.True(t, loaded)
	assert.Equal(t, []byte("v"), vv.Value)
}

func recvEvent(t *testing.T, ch <-chan *cmap.Event) *cmap.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for event")
		return nil
	}
}

func TestLocalMapWatch(t *testing.T) {
	m := NewLocalMap(nil)

	require.NoError(t, m.AddListener("s1"))
	ch, ok := m.Watch("s1")
	require.True(t, ok)

	_, err := m.Put("k", []byte("v1"))
	require.NoError(t, err)
	_, err = m.Put("k", []byte("v2"))
	require.NoError(t, err)
	_, err = m.Remove("k")
	require.NoError(t, err)

	e := recvEvent(t, ch)
	assert.Equal(t, cmap.EventInsert, e.Type)
	assert.Equal(t, "k", e.Key)
	require.NotNil(t, e.NewValue)
	assert.Equal(t, []byte("v1"), e.NewValue.Value)

	e = recvEvent(t, ch)
	assert.Equal(t, cmap.EventUpdate, e.Type)
	require.NotNil(t, e.OldValue)
	assert.Equal(t, []byte("v1"), e.OldValue.Value)

	e = recvEvent(t, ch)
	assert.Equal(t, cmap.EventRemove, e.Type)
	assert.Nil(t, e.NewValue)
}

func TestLocalMapWatchRequiresListener(t *testing.T) {
	m := NewLocalMap(nil)

	_, ok := m.Watch("unregistered")
	assert.False(t, ok)
}

func TestLocalMapWatchClosesWithSession(t *testing.T) {
	m := NewLocalMap(nil)
	require.NoError(t, m.AddListener("s1"))
	ch, ok := m.Watch("s1")
	require.True(t, ok)

	_, err := m.Put("k", []byte("v"))
	require.NoError(t, err)
	recvEvent(t, ch)

	require.NoError(t, m.CloseSession("s1"))

	select {
	case _, open := <-ch:
		assert.False(t, open, "watch channel must close with the session")
	case <-time.After(2 * time.Second):
		t.Fatalf("watch channel did not close")
	}

	// Events after close are dropped, not delivered
	_, err = m.Put("k2", []byte("v"))
	require.NoError(t, err)
}

func TestLocalMapTransactionEventsAtCommit(t *testing.T) {
	m := NewLocalMap(nil)
	require.NoError(t, m.AddListener("s1"))
	ch, _ := m.Watch("s1")

	status, err := m.Prepare("tx", []cmap.MapUpdate{
		{Type: cmap.UpdatePut, Key: "a", Value: []byte("1")},
		{Type: cmap.UpdatePut, Key: "b", Value: []byte("2")},
	})
	require.NoError(t, err)
	require.Equal(t, cmap.PrepareOK, status)

	// Nothing delivered before commit
	select {
	case e := <-ch:
		t.Fatalf("no event expected before commit, got %v", e)
	case <-time.After(50 * time.Millisecond):
	}

	cstatus, err := m.Commit("tx")
	require.NoError(t, err)
	require.Equal(t, cmap.CommitOK, cstatus)

	e1 := recvEvent(t, ch)
	e2 := recvEvent(t, ch)
	assert.Equal(t, "a", e1.Key)
	assert.Equal(t, "b", e2.Key)
}
