// Package testing provides a reusable conformance suite for store.IMap
// implementations. Every backend (embedded, replicated, RPC-attached) must
// pass the same suite so that applications can switch deployments without
// behavioral surprises.
package testing

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmap-io/dmap/lib/cmap"
	"github.com/dmap-io/dmap/lib/store"
)

// MapFactory is a function that creates a fresh instance of an IMap
// implementation.
type MapFactory func() store.IMap

// RunIMapTests runs the conformance test suite against an IMap implementation.
func RunIMapTests(t *testing.T, name string, factory MapFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("PutGetRemove", func(t *testing.T) {
			testPutGetRemove(t, factory())
		})
		t.Run("ConditionalWrites", func(t *testing.T) {
			testConditionalWrites(t, factory())
		})
		t.Run("Versioning", func(t *testing.T) {
			testVersioning(t, factory())
		})
		t.Run("Queries", func(t *testing.T) {
			testQueries(t, factory())
		})
		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory())
		})
		t.Run("Transactions", func(t *testing.T) {
			testTransactions(t, factory())
		})
		t.Run("TransactionConflicts", func(t *testing.T) {
			testTransactionConflicts(t, factory())
		})
		t.Run("Iterators", func(t *testing.T) {
			testIterators(t, factory())
		})
		t.Run("Sessions", func(t *testing.T) {
			testSessions(t, factory())
		})
		t.Run("ConcurrentClients", func(t *testing.T) {
			testConcurrentClients(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGetRemove(t *testing.T, m store.IMap) {
	res, err := m.Put("k1", []byte("v1"))
	require.NoError(t, err)
	require.Equal(t, cmap.StatusOK, res.Status)
	assert.Nil(t, res.Value, "insert has no previous value")

	vv, loaded, err := m.Get("k1")
	require.NoError(t, err)
	require.True(t, loaded)
	assert.Equal(t, []byte("v1"), vv.Value)

	// Overwrite returns the previous value
	res, err = m.Put("k1", []byte("v2"))
	require.NoError(t, err)
	require.Equal(t, cmap.StatusOK, res.Status)
	require.NotNil(t, res.Value)
	assert.Equal(t, []byte("v1"), res.Value.Value)

	// PutAndGet returns the new value
	res, err = m.PutAndGet("k1", []byte("v3"))
	require.NoError(t, err)
	require.Equal(t, cmap.StatusOK, res.Status)
	require.NotNil(t, res.Value)
	assert.Equal(t, []byte("v3"), res.Value.Value)

	// Remove returns the removed value
	res, err = m.Remove("k1")
	require.NoError(t, err)
	require.Equal(t, cmap.StatusOK, res.Status)
	require.NotNil(t, res.Value)
	assert.Equal(t, []byte("v3"), res.Value.Value)

	_, loaded, err = m.Get("k1")
	require.NoError(t, err)
	assert.False(t, loaded)

	// Removing an absent key is a NOOP, never an error
	res, err = m.Remove("k1")
	require.NoError(t, err)
	assert.Equal(t, cmap.StatusNoop, res.Status)
}

func testConditionalWrites(t *testing.T, m store.IMap) {
	// PutIfAbsent
	res, err := m.PutIfAbsent("k", []byte("first"))
	require.NoError(t, err)
	require.Equal(t, cmap.StatusOK, res.Status)

	res, err = m.PutIfAbsent("k", []byte("second"))
	require.NoError(t, err)
	require.Equal(t, cmap.StatusPreconditionFailed, res.Status)
	require.NotNil(t, res.Value, "failed putIfAbsent carries the current value")
	assert.Equal(t, []byte("first"), res.Value.Value)

	// Replace family: an absent key is treated as a put
	res, err = m.Replace("absent", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, cmap.StatusOK, res.Status)
	assert.Nil(t, res.Value, "replace-as-insert carries no previous value")

	vvAbsent, loadedAbsent, err := m.Get("absent")
	require.NoError(t, err)
	require.True(t, loadedAbsent, "replace must create the missing entry")
	assert.Equal(t, []byte("x"), vvAbsent.Value)

	res, err = m.ReplaceValue("k", []byte("wrong"), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, cmap.StatusPreconditionFailed, res.Status)

	res, err = m.ReplaceValue("k", []byte("first"), []byte("second"))
	require.NoError(t, err)
	require.Equal(t, cmap.StatusOK, res.Status)

	vv, _, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), vv.Value)

	// Version-based CAS
	res, err = m.ReplaceVersion("k", vv.Version+1, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, cmap.StatusPreconditionFailed, res.Status)

	res, err = m.ReplaceVersion("k", vv.Version, []byte("third"))
	require.NoError(t, err)
	require.Equal(t, cmap.StatusOK, res.Status)

	// RemoveValue / RemoveVersion
	res, err = m.RemoveValue("k", []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, cmap.StatusPreconditionFailed, res.Status)

	vv, _, err = m.Get("k")
	require.NoError(t, err)
	res, err = m.RemoveVersion("k", vv.Version)
	require.NoError(t, err)
	assert.Equal(t, cmap.StatusOK, res.Status)
}

func testVersioning(t *testing.T, m store.IMap) {
	_, err := m.Put("k", []byte("a"))
	require.NoError(t, err)
	v1, _, err := m.Get("k")
	require.NoError(t, err)

	_, err = m.Put("k", []byte("b"))
	require.NoError(t, err)
	v2, _, err := m.Get("k")
	require.NoError(t, err)
	assert.Greater(t, v2.Version, v1.Version, "version must grow on every change")

	// Versions survive delete/recreate without repeating
	_, err = m.Remove("k")
	require.NoError(t, err)
	_, err = m.Put("k", []byte("c"))
	require.NoError(t, err)
	v3, _, err := m.Get("k")
	require.NoError(t, err)
	assert.Greater(t, v3.Version, v2.Version, "version must not repeat after recreate")

	// Writing the identical value is a NOOP and must not bump the version
	res, err := m.Put("k", []byte("c"))
	require.NoError(t, err)
	assert.Equal(t, cmap.StatusNoop, res.Status)
	v4, _, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, v3.Version, v4.Version)
}

func testQueries(t *testing.T, m store.IMap) {
	empty, err := m.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	for _, k := range []string{"mango", "apple", "zebra"} {
		_, err := m.Put(k, []byte("v-"+k))
		require.NoError(t, err)
	}

	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	ok, err := m.ContainsKey("apple")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.ContainsKey("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.ContainsValue([]byte("v-zebra"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.ContainsValue([]byte("nope"))
	require.NoError(t, err)
	assert.False(t, ok)

	vv, err := m.GetOrDefault("missing", []byte("fallback"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fallback"), vv.Value)
	assert.Equal(t, uint64(0), vv.Version, "default value carries version 0")

	// Collections arrive in ascending key order on every backend
	keys, err := m.KeySet()
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "mango", "zebra"}, keys)

	entries, err := m.EntrySet()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, k := range keys {
		assert.Equal(t, k, entries[i].Key)
		assert.Equal(t, []byte("v-"+k), entries[i].Value.Value)
	}

	values, err := m.Values()
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, []byte("v-apple"), values[0].Value)
}

func testClear(t *testing.T, m store.IMap) {
	for i := 0; i < 10; i++ {
		_, err := m.Put(fmt.Sprintf("k%d", i), []byte("v"))
		require.NoError(t, err)
	}

	res, err := m.Clear()
	require.NoError(t, err)
	assert.Equal(t, cmap.StatusOK, res.Status)

	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	// Clearing an empty map is a NOOP
	res, err = m.Clear()
	require.NoError(t, err)
	assert.Equal(t, cmap.StatusNoop, res.Status)
}

func testTransactions(t *testing.T, m store.IMap) {
	_, err := m.Put("a", []byte("old"))
	require.NoError(t, err)

	_, err = m.Begin("tx1")
	require.NoError(t, err)

	status, err := m.Prepare("tx1", []cmap.MapUpdate{
		{Type: cmap.UpdatePut, Key: "a", Value: []byte("new")},
		{Type: cmap.UpdatePutIfAbsent, Key: "b", Value: []byte("fresh")},
	})
	require.NoError(t, err)
	require.Equal(t, cmap.PrepareOK, status)

	// Not yet visible
	vv, _, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), vv.Value)

	// Locked keys reject single-key commands
	res, err := m.Put("a", []byte("interloper"))
	require.NoError(t, err)
	assert.Equal(t, cmap.StatusWriteLock, res.Status)

	cstatus, err := m.Commit("tx1")
	require.NoError(t, err)
	require.Equal(t, cmap.CommitOK, cstatus)

	vv, _, err = m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), vv.Value)
	vv, loaded, err := m.Get("b")
	require.NoError(t, err)
	require.True(t, loaded)
	assert.Equal(t, []byte("fresh"), vv.Value)

	// Duplicate commit is a tolerable UNKNOWN_TRANSACTION
	cstatus, err = m.Commit("tx1")
	require.NoError(t, err)
	assert.Equal(t, cmap.CommitUnknownTransaction, cstatus)

	// Rollback leaves state untouched
	status, err = m.Prepare("tx2", []cmap.MapUpdate{
		{Type: cmap.UpdatePut, Key: "a", Value: []byte("discarded")},
	})
	require.NoError(t, err)
	require.Equal(t, cmap.PrepareOK, status)
	cstatus, err = m.Rollback("tx2")
	require.NoError(t, err)
	require.Equal(t, cmap.CommitOK, cstatus)
	vv, _, err = m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), vv.Value)

	// Single-shot prepareAndCommit
	status, err = m.PrepareAndCommit("tx3", []cmap.MapUpdate{
		{Type: cmap.UpdateRemove, Key: "b"},
	})
	require.NoError(t, err)
	require.Equal(t, cmap.PrepareOK, status)
	_, loaded, err = m.Get("b")
	require.NoError(t, err)
	assert.False(t, loaded)
}

func testTransactionConflicts(t *testing.T, m store.IMap) {
	_, err := m.Put("k", []byte("v"))
	require.NoError(t, err)
	vv, _, err := m.Get("k")
	require.NoError(t, err)

	update := func(val string) []cmap.MapUpdate {
		return []cmap.MapUpdate{{
			Type:            cmap.UpdatePutIfVersionMatch,
			Key:             "k",
			Value:           []byte(val),
			ExpectedVersion: vv.Version,
		}}
	}

	status, err := m.Prepare("tx1", update("first"))
	require.NoError(t, err)
	require.Equal(t, cmap.PrepareOK, status)

	// Second transaction hits the write lock
	status, err = m.Prepare("tx2", update("second"))
	require.NoError(t, err)
	assert.Equal(t, cmap.PrepareConcurrentTransaction, status)

	cstatus, err := m.Commit("tx1")
	require.NoError(t, err)
	require.Equal(t, cmap.CommitOK, cstatus)

	// Retry after resolution: version is stale now
	status, err = m.Prepare("tx2", update("second"))
	require.NoError(t, err)
	assert.Equal(t, cmap.PreparePartialFailure, status)

	vv, _, err = m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), vv.Value)

	// A failing precondition in any update discards the whole transaction
	status, err = m.PrepareAndCommit("tx3", []cmap.MapUpdate{
		{Type: cmap.UpdatePut, Key: "other", Value: []byte("x")},
		{Type: cmap.UpdatePutIfAbsent, Key: "k", Value: []byte("dup")},
	})
	require.NoError(t, err)
	assert.Equal(t, cmap.PreparePartialFailure, status)
	_, loaded, err := m.Get("other")
	require.NoError(t, err)
	assert.False(t, loaded, "failed transaction must not apply any update")
}

func testIterators(t *testing.T, m store.IMap) {
	const numEntries = 25
	for i := 0; i < numEntries; i++ {
		_, err := m.Put(fmt.Sprintf("k%03d", i), []byte(fmt.Sprintf("v%d", i)))
		require.NoError(t, err)
	}

	id, err := m.OpenIterator("session-1")
	require.NoError(t, err)

	// Mutations after open are invisible through the iterator
	_, err = m.Put("zzz", []byte("late"))
	require.NoError(t, err)
	_, err = m.Remove("k000")
	require.NoError(t, err)

	var seen []string
	position := 0
	for {
		batch, found, err := m.Next(id, position, 7)
		require.NoError(t, err)
		require.True(t, found, "iterator vanished mid-iteration")
		for _, e := range batch.Entries {
			seen = append(seen, e.Key)
		}
		position = batch.Position
		if !batch.HasMore {
			break
		}
	}

	require.Len(t, seen, numEntries, "iterator must see exactly the snapshot")
	assert.Equal(t, "k000", seen[0], "snapshot must include entries removed after open")
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i], "batches must be sorted without repeats")
	}

	// A retried final call is still answered with an empty batch: the
	// snapshot lives until the iterator or its session is closed
	batch, found, err := m.Next(id, position, 7)
	require.NoError(t, err)
	require.True(t, found, "exhausted iterator must stay known until closed")
	assert.Empty(t, batch.Entries)
	assert.False(t, batch.HasMore)

	// Re-reading an earlier position yields the same entries again
	batch, found, err = m.Next(id, 0, 7)
	require.NoError(t, err)
	require.True(t, found)
	require.NotEmpty(t, batch.Entries)
	assert.Equal(t, seen[0], batch.Entries[0].Key)

	// Explicit close
	require.NoError(t, m.CloseIterator(id))
	_, found, err = m.Next(id, 0, 7)
	require.NoError(t, err)
	assert.False(t, found, "closed iterator must be unknown")
}

func testSessions(t *testing.T, m store.IMap) {
	require.NoError(t, m.AddListener("s1"))
	require.NoError(t, m.AddListener("s1")) // idempotent
	require.NoError(t, m.AddListener("s2"))

	_, err := m.Put("k", []byte("v"))
	require.NoError(t, err)

	it1, err := m.OpenIterator("s1")
	require.NoError(t, err)
	it2, err := m.OpenIterator("s2")
	require.NoError(t, err)

	// Closing a session releases its iterators and listener, nothing else
	require.NoError(t, m.CloseSession("s1"))

	_, found, err := m.Next(it1, 0, 10)
	require.NoError(t, err)
	assert.False(t, found, "iterator of closed session must be gone")

	_, found, err = m.Next(it2, 0, 10)
	require.NoError(t, err)
	assert.True(t, found, "iterator of other session must survive")

	require.NoError(t, m.RemoveListener("s2"))
	require.NoError(t, m.RemoveListener("never-registered"))
}

func testConcurrentClients(t *testing.T, m store.IMap) {
	const numWorkers = 8
	const opsPerWorker = 200

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", workerID, i%20)
				switch i % 5 {
				case 0, 1, 2:
					_, err := m.Put(key, []byte(fmt.Sprintf("v%d", i)))
					assert.NoError(t, err)
				case 3:
					_, _, err := m.Get(key)
					assert.NoError(t, err)
				case 4:
					_, err := m.Remove(key)
					assert.NoError(t, err)
				}
			}
		}(w)
	}
	wg.Wait()

	// The map must still answer consistently after the storm
	keys, err := m.KeySet()
	require.NoError(t, err)
	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, size, len(keys))
	for _, k := range keys {
		_, loaded, err := m.Get(k)
		require.NoError(t, err)
		assert.True(t, loaded)
	}
}
