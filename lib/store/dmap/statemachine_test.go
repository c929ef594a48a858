package dmap

import (
	"bytes"
	"sync"
	"testing"

	sm "github.com/lni/dragonboat/v4/statemachine"

	"github.com/dmap-io/dmap/lib/cmap"
	"github.com/dmap-io/dmap/lib/store"
	"github.com/dmap-io/dmap/lib/store/dmap/internal"
)

// newTestMachine creates a state machine the way dragonboat would.
func newTestMachine() *MapStateMachine {
	factory := CreateStateMachineFactory(nil)
	return factory(1, 1).(*MapStateMachine)
}

// apply runs one command through Update and decodes the typed result.
func apply(t *testing.T, fsm *MapStateMachine, cmd internal.Command) internal.CommandResult {
	t.Helper()
	res, err := fsm.Update(sm.Entry{Cmd: cmd.Serialize()})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if res.Value != uint64(store.RetCSuccess) {
		t.Fatalf("Update failed with code %d: %s", res.Value, res.Data)
	}
	var out internal.CommandResult
	if err := out.Deserialize(res.Data); err != nil {
		t.Fatalf("failed to deserialize result: %v", err)
	}
	return out
}

func TestStateMachineUpdateAndLookup(t *testing.T) {
	fsm := newTestMachine()

	res := apply(t, fsm, internal.Command{Type: internal.CommandTPut, Key: "k", Value: []byte("v")})
	if cmap.UpdateStatus(res.Status) != cmap.StatusOK {
		t.Fatalf("expected OK, got %d", res.Status)
	}

	// Linearizable read path
	out, err := fsm.Lookup(internal.Query{Type: internal.QueryTGet, Key: "k"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	get, ok := out.(internal.GetResult)
	if !ok || !get.Ok || !bytes.Equal(get.Value.Value, []byte("v")) {
		t.Fatalf("unexpected lookup result: %+v", out)
	}

	// CAS through the log
	res = apply(t, fsm, internal.Command{
		Type:    internal.CommandTReplaceVersion,
		Key:     "k",
		Value:   []byte("v2"),
		Version: get.Value.Version,
	})
	if cmap.UpdateStatus(res.Status) != cmap.StatusOK {
		t.Fatalf("expected replace OK, got %d", res.Status)
	}
	if !res.HasValue || !bytes.Equal(res.Value.Value, []byte("v")) {
		t.Fatalf("replace must return the previous value, got %+v", res)
	}
}

func TestStateMachineTransactionFlow(t *testing.T) {
	fsm := newTestMachine()

	apply(t, fsm, internal.Command{Type: internal.CommandTPut, Key: "a", Value: []byte("old")})

	res := apply(t, fsm, internal.Command{Type: internal.CommandTBegin, ID: "tx1"})
	if res.Version == 0 {
		t.Fatalf("begin must return the current map version")
	}

	res = apply(t, fsm, internal.Command{
		Type: internal.CommandTPrepare,
		ID:   "tx1",
		Updates: []cmap.MapUpdate{
			{Type: cmap.UpdatePut, Key: "a", Value: []byte("new")},
		},
	})
	if cmap.PrepareStatus(res.Status) != cmap.PrepareOK {
		t.Fatalf("expected prepare OK, got %d", res.Status)
	}

	// The lock is replicated state: single-key writes bounce
	res = apply(t, fsm, internal.Command{Type: internal.CommandTPut, Key: "a", Value: []byte("x")})
	if cmap.UpdateStatus(res.Status) != cmap.StatusWriteLock {
		t.Fatalf("expected WRITE_LOCK, got %d", res.Status)
	}

	res = apply(t, fsm, internal.Command{Type: internal.CommandTCommit, ID: "tx1"})
	if cmap.CommitStatus(res.Status) != cmap.CommitOK {
		t.Fatalf("expected commit OK, got %d", res.Status)
	}

	out, err := fsm.Lookup(internal.Query{Type: internal.QueryTGet, Key: "a"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if get := out.(internal.GetResult); !bytes.Equal(get.Value.Value, []byte("new")) {
		t.Fatalf("commit not applied, got %q", get.Value.Value)
	}
}

func TestStateMachineIterators(t *testing.T) {
	fsm := newTestMachine()

	for _, k := range []string{"b", "a", "c"} {
		apply(t, fsm, internal.Command{Type: internal.CommandTPut, Key: k, Value: []byte(k)})
	}

	res := apply(t, fsm, internal.Command{Type: internal.CommandTOpenIterator, ID: "s1"})
	iterID := res.IteratorID
	if iterID == 0 {
		t.Fatalf("expected fresh iterator ID")
	}

	// Mutations after open are invisible
	apply(t, fsm, internal.Command{Type: internal.CommandTRemove, Key: "a"})

	out, err := fsm.Lookup(internal.Query{Type: internal.QueryTNext, IteratorID: iterID, Position: 0, BatchSize: 2})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	next := out.(internal.NextResult)
	if !next.Found || len(next.Batch.Entries) != 2 || next.Batch.Entries[0].Key != "a" {
		t.Fatalf("unexpected first batch: %+v", next)
	}
	if !next.Batch.HasMore {
		t.Fatalf("expected more entries")
	}

	out, _ = fsm.Lookup(internal.Query{Type: internal.QueryTNext, IteratorID: iterID, Position: next.Batch.Position, BatchSize: 2})
	next = out.(internal.NextResult)
	if !next.Found || len(next.Batch.Entries) != 1 || next.Batch.HasMore {
		t.Fatalf("unexpected final batch: %+v", next)
	}
}

func TestStateMachineConcurrentNextLookups(t *testing.T) {
	fsm := newTestMachine()
	for _, k := range []string{"a", "b", "c", "d"} {
		apply(t, fsm, internal.Command{Type: internal.CommandTPut, Key: k, Value: []byte(k)})
	}

	res := apply(t, fsm, internal.Command{Type: internal.CommandTOpenIterator, ID: "s1"})
	iterID := res.IteratorID

	// Dragonboat may serve Lookups for regular state machines in parallel.
	// Next carries its position in the query and reads only the frozen
	// snapshot, so every reader at the same position must see the same batch.
	const readers = 8
	results := make([]internal.NextResult, readers)
	var wg sync.WaitGroup
	wg.Add(readers)
	for i := 0; i < readers; i++ {
		go func(i int) {
			defer wg.Done()
			out, err := fsm.Lookup(internal.Query{Type: internal.QueryTNext, IteratorID: iterID, Position: 0, BatchSize: 2})
			if err != nil {
				t.Errorf("Lookup failed: %v", err)
				return
			}
			results[i] = out.(internal.NextResult)
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if !r.Found || r.Batch.Position != 2 || len(r.Batch.Entries) != 2 || !r.Batch.HasMore {
			t.Fatalf("reader %d got unexpected batch: %+v", i, r)
		}
		if r.Batch.Entries[0].Key != "a" || r.Batch.Entries[1].Key != "b" {
			t.Fatalf("reader %d got unexpected entries: %+v", i, r.Batch.Entries)
		}
	}
}

func TestStateMachineRejectsGarbage(t *testing.T) {
	fsm := newTestMachine()

	res, err := fsm.Update(sm.Entry{Cmd: nil})
	if err != nil || res.Value != uint64(store.RetCInvalidOperation) {
		t.Errorf("empty command must be rejected, got %v %v", res, err)
	}

	res, err = fsm.Update(sm.Entry{Cmd: []byte{1, 2}})
	if err != nil || res.Value != uint64(store.RetCSerializationError) {
		t.Errorf("garbage command must fail deserialization, got %v %v", res, err)
	}

	if _, err := fsm.Lookup("not a query"); err == nil {
		t.Errorf("invalid query type must be rejected")
	}
}

func TestStateMachineSnapshotRoundTrip(t *testing.T) {
	fsm := newTestMachine()
	for i := 0; i < 10; i++ {
		apply(t, fsm, internal.Command{Type: internal.CommandTPut, Key: string(rune('a' + i)), Value: []byte{byte(i)}})
	}
	apply(t, fsm, internal.Command{
		Type:    internal.CommandTPrepare,
		ID:      "pending",
		Updates: []cmap.MapUpdate{{Type: cmap.UpdatePut, Key: "a", Value: []byte("locked")}},
	})

	var buf bytes.Buffer
	if err := fsm.SaveSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	restored := newTestMachine()
	if err := restored.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot failed: %v", err)
	}

	out, err := restored.Lookup(internal.Query{Type: internal.QueryTSize})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if size := out.(int); size != 10 {
		t.Fatalf("expected 10 entries after recovery, got %d", size)
	}

	// The prepared transaction's lock survives recovery
	res := apply(t, restored, internal.Command{Type: internal.CommandTPut, Key: "a", Value: []byte("x")})
	if cmap.UpdateStatus(res.Status) != cmap.StatusWriteLock {
		t.Fatalf("expected WRITE_LOCK after recovery, got %d", res.Status)
	}
}
