package cmap

import (
	"bytes"
	"testing"
)

// --------------------------------------------------------------------------
// Prepare / Commit
// --------------------------------------------------------------------------

func TestTxCommitAppliesAllUpdates(t *testing.T) {
	svc := NewService(nil)
	svc.Put("a", []byte("old"))

	svc.Begin("tx1")
	status := svc.Prepare("tx1", []MapUpdate{
		{Type: UpdatePut, Key: "a", Value: []byte("new")},
		{Type: UpdatePutIfAbsent, Key: "b", Value: []byte("fresh")},
	})
	if status != PrepareOK {
		t.Fatalf("expected prepare OK, got %v", status)
	}

	// Prepared but not committed: map state unchanged
	assertValue(t, svc, "a", []byte("old"))
	assertAbsent(t, svc, "b")

	if got := svc.Commit("tx1"); got != CommitOK {
		t.Fatalf("expected commit OK, got %v", got)
	}
	assertValue(t, svc, "a", []byte("new"))
	assertValue(t, svc, "b", []byte("fresh"))
}

func TestTxPrepareFailsAtomically(t *testing.T) {
	svc := NewService(nil)
	svc.Put("a", []byte("v"))

	// Second update's precondition fails, so nothing may be applied
	status := svc.Prepare("tx1", []MapUpdate{
		{Type: UpdatePut, Key: "a", Value: []byte("changed")},
		{Type: UpdatePutIfAbsent, Key: "a", Value: []byte("dup")},
	})
	if status != PreparePartialFailure {
		t.Fatalf("expected PARTIAL_FAILURE, got %v", status)
	}

	assertValue(t, svc, "a", []byte("v"))

	// The failed transaction is discarded: no locks, commit is unknown
	if svc.Commit("tx1") != CommitUnknownTransaction {
		t.Errorf("failed prepare must discard the transaction")
	}
	assertStatus(t, svc.Put("a", []byte("free")), StatusOK)
}

func TestTxPrepareValidatesAgainstCurrentStateOnly(t *testing.T) {
	svc := NewService(nil)
	svc.Put("k", []byte("v"))
	vv, _ := svc.Get("k")

	// Version-match validated against the state at prepare time, then a
	// remove of the same key in the same transaction: both must validate
	// against the CURRENT state, not each other's effects.
	status := svc.Prepare("tx1", []MapUpdate{
		{Type: UpdatePutIfVersionMatch, Key: "k", Value: []byte("v2"), ExpectedVersion: vv.Version},
		{Type: UpdateRemoveIfVersionMatch, Key: "k", ExpectedVersion: vv.Version},
	})
	if status != PrepareOK {
		t.Fatalf("expected prepare OK, got %v", status)
	}

	if svc.Commit("tx1") != CommitOK {
		t.Fatalf("commit failed")
	}
	// Applied in order: put then remove -> key gone
	assertAbsent(t, svc, "k")
}

func TestTxScenarioVersionMatchConflict(t *testing.T) {
	// Two transactions read version v of the same key; the first commit
	// wins, the second prepare must fail.
	svc := NewService(nil)
	svc.Put("k", []byte("v"))
	vv, _ := svc.Get("k")

	update := func(val string) []MapUpdate {
		return []MapUpdate{{Type: UpdatePutIfVersionMatch, Key: "k", Value: []byte(val), ExpectedVersion: vv.Version}}
	}

	if got := svc.Prepare("tx1", update("first")); got != PrepareOK {
		t.Fatalf("tx1 prepare: %v", got)
	}

	// tx2 prepares while tx1 holds the lock
	if got := svc.Prepare("tx2", update("second")); got != PrepareConcurrentTransaction {
		t.Fatalf("expected CONCURRENT_TRANSACTION for tx2, got %v", got)
	}

	if svc.Commit("tx1") != CommitOK {
		t.Fatalf("tx1 commit failed")
	}
	assertValue(t, svc, "k", []byte("first"))

	// tx2 retries after tx1 resolved: now the version is stale
	if got := svc.Prepare("tx2", update("second")); got != PreparePartialFailure {
		t.Fatalf("expected PARTIAL_FAILURE for stale tx2, got %v", got)
	}
	assertValue(t, svc, "k", []byte("first"))
}

func TestTxPrepareWithoutBeginIsTolerated(t *testing.T) {
	svc := NewService(nil)

	status := svc.Prepare("orphan", []MapUpdate{
		{Type: UpdatePut, Key: "k", Value: []byte("v")},
	})
	if status != PrepareOK {
		t.Fatalf("prepare implies begin, got %v", status)
	}
	if svc.Commit("orphan") != CommitOK {
		t.Fatalf("commit failed")
	}
	assertValue(t, svc, "k", []byte("v"))
}

func TestTxDoublePrepareRejected(t *testing.T) {
	svc := NewService(nil)
	updates := []MapUpdate{{Type: UpdatePut, Key: "k", Value: []byte("v")}}

	if svc.Prepare("tx1", updates) != PrepareOK {
		t.Fatalf("first prepare failed")
	}
	if got := svc.Prepare("tx1", updates); got != PrepareUnknownTransaction {
		t.Errorf("expected UNKNOWN_TRANSACTION on double prepare, got %v", got)
	}
}

// --------------------------------------------------------------------------
// Write Locks
// --------------------------------------------------------------------------

func TestTxWriteLockBlocksSingleKeyCommands(t *testing.T) {
	svc := NewService(nil)
	svc.Put("k", []byte("v"))

	if svc.Prepare("tx1", []MapUpdate{{Type: UpdatePut, Key: "k", Value: []byte("txv")}}) != PrepareOK {
		t.Fatalf("prepare failed")
	}

	// Every single-key mutation of a locked key fails deterministically
	assertStatus(t, svc.Put("k", []byte("x")), StatusWriteLock)
	assertStatus(t, svc.PutIfAbsent("k", []byte("x")), StatusWriteLock)
	assertStatus(t, svc.Remove("k"), StatusWriteLock)
	assertStatus(t, svc.RemoveValue("k", []byte("v")), StatusWriteLock)
	assertStatus(t, svc.Replace("k", []byte("x")), StatusWriteLock)
	assertStatus(t, svc.Clear(), StatusWriteLock)

	// Unlocked keys stay writable
	assertStatus(t, svc.Put("other", []byte("x")), StatusOK)

	// Reads pass through the lock
	assertValue(t, svc, "k", []byte("v"))

	// Commit releases the locks
	if svc.Commit("tx1") != CommitOK {
		t.Fatalf("commit failed")
	}
	assertStatus(t, svc.Put("k", []byte("after")), StatusOK)
}

func TestTxRollbackReleasesLocksWithoutApplying(t *testing.T) {
	svc := NewService(nil)
	svc.Put("k", []byte("v"))

	if svc.Prepare("tx1", []MapUpdate{{Type: UpdatePut, Key: "k", Value: []byte("txv")}}) != PrepareOK {
		t.Fatalf("prepare failed")
	}
	if svc.Rollback("tx1") != CommitOK {
		t.Fatalf("rollback failed")
	}

	assertValue(t, svc, "k", []byte("v"))
	assertStatus(t, svc.Put("k", []byte("free")), StatusOK)
}

func TestTxDuplicateResolveIsUnknown(t *testing.T) {
	svc := NewService(nil)

	if svc.Prepare("tx1", []MapUpdate{{Type: UpdatePut, Key: "k", Value: []byte("v")}}) != PrepareOK {
		t.Fatalf("prepare failed")
	}
	if svc.Commit("tx1") != CommitOK {
		t.Fatalf("commit failed")
	}

	// Retried commit and rollback after resolution are tolerable duplicates
	if svc.Commit("tx1") != CommitUnknownTransaction {
		t.Errorf("duplicate commit must be UNKNOWN_TRANSACTION")
	}
	if svc.Rollback("tx1") != CommitUnknownTransaction {
		t.Errorf("rollback after commit must be UNKNOWN_TRANSACTION")
	}
	if svc.Commit("never-existed") != CommitUnknownTransaction {
		t.Errorf("commit of unknown txID must be UNKNOWN_TRANSACTION")
	}
}

// --------------------------------------------------------------------------
// PrepareAndCommit
// --------------------------------------------------------------------------

func TestTxPrepareAndCommit(t *testing.T) {
	svc, records := newRecordingService()
	svc.AddListener("s")
	svc.Put("a", []byte("old"))
	*records = (*records)[:0]

	status := svc.PrepareAndCommit("tx1", []MapUpdate{
		{Type: UpdatePut, Key: "a", Value: []byte("new")},
		{Type: UpdatePut, Key: "b", Value: []byte("created")},
	})
	if status != PrepareOK {
		t.Fatalf("expected OK, got %v", status)
	}
	assertValue(t, svc, "a", []byte("new"))
	assertValue(t, svc, "b", []byte("created"))

	// Events are emitted at this log slot, in update order
	if len(*records) != 1 {
		t.Fatalf("expected one emission, got %d", len(*records))
	}
	events := (*records)[0].events
	if len(events) != 2 || events[0].Key != "a" || events[1].Key != "b" {
		t.Errorf("wrong event order: %v", events)
	}

	// Nothing is retained; no locks, no pending transaction
	if svc.Commit("tx1") != CommitUnknownTransaction {
		t.Errorf("prepareAndCommit must not leave a pending transaction")
	}
	assertStatus(t, svc.Put("a", []byte("free")), StatusOK)
}

func TestTxPrepareAndCommitFailsCleanly(t *testing.T) {
	svc := NewService(nil)
	svc.Put("a", []byte("v"))

	status := svc.PrepareAndCommit("tx1", []MapUpdate{
		{Type: UpdatePutIfAbsent, Key: "a", Value: []byte("dup")},
	})
	if status != PreparePartialFailure {
		t.Fatalf("expected PARTIAL_FAILURE, got %v", status)
	}
	assertValue(t, svc, "a", []byte("v"))
	assertStatus(t, svc.Put("a", []byte("free")), StatusOK)
}

func TestTxPrepareAndCommitBlockedByLock(t *testing.T) {
	svc := NewService(nil)

	if svc.Prepare("holder", []MapUpdate{{Type: UpdatePut, Key: "k", Value: []byte("v")}}) != PrepareOK {
		t.Fatalf("prepare failed")
	}
	status := svc.PrepareAndCommit("tx2", []MapUpdate{
		{Type: UpdatePut, Key: "k", Value: []byte("other")},
	})
	if status != PrepareConcurrentTransaction {
		t.Errorf("expected CONCURRENT_TRANSACTION, got %v", status)
	}
}

// --------------------------------------------------------------------------
// Commit Events and Versions
// --------------------------------------------------------------------------

func TestTxCommitEmitsEventsInUpdateOrder(t *testing.T) {
	svc, records := newRecordingService()
	svc.AddListener("s")
	svc.Put("z", []byte("old"))
	*records = (*records)[:0]

	svc.Begin("tx")
	if svc.Prepare("tx", []MapUpdate{
		{Type: UpdatePut, Key: "z", Value: []byte("new")},
		{Type: UpdatePut, Key: "a", Value: []byte("ins")},
		{Type: UpdateRemove, Key: "z"},
	}) != PrepareOK {
		t.Fatalf("prepare failed")
	}

	// Nothing emitted at prepare time
	if len(*records) != 0 {
		t.Fatalf("prepare must not emit events")
	}

	if svc.Commit("tx") != CommitOK {
		t.Fatalf("commit failed")
	}
	if len(*records) != 1 {
		t.Fatalf("expected one emission at commit, got %d", len(*records))
	}
	events := (*records)[0].events
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != EventUpdate || events[0].Key != "z" {
		t.Errorf("event 0 wrong: %v", events[0])
	}
	if events[1].Type != EventInsert || events[1].Key != "a" {
		t.Errorf("event 1 wrong: %v", events[1])
	}
	if events[2].Type != EventRemove || events[2].Key != "z" {
		t.Errorf("event 2 wrong: %v", events[2])
	}
}

func TestTxCommitAssignsFreshVersions(t *testing.T) {
	svc := NewService(nil)
	svc.Put("a", []byte("x"))
	before, _ := svc.Get("a")

	if svc.Prepare("tx", []MapUpdate{
		{Type: UpdatePut, Key: "a", Value: []byte("y")},
		{Type: UpdatePut, Key: "b", Value: []byte("z")},
	}) != PrepareOK {
		t.Fatalf("prepare failed")
	}
	if svc.Commit("tx") != CommitOK {
		t.Fatalf("commit failed")
	}

	va, _ := svc.Get("a")
	vb, _ := svc.Get("b")
	if va.Version <= before.Version {
		t.Errorf("committed write must bump the version")
	}
	if vb.Version <= va.Version {
		t.Errorf("versions must be assigned in update order: a=%d b=%d", va.Version, vb.Version)
	}
	if !bytes.Equal(va.Value, []byte("y")) || !bytes.Equal(vb.Value, []byte("z")) {
		t.Errorf("committed values wrong")
	}
}
