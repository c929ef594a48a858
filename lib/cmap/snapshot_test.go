package cmap

import (
	"bytes"
	"fmt"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	src := NewService(nil)
	for i := 0; i < 20; i++ {
		src.Put(fmt.Sprintf("k%02d", i), []byte(fmt.Sprintf("v%d", i)))
	}
	src.Remove("k05")
	src.Begin("open-tx")
	if src.Prepare("prepared-tx", []MapUpdate{
		{Type: UpdatePutIfVersionMatch, Key: "k10", Value: []byte("locked"), ExpectedVersion: 11},
	}) != PrepareOK {
		t.Fatalf("prepare failed")
	}

	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	dst := NewService(nil)
	if err := dst.Load(&buf); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// Entries survive with versions intact
	if dst.Size() != src.Size() {
		t.Fatalf("size mismatch after load: %d != %d", dst.Size(), src.Size())
	}
	for _, key := range src.KeySet() {
		want, _ := src.Get(key)
		got, ok := dst.Get(key)
		if !ok || got.Version != want.Version || !bytes.Equal(got.Value, want.Value) {
			t.Errorf("entry %q corrupted: want %+v, got %+v", key, want, got)
		}
	}

	// The version counter continues where it left off
	dst.Put("fresh", []byte("x"))
	src.Put("fresh", []byte("x"))
	gd, _ := dst.Get("fresh")
	gs, _ := src.Get("fresh")
	if gd.Version != gs.Version {
		t.Errorf("version counter diverged after load: %d != %d", gd.Version, gs.Version)
	}
}

func TestSnapshotRestoresWriteLocks(t *testing.T) {
	src := NewService(nil)
	src.Put("k", []byte("v"))
	if src.Prepare("tx", []MapUpdate{{Type: UpdatePut, Key: "k", Value: []byte("txv")}}) != PrepareOK {
		t.Fatalf("prepare failed")
	}

	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	dst := NewService(nil)
	if err := dst.Load(&buf); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// The lock of the prepared transaction is back
	assertStatus(t, dst.Put("k", []byte("x")), StatusWriteLock)

	// And the transaction itself is resolvable
	if dst.Commit("tx") != CommitOK {
		t.Fatalf("commit after load failed")
	}
	assertValue(t, dst, "k", []byte("txv"))
}

func TestSnapshotDropsSessionState(t *testing.T) {
	src := NewService(nil)
	src.Put("k", []byte("v"))
	src.AddListener("s1")
	id := src.OpenIterator("s1")

	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	dst := NewService(nil)
	if err := dst.Load(&buf); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if dst.HasListener("s1") {
		t.Errorf("listener registrations must not be persisted")
	}
	if _, ok := dst.Next(id, 0, 10); ok {
		t.Errorf("iterator snapshots must not be persisted")
	}

	// But the iterator-ID counter is persisted so recovered replicas never
	// hand out an ID a pre-crash client may still hold
	newID := dst.OpenIterator("s2")
	if newID <= id {
		t.Errorf("iterator IDs must stay fresh across recovery: %d <= %d", newID, id)
	}
}

func TestSnapshotDeterministic(t *testing.T) {
	// Two replicas applying the same command stream must produce
	// byte-identical snapshots.
	run := func() *Service {
		svc := NewService(nil)
		for i := 0; i < 50; i++ {
			svc.Put(fmt.Sprintf("key-%03d", i), []byte(fmt.Sprintf("val-%d", i)))
		}
		svc.Remove("key-007")
		svc.ReplaceValue("key-010", []byte("val-10"), []byte("replaced"))
		svc.PrepareAndCommit("tx-a", []MapUpdate{
			{Type: UpdatePut, Key: "tx-key", Value: []byte("tx-val")},
			{Type: UpdateRemove, Key: "key-020"},
		})
		svc.Prepare("tx-b", []MapUpdate{
			{Type: UpdatePut, Key: "key-030", Value: []byte("pending")},
		})
		svc.Clear() // blocked by tx-b's lock, deterministic on both
		return svc
	}

	var buf1, buf2 bytes.Buffer
	if err := run().Save(&buf1); err != nil {
		t.Fatalf("save 1 failed: %v", err)
	}
	if err := run().Save(&buf2); err != nil {
		t.Fatalf("save 2 failed: %v", err)
	}

	if !bytes.Equal(buf1.Bytes(), buf2.Bytes()) {
		t.Fatalf("replicas with identical command streams produced different snapshots (%d vs %d bytes)",
			buf1.Len(), buf2.Len())
	}
}

func TestSnapshotRejectsGarbage(t *testing.T) {
	svc := NewService(nil)

	if err := svc.Load(bytes.NewReader([]byte("NOTAMAP\x00rest"))); err == nil {
		t.Errorf("load must reject a wrong magic number")
	}

	// Truncated input
	good := NewService(nil)
	good.Put("k", []byte("v"))
	var buf bytes.Buffer
	if err := good.Save(&buf); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()/2]
	if err := NewService(nil).Load(bytes.NewReader(truncated)); err == nil {
		t.Errorf("load must fail on truncated input")
	}
}
