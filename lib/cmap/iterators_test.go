package cmap

import (
	"fmt"
	"testing"
)

func TestIteratorSnapshotIsolation(t *testing.T) {
	svc := NewService(nil)
	svc.Put("a", []byte("1"))
	svc.Put("b", []byte("2"))

	id := svc.OpenIterator("s1")

	// Mutations after open must not be visible through the iterator
	svc.Put("c", []byte("3"))
	svc.Remove("a")
	svc.Put("b", []byte("changed"))

	batch, ok := svc.Next(id, 0, 10)
	if !ok {
		t.Fatalf("iterator vanished")
	}
	if len(batch.Entries) != 2 {
		t.Fatalf("expected frozen snapshot of 2 entries, got %d", len(batch.Entries))
	}
	if batch.Entries[0].Key != "a" || batch.Entries[1].Key != "b" {
		t.Errorf("snapshot keys wrong: %v", batch.Entries)
	}
	if string(batch.Entries[1].Value.Value) != "2" {
		t.Errorf("snapshot must hold the value at open time, got %q", batch.Entries[1].Value.Value)
	}
}

func TestIteratorBatching(t *testing.T) {
	svc := NewService(nil)
	for i := 0; i < 10; i++ {
		svc.Put(fmt.Sprintf("k%02d", i), []byte("v"))
	}

	id := svc.OpenIterator("s1")

	var seen []string
	position := 0
	for {
		batch, ok := svc.Next(id, position, 3)
		if !ok {
			t.Fatalf("iterator vanished mid-iteration")
		}
		for _, e := range batch.Entries {
			seen = append(seen, e.Key)
		}
		position = batch.Position
		if !batch.HasMore {
			break
		}
	}

	if len(seen) != 10 {
		t.Fatalf("expected 10 entries total, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Fatalf("batches must be in ascending key order without repeats: %v", seen)
		}
	}
}

func TestIteratorIsReadOnly(t *testing.T) {
	svc := NewService(nil)
	for i := 0; i < 6; i++ {
		svc.Put(fmt.Sprintf("k%d", i), []byte("v"))
	}

	id := svc.OpenIterator("s1")

	// Next carries no server-side cursor: repeated calls at the same position
	// return the same batch
	first, ok := svc.Next(id, 0, 4)
	if !ok {
		t.Fatalf("iterator vanished")
	}
	again, ok := svc.Next(id, 0, 4)
	if !ok {
		t.Fatalf("iterator vanished on repeat")
	}
	if first.Position != again.Position || len(first.Entries) != len(again.Entries) {
		t.Fatalf("same position must yield the same batch: %v vs %v", first, again)
	}
	for i := range first.Entries {
		if first.Entries[i].Key != again.Entries[i].Key {
			t.Fatalf("same position must yield the same entries: %v vs %v", first, again)
		}
	}
}

func TestIteratorSurvivesExhaustion(t *testing.T) {
	svc := NewService(nil)
	svc.Put("a", []byte("1"))
	svc.Put("b", []byte("2"))

	id := svc.OpenIterator("s1")

	batch, ok := svc.Next(id, 0, 10)
	if !ok || batch.HasMore {
		t.Fatalf("expected a single final batch, got %v %v", batch, ok)
	}

	// A retried final call must still be answerable with an empty batch; the
	// snapshot is only released by an explicit close
	batch, ok = svc.Next(id, batch.Position, 10)
	if !ok {
		t.Fatalf("exhausted iterator must stay known until closed")
	}
	if len(batch.Entries) != 0 || batch.HasMore {
		t.Errorf("past-the-end call must return an empty final batch, got %v", batch)
	}
	if svc.OpenIteratorCount() != 1 {
		t.Errorf("exhausted iterator must not be released implicitly")
	}

	svc.CloseIterator(id)
	if _, ok := svc.Next(id, 0, 10); ok {
		t.Errorf("closed iterator must be unknown")
	}
	if svc.OpenIteratorCount() != 0 {
		t.Errorf("close must release the snapshot")
	}
}

func TestIteratorDefaultBatchSize(t *testing.T) {
	svc := NewService(nil)
	svc.Put("k", []byte("v"))

	id := svc.OpenIterator("s1")
	batch, ok := svc.Next(id, 0, 0)
	if !ok || len(batch.Entries) != 1 {
		t.Fatalf("batchSize 0 must fall back to the default, got %v %v", batch, ok)
	}
}

func TestIteratorClose(t *testing.T) {
	svc := NewService(nil)
	svc.Put("k", []byte("v"))

	id := svc.OpenIterator("s1")
	svc.CloseIterator(id)

	if _, ok := svc.Next(id, 0, 10); ok {
		t.Errorf("closed iterator must be unknown")
	}

	// Closing again is a no-op
	svc.CloseIterator(id)
	svc.CloseIterator(9999)
}

func TestIteratorIDsAreFresh(t *testing.T) {
	svc := NewService(nil)
	id1 := svc.OpenIterator("s1")
	svc.CloseIterator(id1)
	id2 := svc.OpenIterator("s1")

	if id2 == id1 {
		t.Errorf("iterator IDs must never be reused, got %d twice", id1)
	}
}

func TestIteratorEmptyMap(t *testing.T) {
	svc := NewService(nil)
	id := svc.OpenIterator("s1")

	batch, ok := svc.Next(id, 0, 10)
	if !ok {
		t.Fatalf("iterator over empty map must be answerable")
	}
	if len(batch.Entries) != 0 || batch.HasMore {
		t.Errorf("empty map iterator must return an empty final batch, got %v", batch)
	}
}
