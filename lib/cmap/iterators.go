package cmap

// --------------------------------------------------------------------------
// Iterator Sessions
// --------------------------------------------------------------------------

// OpenIterator freezes a key-sorted snapshot of the current entries and
// registers it under a fresh iterator ID owned by the given session. The
// snapshot is isolated: later mutations are not visible through it.
func (s *Service) OpenIterator(sessionID string) uint64 {
	s.nextIteratorID++
	id := s.nextIteratorID
	s.iterators[id] = &iteratorSession{
		ownerSession: sessionID,
		entries:      s.EntrySet(),
	}
	return id
}

// Next returns the batch of at most batchSize entries starting at position in
// the iterator snapshot. The caller carries the cursor: each batch reports the
// position to pass on the following call. Next is read-only, so it can be
// served from a shared read path without touching the replicated state; the
// iterator table is only ever mutated by OpenIterator, CloseIterator and
// CloseSession. The boolean is false if the iterator is unknown (never opened
// or closed). A batchSize of 0 falls back to DefaultBatchSize; a position at
// or past the end of the snapshot yields an empty final batch, so a retried
// last call stays answerable until the iterator is closed.
func (s *Service) Next(iteratorID uint64, position, batchSize int) (IteratorBatch, bool) {
	it, ok := s.iterators[iteratorID]
	if !ok {
		return IteratorBatch{}, false
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if position < 0 {
		position = 0
	}
	if position > len(it.entries) {
		position = len(it.entries)
	}

	n := len(it.entries) - position
	if n > batchSize {
		n = batchSize
	}

	return IteratorBatch{
		Position: position + n,
		Entries:  it.entries[position : position+n],
		HasMore:  position+n < len(it.entries),
	}, true
}

// CloseIterator releases the iterator snapshot. Closing an unknown iterator
// is a no-op.
func (s *Service) CloseIterator(iteratorID uint64) {
	delete(s.iterators, iteratorID)
}

// OpenIteratorCount returns the number of live iterator snapshots. Used by
// tests and service introspection.
func (s *Service) OpenIteratorCount() int {
	return len(s.iterators)
}
