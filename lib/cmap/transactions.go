package cmap

// --------------------------------------------------------------------------
// Transaction Coordinator
// --------------------------------------------------------------------------

// Begin registers an OPEN transaction under txID and returns the current
// map-wide version, which the client uses as the read version of its
// optimistic updates. Begin on an already known txID is idempotent.
func (s *Service) Begin(txID string) uint64 {
	if _, ok := s.txns[txID]; !ok {
		s.txns[txID] = &transaction{state: TxOpen}
	}
	return s.versionCounter
}

// Prepare validates every update of the transaction against the CURRENT map
// state (never against other updates of the same transaction) and, if all
// preconditions hold, marks the transaction PREPARED and write-locks its
// keys. Any failure discards the whole transaction:
//
//   - a key locked by another prepared transaction -> CONCURRENT_TRANSACTION
//   - a failed precondition                        -> PARTIAL_FAILURE
//
// A prepare without a preceding begin is tolerated (prepare implies begin).
func (s *Service) Prepare(txID string, updates []MapUpdate) PrepareStatus {
	txn, known := s.txns[txID]
	if known && txn.state != TxOpen {
		return PrepareUnknownTransaction
	}

	if status := s.validate(txID, updates); status != PrepareOK {
		delete(s.txns, txID)
		return status
	}

	s.txns[txID] = &transaction{state: TxPrepared, updates: updates}
	for _, u := range updates {
		s.preparedKeys[u.Key] = txID
	}
	return PrepareOK
}

// PrepareAndCommit validates and applies the transaction in one atomic step.
// No locks are taken; change events are emitted immediately since this is
// the log slot where the updates become visible.
func (s *Service) PrepareAndCommit(txID string, updates []MapUpdate) PrepareStatus {
	txn, known := s.txns[txID]
	if known && txn.state != TxOpen {
		return PrepareUnknownTransaction
	}
	delete(s.txns, txID)

	if status := s.validate(txID, updates); status != PrepareOK {
		return status
	}

	s.emit(s.apply(updates))
	return PrepareOK
}

// Commit applies the updates of a PREPARED transaction, releases its write
// locks and drops it from the table. Commit for an unknown or unprepared
// txID returns UNKNOWN_TRANSACTION without touching state, so a duplicate
// commit on retry is harmless.
func (s *Service) Commit(txID string) CommitStatus {
	txn, ok := s.txns[txID]
	if !ok || txn.state != TxPrepared {
		return CommitUnknownTransaction
	}

	s.release(txID, txn)
	s.emit(s.apply(txn.updates))
	return CommitOK
}

// Rollback discards a transaction and releases any write locks it holds.
// The map state is untouched. Unknown txIDs return UNKNOWN_TRANSACTION.
func (s *Service) Rollback(txID string) CommitStatus {
	txn, ok := s.txns[txID]
	if !ok {
		return CommitUnknownTransaction
	}

	s.release(txID, txn)
	return CommitOK
}

// release drops the transaction and the write locks it holds. Locks held by
// other transactions are untouched.
func (s *Service) release(txID string, txn *transaction) {
	for _, u := range txn.updates {
		if s.preparedKeys[u.Key] == txID {
			delete(s.preparedKeys, u.Key)
		}
	}
	delete(s.txns, txID)
}

// validate checks all updates against the current map state. Lock conflicts
// take precedence over precondition failures so that the caller can tell a
// transient conflict (retry later) from a stale read (re-read and rebuild).
func (s *Service) validate(txID string, updates []MapUpdate) PrepareStatus {
	for _, u := range updates {
		if holder, locked := s.preparedKeys[u.Key]; locked && holder != txID {
			return PrepareConcurrentTransaction
		}
	}
	for _, u := range updates {
		if !s.validateUpdate(u) {
			return PreparePartialFailure
		}
	}
	return PrepareOK
}

// validateUpdate checks one update's precondition against the current state.
func (s *Service) validateUpdate(u MapUpdate) bool {
	curr, exists := s.entries[u.Key]
	switch u.Type {
	case UpdatePut:
		return true
	case UpdatePutIfAbsent:
		return !exists
	case UpdatePutIfVersionMatch:
		return exists && curr.Version == u.ExpectedVersion
	case UpdateRemove:
		return exists
	case UpdateRemoveIfVersionMatch:
		return exists && curr.Version == u.ExpectedVersion
	default:
		return false
	}
}

// apply writes all updates unconditionally (preconditions were validated at
// prepare time) and returns the change events in update order. Each write
// consumes a fresh version from the map-wide counter.
func (s *Service) apply(updates []MapUpdate) []Event {
	events := make([]Event, 0, len(updates))
	for _, u := range updates {
		old, existed := s.entries[u.Key]
		switch u.Type {
		case UpdatePut, UpdatePutIfAbsent, UpdatePutIfVersionMatch:
			vv := s.put(u.Key, u.Value)
			if existed {
				events = append(events, updateEvent(u.Key, old, vv))
			} else {
				events = append(events, insertEvent(u.Key, vv))
			}
		case UpdateRemove, UpdateRemoveIfVersionMatch:
			if existed {
				delete(s.entries, u.Key)
				events = append(events, removeEvent(u.Key, old))
			}
		}
	}
	return events
}
