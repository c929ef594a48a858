package cmap

import (
	"sort"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for snapshot format and iterator batching
const (
	magicNum         = "CMAPSVC\x00" // Snapshot format identifier
	formatVersion    = 1             // Snapshot format version
	DefaultBatchSize = 128           // Max entries per iterator batch
)

// --------------------------------------------------------------------------
// Core Service Structure
// --------------------------------------------------------------------------

// Service is the consistent-map state machine. It holds one cohesive state:
// the entries, the map-wide version counter, the transaction table with its
// per-key write locks, the open iterator snapshots and the listener sessions.
//
// Thread-safety: none of the methods are safe for concurrent use. The service
// is designed to sit behind a serialized command stream (a consensus log or a
// single mutex); determinism comes from that serialization, not from locks.
type Service struct {
	entries        map[string]VersionedValue
	versionCounter uint64

	txns         map[string]*transaction // txID -> open/prepared transaction
	preparedKeys map[string]string       // key -> txID of the prepared txn locking it

	iterators      map[uint64]*iteratorSession
	nextIteratorID uint64

	listeners map[string]struct{} // registered sessionIDs

	sink EventSink
}

// transaction is a tracked transaction. Updates are retained verbatim between
// prepare and commit.
type transaction struct {
	state   TxState
	updates []MapUpdate
}

// iteratorSession is a frozen, key-sorted snapshot owned by one session. It
// holds no cursor: clients carry their position from batch to batch.
type iteratorSession struct {
	ownerSession string
	entries      []Entry
}

// NewService creates an empty consistent-map service. The sink may be nil,
// in which case change events are dropped.
func NewService(sink EventSink) *Service {
	return &Service{
		entries:      make(map[string]VersionedValue),
		txns:         make(map[string]*transaction),
		preparedKeys: make(map[string]string),
		iterators:    make(map[uint64]*iteratorSession),
		listeners:    make(map[string]struct{}),
		sink:         sink,
	}
}

// SetSink replaces the event sink. Intended for wiring after recovery, not
// for concurrent use.
func (s *Service) SetSink(sink EventSink) {
	s.sink = sink
}

// --------------------------------------------------------------------------
// Internal Helpers
// --------------------------------------------------------------------------

// nextVersion advances the map-wide version counter and returns the new
// version. Versions never repeat, including across delete/recreate cycles.
func (s *Service) nextVersion() uint64 {
	s.versionCounter++
	return s.versionCounter
}

// isLocked reports whether a prepared transaction holds the write lock for
// the key.
func (s *Service) isLocked(key string) bool {
	_, ok := s.preparedKeys[key]
	return ok
}

// put writes the value under a fresh version and returns the stored copy.
func (s *Service) put(key string, value []byte) VersionedValue {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	vv := VersionedValue{Value: valueCopy, Version: s.nextVersion()}
	s.entries[key] = vv
	return vv
}

// emit hands the events of one applied command to the sink, in commit order,
// together with the sessions registered at this point in the log.
func (s *Service) emit(events []Event) {
	if s.sink == nil || len(events) == 0 {
		return
	}
	sessions := make([]string, 0, len(s.listeners))
	for id := range s.listeners {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	s.sink(sessions, events)
}

// sortedKeys returns all keys in ascending order. Every deterministic
// collection (keySet, values, entrySet, iterator snapshots) is built from
// this so that all replicas produce identical output.
func (s *Service) sortedKeys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// insertEvent / updateEvent / removeEvent build the three event shapes.
func insertEvent(key string, newValue VersionedValue) Event {
	vv := newValue.Copy()
	return Event{Type: EventInsert, Key: key, NewValue: &vv}
}

func updateEvent(key string, oldValue, newValue VersionedValue) Event {
	ov, nv := oldValue.Copy(), newValue.Copy()
	return Event{Type: EventUpdate, Key: key, OldValue: &ov, NewValue: &nv}
}

func removeEvent(key string, oldValue VersionedValue) Event {
	vv := oldValue.Copy()
	return Event{Type: EventRemove, Key: key, OldValue: &vv}
}

// --------------------------------------------------------------------------
// Write Operations (single-key commands)
// --------------------------------------------------------------------------

// Put unconditionally writes value under key and returns the previous
// versioned value, if any. Fails with WRITE_LOCK if the key is held by a
// prepared transaction.
func (s *Service) Put(key string, value []byte) UpdateResult {
	if s.isLocked(key) {
		return UpdateResult{Status: StatusWriteLock}
	}

	old, existed := s.entries[key]
	if existed && valuesEqual(old.Value, value) {
		// Same value again: no new version, no event.
		prev := old.Copy()
		return UpdateResult{Status: StatusNoop, Value: &prev}
	}

	vv := s.put(key, value)
	if existed {
		prev := old.Copy()
		s.emit([]Event{updateEvent(key, old, vv)})
		return UpdateResult{Status: StatusOK, Value: &prev}
	}
	s.emit([]Event{insertEvent(key, vv)})
	return UpdateResult{Status: StatusOK}
}

// PutIfAbsent writes value under key only if the key is absent. If the key
// exists the operation fails with PRECONDITION_FAILED and returns the
// current value.
func (s *Service) PutIfAbsent(key string, value []byte) UpdateResult {
	if s.isLocked(key) {
		return UpdateResult{Status: StatusWriteLock}
	}

	if curr, existed := s.entries[key]; existed {
		currCopy := curr.Copy()
		return UpdateResult{Status: StatusPreconditionFailed, Value: &currCopy}
	}

	vv := s.put(key, value)
	s.emit([]Event{insertEvent(key, vv)})
	return UpdateResult{Status: StatusOK}
}

// PutAndGet unconditionally writes value under key and returns the NEW
// versioned value instead of the previous one.
func (s *Service) PutAndGet(key string, value []byte) UpdateResult {
	if s.isLocked(key) {
		return UpdateResult{Status: StatusWriteLock}
	}

	old, existed := s.entries[key]
	if existed && valuesEqual(old.Value, value) {
		curr := old.Copy()
		return UpdateResult{Status: StatusNoop, Value: &curr}
	}

	vv := s.put(key, value)
	stored := vv.Copy()
	if existed {
		s.emit([]Event{updateEvent(key, old, vv)})
	} else {
		s.emit([]Event{insertEvent(key, vv)})
	}
	return UpdateResult{Status: StatusOK, Value: &stored}
}

// Remove deletes the entry for key and returns the removed versioned value.
// Removing an absent key is a NOOP, not an error.
func (s *Service) Remove(key string) UpdateResult {
	if s.isLocked(key) {
		return UpdateResult{Status: StatusWriteLock}
	}

	old, existed := s.entries[key]
	if !existed {
		return UpdateResult{Status: StatusNoop}
	}

	delete(s.entries, key)
	removed := old.Copy()
	s.emit([]Event{removeEvent(key, old)})
	return UpdateResult{Status: StatusOK, Value: &removed}
}

// RemoveValue deletes the entry for key only if its current value equals the
// expected value byte-for-byte.
func (s *Service) RemoveValue(key string, expect []byte) UpdateResult {
	if s.isLocked(key) {
		return UpdateResult{Status: StatusWriteLock}
	}

	old, existed := s.entries[key]
	if !existed {
		return UpdateResult{Status: StatusNoop}
	}
	if !valuesEqual(old.Value, expect) {
		return UpdateResult{Status: StatusPreconditionFailed}
	}

	delete(s.entries, key)
	removed := old.Copy()
	s.emit([]Event{removeEvent(key, old)})
	return UpdateResult{Status: StatusOK, Value: &removed}
}

// RemoveVersion deletes the entry for key only if its current version equals
// the expected version.
func (s *Service) RemoveVersion(key string, version uint64) UpdateResult {
	if s.isLocked(key) {
		return UpdateResult{Status: StatusWriteLock}
	}

	old, existed := s.entries[key]
	if !existed {
		return UpdateResult{Status: StatusNoop}
	}
	if old.Version != version {
		return UpdateResult{Status: StatusPreconditionFailed}
	}

	delete(s.entries, key)
	removed := old.Copy()
	s.emit([]Event{removeEvent(key, old)})
	return UpdateResult{Status: StatusOK, Value: &removed}
}

// Replace unconditionally writes value under key and returns the previous
// versioned value. An absent key is treated as a put: the entry is created
// and no previous value is returned.
func (s *Service) Replace(key string, value []byte) UpdateResult {
	if s.isLocked(key) {
		return UpdateResult{Status: StatusWriteLock}
	}

	old, existed := s.entries[key]
	vv := s.put(key, value)
	if !existed {
		s.emit([]Event{insertEvent(key, vv)})
		return UpdateResult{Status: StatusOK}
	}
	prev := old.Copy()
	s.emit([]Event{updateEvent(key, old, vv)})
	return UpdateResult{Status: StatusOK, Value: &prev}
}

// ReplaceValue writes newValue under key only if the current value equals
// oldValue byte-for-byte.
func (s *Service) ReplaceValue(key string, oldValue, newValue []byte) UpdateResult {
	if s.isLocked(key) {
		return UpdateResult{Status: StatusWriteLock}
	}

	old, existed := s.entries[key]
	if !existed || !valuesEqual(old.Value, oldValue) {
		return UpdateResult{Status: StatusPreconditionFailed}
	}

	vv := s.put(key, newValue)
	prev := old.Copy()
	s.emit([]Event{updateEvent(key, old, vv)})
	return UpdateResult{Status: StatusOK, Value: &prev}
}

// ReplaceVersion writes newValue under key only if the current version
// equals oldVersion.
func (s *Service) ReplaceVersion(key string, oldVersion uint64, newValue []byte) UpdateResult {
	if s.isLocked(key) {
		return UpdateResult{Status: StatusWriteLock}
	}

	old, existed := s.entries[key]
	if !existed || old.Version != oldVersion {
		return UpdateResult{Status: StatusPreconditionFailed}
	}

	vv := s.put(key, newValue)
	prev := old.Copy()
	s.emit([]Event{updateEvent(key, old, vv)})
	return UpdateResult{Status: StatusOK, Value: &prev}
}

// Clear removes all entries not locked by a prepared transaction and emits
// one REMOVE event per removed entry, in ascending key order. Fails with
// WRITE_LOCK if any key is currently locked, leaving the map unchanged.
func (s *Service) Clear() UpdateResult {
	if len(s.preparedKeys) > 0 {
		return UpdateResult{Status: StatusWriteLock}
	}
	if len(s.entries) == 0 {
		return UpdateResult{Status: StatusNoop}
	}

	keys := s.sortedKeys()
	events := make([]Event, 0, len(keys))
	for _, k := range keys {
		events = append(events, removeEvent(k, s.entries[k]))
		delete(s.entries, k)
	}
	s.emit(events)
	return UpdateResult{Status: StatusOK}
}

// --------------------------------------------------------------------------
// Read Operations (queries)
// --------------------------------------------------------------------------

// Size returns the number of entries.
func (s *Service) Size() int {
	return len(s.entries)
}

// IsEmpty reports whether the map holds no entries.
func (s *Service) IsEmpty() bool {
	return len(s.entries) == 0
}

// ContainsKey reports whether an entry exists for key.
func (s *Service) ContainsKey(key string) bool {
	_, ok := s.entries[key]
	return ok
}

// ContainsValue reports whether any entry holds the given value,
// byte-for-byte.
func (s *Service) ContainsValue(value []byte) bool {
	for _, vv := range s.entries {
		if valuesEqual(vv.Value, value) {
			return true
		}
	}
	return false
}

// Get returns the versioned value for key. The boolean indicates whether the
// key exists; the returned value is a copy and safe to retain.
func (s *Service) Get(key string) (VersionedValue, bool) {
	vv, ok := s.entries[key]
	if !ok {
		return VersionedValue{}, false
	}
	return vv.Copy(), true
}

// GetOrDefault returns the versioned value for key, or a zero-version value
// holding def if the key is absent.
func (s *Service) GetOrDefault(key string, def []byte) VersionedValue {
	if vv, ok := s.entries[key]; ok {
		return vv.Copy()
	}
	defCopy := make([]byte, len(def))
	copy(defCopy, def)
	return VersionedValue{Value: defCopy, Version: 0}
}

// KeySet returns all keys in ascending order.
func (s *Service) KeySet() []string {
	return s.sortedKeys()
}

// Values returns all versioned values, ordered by ascending key.
func (s *Service) Values() []VersionedValue {
	keys := s.sortedKeys()
	values := make([]VersionedValue, 0, len(keys))
	for _, k := range keys {
		values = append(values, s.entries[k].Copy())
	}
	return values
}

// EntrySet returns all entries in ascending key order.
func (s *Service) EntrySet() []Entry {
	keys := s.sortedKeys()
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Key: k, Value: s.entries[k].Copy()})
	}
	return entries
}

// --------------------------------------------------------------------------
// Session Lifecycle
// --------------------------------------------------------------------------

// CloseSession releases all per-session state: iterators owned by the
// session and its listener registration. Transactions are not
// session-scoped and survive.
func (s *Service) CloseSession(sessionID string) {
	for id, it := range s.iterators {
		if it.ownerSession == sessionID {
			delete(s.iterators, id)
		}
	}
	delete(s.listeners, sessionID)
}
