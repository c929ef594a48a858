package cmap

import (
	"bytes"
	"fmt"
)

// --------------------------------------------------------------------------
// Versioned Values and Entries
// --------------------------------------------------------------------------

// VersionedValue is the unit returned by reads and carried in change events.
// The version is assigned map-wide on every mutation of the key: it never
// repeats and never decreases, including across delete/recreate cycles.
type VersionedValue struct {
	Value   []byte `json:"value"`
	Version uint64 `json:"version"`
}

// Copy returns a deep copy of the versioned value. The map never hands out
// references to its own buffers.
func (v VersionedValue) Copy() VersionedValue {
	value := make([]byte, len(v.Value))
	copy(value, v.Value)
	return VersionedValue{Value: value, Version: v.Version}
}

// Entry is a key together with its versioned value, used by snapshot
// collections (entrySet, iterator batches).
type Entry struct {
	Key   string         `json:"key"`
	Value VersionedValue `json:"value"`
}

// --------------------------------------------------------------------------
// Update Statuses (single-key commands)
// --------------------------------------------------------------------------

// UpdateStatus is the outcome of a single-key mutating operation.
type UpdateStatus uint8

const (
	StatusOK                 UpdateStatus = iota // Mutation applied.
	StatusNoop                                   // Operation had no effect (e.g. remove on absent key). Not an error.
	StatusPreconditionFailed                     // CAS value/version mismatch; state unchanged.
	StatusWriteLock                              // Key is held by a prepared transaction; state unchanged.
)

func (s UpdateStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNoop:
		return "NOOP"
	case StatusPreconditionFailed:
		return "PRECONDITION_FAILED"
	case StatusWriteLock:
		return "WRITE_LOCK"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// UpdateResult bundles the status of a single-key command with the versioned
// value the operation contract returns (previous value for put, removed value
// for remove, new value for the replace family and putAndGet).
type UpdateResult struct {
	Status UpdateStatus    `json:"status"`
	Value  *VersionedValue `json:"value,omitempty"`
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// UpdateType classifies a proposed change inside a transaction.
type UpdateType uint8

const (
	UpdatePut                   UpdateType = iota // Unconditional put.
	UpdatePutIfAbsent                             // Put, precondition: key must not exist.
	UpdatePutIfVersionMatch                       // Put, precondition: current version equals ExpectedVersion.
	UpdateRemove                                  // Unconditional remove, precondition: key must exist.
	UpdateRemoveIfVersionMatch                    // Remove, precondition: current version equals ExpectedVersion.
)

func (t UpdateType) String() string {
	switch t {
	case UpdatePut:
		return "PUT"
	case UpdatePutIfAbsent:
		return "PUT_IF_ABSENT"
	case UpdatePutIfVersionMatch:
		return "PUT_IF_VERSION_MATCH"
	case UpdateRemove:
		return "REMOVE"
	case UpdateRemoveIfVersionMatch:
		return "REMOVE_IF_VERSION_MATCH"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// MapUpdate is one proposed change inside a transaction. All updates of a
// transaction are validated against the map state at prepare time, never
// against each other's intermediate effects.
type MapUpdate struct {
	Type            UpdateType `json:"type"`
	Key             string     `json:"key"`
	Value           []byte     `json:"value,omitempty"`
	ExpectedVersion uint64     `json:"expectedVersion,omitempty"`
}

// TxState is the lifecycle state of a transaction. COMMITTED and ROLLED_BACK
// are terminal; resolved transactions are dropped from the table so that a
// duplicate commit/rollback surfaces as UNKNOWN_TRANSACTION.
type TxState uint8

const (
	TxOpen TxState = iota
	TxPrepared
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxOpen:
		return "OPEN"
	case TxPrepared:
		return "PREPARED"
	case TxCommitted:
		return "COMMITTED"
	case TxRolledBack:
		return "ROLLED_BACK"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// PrepareStatus is the outcome of prepare / prepareAndCommit.
type PrepareStatus uint8

const (
	PrepareOK                    PrepareStatus = iota // All preconditions held.
	PreparePartialFailure                             // At least one precondition failed; transaction discarded.
	PrepareConcurrentTransaction                      // A key is locked by another prepared transaction; transaction discarded.
	PrepareUnknownTransaction                         // TxID already resolved by an earlier prepare.
)

func (s PrepareStatus) String() string {
	switch s {
	case PrepareOK:
		return "OK"
	case PreparePartialFailure:
		return "PARTIAL_FAILURE"
	case PrepareConcurrentTransaction:
		return "CONCURRENT_TRANSACTION"
	case PrepareUnknownTransaction:
		return "UNKNOWN_TRANSACTION"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// CommitStatus is the outcome of commit and rollback. UNKNOWN_TRANSACTION is
// a tolerable duplicate on retry, never corruption.
type CommitStatus uint8

const (
	CommitOK                 CommitStatus = iota
	CommitUnknownTransaction
)

func (s CommitStatus) String() string {
	switch s {
	case CommitOK:
		return "OK"
	case CommitUnknownTransaction:
		return "UNKNOWN_TRANSACTION"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// --------------------------------------------------------------------------
// Iterators
// --------------------------------------------------------------------------

// IteratorBatch is a bounded slice of a frozen iterator snapshot plus the
// position of the cursor after the batch.
type IteratorBatch struct {
	Position int     `json:"position"`
	Entries  []Entry `json:"entries"`
	HasMore  bool    `json:"hasMore"`
}

// --------------------------------------------------------------------------
// Change Events
// --------------------------------------------------------------------------

// EventType classifies a change event.
type EventType uint8

const (
	EventInsert EventType = iota
	EventUpdate
	EventRemove
)

func (e EventType) String() string {
	switch e {
	case EventInsert:
		return "INSERT"
	case EventUpdate:
		return "UPDATE"
	case EventRemove:
		return "REMOVE"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// Event describes one committed change. OldValue absent means insert,
// NewValue absent means remove, both present means update.
type Event struct {
	Type     EventType       `json:"type"`
	Key      string          `json:"key"`
	OldValue *VersionedValue `json:"oldValue,omitempty"`
	NewValue *VersionedValue `json:"newValue,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{%s %q}", e.Type, e.Key)
}

// EventSink receives the change events of one applied command, in commit
// order, together with the sessions registered at that point. Delivery
// beyond the sink is best-effort.
type EventSink func(sessions []string, events []Event)

// valuesEqual is the byte-exact equality used by CAS preconditions and
// containsValue. nil and empty compare equal.
func valuesEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}
