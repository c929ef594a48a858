package store

import (
	"fmt"

	"github.com/dmap-io/dmap/lib/cmap"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ServiceFactory is a function type that creates the cmap.Service backing a
// map instance. It abstracts service creation from the map implementation so
// that callers can inject a pre-seeded or instrumented service.
type ServiceFactory func() *cmap.Service

// IMap is the generic interface for interacting with a consistent map.
// Machine-level failures (transport, serialization, no leader) are reported
// through *Error; domain conditions (precondition failed, noop, write lock,
// unknown transaction) are typed statuses inside the results and never
// returned as errors.
type IMap interface {
	// Put unconditionally writes value under key. The result carries the
	// previous versioned value, if any.
	Put(key string, value []byte) (res cmap.UpdateResult, err error)
	// PutIfAbsent writes value only if key is absent; on PRECONDITION_FAILED
	// the result carries the current value.
	PutIfAbsent(key string, value []byte) (res cmap.UpdateResult, err error)
	// PutAndGet unconditionally writes value and returns the NEW versioned value.
	PutAndGet(key string, value []byte) (res cmap.UpdateResult, err error)
	// Remove deletes the entry for key and returns the removed value.
	Remove(key string) (res cmap.UpdateResult, err error)
	// RemoveValue deletes the entry only if its value equals expect byte-for-byte.
	RemoveValue(key string, expect []byte) (res cmap.UpdateResult, err error)
	// RemoveVersion deletes the entry only if its version equals version.
	RemoveVersion(key string, version uint64) (res cmap.UpdateResult, err error)
	// Replace unconditionally writes value and returns the previous versioned
	// value; an absent key is treated as a put.
	Replace(key string, value []byte) (res cmap.UpdateResult, err error)
	// ReplaceValue writes newValue only if the current value equals oldValue.
	ReplaceValue(key string, oldValue, newValue []byte) (res cmap.UpdateResult, err error)
	// ReplaceVersion writes newValue only if the current version equals oldVersion.
	ReplaceVersion(key string, oldVersion uint64, newValue []byte) (res cmap.UpdateResult, err error)
	// Clear removes all entries, emitting one REMOVE event per entry.
	Clear() (res cmap.UpdateResult, err error)

	// Get returns the versioned value for key; loaded indicates existence.
	Get(key string) (value cmap.VersionedValue, loaded bool, err error)
	// GetOrDefault returns the value for key, or def with version 0 if absent.
	GetOrDefault(key string, def []byte) (value cmap.VersionedValue, err error)
	// ContainsKey reports whether an entry exists for key.
	ContainsKey(key string) (ok bool, err error)
	// ContainsValue reports whether any entry holds the given value.
	ContainsValue(value []byte) (ok bool, err error)
	// Size returns the number of entries.
	Size() (size int, err error)
	// IsEmpty reports whether the map holds no entries.
	IsEmpty() (empty bool, err error)
	// KeySet returns all keys in ascending order.
	KeySet() (keys []string, err error)
	// Values returns all versioned values, ordered by ascending key.
	Values() (values []cmap.VersionedValue, err error)
	// EntrySet returns all entries in ascending key order.
	EntrySet() (entries []cmap.Entry, err error)

	// Begin registers a transaction and returns the current map version.
	Begin(txID string) (version uint64, err error)
	// Prepare validates the transaction's updates and write-locks its keys.
	Prepare(txID string, updates []cmap.MapUpdate) (status cmap.PrepareStatus, err error)
	// PrepareAndCommit validates and applies the transaction in one step.
	PrepareAndCommit(txID string, updates []cmap.MapUpdate) (status cmap.PrepareStatus, err error)
	// Commit applies a prepared transaction and releases its locks.
	Commit(txID string) (status cmap.CommitStatus, err error)
	// Rollback discards a transaction and releases its locks.
	Rollback(txID string) (status cmap.CommitStatus, err error)

	// OpenIterator freezes a snapshot for the session and returns its ID.
	OpenIterator(sessionID string) (iteratorID uint64, err error)
	// Next returns the batch starting at position in the iterator snapshot.
	// The caller carries the cursor (pass the returned batch position on the
	// following call); found is false for unknown (closed) iterators.
	Next(iteratorID uint64, position, batchSize int) (batch cmap.IteratorBatch, found bool, err error)
	// CloseIterator releases the iterator snapshot.
	CloseIterator(iteratorID uint64) (err error)

	// AddListener registers the session for change events.
	AddListener(sessionID string) (err error)
	// RemoveListener deregisters the session.
	RemoveListener(sessionID string) (err error)
	// CloseSession releases all iterators and listener registrations of the session.
	CloseSession(sessionID string) (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := ""
	switch e.Code {
	case RetCSuccess:
		errorCode = "Success"
	case RetCInternalError:
		errorCode = "InternalError"
	case RetCInvalidOperation:
		errorCode = "InvalidOperation"
	case RetCSerializationError:
		errorCode = "SerializationError"
	case RetCNotLeader:
		errorCode = "NotLeader"
	case RetCTimeout:
		errorCode = "Timeout"
	default:
		errorCode = "Unknown"
	}

	return fmt.Sprintf("MapError (code %s): %s", errorCode, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess            RetCode = iota // 0: Command executed successfully.
	RetCInternalError                     // 1: Command failed due to an internal error.
	RetCInvalidOperation                  // 2: Unknown or malformed operation.
	RetCSerializationError                // 3: Command or result could not be (de)serialized.
	RetCNotLeader                         // 4: This replica cannot serve the command; retry against the leader.
	RetCTimeout                           // 5: The command did not complete in time.
)
