package internal

import (
	"github.com/dmap-io/dmap/lib/cmap"
)

// QueryType defines the possible read-only queries for the state machine.
type QueryType uint8

const (
	QueryTGet           QueryType = iota // Retrieve a versioned value by key.
	QueryTGetOrDefault                   // Retrieve a value or a default.
	QueryTContainsKey                    // Check if a key exists.
	QueryTContainsValue                  // Check if any entry holds a value.
	QueryTSize                           // Number of entries.
	QueryTIsEmpty                        // Whether the map is empty.
	QueryTKeySet                         // All keys in ascending order.
	QueryTValues                         // All values in ascending key order.
	QueryTEntrySet                       // All entries in ascending key order.
	QueryTNext                           // Next batch of an iterator snapshot.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTGetOrDefault:
		return "GetOrDefault"
	case QueryTContainsKey:
		return "ContainsKey"
	case QueryTContainsValue:
		return "ContainsValue"
	case QueryTSize:
		return "Size"
	case QueryTIsEmpty:
		return "IsEmpty"
	case QueryTKeySet:
		return "KeySet"
	case QueryTValues:
		return "Values"
	case QueryTEntrySet:
		return "EntrySet"
	case QueryTNext:
		return "Next"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via
// SyncRead or StaleRead. Queries travel as plain Go values, they never touch
// the raft log and need no binary codec.
type Query struct {
	Type       QueryType
	Key        string // key for Get/GetOrDefault/ContainsKey (empty otherwise)
	Value      []byte // default for GetOrDefault, needle for ContainsValue
	IteratorID uint64 // Next
	Position   int    // Next batch start, carried by the client
	BatchSize  int    // Next
}

// GetResult is the result of a QueryTGet / QueryTGetOrDefault operation.
type GetResult struct {
	Ok    bool
	Value cmap.VersionedValue
}

// NextResult is the result of a QueryTNext operation. Found is false for
// unknown (closed) iterators.
type NextResult struct {
	Found bool
	Batch cmap.IteratorBatch
}
