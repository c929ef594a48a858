package common

import (
	"encoding/json"
	"fmt"

	"github.com/dmap-io/dmap/lib/cmap"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key        string           `json:"key,omitempty"`         // Entry key for map operations, lock key for lock operations
	Value      []byte           `json:"value,omitempty"`       // New value (request), returned value / owner ID (response)
	AuxValue   []byte           `json:"aux_value,omitempty"`   // Expected old value (RemoveValue, ReplaceValue), default (GetOrDefault)
	Version    uint64           `json:"version,omitempty"`     // Expected version / batch position (request), entry version / size / batch position (response)
	ID         string           `json:"id,omitempty"`          // Session or transaction ID
	IteratorID uint64           `json:"iterator_id,omitempty"` // Iterator handle
	BatchSize  int              `json:"batch_size,omitempty"`  // Max entries per Next batch
	Updates    []cmap.MapUpdate `json:"updates,omitempty"`     // Transaction updates for Prepare / PrepareAndCommit

	// Response only fields
	Status  uint8        `json:"status,omitempty"`   // UpdateStatus / PrepareStatus / CommitStatus
	Ok      bool         `json:"ok,omitempty"`       // Found / value present / acquired / released
	HasMore bool         `json:"has_more,omitempty"` // More batches available (Next)
	Keys    []string     `json:"keys,omitempty"`     // KeySet response
	Entries []cmap.Entry `json:"entries,omitempty"`  // EntrySet / Values / Next responses
	Err     string       `json:"err,omitempty"`      // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Unused, can be used for additional Adapters
}

// --------------------------------------------------------------------------
// Request Factory Functions
// --------------------------------------------------------------------------

// NewPutRequest creates a new Put request
func NewPutRequest(key string, value []byte) *Message {
	return &Message{MsgType: MsgTMapPut, Key: key, Value: value}
}

// NewPutIfAbsentRequest creates a new PutIfAbsent request
func NewPutIfAbsentRequest(key string, value []byte) *Message {
	return &Message{MsgType: MsgTMapPutIfAbsent, Key: key, Value: value}
}

// NewPutAndGetRequest creates a new PutAndGet request
func NewPutAndGetRequest(key string, value []byte) *Message {
	return &Message{MsgType: MsgTMapPutAndGet, Key: key, Value: value}
}

// NewRemoveRequest creates a new Remove request
func NewRemoveRequest(key string) *Message {
	return &Message{MsgType: MsgTMapRemove, Key: key}
}

// NewRemoveValueRequest creates a new RemoveValue request
func NewRemoveValueRequest(key string, expect []byte) *Message {
	return &Message{MsgType: MsgTMapRemoveValue, Key: key, AuxValue: expect}
}

// NewRemoveVersionRequest creates a new RemoveVersion request
func NewRemoveVersionRequest(key string, version uint64) *Message {
	return &Message{MsgType: MsgTMapRemoveVersion, Key: key, Version: version}
}

// NewReplaceRequest creates a new Replace request
func NewReplaceRequest(key string, value []byte) *Message {
	return &Message{MsgType: MsgTMapReplace, Key: key, Value: value}
}

// NewReplaceValueRequest creates a new ReplaceValue request
func NewReplaceValueRequest(key string, oldValue, newValue []byte) *Message {
	return &Message{MsgType: MsgTMapReplaceValue, Key: key, Value: newValue, AuxValue: oldValue}
}

// NewReplaceVersionRequest creates a new ReplaceVersion request
func NewReplaceVersionRequest(key string, oldVersion uint64, newValue []byte) *Message {
	return &Message{MsgType: MsgTMapReplaceVersion, Key: key, Value: newValue, Version: oldVersion}
}

// NewClearRequest creates a new Clear request
func NewClearRequest() *Message {
	return &Message{MsgType: MsgTMapClear}
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{MsgType: MsgTMapGet, Key: key}
}

// NewGetOrDefaultRequest creates a new GetOrDefault request
func NewGetOrDefaultRequest(key string, def []byte) *Message {
	return &Message{MsgType: MsgTMapGetOrDefault, Key: key, AuxValue: def}
}

// NewContainsKeyRequest creates a new ContainsKey request
func NewContainsKeyRequest(key string) *Message {
	return &Message{MsgType: MsgTMapContainsKey, Key: key}
}

// NewContainsValueRequest creates a new ContainsValue request
func NewContainsValueRequest(value []byte) *Message {
	return &Message{MsgType: MsgTMapContainsValue, Value: value}
}

// NewSizeRequest creates a new Size request
func NewSizeRequest() *Message {
	return &Message{MsgType: MsgTMapSize}
}

// NewIsEmptyRequest creates a new IsEmpty request
func NewIsEmptyRequest() *Message {
	return &Message{MsgType: MsgTMapIsEmpty}
}

// NewKeySetRequest creates a new KeySet request
func NewKeySetRequest() *Message {
	return &Message{MsgType: MsgTMapKeySet}
}

// NewValuesRequest creates a new Values request
func NewValuesRequest() *Message {
	return &Message{MsgType: MsgTMapValues}
}

// NewEntrySetRequest creates a new EntrySet request
func NewEntrySetRequest() *Message {
	return &Message{MsgType: MsgTMapEntrySet}
}

// NewBeginRequest creates a new transaction Begin request
func NewBeginRequest(txID string) *Message {
	return &Message{MsgType: MsgTTxBegin, ID: txID}
}

// NewPrepareRequest creates a new transaction Prepare request
func NewPrepareRequest(txID string, updates []cmap.MapUpdate) *Message {
	return &Message{MsgType: MsgTTxPrepare, ID: txID, Updates: updates}
}

// NewPrepareAndCommitRequest creates a new PrepareAndCommit request
func NewPrepareAndCommitRequest(txID string, updates []cmap.MapUpdate) *Message {
	return &Message{MsgType: MsgTTxPrepareAndCommit, ID: txID, Updates: updates}
}

// NewCommitRequest creates a new transaction Commit request
func NewCommitRequest(txID string) *Message {
	return &Message{MsgType: MsgTTxCommit, ID: txID}
}

// NewRollbackRequest creates a new transaction Rollback request
func NewRollbackRequest(txID string) *Message {
	return &Message{MsgType: MsgTTxRollback, ID: txID}
}

// NewIterOpenRequest creates a new OpenIterator request
func NewIterOpenRequest(sessionID string) *Message {
	return &Message{MsgType: MsgTIterOpen, ID: sessionID}
}

// NewIterNextRequest creates a new iterator Next request. The batch position
// travels in the Version field; the client carries it from batch to batch.
func NewIterNextRequest(iteratorID uint64, position, batchSize int) *Message {
	return &Message{MsgType: MsgTIterNext, IteratorID: iteratorID, Version: uint64(position), BatchSize: batchSize}
}

// NewIterCloseRequest creates a new CloseIterator request
func NewIterCloseRequest(iteratorID uint64) *Message {
	return &Message{MsgType: MsgTIterClose, IteratorID: iteratorID}
}

// NewAddListenerRequest creates a new AddListener request
func NewAddListenerRequest(sessionID string) *Message {
	return &Message{MsgType: MsgTSessionAddListener, ID: sessionID}
}

// NewRemoveListenerRequest creates a new RemoveListener request
func NewRemoveListenerRequest(sessionID string) *Message {
	return &Message{MsgType: MsgTSessionRemoveListener, ID: sessionID}
}

// NewCloseSessionRequest creates a new CloseSession request
func NewCloseSessionRequest(sessionID string) *Message {
	return &Message{MsgType: MsgTSessionClose, ID: sessionID}
}

// NewAcquireRequest creates a new lock Acquire request
func NewAcquireRequest(key string) *Message {
	return &Message{MsgType: MsgTLCKAcquire, Key: key}
}

// NewReleaseRequest creates a new lock Release request
func NewReleaseRequest(key string, ownerID []byte) *Message {
	return &Message{MsgType: MsgTLCKRelease, Key: key, Value: ownerID}
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{MsgType: MsgTCustom, Meta: meta}
}

// --------------------------------------------------------------------------
// Response Factory Functions
// --------------------------------------------------------------------------

// Responses share a handful of shapes, so the factories are grouped by shape
// instead of one per operation.

// NewUpdateResponse creates a response for any single-key update operation.
// Ok signals whether the result carries a versioned value.
func NewUpdateResponse(t MessageType, res cmap.UpdateResult, err error) *Message {
	msg := &Message{MsgType: t, Status: uint8(res.Status)}
	if res.Value != nil {
		msg.Ok = true
		msg.Value = res.Value.Value
		msg.Version = res.Value.Version
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGetResponse creates a response carrying a single versioned value
// (Get, GetOrDefault).
func NewGetResponse(t MessageType, value cmap.VersionedValue, ok bool, err error) *Message {
	msg := &Message{MsgType: t, Ok: ok, Value: value.Value, Version: value.Version}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewBoolResponse creates a response carrying a single boolean
// (ContainsKey, ContainsValue, IsEmpty, Acquire, Release).
func NewBoolResponse(t MessageType, ok bool, err error) *Message {
	msg := &Message{MsgType: t, Ok: ok}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewCountResponse creates a response carrying a single number in Version
// (Size, Begin).
func NewCountResponse(t MessageType, n uint64, err error) *Message {
	msg := &Message{MsgType: t, Version: n}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewStatusResponse creates a response carrying a transaction status
// (Prepare, PrepareAndCommit, Commit, Rollback).
func NewStatusResponse(t MessageType, status uint8, err error) *Message {
	msg := &Message{MsgType: t, Status: status}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewKeysResponse creates a KeySet response
func NewKeysResponse(keys []string, err error) *Message {
	msg := &Message{MsgType: MsgTMapKeySet, Keys: keys}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewEntriesResponse creates an EntrySet or Values response
func NewEntriesResponse(t MessageType, entries []cmap.Entry, err error) *Message {
	msg := &Message{MsgType: t, Entries: entries}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewIterOpenResponse creates an OpenIterator response
func NewIterOpenResponse(iteratorID uint64, err error) *Message {
	msg := &Message{MsgType: MsgTIterOpen, IteratorID: iteratorID}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewIterNextResponse creates a Next response. The batch position travels in
// the Version field.
func NewIterNextResponse(batch cmap.IteratorBatch, found bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTIterNext,
		Ok:      found,
		Entries: batch.Entries,
		Version: uint64(batch.Position),
		HasMore: batch.HasMore,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewAcquireResponse creates a lock Acquire response
func NewAcquireResponse(ok bool, ownerID []byte, err error) *Message {
	msg := &Message{MsgType: MsgTLCKAcquire, Ok: ok, Value: ownerID}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewAckResponse creates an empty acknowledgement response
// (CloseIterator, AddListener, RemoveListener, CloseSession).
func NewAckResponse(t MessageType, err error) *Message {
	msg := &Message{MsgType: t}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewCustomResponse creates a new Custom response
func NewCustomResponse(meta []byte, err error) *Message {
	msg := &Message{MsgType: MsgTCustom, Meta: meta}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{MsgType: MsgTError, Err: err}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// messageTypeNames maps each MessageType to its wire name.
var messageTypeNames = map[MessageType]string{
	MsgTSuccess:               "success",
	MsgTError:                 "error",
	MsgTMapPut:                "put",
	MsgTMapPutIfAbsent:        "putIfAbsent",
	MsgTMapPutAndGet:          "putAndGet",
	MsgTMapRemove:             "remove",
	MsgTMapRemoveValue:        "removeValue",
	MsgTMapRemoveVersion:      "removeVersion",
	MsgTMapReplace:            "replace",
	MsgTMapReplaceValue:       "replaceValue",
	MsgTMapReplaceVersion:     "replaceVersion",
	MsgTMapClear:              "clear",
	MsgTMapGet:                "get",
	MsgTMapGetOrDefault:       "getOrDefault",
	MsgTMapContainsKey:        "containsKey",
	MsgTMapContainsValue:      "containsValue",
	MsgTMapSize:               "size",
	MsgTMapIsEmpty:            "isEmpty",
	MsgTMapKeySet:             "keySet",
	MsgTMapValues:             "values",
	MsgTMapEntrySet:           "entrySet",
	MsgTTxBegin:               "txBegin",
	MsgTTxPrepare:             "txPrepare",
	MsgTTxPrepareAndCommit:    "txPrepareAndCommit",
	MsgTTxCommit:              "txCommit",
	MsgTTxRollback:            "txRollback",
	MsgTIterOpen:              "iterOpen",
	MsgTIterNext:              "iterNext",
	MsgTIterClose:             "iterClose",
	MsgTSessionAddListener:    "addListener",
	MsgTSessionRemoveListener: "removeListener",
	MsgTSessionClose:          "closeSession",
	MsgTLCKAcquire:            "acquire",
	MsgTLCKRelease:            "release",
	MsgTCustom:                "custom",
}

// messageTypeValues is the reverse of messageTypeNames, built at init time.
var messageTypeValues = func() map[string]MessageType {
	m := make(map[string]MessageType, len(messageTypeNames))
	for t, name := range messageTypeNames {
		m[name] = t
	}
	return m
}()

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := messageTypeValues[s]
	if !ok {
		return fmt.Errorf("unknown message type: %s", s)
	}
	*t = v
	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IMap update operations

	MsgTMapPut            // Unconditionally write a key-value pair
	MsgTMapPutIfAbsent    // Write only if the key is absent
	MsgTMapPutAndGet      // Write and return the new versioned value
	MsgTMapRemove         // Remove an entry
	MsgTMapRemoveValue    // Remove only if the value matches
	MsgTMapRemoveVersion  // Remove only if the version matches
	MsgTMapReplace        // Unconditional write returning the previous value
	MsgTMapReplaceValue   // Write only if the current value matches
	MsgTMapReplaceVersion // Write only if the current version matches
	MsgTMapClear          // Remove all entries

	// IMap query operations

	MsgTMapGet           // Get a versioned value by key
	MsgTMapGetOrDefault  // Get a value or a default
	MsgTMapContainsKey   // Check if a key exists
	MsgTMapContainsValue // Check if any entry holds a value
	MsgTMapSize          // Number of entries
	MsgTMapIsEmpty       // Whether the map is empty
	MsgTMapKeySet        // All keys
	MsgTMapValues        // All values
	MsgTMapEntrySet      // All entries

	// Transaction operations

	MsgTTxBegin            // Register a transaction
	MsgTTxPrepare          // Validate and lock a transaction
	MsgTTxPrepareAndCommit // Validate and apply in one step
	MsgTTxCommit           // Apply a prepared transaction
	MsgTTxRollback         // Discard a transaction

	// Iterator operations

	MsgTIterOpen  // Freeze a snapshot for iteration
	MsgTIterNext  // Fetch the next batch
	MsgTIterClose // Release the iterator

	// Session operations

	MsgTSessionAddListener    // Register for change events
	MsgTSessionRemoveListener // Deregister from change events
	MsgTSessionClose          // Release all session state

	// ILockManager operations

	MsgTLCKAcquire // Acquire a lock
	MsgTLCKRelease // Release a lock

	// Custom operations

	MsgTCustom // Custom operation type
)
