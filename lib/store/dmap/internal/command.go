package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/dmap-io/dmap/lib/cmap"
)

// CommandType defines the possible mutating operations for the state machine.
type CommandType uint8

const (
	CommandTPut              CommandType = iota // Insert or update an entry.
	CommandTPutIfAbsent                         // Insert an entry if the key is absent.
	CommandTPutAndGet                           // Insert or update and return the new value.
	CommandTRemove                              // Remove an entry.
	CommandTRemoveValue                         // Remove an entry if the value matches.
	CommandTRemoveVersion                       // Remove an entry if the version matches.
	CommandTReplace                             // Replace the value of an existing entry.
	CommandTReplaceValue                        // Replace if the current value matches.
	CommandTReplaceVersion                      // Replace if the current version matches.
	CommandTClear                               // Remove all entries.
	CommandTBegin                               // Register a transaction.
	CommandTPrepare                             // Validate and lock a transaction's updates.
	CommandTPrepareAndCommit                    // Validate and apply in one step.
	CommandTCommit                              // Apply a prepared transaction.
	CommandTRollback                            // Discard a transaction.
	CommandTOpenIterator                        // Freeze an iterator snapshot.
	CommandTCloseIterator                       // Release an iterator snapshot.
	CommandTAddListener                         // Register a session for change events.
	CommandTRemoveListener                      // Deregister a session.
	CommandTCloseSession                        // Release all session-scoped state.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTPut:
		return "Put"
	case CommandTPutIfAbsent:
		return "PutIfAbsent"
	case CommandTPutAndGet:
		return "PutAndGet"
	case CommandTRemove:
		return "Remove"
	case CommandTRemoveValue:
		return "RemoveValue"
	case CommandTRemoveVersion:
		return "RemoveVersion"
	case CommandTReplace:
		return "Replace"
	case CommandTReplaceValue:
		return "ReplaceValue"
	case CommandTReplaceVersion:
		return "ReplaceVersion"
	case CommandTClear:
		return "Clear"
	case CommandTBegin:
		return "Begin"
	case CommandTPrepare:
		return "Prepare"
	case CommandTPrepareAndCommit:
		return "PrepareAndCommit"
	case CommandTCommit:
		return "Commit"
	case CommandTRollback:
		return "Rollback"
	case CommandTOpenIterator:
		return "OpenIterator"
	case CommandTCloseIterator:
		return "CloseIterator"
	case CommandTAddListener:
		return "AddListener"
	case CommandTRemoveListener:
		return "RemoveListener"
	case CommandTCloseSession:
		return "CloseSession"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents a command to be executed by the state machine (a single
// entry in the raft log). Field usage depends on the command type:
//
//   - Key/Value:    single-key operations (Value is the new value)
//   - AuxValue:     the expected value for RemoveValue/ReplaceValue
//   - Version:      the expected version for the *Version operations
//   - ID:           txID for transaction commands, sessionID for
//     iterator/listener/session commands
//   - IteratorID:   CloseIterator
//   - Updates:      Prepare / PrepareAndCommit
type Command struct {
	Type       CommandType
	Key        string
	Value      []byte
	AuxValue   []byte
	Version    uint64
	ID         string
	IteratorID uint64
	Updates    []cmap.MapUpdate
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	// Type + Version + IteratorID + four length prefixes
	size := 1 + 8 + 8 + 4 + len(command.Key) + 4 + len(command.ID) +
		4 + len(command.Value) + 4 + len(command.AuxValue)
	// Update count prefix
	size += 4
	for i := range command.Updates {
		u := &command.Updates[i]
		size += 1 + 8 + 4 + len(u.Key) + 4 + len(u.Value)
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for version,
// 8 bytes for iterator ID,
// then key, ID, value and auxValue each as 4-byte big-endian length + bytes,
// then 4 bytes for the update count followed by each update as
// 1 byte type, 8 bytes expected version, length-prefixed key, length-prefixed value.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], command.Version)
	binary.BigEndian.PutUint64(result[9:17], command.IteratorID)

	off := 17
	off = putBytes(result, off, []byte(command.Key))
	off = putBytes(result, off, []byte(command.ID))
	off = putBytes(result, off, command.Value)
	off = putBytes(result, off, command.AuxValue)

	binary.BigEndian.PutUint32(result[off:off+4], uint32(len(command.Updates)))
	off += 4
	for i := range command.Updates {
		u := &command.Updates[i]
		result[off] = byte(u.Type)
		off++
		binary.BigEndian.PutUint64(result[off:off+8], u.ExpectedVersion)
		off += 8
		off = putBytes(result, off, []byte(u.Key))
		off = putBytes(result, off, u.Value)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	// Minimum size: 1 (Type) + 8 (Version) + 8 (IteratorID) = 17 bytes
	if len(data) < 17 {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Version = binary.BigEndian.Uint64(data[1:9])
	command.IteratorID = binary.BigEndian.Uint64(data[9:17])

	off := 17
	var b []byte
	var err error

	if b, off, err = getBytes(data, off); err != nil {
		return fmt.Errorf("key: %v", err)
	}
	command.Key = string(b)
	if b, off, err = getBytes(data, off); err != nil {
		return fmt.Errorf("id: %v", err)
	}
	command.ID = string(b)
	if command.Value, off, err = getBytes(data, off); err != nil {
		return fmt.Errorf("value: %v", err)
	}
	if command.AuxValue, off, err = getBytes(data, off); err != nil {
		return fmt.Errorf("auxValue: %v", err)
	}

	if len(data) < off+4 {
		return fmt.Errorf("data too short for update count")
	}
	count := binary.BigEndian.Uint32(data[off : off+4])
	off += 4

	if count == 0 {
		command.Updates = nil
		return nil
	}
	command.Updates = make([]cmap.MapUpdate, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < off+9 {
			return fmt.Errorf("data too short for update %d header", i)
		}
		u := &command.Updates[i]
		u.Type = cmap.UpdateType(data[off])
		off++
		u.ExpectedVersion = binary.BigEndian.Uint64(data[off : off+8])
		off += 8
		if b, off, err = getBytes(data, off); err != nil {
			return fmt.Errorf("update %d key: %v", i, err)
		}
		u.Key = string(b)
		if u.Value, off, err = getBytes(data, off); err != nil {
			return fmt.Errorf("update %d value: %v", i, err)
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Command Results
// --------------------------------------------------------------------------

// CommandResult is the typed payload the state machine returns for a
// command, carried in sm.Result.Data. The meaning of Status depends on the
// command family: UpdateStatus for single-key commands, PrepareStatus for
// prepare variants, CommitStatus for commit and rollback.
type CommandResult struct {
	Status     uint8
	HasValue   bool
	Value      cmap.VersionedValue
	Version    uint64 // map version returned by Begin
	IteratorID uint64 // iterator ID returned by OpenIterator
}

// Serialize encodes the result as:
// 1 byte status, 1 byte hasValue flag, 8 bytes version, 8 bytes iterator ID,
// 8 bytes value version, 4-byte length + value bytes.
func (res *CommandResult) Serialize() []byte {
	result := make([]byte, 1+1+8+8+8+4+len(res.Value.Value))

	result[0] = res.Status
	if res.HasValue {
		result[1] = 1
	}
	binary.BigEndian.PutUint64(result[2:10], res.Version)
	binary.BigEndian.PutUint64(result[10:18], res.IteratorID)
	binary.BigEndian.PutUint64(result[18:26], res.Value.Version)
	putBytes(result, 26, res.Value.Value)

	return result
}

// Deserialize extracts all CommandResult fields from a byte array.
func (res *CommandResult) Deserialize(data []byte) error {
	if len(data) < 30 {
		return fmt.Errorf("data too short for command result")
	}

	res.Status = data[0]
	res.HasValue = data[1] == 1
	res.Version = binary.BigEndian.Uint64(data[2:10])
	res.IteratorID = binary.BigEndian.Uint64(data[10:18])
	res.Value.Version = binary.BigEndian.Uint64(data[18:26])

	value, _, err := getBytes(data, 26)
	if err != nil {
		return fmt.Errorf("value: %v", err)
	}
	res.Value.Value = value

	return nil
}

// --------------------------------------------------------------------------
// Buffer Helpers
// --------------------------------------------------------------------------

// putBytes writes a 4-byte big-endian length followed by the bytes and
// returns the new offset.
func putBytes(dst []byte, off int, b []byte) int {
	binary.BigEndian.PutUint32(dst[off:off+4], uint32(len(b)))
	off += 4
	copy(dst[off:], b)
	return off + len(b)
}

// getBytes reads a 4-byte big-endian length prefix and that many bytes,
// returning the bytes (nil for length 0) and the new offset.
func getBytes(src []byte, off int) ([]byte, int, error) {
	if len(src) < off+4 {
		return nil, off, fmt.Errorf("missing length prefix at offset %d", off)
	}
	n := int(binary.BigEndian.Uint32(src[off : off+4]))
	off += 4
	if len(src) < off+n {
		return nil, off, fmt.Errorf("truncated field of length %d at offset %d", n, off)
	}
	if n == 0 {
		return nil, off, nil
	}
	b := make([]byte, n)
	copy(b, src[off:off+n])
	return b, off + n, nil
}
