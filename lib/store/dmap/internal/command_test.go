package internal

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/dmap-io/dmap/lib/cmap"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Single-key command with key and value",
			command: Command{
				Type:  CommandTPut,
				Key:   "testkey",
				Value: []byte("testvalue"),
			},
			// Type + Version + IteratorID + 4 length prefixes + key + value + update count
			expected: 1 + 8 + 8 + 4 + 7 + 4 + 0 + 4 + 9 + 4 + 0 + 4,
		},
		{
			name: "Transaction command with updates",
			command: Command{
				Type: CommandTPrepare,
				ID:   "tx-1",
				Updates: []cmap.MapUpdate{
					{Type: cmap.UpdatePut, Key: "k", Value: []byte("v")},
				},
			},
			// Header + empty key/value/aux + id + update count + update (type+version+keylen+key+vallen+val)
			expected: 1 + 8 + 8 + 4 + 0 + 4 + 4 + 4 + 0 + 4 + 0 + 4 + (1 + 8 + 4 + 1 + 4 + 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Put with value",
			command: Command{
				Type:  CommandTPut,
				Key:   "testkey",
				Value: []byte("testvalue"),
			},
		},
		{
			name: "Remove without value",
			command: Command{
				Type: CommandTRemove,
				Key:  "testkey",
			},
		},
		{
			name: "ReplaceValue with expected and new value",
			command: Command{
				Type:     CommandTReplaceValue,
				Key:      "k",
				Value:    []byte("new"),
				AuxValue: []byte("old"),
			},
		},
		{
			name: "ReplaceVersion with max version",
			command: Command{
				Type:    CommandTReplaceVersion,
				Key:     "k",
				Value:   []byte("new"),
				Version: 18446744073709551615, // Max uint64
			},
		},
		{
			name: "Command with empty key",
			command: Command{
				Type:  CommandTPut,
				Key:   "",
				Value: []byte("testvalue"),
			},
		},
		{
			name: "Command with binary value",
			command: Command{
				Type:  CommandTPut,
				Key:   "binary",
				Value: []byte{0, 1, 2, 3, 254, 255},
			},
		},
		{
			name: "Command with Unicode key",
			command: Command{
				Type:  CommandTPut,
				Key:   "你好世界", // Hello World in Chinese
				Value: []byte("unicode test"),
			},
		},
		{
			name: "Begin with transaction ID",
			command: Command{
				Type: CommandTBegin,
				ID:   "e4c9d735-1b3a-42f8-9f21-cc1745a7b210",
			},
		},
		{
			name: "Prepare with mixed updates",
			command: Command{
				Type: CommandTPrepare,
				ID:   "tx-42",
				Updates: []cmap.MapUpdate{
					{Type: cmap.UpdatePut, Key: "a", Value: []byte("1")},
					{Type: cmap.UpdatePutIfVersionMatch, Key: "b", Value: []byte("2"), ExpectedVersion: 77},
					{Type: cmap.UpdateRemove, Key: "c"},
					{Type: cmap.UpdateRemoveIfVersionMatch, Key: "d", ExpectedVersion: 12},
				},
			},
		},
		{
			name: "CloseIterator with iterator ID",
			command: Command{
				Type:       CommandTCloseIterator,
				IteratorID: 12345,
			},
		},
		{
			name: "CloseSession with session ID",
			command: Command{
				Type: CommandTCloseSession,
				ID:   "session-9",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var newCommand Command
			err := newCommand.Deserialize(data)
			if err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if newCommand.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", newCommand.Type, tt.command.Type)
			}
			if newCommand.Key != tt.command.Key {
				t.Errorf("Key mismatch: got %q, want %q", newCommand.Key, tt.command.Key)
			}
			if newCommand.ID != tt.command.ID {
				t.Errorf("ID mismatch: got %q, want %q", newCommand.ID, tt.command.ID)
			}
			if newCommand.Version != tt.command.Version {
				t.Errorf("Version mismatch: got %v, want %v", newCommand.Version, tt.command.Version)
			}
			if newCommand.IteratorID != tt.command.IteratorID {
				t.Errorf("IteratorID mismatch: got %v, want %v", newCommand.IteratorID, tt.command.IteratorID)
			}
			if !bytes.Equal(newCommand.Value, tt.command.Value) {
				t.Errorf("Value mismatch: got %v, want %v", newCommand.Value, tt.command.Value)
			}
			if !bytes.Equal(newCommand.AuxValue, tt.command.AuxValue) {
				t.Errorf("AuxValue mismatch: got %v, want %v", newCommand.AuxValue, tt.command.AuxValue)
			}

			if len(newCommand.Updates) != len(tt.command.Updates) {
				t.Fatalf("Update count mismatch: got %d, want %d", len(newCommand.Updates), len(tt.command.Updates))
			}
			for i := range tt.command.Updates {
				want, got := tt.command.Updates[i], newCommand.Updates[i]
				if got.Type != want.Type || got.Key != want.Key ||
					got.ExpectedVersion != want.ExpectedVersion || !bytes.Equal(got.Value, want.Value) {
					t.Errorf("Update %d mismatch: got %+v, want %+v", i, got, want)
				}
			}

			// Verify that SizeBytes matches the serialized data length
			if tt.command.SizeBytes() != len(data) {
				t.Errorf("SizeBytes() = %d, but serialized data length = %d",
					tt.command.SizeBytes(), len(data))
			}
		})
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "Empty data",
			data: []byte{},
		},
		{
			name: "Data too short (less than header)",
			data: []byte{1, 2, 3, 4, 5},
		},
		{
			name: "Header only, missing length prefixes",
			data: make([]byte, 17),
		},
		{
			name: "Key length exceeds data",
			data: func() []byte {
				data := make([]byte, 21)
				data[0] = byte(CommandTPut)
				binary.BigEndian.PutUint32(data[17:21], 1000)
				return data
			}(),
		},
		{
			name: "Update count exceeds data",
			data: func() []byte {
				cmd := Command{Type: CommandTPrepare, ID: "tx"}
				data := cmd.Serialize()
				// Corrupt the trailing update count
				binary.BigEndian.PutUint32(data[len(data)-4:], 50)
				return data
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			if err := cmd.Deserialize(tt.data); err == nil {
				t.Fatalf("Expected error but got nil")
			}
		})
	}
}

// TestCommandResultRoundTrip verifies the result codec
func TestCommandResultRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		result CommandResult
	}{
		{
			name:   "Status only",
			result: CommandResult{Status: uint8(cmap.StatusNoop)},
		},
		{
			name: "Status with versioned value",
			result: CommandResult{
				Status:   uint8(cmap.StatusOK),
				HasValue: true,
				Value:    cmap.VersionedValue{Value: []byte("payload"), Version: 42},
			},
		},
		{
			name:   "Begin result with map version",
			result: CommandResult{Status: uint8(cmap.PrepareOK), Version: 1234},
		},
		{
			name:   "OpenIterator result",
			result: CommandResult{IteratorID: 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.result.Serialize()

			var got CommandResult
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if got.Status != tt.result.Status || got.HasValue != tt.result.HasValue ||
				got.Version != tt.result.Version || got.IteratorID != tt.result.IteratorID ||
				got.Value.Version != tt.result.Value.Version ||
				!bytes.Equal(got.Value.Value, tt.result.Value.Value) {
				t.Errorf("Round trip mismatch: got %+v, want %+v", got, tt.result)
			}
		})
	}

	var res CommandResult
	if err := res.Deserialize([]byte{1, 2, 3}); err == nil {
		t.Errorf("Expected error for truncated result data")
	}
}
