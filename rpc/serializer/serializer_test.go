package serializer

import (
	"reflect"
	"testing"

	"github.com/dmap-io/dmap/lib/cmap"
	"github.com/dmap-io/dmap/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Put request
		{
			MsgType: common.MsgTMapPut,
			Key:     "test-key",
			Value:   []byte("test-value"),
		},

		// Get response with versioned value
		{
			MsgType: common.MsgTMapGet,
			Key:     "test-key",
			Value:   []byte("test-value"),
			Version: 42,
			Ok:      true,
		},

		// Conditional replace request with expected old value
		{
			MsgType:  common.MsgTMapReplaceValue,
			Key:      "test-key",
			Value:    []byte("new-value"),
			AuxValue: []byte("old-value"),
		},

		// Prepare request with transaction updates
		{
			MsgType: common.MsgTTxPrepare,
			ID:      "tx-42",
			Updates: []cmap.MapUpdate{
				{Type: cmap.UpdatePut, Key: "a", Value: []byte("1")},
				{Type: cmap.UpdatePutIfVersionMatch, Key: "b", Value: []byte("2"), ExpectedVersion: 7},
				{Type: cmap.UpdateRemove, Key: "c"},
			},
		},

		// Iterator Next request
		{
			MsgType:    common.MsgTIterNext,
			IteratorID: 3,
			BatchSize:  128,
		},

		// Iterator Next response with an entry batch
		{
			MsgType: common.MsgTIterNext,
			Ok:      true,
			HasMore: true,
			Version: 256,
			Entries: []cmap.Entry{
				{Key: "a", Value: cmap.VersionedValue{Value: []byte("1"), Version: 1}},
				{Key: "b", Value: cmap.VersionedValue{Value: []byte("2"), Version: 2}},
			},
		},

		// KeySet response
		{
			MsgType: common.MsgTMapKeySet,
			Keys:    []string{"a", "b", "c"},
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// Lock acquire response with owner ID
		{
			MsgType: common.MsgTLCKAcquire,
			Key:     "test-lock-key",
			Value:   []byte("test-owner-id"),
			Ok:      true,
		},

		// Message with meta payload
		{
			MsgType: common.MsgTCustom,
			Meta:    []byte("test-meta-data"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTCustom; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	// Test cases for empty or zero values
	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Message with empty strings and zero values",
			msg: common.Message{
				MsgType: common.MsgTMapPut,
				Key:     "",
				Version: 0,
				Ok:      false,
				Err:     "",
			},
		},
		{
			name: "Message with Ok=true but no value",
			msg: common.Message{
				MsgType: common.MsgTMapGet,
				Key:     "",
				Ok:      true,
				Value:   nil,
			},
		},
		{
			name: "Message with empty update list",
			msg: common.Message{
				MsgType: common.MsgTTxPrepare,
				ID:      "tx",
				Updates: []cmap.MapUpdate{},
			},
		},
		{
			name: "Message with max version",
			msg: common.Message{
				MsgType: common.MsgTMapRemoveVersion,
				Key:     "k",
				Version: 18446744073709551615,
			},
		},
		{
			name: "Message with Unicode key",
			msg: common.Message{
				MsgType: common.MsgTMapPut,
				Key:     "你好世界",
				Value:   []byte("unicode test"),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
					tc.msg, result)
			}
		})
	}
}

// TestBinarySerializerNilEmptyEquivalence documents that the binary format
// does not distinguish nil from empty byte slices
func TestBinarySerializerNilEmptyEquivalence(t *testing.T) {
	serializer := NewBinarySerializer()

	msg := common.Message{
		MsgType: common.MsgTMapPut,
		Key:     "k",
		Value:   []byte{},
	}

	data, err := serializer.Serialize(msg)
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	var result common.Message
	if err := serializer.Deserialize(data, &result); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}

	if result.Value != nil {
		t.Errorf("Empty value must decode to nil, got %v", result.Value)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // Message type and one flag byte, missing the second
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 2, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Update count exceeds data",
			data:        []byte{1, 0, 128, 0, 0, 0, 50}, // Claims 50 updates with no payload
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
