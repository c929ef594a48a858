package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/dmap-io/dmap/lib/cmap"
	"github.com/dmap-io/dmap/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey        uint16 = 1 << 0
	hasValue      uint16 = 1 << 1
	hasAuxValue   uint16 = 1 << 2
	hasVersion    uint16 = 1 << 3
	hasID         uint16 = 1 << 4
	hasIteratorID uint16 = 1 << 5
	hasBatchSize  uint16 = 1 << 6
	hasUpdates    uint16 = 1 << 7
	hasStatus     uint16 = 1 << 8
	hasOk         uint16 = 1 << 9
	hasHasMore    uint16 = 1 << 10
	hasKeys       uint16 = 1 << 11
	hasEntries    uint16 = 1 << 12
	hasErr        uint16 = 1 << 13
	hasMeta       uint16 = 1 << 14
)

// header = 1 byte MsgType + 2 bytes flags
const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags
	var flags uint16 = 0

	// Set position for writing
	pos := headerSize

	// Handle Key
	if msg.Key != "" {
		flags |= hasKey
		pos = putString(result, pos, msg.Key)
	}

	// Handle Value (nil and empty are equivalent on the wire)
	if len(msg.Value) > 0 {
		flags |= hasValue
		pos = putBytes(result, pos, msg.Value)
	}

	// Handle AuxValue
	if len(msg.AuxValue) > 0 {
		flags |= hasAuxValue
		pos = putBytes(result, pos, msg.AuxValue)
	}

	// Handle Version
	if msg.Version > 0 {
		flags |= hasVersion
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Version)
		pos += 8
	}

	// Handle ID
	if msg.ID != "" {
		flags |= hasID
		pos = putString(result, pos, msg.ID)
	}

	// Handle IteratorID
	if msg.IteratorID > 0 {
		flags |= hasIteratorID
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.IteratorID)
		pos += 8
	}

	// Handle BatchSize
	if msg.BatchSize > 0 {
		flags |= hasBatchSize
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(msg.BatchSize))
		pos += 4
	}

	// Handle Updates
	if msg.Updates != nil {
		flags |= hasUpdates
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Updates)))
		pos += 4
		for _, u := range msg.Updates {
			result[pos] = byte(u.Type)
			pos++
			binary.BigEndian.PutUint64(result[pos:pos+8], u.ExpectedVersion)
			pos += 8
			pos = putString(result, pos, u.Key)
			pos = putBytes(result, pos, u.Value)
		}
	}

	// Handle Status
	if msg.Status > 0 {
		flags |= hasStatus
		result[pos] = msg.Status
		pos++
	}

	// Handle Ok
	if msg.Ok {
		flags |= hasOk
		result[pos] = 1
		pos++
	}

	// Handle HasMore
	if msg.HasMore {
		flags |= hasHasMore
		result[pos] = 1
		pos++
	}

	// Handle Keys
	if msg.Keys != nil {
		flags |= hasKeys
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Keys)))
		pos += 4
		for _, k := range msg.Keys {
			pos = putString(result, pos, k)
		}
	}

	// Handle Entries
	if msg.Entries != nil {
		flags |= hasEntries
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Entries)))
		pos += 4
		for _, e := range msg.Entries {
			pos = putString(result, pos, e.Key)
			binary.BigEndian.PutUint64(result[pos:pos+8], e.Value.Version)
			pos += 8
			pos = putBytes(result, pos, e.Value.Value)
		}
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		pos = putString(result, pos, msg.Err)
	}

	// Handle Meta
	if len(msg.Meta) > 0 {
		flags |= hasMeta
		pos = putBytes(result, pos, msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type and flags
	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])

	// Initialize read position
	pos := headerSize
	var err error

	// Read Key if present
	if flags&hasKey != 0 {
		if msg.Key, pos, err = getString(data, pos, "key"); err != nil {
			return err
		}
	} else {
		msg.Key = ""
	}

	// Read Value if present
	if flags&hasValue != 0 {
		if msg.Value, pos, err = getBytes(data, pos, "value"); err != nil {
			return err
		}
	} else {
		msg.Value = nil
	}

	// Read AuxValue if present
	if flags&hasAuxValue != 0 {
		if msg.AuxValue, pos, err = getBytes(data, pos, "aux value"); err != nil {
			return err
		}
	} else {
		msg.AuxValue = nil
	}

	// Read Version if present
	if flags&hasVersion != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for version")
		}
		msg.Version = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	} else {
		msg.Version = 0
	}

	// Read ID if present
	if flags&hasID != 0 {
		if msg.ID, pos, err = getString(data, pos, "id"); err != nil {
			return err
		}
	} else {
		msg.ID = ""
	}

	// Read IteratorID if present
	if flags&hasIteratorID != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for iterator id")
		}
		msg.IteratorID = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	} else {
		msg.IteratorID = 0
	}

	// Read BatchSize if present
	if flags&hasBatchSize != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for batch size")
		}
		msg.BatchSize = int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
	} else {
		msg.BatchSize = 0
	}

	// Read Updates if present
	if flags&hasUpdates != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for update count")
		}
		count := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		msg.Updates = make([]cmap.MapUpdate, count)
		for i := range msg.Updates {
			if pos+9 > len(data) {
				return fmt.Errorf("data too short for update %d", i)
			}
			msg.Updates[i].Type = cmap.UpdateType(data[pos])
			pos++
			msg.Updates[i].ExpectedVersion = binary.BigEndian.Uint64(data[pos : pos+8])
			pos += 8
			if msg.Updates[i].Key, pos, err = getString(data, pos, "update key"); err != nil {
				return err
			}
			if msg.Updates[i].Value, pos, err = getBytes(data, pos, "update value"); err != nil {
				return err
			}
		}
	} else {
		msg.Updates = nil
	}

	// Read Status if present
	if flags&hasStatus != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for status")
		}
		msg.Status = data[pos]
		pos++
	} else {
		msg.Status = 0
	}

	// Read Ok if present
	if flags&hasOk != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for ok flag")
		}
		msg.Ok = data[pos] != 0
		pos++
	} else {
		msg.Ok = false
	}

	// Read HasMore if present
	if flags&hasHasMore != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for has-more flag")
		}
		msg.HasMore = data[pos] != 0
		pos++
	} else {
		msg.HasMore = false
	}

	// Read Keys if present
	if flags&hasKeys != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for key count")
		}
		count := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		msg.Keys = make([]string, count)
		for i := range msg.Keys {
			if msg.Keys[i], pos, err = getString(data, pos, "keys entry"); err != nil {
				return err
			}
		}
	} else {
		msg.Keys = nil
	}

	// Read Entries if present
	if flags&hasEntries != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for entry count")
		}
		count := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		msg.Entries = make([]cmap.Entry, count)
		for i := range msg.Entries {
			if msg.Entries[i].Key, pos, err = getString(data, pos, "entry key"); err != nil {
				return err
			}
			if pos+8 > len(data) {
				return fmt.Errorf("data too short for entry version")
			}
			msg.Entries[i].Value.Version = binary.BigEndian.Uint64(data[pos : pos+8])
			pos += 8
			if msg.Entries[i].Value.Value, pos, err = getBytes(data, pos, "entry value"); err != nil {
				return err
			}
		}
	} else {
		msg.Entries = nil
	}

	// Read Err if present
	if flags&hasErr != 0 {
		if msg.Err, pos, err = getString(data, pos, "error"); err != nil {
			return err
		}
	} else {
		msg.Err = ""
	}

	// Read Meta if present
	if flags&hasMeta != 0 {
		if msg.Meta, _, err = getBytes(data, pos, "meta"); err != nil {
			return err
		}
	} else {
		msg.Meta = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// putString writes a length-prefixed string and returns the new position
func putString(dst []byte, pos int, s string) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(s)))
	pos += 4
	copy(dst[pos:pos+len(s)], s)
	return pos + len(s)
}

// putBytes writes a length-prefixed byte slice and returns the new position
func putBytes(dst []byte, pos int, b []byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(b)))
	pos += 4
	copy(dst[pos:pos+len(b)], b)
	return pos + len(b)
}

// getString reads a length-prefixed string
func getString(data []byte, pos int, field string) (string, int, error) {
	if pos+4 > len(data) {
		return "", pos, fmt.Errorf("data too short for %s length", field)
	}
	length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if pos+length > len(data) {
		return "", pos, fmt.Errorf("data too short for %s data", field)
	}
	return string(data[pos : pos+length]), pos + length, nil
}

// getBytes reads a length-prefixed byte slice. Zero-length fields decode to
// nil, matching the convention on the write side.
func getBytes(data []byte, pos int, field string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s length", field)
	}
	length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if pos+length > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s data", field)
	}
	if length == 0 {
		return nil, pos, nil
	}
	out := make([]byte, length)
	copy(out, data[pos:pos+length])
	return out, pos + length, nil
}

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	// Add sizes for fields that require length encoding
	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if len(msg.Value) > 0 {
		size += 4 + len(msg.Value)
	}
	if len(msg.AuxValue) > 0 {
		size += 4 + len(msg.AuxValue)
	}
	if msg.Version > 0 {
		size += 8
	}
	if msg.ID != "" {
		size += 4 + len(msg.ID)
	}
	if msg.IteratorID > 0 {
		size += 8
	}
	if msg.BatchSize > 0 {
		size += 4
	}
	if msg.Updates != nil {
		size += 4
		for _, u := range msg.Updates {
			size += 1 + 8 + 4 + len(u.Key) + 4 + len(u.Value)
		}
	}
	if msg.Status > 0 {
		size += 1
	}
	if msg.Ok {
		size += 1
	}
	if msg.HasMore {
		size += 1
	}
	if msg.Keys != nil {
		size += 4
		for _, k := range msg.Keys {
			size += 4 + len(k)
		}
	}
	if msg.Entries != nil {
		size += 4
		for _, e := range msg.Entries {
			size += 4 + len(e.Key) + 8 + 4 + len(e.Value.Value)
		}
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if len(msg.Meta) > 0 {
		size += 4 + len(msg.Meta)
	}

	return size
}
