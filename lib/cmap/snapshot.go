package cmap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes the durable state to the writer: the entries, the version
// counter, the iterator-ID counter and all OPEN/PREPARED transactions with
// their held updates. Iterator snapshots and listener registrations are
// session-scoped and deliberately not persisted.
//
// Entries and transactions are written in sorted order so that two replicas
// with identical state produce byte-identical snapshots.
//
// Thread-safety: not safe for concurrent use; call from the serialized
// command path only.
func (s *Service) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// File header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(formatVersion)); err != nil {
		return err
	}

	// Counters
	if err := binary.Write(bw, binary.LittleEndian, s.versionCounter); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, s.nextIteratorID); err != nil {
		return err
	}

	// Entries
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(s.entries))); err != nil {
		return err
	}
	for _, key := range s.sortedKeys() {
		vv := s.entries[key]
		if err := writeBytes(bw, []byte(key)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, vv.Version); err != nil {
			return err
		}
		if err := writeBytes(bw, vv.Value); err != nil {
			return err
		}
	}

	// Transactions
	txIDs := make([]string, 0, len(s.txns))
	for id := range s.txns {
		txIDs = append(txIDs, id)
	}
	sort.Strings(txIDs)

	if err := binary.Write(bw, binary.LittleEndian, uint64(len(txIDs))); err != nil {
		return err
	}
	for _, id := range txIDs {
		txn := s.txns[id]
		if err := writeBytes(bw, []byte(id)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint8(txn.state)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint64(len(txn.updates))); err != nil {
			return err
		}
		for _, u := range txn.updates {
			if err := binary.Write(bw, binary.LittleEndian, uint8(u.Type)); err != nil {
				return err
			}
			if err := writeBytes(bw, []byte(u.Key)); err != nil {
				return err
			}
			if err := writeBytes(bw, u.Value); err != nil {
				return err
			}
			if err := binary.Write(bw, binary.LittleEndian, u.ExpectedVersion); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Load replaces the service state with the snapshot from the reader. The
// write locks of PREPARED transactions are rebuilt from their updates.
//
// Thread-safety: not safe for concurrent use.
func (s *Service) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid snapshot format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != formatVersion {
		return fmt.Errorf("unsupported snapshot version: %d (expected %d)", version, formatVersion)
	}

	// Counters
	if err := binary.Read(br, binary.LittleEndian, &s.versionCounter); err != nil {
		return err
	}
	if err := binary.Read(br, binary.LittleEndian, &s.nextIteratorID); err != nil {
		return err
	}

	// Entries
	var entryCount uint64
	if err := binary.Read(br, binary.LittleEndian, &entryCount); err != nil {
		return err
	}
	s.entries = make(map[string]VersionedValue, entryCount)
	for i := uint64(0); i < entryCount; i++ {
		key, err := readBytes(br)
		if err != nil {
			return err
		}
		var vv VersionedValue
		if err := binary.Read(br, binary.LittleEndian, &vv.Version); err != nil {
			return err
		}
		if vv.Value, err = readBytes(br); err != nil {
			return err
		}
		s.entries[string(key)] = vv
	}

	// Transactions
	var txCount uint64
	if err := binary.Read(br, binary.LittleEndian, &txCount); err != nil {
		return err
	}
	s.txns = make(map[string]*transaction, txCount)
	s.preparedKeys = make(map[string]string)
	for i := uint64(0); i < txCount; i++ {
		id, err := readBytes(br)
		if err != nil {
			return err
		}
		var state uint8
		if err := binary.Read(br, binary.LittleEndian, &state); err != nil {
			return err
		}
		var updateCount uint64
		if err := binary.Read(br, binary.LittleEndian, &updateCount); err != nil {
			return err
		}

		updates := make([]MapUpdate, updateCount)
		for j := uint64(0); j < updateCount; j++ {
			var uType uint8
			if err := binary.Read(br, binary.LittleEndian, &uType); err != nil {
				return err
			}
			key, err := readBytes(br)
			if err != nil {
				return err
			}
			value, err := readBytes(br)
			if err != nil {
				return err
			}
			var expectedVersion uint64
			if err := binary.Read(br, binary.LittleEndian, &expectedVersion); err != nil {
				return err
			}
			updates[j] = MapUpdate{
				Type:            UpdateType(uType),
				Key:             string(key),
				Value:           value,
				ExpectedVersion: expectedVersion,
			}
		}

		txID := string(id)
		txn := &transaction{state: TxState(state), updates: updates}
		s.txns[txID] = txn

		// Rebuild write locks from prepared transactions
		if txn.state == TxPrepared {
			for _, u := range txn.updates {
				s.preparedKeys[u.Key] = txID
			}
		}
	}

	// Session-scoped state starts fresh after recovery
	s.iterators = make(map[uint64]*iteratorSession)
	s.listeners = make(map[string]struct{})

	return nil
}

// writeBytes writes a uint32 length prefix followed by the bytes.
func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readBytes reads a uint32 length prefix followed by that many bytes.
func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
