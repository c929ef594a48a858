package dmap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/dmap-io/dmap/lib/cmap"
	"github.com/dmap-io/dmap/lib/store"
	"github.com/dmap-io/dmap/lib/store/dmap/internal"
)

var (
	retries = 5
	log     = logger.GetLogger("dmap")
)

// mapImpl is the distributed IMap implementation. It encapsulates a
// Dragonboat NodeHost which is used to communicate with the replicated state
// machine: commands go through SyncPropose, queries through SyncRead.
type mapImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedMap creates a new distributed map instance which uses raft
// consensus to ensure strict linearizability across multiple nodes.
func NewDistributedMap(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IMap {
	cs := nh.GetNoOPSession(shardID)
	return &mapImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// propose serializes a Command and sends it through SyncPropose, returning
// the state machine's typed result. System-busy errors are retried;
// not-ready shards surface as RetCNotLeader so callers can redirect.
func (s *mapImpl) propose(cmd internal.Command) (internal.CommandResult, error) {
	var zero internal.CommandResult
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if errors.Is(err, dragonboat.ErrShardNotReady) {
			return zero, store.NewError(store.RetCNotLeader, "shard has no leader, retry against another replica")
		}
		if err != nil {
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return zero, store.NewError(store.RetCode(res.Value), string(res.Data))
		}

		var result internal.CommandResult
		if err := result.Deserialize(res.Data); err != nil {
			return zero, store.NewError(store.RetCSerializationError, err.Error())
		}
		return result, nil
	}
	return zero, store.NewError(store.RetCTimeout, "timeout")
}

// read is a generic helper that queries the state machine and attempts to
// convert the response into the expected type R.
//
// This function uses SyncRead (linearizable read index) by default. If
// linearizability is not required, the stale parameter can be set to true to
// use the faster StaleRead.
//
// If the read fails due to a system busy error, the function retries.
func read[R any](s *mapImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		if stale {
			res, err = s.nh.StaleRead(s.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			res, err = s.nh.SyncRead(ctx, s.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if errors.Is(err, dragonboat.ErrShardNotReady) {
			return zero, store.NewError(store.RetCNotLeader, "shard has no leader, retry against another replica")
		}
		if err != nil {
			var se *store.Error
			if errors.As(err, &se) {
				return zero, se
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response as type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCTimeout, "timeout")
}

// toUpdateResult converts a wire CommandResult back into the typed result.
func toUpdateResult(res internal.CommandResult) cmap.UpdateResult {
	out := cmap.UpdateResult{Status: cmap.UpdateStatus(res.Status)}
	if res.HasValue {
		vv := res.Value
		out.Value = &vv
	}
	return out
}

// --------------------------------------------------------------------------
// Interface Methods - Writes (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *mapImpl) Put(key string, value []byte) (cmap.UpdateResult, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTPut, Key: key, Value: value})
	if err != nil {
		return cmap.UpdateResult{}, err
	}
	return toUpdateResult(res), nil
}

func (s *mapImpl) PutIfAbsent(key string, value []byte) (cmap.UpdateResult, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTPutIfAbsent, Key: key, Value: value})
	if err != nil {
		return cmap.UpdateResult{}, err
	}
	return toUpdateResult(res), nil
}

func (s *mapImpl) PutAndGet(key string, value []byte) (cmap.UpdateResult, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTPutAndGet, Key: key, Value: value})
	if err != nil {
		return cmap.UpdateResult{}, err
	}
	return toUpdateResult(res), nil
}

func (s *mapImpl) Remove(key string) (cmap.UpdateResult, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTRemove, Key: key})
	if err != nil {
		return cmap.UpdateResult{}, err
	}
	return toUpdateResult(res), nil
}

func (s *mapImpl) RemoveValue(key string, expect []byte) (cmap.UpdateResult, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTRemoveValue, Key: key, AuxValue: expect})
	if err != nil {
		return cmap.UpdateResult{}, err
	}
	return toUpdateResult(res), nil
}

func (s *mapImpl) RemoveVersion(key string, version uint64) (cmap.UpdateResult, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTRemoveVersion, Key: key, Version: version})
	if err != nil {
		return cmap.UpdateResult{}, err
	}
	return toUpdateResult(res), nil
}

func (s *mapImpl) Replace(key string, value []byte) (cmap.UpdateResult, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTReplace, Key: key, Value: value})
	if err != nil {
		return cmap.UpdateResult{}, err
	}
	return toUpdateResult(res), nil
}

func (s *mapImpl) ReplaceValue(key string, oldValue, newValue []byte) (cmap.UpdateResult, error) {
	res, err := s.propose(internal.Command{
		Type:     internal.CommandTReplaceValue,
		Key:      key,
		Value:    newValue,
		AuxValue: oldValue,
	})
	if err != nil {
		return cmap.UpdateResult{}, err
	}
	return toUpdateResult(res), nil
}

func (s *mapImpl) ReplaceVersion(key string, oldVersion uint64, newValue []byte) (cmap.UpdateResult, error) {
	res, err := s.propose(internal.Command{
		Type:    internal.CommandTReplaceVersion,
		Key:     key,
		Value:   newValue,
		Version: oldVersion,
	})
	if err != nil {
		return cmap.UpdateResult{}, err
	}
	return toUpdateResult(res), nil
}

func (s *mapImpl) Clear() (cmap.UpdateResult, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTClear})
	if err != nil {
		return cmap.UpdateResult{}, err
	}
	return toUpdateResult(res), nil
}

// --------------------------------------------------------------------------
// Interface Methods - Reads
// --------------------------------------------------------------------------

func (s *mapImpl) Get(key string) (cmap.VersionedValue, bool, error) {
	res, err := read[internal.GetResult](s, internal.Query{Type: internal.QueryTGet, Key: key}, false)
	if err != nil {
		return cmap.VersionedValue{}, false, err
	}
	return res.Value, res.Ok, nil
}

func (s *mapImpl) GetOrDefault(key string, def []byte) (cmap.VersionedValue, error) {
	res, err := read[internal.GetResult](s, internal.Query{
		Type:  internal.QueryTGetOrDefault,
		Key:   key,
		Value: def,
	}, false)
	if err != nil {
		return cmap.VersionedValue{}, err
	}
	return res.Value, nil
}

func (s *mapImpl) ContainsKey(key string) (bool, error) {
	return read[bool](s, internal.Query{Type: internal.QueryTContainsKey, Key: key}, false)
}

func (s *mapImpl) ContainsValue(value []byte) (bool, error) {
	return read[bool](s, internal.Query{Type: internal.QueryTContainsValue, Value: value}, false)
}

func (s *mapImpl) Size() (int, error) {
	return read[int](s, internal.Query{Type: internal.QueryTSize}, false)
}

func (s *mapImpl) IsEmpty() (bool, error) {
	return read[bool](s, internal.Query{Type: internal.QueryTIsEmpty}, false)
}

func (s *mapImpl) KeySet() ([]string, error) {
	return read[[]string](s, internal.Query{Type: internal.QueryTKeySet}, false)
}

func (s *mapImpl) Values() ([]cmap.VersionedValue, error) {
	return read[[]cmap.VersionedValue](s, internal.Query{Type: internal.QueryTValues}, false)
}

func (s *mapImpl) EntrySet() ([]cmap.Entry, error) {
	return read[[]cmap.Entry](s, internal.Query{Type: internal.QueryTEntrySet}, false)
}

// --------------------------------------------------------------------------
// Interface Methods - Transactions
// --------------------------------------------------------------------------

func (s *mapImpl) Begin(txID string) (uint64, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTBegin, ID: txID})
	if err != nil {
		return 0, err
	}
	return res.Version, nil
}

func (s *mapImpl) Prepare(txID string, updates []cmap.MapUpdate) (cmap.PrepareStatus, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTPrepare, ID: txID, Updates: updates})
	if err != nil {
		return 0, err
	}
	return cmap.PrepareStatus(res.Status), nil
}

func (s *mapImpl) PrepareAndCommit(txID string, updates []cmap.MapUpdate) (cmap.PrepareStatus, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTPrepareAndCommit, ID: txID, Updates: updates})
	if err != nil {
		return 0, err
	}
	return cmap.PrepareStatus(res.Status), nil
}

func (s *mapImpl) Commit(txID string) (cmap.CommitStatus, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTCommit, ID: txID})
	if err != nil {
		return 0, err
	}
	return cmap.CommitStatus(res.Status), nil
}

func (s *mapImpl) Rollback(txID string) (cmap.CommitStatus, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTRollback, ID: txID})
	if err != nil {
		return 0, err
	}
	return cmap.CommitStatus(res.Status), nil
}

// --------------------------------------------------------------------------
// Interface Methods - Iterators, Listeners, Sessions
// --------------------------------------------------------------------------

func (s *mapImpl) OpenIterator(sessionID string) (uint64, error) {
	res, err := s.propose(internal.Command{Type: internal.CommandTOpenIterator, ID: sessionID})
	if err != nil {
		return 0, err
	}
	return res.IteratorID, nil
}

func (s *mapImpl) Next(iteratorID uint64, position, batchSize int) (cmap.IteratorBatch, bool, error) {
	res, err := read[internal.NextResult](s, internal.Query{
		Type:       internal.QueryTNext,
		IteratorID: iteratorID,
		Position:   position,
		BatchSize:  batchSize,
	}, false)
	if err != nil {
		return cmap.IteratorBatch{}, false, err
	}
	return res.Batch, res.Found, nil
}

func (s *mapImpl) CloseIterator(iteratorID uint64) error {
	_, err := s.propose(internal.Command{Type: internal.CommandTCloseIterator, IteratorID: iteratorID})
	return err
}

func (s *mapImpl) AddListener(sessionID string) error {
	_, err := s.propose(internal.Command{Type: internal.CommandTAddListener, ID: sessionID})
	return err
}

func (s *mapImpl) RemoveListener(sessionID string) error {
	_, err := s.propose(internal.Command{Type: internal.CommandTRemoveListener, ID: sessionID})
	return err
}

func (s *mapImpl) CloseSession(sessionID string) error {
	_, err := s.propose(internal.Command{Type: internal.CommandTCloseSession, ID: sessionID})
	return err
}
