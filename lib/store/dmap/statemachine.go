package dmap

import (
	"fmt"
	"io"
	"time"

	sm "github.com/lni/dragonboat/v4/statemachine"

	"github.com/dmap-io/dmap/lib/cmap"
	"github.com/dmap-io/dmap/lib/store"
	"github.com/dmap-io/dmap/lib/store/dmap/internal"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// MapStateMachine hosts a cmap.Service behind Dragonboat RAFT. It is a
// regular (non-concurrent) state machine: Update calls are serialized and
// exclusive with Lookup, which gives the service the single-writer execution
// model it needs. Lookups may run concurrently with one another, so every
// query must be strictly read-only.
type MapStateMachine struct {
	replicaID uint64
	shardID   uint64
	service   *cmap.Service
}

// CreateStateMachineFactory returns a function used by Dragonboat to create a
// new state machine for a node host. The factory pattern lets the caller pass
// an interchangeable service factory (e.g. with a wired event sink).
func CreateStateMachineFactory(factory store.ServiceFactory) func(shardID uint64, replicaID uint64) sm.IStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IStateMachine {
		var svc *cmap.Service
		if factory != nil {
			svc = factory()
		} else {
			svc = cmap.NewService(nil)
		}
		return &MapStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			service:   svc,
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the
// corresponding service method. Next takes the batch position from the query
// and slices the frozen snapshot without touching iterator state, so it is
// safe under concurrent Lookups; the iterator table itself is only mutated by
// commands going through Update.
func (fsm *MapStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	// Handle different Query types
	switch q.Type {
	case internal.QueryTGet:
		vv, ok := fsm.service.Get(q.Key)
		return internal.GetResult{Value: vv, Ok: ok}, nil
	case internal.QueryTGetOrDefault:
		return internal.GetResult{Value: fsm.service.GetOrDefault(q.Key, q.Value), Ok: true}, nil
	case internal.QueryTContainsKey:
		return fsm.service.ContainsKey(q.Key), nil
	case internal.QueryTContainsValue:
		return fsm.service.ContainsValue(q.Value), nil
	case internal.QueryTSize:
		return fsm.service.Size(), nil
	case internal.QueryTIsEmpty:
		return fsm.service.IsEmpty(), nil
	case internal.QueryTKeySet:
		return fsm.service.KeySet(), nil
	case internal.QueryTValues:
		return fsm.service.Values(), nil
	case internal.QueryTEntrySet:
		return fsm.service.EntrySet(), nil
	case internal.QueryTNext:
		batch, found := fsm.service.Next(q.IteratorID, q.Position, q.BatchSize)
		return internal.NextResult{Found: found, Batch: batch}, nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update applies one log entry to the map service. The typed outcome travels
// back through sm.Result: Value holds the machine-level RetCode, Data the
// serialized CommandResult.
func (fsm *MapStateMachine) Update(e sm.Entry) (sm.Result, error) {

	// Stats
	start := time.Now()

	if len(e.Cmd) == 0 {
		return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}, nil
	}

	// Deserialize the command
	cmd := internal.Command{}
	if err := cmd.Deserialize(e.Cmd); err != nil {
		return sm.Result{
			Value: uint64(store.RetCSerializationError),
			Data:  []byte(fmt.Sprintf("failed to deserialize command: %v", err)),
		}, nil
	}

	var res internal.CommandResult

	switch cmd.Type {
	case internal.CommandTPut:
		res = updateResult(fsm.service.Put(cmd.Key, cmd.Value))
	case internal.CommandTPutIfAbsent:
		res = updateResult(fsm.service.PutIfAbsent(cmd.Key, cmd.Value))
	case internal.CommandTPutAndGet:
		res = updateResult(fsm.service.PutAndGet(cmd.Key, cmd.Value))
	case internal.CommandTRemove:
		res = updateResult(fsm.service.Remove(cmd.Key))
	case internal.CommandTRemoveValue:
		res = updateResult(fsm.service.RemoveValue(cmd.Key, cmd.AuxValue))
	case internal.CommandTRemoveVersion:
		res = updateResult(fsm.service.RemoveVersion(cmd.Key, cmd.Version))
	case internal.CommandTReplace:
		res = updateResult(fsm.service.Replace(cmd.Key, cmd.Value))
	case internal.CommandTReplaceValue:
		res = updateResult(fsm.service.ReplaceValue(cmd.Key, cmd.AuxValue, cmd.Value))
	case internal.CommandTReplaceVersion:
		res = updateResult(fsm.service.ReplaceVersion(cmd.Key, cmd.Version, cmd.Value))
	case internal.CommandTClear:
		res = updateResult(fsm.service.Clear())
	case internal.CommandTBegin:
		res = internal.CommandResult{Version: fsm.service.Begin(cmd.ID)}
	case internal.CommandTPrepare:
		res = internal.CommandResult{Status: uint8(fsm.service.Prepare(cmd.ID, cmd.Updates))}
	case internal.CommandTPrepareAndCommit:
		res = internal.CommandResult{Status: uint8(fsm.service.PrepareAndCommit(cmd.ID, cmd.Updates))}
	case internal.CommandTCommit:
		res = internal.CommandResult{Status: uint8(fsm.service.Commit(cmd.ID))}
	case internal.CommandTRollback:
		res = internal.CommandResult{Status: uint8(fsm.service.Rollback(cmd.ID))}
	case internal.CommandTOpenIterator:
		res = internal.CommandResult{IteratorID: fsm.service.OpenIterator(cmd.ID)}
	case internal.CommandTCloseIterator:
		fsm.service.CloseIterator(cmd.IteratorID)
	case internal.CommandTAddListener:
		fsm.service.AddListener(cmd.ID)
	case internal.CommandTRemoveListener:
		fsm.service.RemoveListener(cmd.ID)
	case internal.CommandTCloseSession:
		fsm.service.CloseSession(cmd.ID)
	default:
		return sm.Result{
			Value: uint64(store.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
		}, nil
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update: %s took %.2fms",
			cmd.Type, float64(elapsed)/float64(time.Millisecond))
	}

	return sm.Result{Value: uint64(store.RetCSuccess), Data: res.Serialize()}, nil
}

// updateResult converts a service UpdateResult into the wire result.
func updateResult(res cmap.UpdateResult) internal.CommandResult {
	out := internal.CommandResult{Status: uint8(res.Status)}
	if res.Value != nil {
		out.HasValue = true
		out.Value = *res.Value
	}
	return out
}

// SaveSnapshot writes the service state to the writer. Dragonboat guarantees
// no concurrent Update for regular state machines, so the service can be
// serialized directly.
func (fsm *MapStateMachine) SaveSnapshot(writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	return fsm.service.Save(writer)
}

// RecoverFromSnapshot restores the service state from the reader.
func (fsm *MapStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return fsm.service.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *MapStateMachine) Close() error {
	return nil
}
