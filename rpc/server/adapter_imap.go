package server

import (
	"fmt"

	"github.com/dmap-io/dmap/lib/cmap"
	"github.com/dmap-io/dmap/lib/store"
	"github.com/dmap-io/dmap/rpc/common"
)

func NewIMapServerAdapter() IRPCServerAdapter {
	return &iMapServerAdapterImpl{}
}

type iMapServerAdapterImpl struct{}

func (adapter *iMapServerAdapterImpl) Handle(req *common.Message, m store.IMap) *common.Message {
	// Check for nil map
	if m == nil {
		return common.NewErrorResponse("handler: map is nil")
	}

	// Handle different message types
	switch req.MsgType {

	// Update operations

	case common.MsgTMapPut:
		res, err := m.Put(req.Key, req.Value)
		return common.NewUpdateResponse(req.MsgType, res, err)
	case common.MsgTMapPutIfAbsent:
		res, err := m.PutIfAbsent(req.Key, req.Value)
		return common.NewUpdateResponse(req.MsgType, res, err)
	case common.MsgTMapPutAndGet:
		res, err := m.PutAndGet(req.Key, req.Value)
		return common.NewUpdateResponse(req.MsgType, res, err)
	case common.MsgTMapRemove:
		res, err := m.Remove(req.Key)
		return common.NewUpdateResponse(req.MsgType, res, err)
	case common.MsgTMapRemoveValue:
		res, err := m.RemoveValue(req.Key, req.AuxValue)
		return common.NewUpdateResponse(req.MsgType, res, err)
	case common.MsgTMapRemoveVersion:
		res, err := m.RemoveVersion(req.Key, req.Version)
		return common.NewUpdateResponse(req.MsgType, res, err)
	case common.MsgTMapReplace:
		res, err := m.Replace(req.Key, req.Value)
		return common.NewUpdateResponse(req.MsgType, res, err)
	case common.MsgTMapReplaceValue:
		res, err := m.ReplaceValue(req.Key, req.AuxValue, req.Value)
		return common.NewUpdateResponse(req.MsgType, res, err)
	case common.MsgTMapReplaceVersion:
		res, err := m.ReplaceVersion(req.Key, req.Version, req.Value)
		return common.NewUpdateResponse(req.MsgType, res, err)
	case common.MsgTMapClear:
		res, err := m.Clear()
		return common.NewUpdateResponse(req.MsgType, res, err)

	// Query operations

	case common.MsgTMapGet:
		val, ok, err := m.Get(req.Key)
		return common.NewGetResponse(req.MsgType, val, ok, err)
	case common.MsgTMapGetOrDefault:
		val, err := m.GetOrDefault(req.Key, req.AuxValue)
		return common.NewGetResponse(req.MsgType, val, true, err)
	case common.MsgTMapContainsKey:
		ok, err := m.ContainsKey(req.Key)
		return common.NewBoolResponse(req.MsgType, ok, err)
	case common.MsgTMapContainsValue:
		ok, err := m.ContainsValue(req.Value)
		return common.NewBoolResponse(req.MsgType, ok, err)
	case common.MsgTMapSize:
		size, err := m.Size()
		return common.NewCountResponse(req.MsgType, uint64(size), err)
	case common.MsgTMapIsEmpty:
		empty, err := m.IsEmpty()
		return common.NewBoolResponse(req.MsgType, empty, err)
	case common.MsgTMapKeySet:
		keys, err := m.KeySet()
		return common.NewKeysResponse(keys, err)
	case common.MsgTMapValues:
		values, err := m.Values()
		// Values travel as entries with empty keys so that both bulk reads
		// share a response shape
		entries := make([]cmap.Entry, len(values))
		for i, v := range values {
			entries[i] = cmap.Entry{Value: v}
		}
		return common.NewEntriesResponse(req.MsgType, entries, err)
	case common.MsgTMapEntrySet:
		entries, err := m.EntrySet()
		return common.NewEntriesResponse(req.MsgType, entries, err)

	// Transaction operations

	case common.MsgTTxBegin:
		version, err := m.Begin(req.ID)
		return common.NewCountResponse(req.MsgType, version, err)
	case common.MsgTTxPrepare:
		status, err := m.Prepare(req.ID, req.Updates)
		return common.NewStatusResponse(req.MsgType, uint8(status), err)
	case common.MsgTTxPrepareAndCommit:
		status, err := m.PrepareAndCommit(req.ID, req.Updates)
		return common.NewStatusResponse(req.MsgType, uint8(status), err)
	case common.MsgTTxCommit:
		status, err := m.Commit(req.ID)
		return common.NewStatusResponse(req.MsgType, uint8(status), err)
	case common.MsgTTxRollback:
		status, err := m.Rollback(req.ID)
		return common.NewStatusResponse(req.MsgType, uint8(status), err)

	// Iterator operations

	case common.MsgTIterOpen:
		iteratorID, err := m.OpenIterator(req.ID)
		return common.NewIterOpenResponse(iteratorID, err)
	case common.MsgTIterNext:
		batch, found, err := m.Next(req.IteratorID, int(req.Version), req.BatchSize)
		return common.NewIterNextResponse(batch, found, err)
	case common.MsgTIterClose:
		err := m.CloseIterator(req.IteratorID)
		return common.NewAckResponse(req.MsgType, err)

	// Session operations

	case common.MsgTSessionAddListener:
		err := m.AddListener(req.ID)
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTSessionRemoveListener:
		err := m.RemoveListener(req.ID)
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTSessionClose:
		err := m.CloseSession(req.ID)
		return common.NewAckResponse(req.MsgType, err)

	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IMapAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
