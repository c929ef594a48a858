package client

import (
	"github.com/dmap-io/dmap/lib/cmap"
	"github.com/dmap-io/dmap/lib/store"
	"github.com/dmap-io/dmap/rpc/common"
	"github.com/dmap-io/dmap/rpc/serializer"
	"github.com/dmap-io/dmap/rpc/transport"
)

// NewRPCMap creates a new RPC map
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It returns a store.IMap and an error
func NewRPCMap(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IMap, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC map
	m := rpcMap{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC map
	return &m, nil
}

type rpcMap struct {
	rpcClientAdapter
}

// updateResult converts an update response message back into a
// cmap.UpdateResult. Ok signals whether the response carries a value.
func updateResult(resp *common.Message) cmap.UpdateResult {
	res := cmap.UpdateResult{Status: cmap.UpdateStatus(resp.Status)}
	if resp.Ok {
		res.Value = &cmap.VersionedValue{Value: resp.Value, Version: resp.Version}
	}
	return res
}

// invokeUpdate sends a single-key update request and decodes the result
func (i *rpcMap) invokeUpdate(req *common.Message) (cmap.UpdateResult, error) {
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return cmap.UpdateResult{}, err
	}
	return updateResult(resp), nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcMap) Put(key string, value []byte) (cmap.UpdateResult, error) {
	return i.invokeUpdate(common.NewPutRequest(key, value))
}

func (i *rpcMap) PutIfAbsent(key string, value []byte) (cmap.UpdateResult, error) {
	return i.invokeUpdate(common.NewPutIfAbsentRequest(key, value))
}

func (i *rpcMap) PutAndGet(key string, value []byte) (cmap.UpdateResult, error) {
	return i.invokeUpdate(common.NewPutAndGetRequest(key, value))
}

func (i *rpcMap) Remove(key string) (cmap.UpdateResult, error) {
	return i.invokeUpdate(common.NewRemoveRequest(key))
}

func (i *rpcMap) RemoveValue(key string, expect []byte) (cmap.UpdateResult, error) {
	return i.invokeUpdate(common.NewRemoveValueRequest(key, expect))
}

func (i *rpcMap) RemoveVersion(key string, version uint64) (cmap.UpdateResult, error) {
	return i.invokeUpdate(common.NewRemoveVersionRequest(key, version))
}

func (i *rpcMap) Replace(key string, value []byte) (cmap.UpdateResult, error) {
	return i.invokeUpdate(common.NewReplaceRequest(key, value))
}

func (i *rpcMap) ReplaceValue(key string, oldValue, newValue []byte) (cmap.UpdateResult, error) {
	return i.invokeUpdate(common.NewReplaceValueRequest(key, oldValue, newValue))
}

func (i *rpcMap) ReplaceVersion(key string, oldVersion uint64, newValue []byte) (cmap.UpdateResult, error) {
	return i.invokeUpdate(common.NewReplaceVersionRequest(key, oldVersion, newValue))
}

func (i *rpcMap) Clear() (cmap.UpdateResult, error) {
	return i.invokeUpdate(common.NewClearRequest())
}

func (i *rpcMap) Get(key string) (value cmap.VersionedValue, loaded bool, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewGetRequest(key), i.transport, i.serializer)
	if err != nil {
		return cmap.VersionedValue{}, false, err
	}
	return cmap.VersionedValue{Value: resp.Value, Version: resp.Version}, resp.Ok, nil
}

func (i *rpcMap) GetOrDefault(key string, def []byte) (value cmap.VersionedValue, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewGetOrDefaultRequest(key, def), i.transport, i.serializer)
	if err != nil {
		return cmap.VersionedValue{}, err
	}
	return cmap.VersionedValue{Value: resp.Value, Version: resp.Version}, nil
}

func (i *rpcMap) ContainsKey(key string) (ok bool, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewContainsKeyRequest(key), i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcMap) ContainsValue(value []byte) (ok bool, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewContainsValueRequest(value), i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcMap) Size() (size int, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewSizeRequest(), i.transport, i.serializer)
	if err != nil {
		return 0, err
	}
	return int(resp.Version), nil
}

func (i *rpcMap) IsEmpty() (empty bool, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewIsEmptyRequest(), i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcMap) KeySet() (keys []string, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewKeySetRequest(), i.transport, i.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

func (i *rpcMap) Values() (values []cmap.VersionedValue, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewValuesRequest(), i.transport, i.serializer)
	if err != nil {
		return nil, err
	}
	// Values travel as entries with empty keys (see the server adapter)
	values = make([]cmap.VersionedValue, len(resp.Entries))
	for idx, entry := range resp.Entries {
		values[idx] = entry.Value
	}
	return values, nil
}

func (i *rpcMap) EntrySet() (entries []cmap.Entry, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewEntrySetRequest(), i.transport, i.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (i *rpcMap) Begin(txID string) (version uint64, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewBeginRequest(txID), i.transport, i.serializer)
	if err != nil {
		return 0, err
	}
	return resp.Version, nil
}

func (i *rpcMap) Prepare(txID string, updates []cmap.MapUpdate) (status cmap.PrepareStatus, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewPrepareRequest(txID, updates), i.transport, i.serializer)
	if err != nil {
		return 0, err
	}
	return cmap.PrepareStatus(resp.Status), nil
}

func (i *rpcMap) PrepareAndCommit(txID string, updates []cmap.MapUpdate) (status cmap.PrepareStatus, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewPrepareAndCommitRequest(txID, updates), i.transport, i.serializer)
	if err != nil {
		return 0, err
	}
	return cmap.PrepareStatus(resp.Status), nil
}

func (i *rpcMap) Commit(txID string) (status cmap.CommitStatus, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewCommitRequest(txID), i.transport, i.serializer)
	if err != nil {
		return 0, err
	}
	return cmap.CommitStatus(resp.Status), nil
}

func (i *rpcMap) Rollback(txID string) (status cmap.CommitStatus, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewRollbackRequest(txID), i.transport, i.serializer)
	if err != nil {
		return 0, err
	}
	return cmap.CommitStatus(resp.Status), nil
}

func (i *rpcMap) OpenIterator(sessionID string) (iteratorID uint64, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewIterOpenRequest(sessionID), i.transport, i.serializer)
	if err != nil {
		return 0, err
	}
	return resp.IteratorID, nil
}

func (i *rpcMap) Next(iteratorID uint64, position, batchSize int) (batch cmap.IteratorBatch, found bool, err error) {
	resp, err := invokeRPCRequest(i.shardId, common.NewIterNextRequest(iteratorID, position, batchSize), i.transport, i.serializer)
	if err != nil {
		return cmap.IteratorBatch{}, false, err
	}
	return cmap.IteratorBatch{
		Position: int(resp.Version),
		Entries:  resp.Entries,
		HasMore:  resp.HasMore,
	}, resp.Ok, nil
}

func (i *rpcMap) CloseIterator(iteratorID uint64) (err error) {
	_, err = invokeRPCRequest(i.shardId, common.NewIterCloseRequest(iteratorID), i.transport, i.serializer)
	return err
}

func (i *rpcMap) AddListener(sessionID string) (err error) {
	_, err = invokeRPCRequest(i.shardId, common.NewAddListenerRequest(sessionID), i.transport, i.serializer)
	return err
}

func (i *rpcMap) RemoveListener(sessionID string) (err error) {
	_, err = invokeRPCRequest(i.shardId, common.NewRemoveListenerRequest(sessionID), i.transport, i.serializer)
	return err
}

func (i *rpcMap) CloseSession(sessionID string) (err error) {
	_, err = invokeRPCRequest(i.shardId, common.NewCloseSessionRequest(sessionID), i.transport, i.serializer)
	return err
}
