package server

import (
	"fmt"

	"github.com/dmap-io/dmap/lib/lockmgr"
	"github.com/dmap-io/dmap/lib/store"
	"github.com/dmap-io/dmap/rpc/common"
)

func NewLockManagerServerAdapter() IRPCServerAdapter {
	return &lockMgrServerAdapter{}
}

type lockMgrServerAdapter struct{}

func (adapter *lockMgrServerAdapter) Handle(req *common.Message, m store.IMap) (resp *common.Message) {

	// Check for nil map
	if m == nil {
		return common.NewErrorResponse("handler: map is nil")
	}

	// Create lock manager
	locks := lockmgr.NewLockManager(m)

	// Handle different message types
	switch req.MsgType {
	case common.MsgTLCKAcquire:
		ok, ownerID, err := locks.AcquireLock(req.Key)
		return common.NewAcquireResponse(ok, ownerID, err)
	case common.MsgTLCKRelease:
		ok, err := locks.ReleaseLock(req.Key, req.Value)
		return common.NewBoolResponse(common.MsgTLCKRelease, ok, err)
	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC LockManagerAdapter - Unsupported message type: %s", req.MsgType))
	}
}
