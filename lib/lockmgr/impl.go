package lockmgr

import (
	"fmt"

	"github.com/dmap-io/dmap/lib/cmap"
	"github.com/dmap-io/dmap/lib/store"
)

type lockMgrImpl struct {
	m store.IMap
}

func (lp *lockMgrImpl) AcquireLock(key string) (bool, []byte, error) {
	// Generate owner credential (256 bit random value)
	ownerID, err := generateOwnerID()
	if err != nil {
		return false, nil, err
	}

	// Try to acquire the lock (atomic CAS operation inside the state machine)
	res, err := lp.m.PutIfAbsent(key, ownerID)
	if err != nil {
		return false, nil, err
	}

	switch res.Status {
	case cmap.StatusOK:
		// Lock entry created by us
		return true, ownerID, nil
	case cmap.StatusPreconditionFailed, cmap.StatusWriteLock:
		// Lock held by someone else (or the key is blocked by a pending transaction)
		return false, nil, nil
	default:
		return false, nil, store.NewError(store.RetCInternalError,
			fmt.Sprintf("unexpected status acquiring lock: %s", res.Status))
	}
}

func (lp *lockMgrImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	// Remove the entry only if it still holds our credential
	res, err := lp.m.RemoveValue(key, ownerID)
	if err != nil {
		return false, err
	}

	switch res.Status {
	case cmap.StatusOK:
		return true, nil
	case cmap.StatusNoop:
		// The lock did not exist, nothing left to release
		return true, nil
	case cmap.StatusPreconditionFailed, cmap.StatusWriteLock:
		// Held by a different owner or blocked by a pending transaction
		return false, nil
	default:
		return false, store.NewError(store.RetCInternalError,
			fmt.Sprintf("unexpected status releasing lock: %s", res.Status))
	}
}
