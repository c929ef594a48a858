package lockmgr

import (
	"github.com/dmap-io/dmap/lib/store"
)

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// AcquireLock acquires a lock for the given key.
	// Return a boolean indicating whether the lock was acquired, an owner ID, and an error if any.
	AcquireLock(key string) (ok bool, ownerID []byte, err error)

	// ReleaseLock releases the lock for the given key.
	// Return a boolean indicating whether the lock was released, and an error if any.
	// The method will also return true if the lock did not exist.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)
}

// NewLockManager creates a lock manager backed by the given map.
// The manager holds no state of its own, so multiple managers over the
// same map cooperate correctly.
func NewLockManager(m store.IMap) ILockManager {
	return &lockMgrImpl{m: m}
}
