// Package lockmgr implements a locking mechanism on top of the consistent
// map primitive. It provides a simple yet robust way to coordinate access
// to shared resources across multiple processes or nodes.
//
// The lockmgr only ever stores in the provided IMap and has no other internal
// state. Therefore it is safe to be created multiple times on the same map.
// It is even possible to create a new lockmgr for every acquire and or release
// operation. As long as the same map is used every time, all locks will
// work as expected.
//
// Core Functionality:
//   - Lock acquisition with ownership verification
//   - Safe release operations that verify ownership
//
// Implementation Approach:
//
//	Locks are implemented by leveraging the atomic conditional operations
//	of the underlying map. Specifically:
//
//	- Lock Acquisition: Attempts to create a key using PutIfAbsent, which
//	  guarantees that only one requester can successfully create the key.
//	  The value contains a randomly generated owner ID that identifies the
//	  lock holder. Because the conditional put is evaluated inside the
//	  state machine itself, no verification read is needed afterwards.
//
//	- Safe Release: The ReleaseLock operation uses RemoveValue, which
//	  deletes the entry only if it still holds the caller's owner ID. This
//	  makes release a single atomic operation as well.
//
// Thread Safety:
//
//	The lockmgr is as thread-safe as the underlying store.IMap
//	implementation. All operations are performed through the map interface,
//	which serializes conditional writes.
//
// Distributed Considerations:
//
//	When used with a distributed map implementation like dmap, the
//	lockmgr provides true distributed locking with consensus-based
//	guarantees. This enables coordination across multiple nodes in a cluster
//	while maintaining strong consistency properties.
//
// Usage Example:
//
//	// Create a lockmgr provider with a map backend
//	lockProvider := lockmgr.NewLockManager(m)
//
//	// Acquire a lock
//	acquired, ownerID, err := lockProvider.AcquireLock("resource:123")
//	if err != nil {
//	    // Handle error
//	}
//
//	if acquired {
//	    // Use the resource safely
//	    // ...
//
//	    // Release the lock when done
//	    released, err := lockProvider.ReleaseLock("resource:123", ownerID)
//	    if err != nil {
//	        // Handle error
//	    }
//	}
//
// Security Considerations:
//
//	The lockmgr mechanism uses randomly generated owner IDs, which provides
//	reasonable protection against accidental lock stealing. However, it is
//	not designed to resist malicious attacks, as an attacker with access to
//	the underlying map could potentially manipulate lock data directly.
//
// Performance Impact:
//
//	Lock operations require exactly one map operation each:
//	- AcquireLock: One PutIfAbsent
//	- ReleaseLock: One RemoveValue
//
//	The performance characteristics therefore depend primarily on the
//	underlying map implementation.
package lockmgr
