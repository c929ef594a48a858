// Package client implements RPC clients for the distributed consistent map system.
// It provides implementations of the store.IMap and lockmgr.ILockManager interfaces
// that communicate with remote servers via RPC.
//
// The package focuses on:
//   - Transparent RPC access to map and lock manager implementations
//   - Integration with the transport and serialization layers
//   - Error handling and conversion between RPC and domain errors
//
// Key Components:
//
//   - NewRPCMap: Factory function that creates a client implementing the store.IMap
//     interface. This client forwards all operations to remote servers via the configured
//     transport layer, covering single-key updates, queries, transactions, iterators
//     and sessions.
//
//   - NewRPCLockMgr: Factory function that creates a client implementing the
//     lockmgr.ILockManager interface for distributed locking operations.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:5000"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	// Create a serializer
//	serializer := serializer.NewBinarySerializer()
//
//	// Create map client
//	m, _ := client.NewRPCMap(1, config, tcp.NewTCPClientTransport(), serializer)
//
//	// Use the map
//	m.Put("mykey", []byte("myvalue"))
//	value, exists, _ := m.Get("mykey")
//
//	// Create and use a lock manager
//	lockMgr, _ := client.NewRPCLockMgr(2, config, tcp.NewTCPClientTransport(), serializer)
//	acquired, ownerID, _ := lockMgr.AcquireLock("mylock")
//	if acquired {
//	  lockMgr.ReleaseLock("mylock", ownerID)
//	}
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing ConnectionsPerEndpoint
//     can improve throughput by allowing parallel requests.
//
//   - For small messages, a single connection per endpoint is often more efficient due to
//     reduced connection overhead.
//
//   - The choice of serializer significantly affects performance. The binary serializer
//     provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
