// Package store provides a high-level interface for consistent-map operations
// with versioned values, optimistic concurrency, multi-key transactions and
// unified error handling. It serves as an abstraction layer over the
// lib/cmap.Service state machine, adding standardized error reporting and
// allowing local and distributed deployments to share one client contract.
//
// The package focuses on:
//   - A unified interface (IMap) for consistent-map operations across backends
//   - Pluggable backend architecture through the ServiceFactory pattern
//
// Key Components:
//
//   - IMap Interface: The core abstraction defining every map, transaction,
//     iterator and listener operation. All implementations share this common
//     interface, allowing applications to switch between embedded and
//     replicated deployments without code changes. Machine-level failures are
//     reported as typed *Error values; domain outcomes such as
//     PRECONDITION_FAILED or NOOP travel inside the results, because a failed
//     compare-and-set is a normal answer, not a fault.
//
//   - Error System: A structured error reporting mechanism using typed error
//     codes and descriptive messages. This system allows applications to make
//     informed decisions based on specific error conditions (for example
//     retrying NotLeader against another replica) rather than generic errors.
//
//   - ServiceFactory: A function type that abstracts the creation of the
//     underlying cmap.Service, providing dependency injection and flexible
//     configuration of the state machine.
//
// Implementations:
//
//	The package includes two implementations of the IMap interface:
//
//	- Local Map (lmap): A single-node implementation that serializes all
//	  commands through one mutex, giving the state machine the same
//	  one-command-at-a-time execution model a consensus log provides. Change
//	  events are delivered locally through per-session watch channels. This
//	  implementation is suitable for embedded use and tests.
//	  Available in the "github.com/dmap-io/dmap/lib/store/lmap" package.
//
//	- Distributed Map (dmap): An implementation built on the Dragonboat RAFT
//	  consensus library. Commands are serialized into the replicated log and
//	  applied deterministically on every replica; linearizable reads go
//	  through the read index protocol. This implementation is appropriate for
//	  multi-node deployments requiring fault tolerance.
//	  Available in the "github.com/dmap-io/dmap/lib/store/dmap" package.
package store
