// Package cmd implements the command-line interface for the dmap distributed
// consistent map. It provides a hierarchical command structure with operations
// for running the server and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - mapcmd: Commands for consistent map operations (get, put, remove, tx, iterate, etc.)
//   - lock: Commands for locking operations (acquire, release)
//   - serve: Commands for starting and configuring the dmap server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dmap -help for a list of all commands.
package cmd
