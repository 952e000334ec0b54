// Package main hosts the nodeipc CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into JSON-RPC calls
// against a node's IPC endpoint: single calls, batches, reachability checks,
// polling with optional Prometheus export, and a local call history. It
// centralizes configuration loading, endpoint selection and logger setup so
// subcommands only decide what to send and how to print it.
package main
