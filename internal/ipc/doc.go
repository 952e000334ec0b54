// Package ipc is a JSON-RPC 2.0 client for a blockchain node's local IPC
// endpoint: a Unix domain socket, or a named pipe on Windows.
//
// A Provider holds at most one connection and runs one round trip at a time.
// Each request is written as a single newline-terminated frame; replies carry
// no length prefix, so the reader reassembles a complete JSON value from as
// many reads as it takes and keeps any bytes that arrive past it.
//
// Failures are returned as *Error with a Kind (configuration, connection,
// timeout, protocol) that callers test with errors.Is against the Err*
// sentinels. A node's own error object comes back as *RPCError. After a
// timeout or protocol error the stream position is unknown, so the provider
// refuses further requests on that connection; build a new provider instead.
package ipc
