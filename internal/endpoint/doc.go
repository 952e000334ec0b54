// Package endpoint resolves the local address a node exposes its IPC
// interface on.
//
// Resolution is a pure function of an Environment (platform identifier,
// environment variables and home directory). Nothing in this package reads
// process globals except FromProcess, which snapshots them once so callers
// can hand the result to the resolver and to tests alike.
package endpoint
