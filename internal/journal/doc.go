// Package journal keeps a local SQLite record of the calls the CLI has made:
// which method went to which endpoint, how long it took, and how it ended.
//
// The store applies embedded migrations on open. Several CLI processes may
// open the same file at once, so migrations run under a file lock and writes
// retry briefly while SQLite reports the database as busy.
package journal
