// Package config loads, normalizes, and validates nodeipc configuration.
//
// It supplies repository defaults, expands tilde shortcuts, reads TOML files,
// and decides which IPC endpoint a command targets (explicit path, dev node,
// or the platform default). Always obtain settings through this package so
// callers receive expanded paths, canonical log settings, and validation
// errors that name the offending key.
package config
