// Package logging assembles structured slog loggers for the nodeipc CLI and
// libraries.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// session handler that stamps every record with the invocation's session id.
// Library code receives a *slog.Logger and tags it with a component name via
// NewComponentLogger; a no-op logger covers tests and optional wiring.
package logging
