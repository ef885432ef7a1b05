// Package logging provides structured logging for FleetCore.
//
// It wraps log/slog with configuration-driven setup: output format
// (JSON or text), level filtering, and default service attributes.
//
// Components that only need to emit logs should accept a narrow Logger
// interface (Debug/Info/Warn/Error with key-value pairs) rather than
// depending on this package directly; *logging.Logger satisfies those
// interfaces via its embedded *slog.Logger.
package logging
