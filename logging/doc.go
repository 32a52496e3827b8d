// Package logging provides a minimal logging interface and adapters for dialogmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine and its components use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - DialogLogger with session/component context and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh := dialogmesh.New(func(o *dialogmesh.Options) { o.Logger = logger })
package logging
