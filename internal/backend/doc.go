// Package backend owns the local llama.cpp server: discovery, launch, health
// supervision, crash detection and shutdown. It is structured into small files
// by concern:
//
//   - config.go: Config and package defaults.
//   - state.go: lifecycle State values.
//   - errors.go: error types and helpers (IsModelNotFound, IsExecutableNotFound, ...).
//   - events.go, publisher_memory.go, broadcaster.go: lifecycle event publishers.
//   - client.go: HTTP client for /health and /completion.
//   - discovery.go: model and executable resolution, Discover report.
//   - process.go: child process spawn, output capture and termination.
//   - manager.go: Manager with EnsureReady/Recover/Retry/SwitchModel/Shutdown.
//
// Only loopback backends are supported; completion text never leaves the machine.
package backend
