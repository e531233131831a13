// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime control surface for the fiber runtime: dynamic configuration,
// metrics, hot-reload hooks, and debug introspection.
//
// Provides concurrent-safe state handling primitives including:
//   - Immutable snapshot config reads and atomic updates
//   - Runtime observers for hot-reload
//   - Metrics telemetry fed by the scheduler, dispatchers, and pools
//   - State export, debug hooks, and probe registration
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
