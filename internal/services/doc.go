// Package services defines shared utilities consumed by the capture
// components and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, recording target names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into consistent watcher reactions (retry, degrade, abort).
//
// Use these helpers when wiring new capture logic so operational behaviour
// (error handling, observability, retries) stays uniform across components.
package services
