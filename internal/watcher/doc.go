// Package watcher orchestrates the capture lifecycle.
//
// A single loop polls the discovery source on a fixed cadence and moves
// through idle, session starting, session active, and session ending phases.
// At most one session is ever live: teardown of the previous session
// completes before the next one may start. Fatal recorder errors end the
// session immediately through a channel rather than waiting for a poll.
package watcher
