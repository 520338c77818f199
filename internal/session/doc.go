// Package session persists capture session history and trigger events in
// SQLite.
//
// Each recording run inserts one session row when capture begins and closes
// it with a terminal state and end reason when capture stops. Live sessions
// carry a heartbeat so that rows orphaned by an unclean exit can be reclaimed
// as aborted on the next start. Trigger events reference their session row
// and are unique per (session, segment, phrase) so re-transcribed overlap
// never records a duplicate.
package session
