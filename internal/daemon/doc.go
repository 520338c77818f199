// Package daemon combines the watcher loop, session store, and flock-based
// locking into a single lifecycle, preventing multiple gavel instances from
// capturing the same broadcast.
package daemon
