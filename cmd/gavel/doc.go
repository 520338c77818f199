// Package main hosts the gavel CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the long-running watch daemon plus the
// supporting commands for inspecting recorded sessions, checking external
// dependencies, and scaffolding configuration. Configuration resolution is
// centralized so subcommands can focus on presentation.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
