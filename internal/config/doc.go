// Package config loads, validates, and normalizes gavel's TOML configuration.
//
// Configuration resolves from an explicit --config path, then
// ~/.config/gavel/config.toml, then ./gavel.toml, falling back to built-in
// defaults when no file exists. All paths are tilde-expanded and absolute
// after Load returns. Timing knobs (poll cadence, stall windows, backoff,
// drain timeouts) live here so operational tuning never requires a rebuild.
package config
