// Package discovery resolves whether the watched broadcast source currently
// has an active session, and if so, the playable stream endpoints for it.
//
// The concrete implementation polls the Senate floor schedule JSON feed,
// follows the convened session's player page URL, and probes the known HLS
// distribution hosts for a reachable stream. Callers treat the Source
// interface as the boundary; transient network or parse failures surface as
// errors the orchestrator logs and retries on the next cycle.
package discovery

import (
	"context"
	"net/url"

	"gavel/internal/identity"
)

// Stream describes the resolved endpoints for an active session.
type Stream struct {
	// VideoURL and AudioURL are the capture inputs. The source serves one HLS
	// master playlist carrying both tracks, so they usually match; they are
	// kept separate because each capture subprocess reconnects independently.
	VideoURL string
	AudioURL string
	// Params are the descriptive stream parameters used for identity
	// derivation. They exclude any volatile URL tokens.
	Params identity.Params
}

// Status is the result of one discovery poll.
type Status struct {
	Active bool
	Stream Stream
}

// Source is the discovery port polled by the watcher.
type Source interface {
	Poll(ctx context.Context) (Status, error)
}

// parsePlayerPage extracts the stream parameters from a session player page
// URL of the form ...?type=live&comm=<committee>&filename=<program>.
func parsePlayerPage(pageURL string) (identity.Params, bool) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return identity.Params{}, false
	}
	query := parsed.Query()
	if query.Get("type") != "live" {
		return identity.Params{}, false
	}
	params := identity.Params{
		Committee: query.Get("comm"),
		Filename:  query.Get("filename"),
	}
	if params.Committee == "" || params.Filename == "" {
		return identity.Params{}, false
	}
	return params, true
}
