// Package identity derives stable session identifiers from discovery
// parameters. The identifier names every artifact the session produces, so it
// must survive reconnects: it is built only from the descriptive stream
// parameters, never from resolved endpoint URLs, which carry expiring tokens.
package identity

import (
	"strings"

	"gavel/internal/services"
)

// Params carries the descriptive stream parameters reported by discovery.
type Params struct {
	// Committee is the broadcast channel identifier (the "comm" URL parameter).
	Committee string
	// Filename is the per-session program identifier.
	Filename string
}

// Derive produces the session identifier for the given parameters.
// It is deterministic: equal parameters always yield equal identifiers, and
// distinct (committee, filename) pairs never collide. Returns an error wrapped
// with services.ErrInvalidParams when a required parameter is missing.
func Derive(params Params) (string, error) {
	committee := sanitize(params.Committee)
	filename := sanitize(params.Filename)
	if committee == "" {
		return "", services.Wrap(services.ErrInvalidParams, "identity", "derive", "missing committee parameter", nil)
	}
	if filename == "" {
		return "", services.Wrap(services.ErrInvalidParams, "identity", "derive", "missing filename parameter", nil)
	}
	return committee + "_" + filename, nil
}

// sanitize lowercases and strips characters that are unsafe in filenames.
// Underscores are replaced with hyphens so the committee/filename separator
// stays unambiguous.
func sanitize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == '_':
			b.WriteByte('-')
		}
	}
	return b.String()
}
