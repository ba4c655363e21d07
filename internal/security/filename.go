// Package security cleans caller-supplied identifiers before they are
// embedded in file names or response headers.
package security

import "strings"

const maxFilenameLen = 128

// SanitizeFilename maps s onto ASCII letters, digits, '.', '_' and '-'.
// Any other rune becomes '_', runs of '_' collapse to one, and leading or
// trailing '.' and '_' are dropped so the result can never be "..", a dotfile
// or a path. An empty result becomes "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
