// Package answer normalizes and compares submitted clue answers.
package answer

import "strings"

// Normalize lower-cases s, replaces every rune outside [a-z0-9] with a
// space, collapses runs of whitespace and trims the result. It is pure and
// locale independent.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}

	return b.String()
}

// IsMatch reports whether raw equals any accepted alternative after both
// sides are normalized. An answer that normalizes to the empty string never
// matches.
func IsMatch(raw string, accepted []string) bool {
	got := Normalize(raw)
	if got == "" {
		return false
	}
	for _, a := range accepted {
		if Normalize(a) == got {
			return true
		}
	}
	return false
}
