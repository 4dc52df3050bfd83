// Package phone normalizes customer phone numbers to the bare-digit form
// the messaging gateway accepts.
package phone

import "strings"

// Normalize strips everything but digits. Returns "" when nothing is left.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
