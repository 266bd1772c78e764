package voice

import (
	"strings"
	"time"
)

// Slugify maps a display name to a URL- and filesystem-safe identifier
// candidate: lower-cased, with every run of characters outside [a-z0-9]
// collapsed to a single '-', and leading/trailing '-' trimmed.
//
// When nothing survives (all-punctuation or non-Latin input) it falls back to
// "voice-<UTC timestamp>" so the result is never empty.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}

	slug := b.String()
	if slug == "" {
		return "voice-" + time.Now().UTC().Format("20060102150405")
	}
	return slug
}
