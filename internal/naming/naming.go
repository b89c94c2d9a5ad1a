// Package naming derives channel labels from external user identities. The
// produced name is a human-readable label only; routing always goes through
// the channel topic.
package naming

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	channelPrefix   = "modmail"
	placeholder     = "user"
	maxSanitizedLen = 60
)

// ChannelName builds the canonical channel label for a user. Two distinct
// ids always produce distinct names because the exact id is appended last,
// even when the sanitized display names collide.
func ChannelName(displayName string, userID int64) string {
	return channelPrefix + "-" + Sanitize(displayName) + "-" + strconv.FormatInt(userID, 10)
}

// FallbackChannelName builds a label from the id alone. Used when channel
// creation with the display-name label fails for an unknown reason.
func FallbackChannelName(userID int64) string {
	return channelPrefix + "-" + strconv.FormatInt(userID, 10)
}

// Sanitize reduces an arbitrary display name to a bounded [a-z0-9-] label.
// Combining marks are stripped before filtering so accented letters keep
// their base character. Pure: same input, same output.
func Sanitize(displayName string) string {
	folded := stripMarks(displayName)
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	lastDash := true
	for _, r := range folded {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if valid {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}

	out := strings.Trim(b.String(), "-")
	if len(out) > maxSanitizedLen {
		out = strings.TrimRight(out[:maxSanitizedLen], "-")
	}
	if out == "" {
		return placeholder
	}
	return out
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
