package naming

import (
	"strings"
	"testing"
)

func TestChannelName(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		userID      int64
		want        string
	}{
		{"plain name", "alice", 42, "modmail-alice-42"},
		{"accents and punctuation", "Jöhn Smith!", 555, "modmail-john-smith-555"},
		{"uppercase", "ALICE", 1, "modmail-alice-1"},
		{"spaces collapse", "a   b", 7, "modmail-a-b-7"},
		{"leading and trailing junk", "  --wow--  ", 9, "modmail-wow-9"},
		{"empty name", "", 3, "modmail-user-3"},
		{"all disallowed", "!!!???***", 12, "modmail-user-12"},
		{"digits kept", "agent007", 99, "modmail-agent007-99"},
		{"emoji stripped", "cat 🐈 fan", 5, "modmail-cat-fan-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChannelName(tt.displayName, tt.userID)
			if got != tt.want {
				t.Errorf("ChannelName(%q, %d) = %q, want %q", tt.displayName, tt.userID, got, tt.want)
			}
		})
	}
}

func TestChannelNameDistinctIDs(t *testing.T) {
	// Colliding display names must still yield distinct channel names.
	a := ChannelName("same name", 100)
	b := ChannelName("same-name", 101)
	if a == b {
		t.Fatalf("expected distinct names, both were %q", a)
	}
}

func TestSanitizeTruncation(t *testing.T) {
	long := strings.Repeat("ab-", 40)
	got := Sanitize(long)
	if len(got) > 60 {
		t.Fatalf("sanitized name too long: %d chars", len(got))
	}
	if strings.HasSuffix(got, "-") {
		t.Fatalf("sanitized name has trailing dash after truncation: %q", got)
	}
}

func TestSanitizeIsPure(t *testing.T) {
	for i := 0; i < 3; i++ {
		if got := Sanitize("Jöhn Smith!"); got != "john-smith" {
			t.Fatalf("Sanitize not stable, got %q", got)
		}
	}
}

func TestFallbackChannelName(t *testing.T) {
	if got := FallbackChannelName(555); got != "modmail-555" {
		t.Fatalf("FallbackChannelName(555) = %q", got)
	}
}
