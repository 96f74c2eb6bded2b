package hxcommunity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		ts   string
		want string
	}{
		{"2024-05-20T11:59:30.000Z", "Just now"},
		{"2024-05-20T11:15:00.000Z", "45m ago"},
		{"2024-05-20T02:00:00Z", "10h ago"},
		{"2024-05-17 12:00:00", "3d ago"},
		{"not a date", "not a date"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatTimestamp(tc.ts, now), tc.ts)
	}

	old := FormatTimestamp("2024-01-02", now)
	assert.Contains(t, []string{"Jan 1", "Jan 2"}, old)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", FormatDuration(0))
	assert.Equal(t, "0:00", FormatDuration(-5))
	assert.Equal(t, "1:05", FormatDuration(65))
	assert.Equal(t, "61:01", FormatDuration(3661))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 10))
	assert.Equal(t, "abc...", TruncateText("abcdef", 3))
	assert.Equal(t, "héé...", TruncateText("hééllo", 3))
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "AL", Initials("ada lovelace byron"))
	assert.Equal(t, "B", Initials("bob"))
	assert.Equal(t, "", Initials("   "))
	assert.Equal(t, "ÉZ", Initials("élodie zola"))
}
