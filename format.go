package hxcommunity

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// FormatTimestamp renders an ISO timestamp relative to now: "Just now",
// "5m ago", "3h ago", "2d ago", then "Jan 2". Unparseable input is returned
// unchanged.
func FormatTimestamp(ts string, now time.Time) string {
	t, err := parseTimestamp(ts)
	if err != nil {
		return ts
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	default:
		return t.Local().Format("Jan 2")
	}
}

func parseTimestamp(ts string) (time.Time, error) {
	for _, layout := range []string{isoLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", ts)
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// TruncateText cuts text to max runes and appends "..." when it was cut.
func TruncateText(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max]) + "..."
}

// Initials returns up to two upper-case initials of a display name.
func Initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(r)
		if utf8.RuneCountInString(b.String()) == 2 {
			break
		}
	}
	return strings.ToUpper(b.String())
}
