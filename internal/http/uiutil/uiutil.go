// Package uiutil formats note metadata for people reading it, in the HTML
// pages and in the CLI's tables.
package uiutil

import (
	"strconv"
	"strings"
	"time"
)

const DateTimeLayout = "Jan 2, 2006 3:04 PM"

// Since describes how long before now t happened. Anything older than a week
// is shown as a date; clock skew into the future reads as "just now".
func Since(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	case d < 7*24*time.Hour:
		return plural(int(d.Hours()/24), "day") + " ago"
	default:
		return DateTime(t)
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

// DateTime renders t in local time, or "" for the zero time.
func DateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(DateTimeLayout)
}

// Truncate shortens text to limit runes, ending with an ellipsis when cut.
// A non-positive limit leaves text alone.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit == 1 {
		return "…"
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
