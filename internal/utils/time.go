package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeTimeRe = regexp.MustCompile(`^(\d+)(mo|m|h|d|w|y)$`)

// ResolveRelativeTime converts the site's compact relative fragments
// ("5m", "3h", "2d", "1w", "4mo", "1y") into an absolute instant anchored
// at now. Returns nil for anything it cannot interpret.
func ResolveRelativeTime(fragment string, now time.Time) *time.Time {
	m := relativeTimeRe.FindStringSubmatch(fragment)
	if m == nil {
		return nil
	}
	amount, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}

	var t time.Time
	switch m[2] {
	case "m":
		t = now.Add(-time.Duration(amount) * time.Minute)
	case "h":
		t = now.Add(-time.Duration(amount) * time.Hour)
	case "d":
		t = now.AddDate(0, 0, -amount)
	case "w":
		t = now.AddDate(0, 0, -amount*7)
	case "mo":
		t = now.AddDate(0, -amount, 0)
	case "y":
		t = now.AddDate(-amount, 0, 0)
	default:
		return nil
	}
	return &t
}

// layouts the chapter api has shipped for upload dates
var uploadDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeUploadDate parses an upload date in any of the known api layouts
// and returns it as UTC RFC3339. Returns nil for anything it cannot
// interpret.
func NormalizeUploadDate(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range uploadDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			iso := t.UTC().Format(time.RFC3339)
			return &iso
		}
	}
	return nil
}
