package utils

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	chapterLabelRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	chapterURLRe     = regexp.MustCompile(`-chapter-(\d+(?:\.\d+)?)`)
	trailingNumberRe = regexp.MustCompile(`(\d+(?:\.\d+)?)$`)
	slugRe           = regexp.MustCompile(`[^a-z0-9-]+`)
)

// ParseChapterNumber extracts a fractional chapter number from a chapter
// label like "Chapter 12.5". Returns nil when the label carries no number;
// callers must not substitute zero.
func ParseChapterNumber(label string) *float64 {
	m := chapterLabelRe.FindStringSubmatch(label)
	if m == nil {
		return nil
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &n
}

// ChapterNumberFromURL falls back to the URL path when the label had no
// number: first a trailing "-chapter-<num>" segment, then a bare numeric
// suffix (chapter ids like "14-chapter-7" or plain "14").
func ChapterNumberFromURL(rawURL string) *float64 {
	if m := chapterURLRe.FindStringSubmatch(rawURL); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			return &n
		}
	}
	trimmed := strings.TrimRight(rawURL, "/")
	if m := trailingNumberRe.FindStringSubmatch(trimmed); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			return &n
		}
	}
	return nil
}

// Slugify reduces a name to a filesystem- and URL-safe path segment.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugRe.ReplaceAllString(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

// ValidateChapterLink reports whether a link looks like a chapter page path.
func ValidateChapterLink(link string) bool {
	re := regexp.MustCompile(`^/title/[^/]+/\d+-chapter-\d+.*$`)
	return re.MatchString(link)
}
