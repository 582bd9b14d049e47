package domain

import (
	"net/url"
	"strings"
)

// Image is a single chapter page. PageIndex is 0-based reading order and
// must stay dense end-to-end; downstream code must never re-sort Images.
type Image struct {
	URL       string `json:"url"`
	AltText   string `json:"alt"`
	PageIndex int    `json:"index"`
}

// ChapterMetadata is the normalized per-chapter record. ChapterNumber is nil
// when no number could be parsed from the label or the URL, never zero.
type ChapterMetadata struct {
	Title          string   `json:"title"`
	ChapterLabel   string   `json:"chapter"`
	ChapterNumber  *float64 `json:"chapterNumber,omitempty"`
	Provider       string   `json:"provider"`
	MangaID        string   `json:"mangaId"`
	ChapterID      string   `json:"chapterId"`
	NextChapterURL string   `json:"nextChapter,omitempty"`
	PrevChapterURL string   `json:"prevChapter,omitempty"`
}

type ChapterScrapeResult struct {
	Success   bool            `json:"success"`
	Images    []Image         `json:"images"`
	Metadata  ChapterMetadata `json:"metadata"`
	SourceURL string          `json:"url"`
	FromCache bool            `json:"fromCache,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// CacheEntry is one persisted chapter image set. Entries are immutable once
// written; only the navigation links inside Metadata can go stale.
type CacheEntry struct {
	Key      string          `json:"key"`
	Images   []Image         `json:"images"`
	Metadata ChapterMetadata `json:"metadata"`
}

// CanonicalChapterKey reduces a chapter URL to its stable identifying form:
// scheme and query stripped, trailing slash removed, host lowercased.
func CanonicalChapterKey(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.TrimSpace(rawURL), "/")
	}
	return strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
}
