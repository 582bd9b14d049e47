package domain

import (
	"sort"
	"time"
)

// ChapterSummary is one row of a title's chapter list.
type ChapterSummary struct {
	ID           string   `json:"id"`
	Number       float64  `json:"number"`
	URL          string   `json:"url"`
	Provider     string   `json:"provider"`
	UploadDate   *string  `json:"uploadDate"`   // ISO 8601, nil when unknown
	RelativeTime *string  `json:"relativeTime"` // site's "3d" style fragment
}

// MangaDetails is the full detail-page record for one title.
type MangaDetails struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	AltTitles        []string         `json:"altTitles"`
	Synopsis         string           `json:"synopsis"`
	Thumbnail        string           `json:"thumbnail"`
	Authors          []string         `json:"author"`
	Artists          []string         `json:"artist"`
	Genres           []string         `json:"genres"`
	Themes           []string         `json:"themes"`
	Demographics     []string         `json:"demographic"`
	OriginalLanguage string           `json:"originalLanguage"`
	Status           string           `json:"status"`
	MangaType        string           `json:"mangaType"`
	LatestChapter    float64          `json:"latestChapter"`
	TotalChapters    int              `json:"totalChapters"`
	Chapters         []ChapterSummary `json:"chapters"`
}

// MangaSummary is the lightweight homepage card record.
type MangaSummary struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Thumbnail     string  `json:"thumbnail"`
	LatestChapter float64 `json:"latestChapter"`
	URL           string  `json:"url"`
}

// StoredTitle is what the title library persists per manga.
type StoredTitle struct {
	MangaID       string
	Title         string
	TotalChapters int
	AutoUpdate    bool
	Details       *MangaDetails
	UpdatedAt     time.Time
}

// SortChapters orders a chapter list newest first: descending by number,
// ties broken by descending id. Clients index by position, so the order
// must be deterministic.
func SortChapters(chapters []ChapterSummary) {
	sort.SliceStable(chapters, func(i, j int) bool {
		if chapters[i].Number != chapters[j].Number {
			return chapters[i].Number > chapters[j].Number
		}
		return chapters[i].ID > chapters[j].ID
	})
}

// MangaTypeForLanguage maps a title's original language to its common
// publication type. Used when the detail page has no explicit type link.
func MangaTypeForLanguage(language string) string {
	switch language {
	case "Korean", "korean", "ko":
		return "Manhwa"
	case "Chinese", "chinese", "zh":
		return "Manhua"
	case "Japanese", "japanese", "ja":
		return "Manga"
	default:
		return "Unknown"
	}
}
