package scraper

import (
	"context"
	"fmt"
	"testing"

	"comix-sync/internal/domain"
)

type fakePager struct {
	pages map[int][]domain.ChapterSummary
	calls int
}

func (f *fakePager) FetchChapterPage(_ context.Context, _ string, page int) ([]domain.ChapterSummary, error) {
	f.calls++
	return f.pages[page], nil
}

// repeatingPager returns the same rows on every page, the way a provider
// that ignores the page parameter behaves.
type repeatingPager struct {
	rows  []domain.ChapterSummary
	calls int
}

func (f *repeatingPager) FetchChapterPage(_ context.Context, _ string, _ int) ([]domain.ChapterSummary, error) {
	f.calls++
	return f.rows, nil
}

func summaries(ids ...string) []domain.ChapterSummary {
	rows := make([]domain.ChapterSummary, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, domain.ChapterSummary{ID: id})
	}
	return rows
}

func TestCollectChaptersStopsAfterZeroPages(t *testing.T) {
	pager := &repeatingPager{rows: summaries("a", "b", "c", "d", "e", "f", "g", "h", "i", "j")}

	chapters, err := collectChapters(context.Background(), pager, "solo-max", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(chapters) != 10 {
		t.Fatalf("expected 10 unique chapters, got %d", len(chapters))
	}
	// page 1 adds everything, then three empty-delta pages end the walk
	if pager.calls != 4 {
		t.Fatalf("expected 4 page fetches, got %d", pager.calls)
	}
}

func TestCollectChaptersHonorsPageCeiling(t *testing.T) {
	// every page yields something new, only the ceiling stops the walk
	pages := make(map[int][]domain.ChapterSummary)
	for p := 1; p <= 100; p++ {
		pages[p] = summaries(fmt.Sprintf("ch-%03d", p))
	}
	pager := &fakePager{pages: pages}

	chapters, err := collectChapters(context.Background(), pager, "solo-max", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pager.calls != 50 {
		t.Fatalf("expected 50 page fetches, got %d", pager.calls)
	}
	if len(chapters) != 50 {
		t.Fatalf("expected 50 chapters, got %d", len(chapters))
	}
}

func TestCollectChaptersDedupesAcrossPages(t *testing.T) {
	pager := &fakePager{pages: map[int][]domain.ChapterSummary{
		1: summaries("a", "b"),
		2: summaries("b", "c"),
	}}

	chapters, err := collectChapters(context.Background(), pager, "solo-max", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(chapters) != 3 {
		t.Fatalf("expected 3 unique chapters, got %d", len(chapters))
	}
}

func TestDecodeAPIChapters(t *testing.T) {
	// bare array form
	body := []byte(`[
		{"id": "1-chapter-2", "number": 2, "provider": "Asura", "date": "2024-06-15T12:30:00+02:00"},
		{"id": "1-chapter-1", "chapter": "Chapter 1", "date": "last week"},
		{"id": ""}
	]`)

	chapters, err := decodeAPIChapters(body, "https://comix.to", "solo-max")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(chapters))
	}
	if chapters[0].Number != 2 || chapters[0].Provider != "Asura" {
		t.Fatalf("first row = %+v", chapters[0])
	}
	if chapters[1].Number != 1 {
		t.Fatalf("label fallback number = %v", chapters[1].Number)
	}
	if chapters[1].Provider != "Unknown" {
		t.Fatalf("missing provider = %q", chapters[1].Provider)
	}
	if chapters[1].URL != "https://comix.to/title/solo-max/1-chapter-1" {
		t.Fatalf("synthesized url = %q", chapters[1].URL)
	}
	if chapters[0].UploadDate == nil || *chapters[0].UploadDate != "2024-06-15T10:30:00Z" {
		t.Fatalf("normalized date = %v", chapters[0].UploadDate)
	}
	// an unparseable date passes through as-is
	if chapters[1].UploadDate == nil || *chapters[1].UploadDate != "last week" {
		t.Fatalf("raw date = %v", chapters[1].UploadDate)
	}

	// envelope form
	body = []byte(`{"chapters": [{"id": "1-chapter-3", "number": 3}]}`)
	chapters, err = decodeAPIChapters(body, "https://comix.to", "solo-max")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chapters) != 1 || chapters[0].Number != 3 {
		t.Fatalf("envelope decode = %+v", chapters)
	}

	// anything else is an error so the render fallback takes over
	if _, err := decodeAPIChapters([]byte(`<html>`), "https://comix.to", "solo-max"); err == nil {
		t.Fatal("expected error for non-json body")
	}
}

func TestParseChapterRows(t *testing.T) {
	html := `<html><body><ul>
<li>
  <a href="/title/solo-max/1-chapter-2">Chapter 2</a>
  <a href="/scanlator/asura">Asura</a>
  <span>3d</span>
</li>
<li>
  <a href="/title/solo-max/1-chapter-1">Chapter 1</a>
</li>
<li>
  <a href="/title/solo-max">About this title</a>
</li>
</ul></body></html>`

	rows := parseChapterRows(html, "https://comix.to", "solo-max")

	if len(rows) != 2 {
		t.Fatalf("expected 2 chapter rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].ID != "1-chapter-2" || rows[0].Number != 2 {
		t.Fatalf("first row = %+v", rows[0])
	}
	if rows[0].Provider != "Asura" {
		t.Fatalf("provider = %q", rows[0].Provider)
	}
	if rows[0].RelativeTime == nil || *rows[0].RelativeTime != "3d" {
		t.Fatalf("relative time = %v", rows[0].RelativeTime)
	}
	if rows[0].UploadDate == nil {
		t.Fatal("expected resolved upload date")
	}
	if rows[0].URL != "https://comix.to/title/solo-max/1-chapter-2" {
		t.Fatalf("url = %q", rows[0].URL)
	}
	if rows[1].Provider != "Unknown" {
		t.Fatalf("bare row provider = %q", rows[1].Provider)
	}
}

func TestParseDetails(t *testing.T) {
	html := `<html><body>
<h1 class="title">Solo Max-Level Newbie</h1>
<h3 class="subtitle">나 혼자 만렙 뉴비 / Na Honja Manleb Nyubi</h3>
<div class="poster"><img src="/covers/solo-max.webp"></div>
<div class="status">Releasing: Ongoing</div>
<div class="description"><div class="content"><p>First paragraph.</p><p>Second paragraph.</p></div></div>
<div id="metadata">
  <div><strong>Authors:</strong> <a>WAN.Z</a> <a>Maslow</a></div>
  <div><strong>Artists:</strong> <a>Swingbat</a></div>
  <div><strong>Genres:</strong> <a>Action</a> <a>Fantasy</a></div>
  <div><strong>Demographic:</strong> <a>Shounen</a></div>
  <div><strong>Original Language:</strong> <span class="value">Korean</span></div>
</div>
</body></html>`

	ts := &TitleScraper{cfg: testConfig()}
	details := ts.parseDetails(html, "solo-max")

	if details.Title != "Solo Max-Level Newbie" {
		t.Fatalf("title = %q", details.Title)
	}
	if len(details.AltTitles) != 2 {
		t.Fatalf("alt titles = %v", details.AltTitles)
	}
	if details.Synopsis != "First paragraph.\nSecond paragraph." {
		t.Fatalf("synopsis = %q", details.Synopsis)
	}
	if details.Thumbnail != "https://comix.to/covers/solo-max.webp" {
		t.Fatalf("thumbnail = %q", details.Thumbnail)
	}
	if details.Status != "Ongoing" {
		t.Fatalf("status = %q", details.Status)
	}
	if len(details.Authors) != 2 || details.Authors[0] != "WAN.Z" {
		t.Fatalf("authors = %v", details.Authors)
	}
	if len(details.Genres) != 2 {
		t.Fatalf("genres = %v", details.Genres)
	}
	if details.OriginalLanguage != "Korean" {
		t.Fatalf("language = %q", details.OriginalLanguage)
	}
	// no explicit type link, the language mapping decides
	if details.MangaType != "Manhwa" {
		t.Fatalf("manga type = %q", details.MangaType)
	}
}
