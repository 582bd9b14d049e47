package updater

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"comix-sync/internal/config"
	"comix-sync/internal/domain"
	"comix-sync/internal/logger"
	"comix-sync/internal/scraper"

	"github.com/pkg/errors"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Config: &domain.Config{
			UpdateIntervalHours:  24,
			TitleDelayMinSeconds: 0,
			TitleDelayMaxSeconds: 0,
		},
	}
}

type fakeLibrary struct {
	mu     sync.Mutex
	titles []domain.StoredTitle
	saved  map[string]*domain.MangaDetails
	lists  int
	err    error
}

func newFakeLibrary(titles ...domain.StoredTitle) *fakeLibrary {
	return &fakeLibrary{titles: titles, saved: make(map[string]*domain.MangaDetails)}
}

func (f *fakeLibrary) ListAutoUpdateTitles() ([]domain.StoredTitle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return f.titles, f.err
}

func (f *fakeLibrary) SaveTitleDetails(mangaID string, details *domain.MangaDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[mangaID] = details
	return nil
}

type fakeDetails struct {
	mu      sync.Mutex
	results map[string]scraper.MangaDetailsResult
	block   chan struct{} // when set, GetMangaDetails waits on it
	calls   int
}

func (f *fakeDetails) GetMangaDetails(_ context.Context, mangaID string) scraper.MangaDetailsResult {
	f.mu.Lock()
	f.calls++
	block := f.block
	result := f.results[mangaID]
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return result
}

type fakeSyncer struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeSyncer) ScrapeChapterWithHint(_ context.Context, chapterURL, _ string) domain.ChapterScrapeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, chapterURL)
	return domain.ChapterScrapeResult{Success: true, SourceURL: chapterURL}
}

type fakeNotifier struct {
	mu       sync.Mutex
	chapters []string
	errors   int
	resolved int
}

func (f *fakeNotifier) SendNewChapterNotification(_ string, chapter domain.ChapterSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chapters = append(f.chapters, chapter.URL)
	return nil
}

func (f *fakeNotifier) SendErrorNotification(_ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors++
	return nil
}

func (f *fakeNotifier) SendResolvedNotification() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved++
	return nil
}

func detailsWithChapters(id, title string, numbers ...float64) scraper.MangaDetailsResult {
	chapters := make([]domain.ChapterSummary, 0, len(numbers))
	for _, n := range numbers {
		chapters = append(chapters, domain.ChapterSummary{
			ID:       fmt.Sprintf("1-chapter-%g", n),
			Number:   n,
			URL:      fmt.Sprintf("https://comix.to/title/%s/1-chapter-%g", id, n),
			Provider: "Asura",
		})
	}
	domain.SortChapters(chapters)
	return scraper.MangaDetailsResult{
		Success: true,
		Data: &domain.MangaDetails{
			ID:            id,
			Title:         title,
			Chapters:      chapters,
			TotalChapters: len(chapters),
		},
	}
}

func newTestUpdater(library *fakeLibrary, details *fakeDetails, syncer *fakeSyncer, notifier Notifier) *AutoUpdater {
	u := New(logger.Mock(), testConfig(), library, details, syncer, notifier)
	u.delay = func() {}
	return u
}

func TestTriggerUpdateSyncsNewChapters(t *testing.T) {
	library := newFakeLibrary(domain.StoredTitle{MangaID: "solo-max", Title: "Solo Max", TotalChapters: 2, AutoUpdate: true})

	fresh := scraper.MangaDetailsResult{
		Success: true,
		Data: &domain.MangaDetails{
			ID:    "solo-max",
			Title: "Solo Max",
			Chapters: []domain.ChapterSummary{
				{ID: "1-chapter-4", Number: 4, URL: "https://comix.to/title/solo-max/1-chapter-4", Provider: "Asura"},
				{ID: "1-chapter-3", Number: 3, URL: "https://comix.to/title/solo-max/1-chapter-3", Provider: "Asura"},
				{ID: "1-chapter-2", Number: 2, URL: "https://comix.to/title/solo-max/1-chapter-2", Provider: "Asura"},
				{ID: "1-chapter-1", Number: 1, URL: "https://comix.to/title/solo-max/1-chapter-1", Provider: "Asura"},
			},
			TotalChapters: 4,
		},
	}

	details := &fakeDetails{results: map[string]scraper.MangaDetailsResult{"solo-max": fresh}}
	syncer := &fakeSyncer{}
	notifier := &fakeNotifier{}

	u := newTestUpdater(library, details, syncer, notifier)
	u.TriggerUpdate(context.Background())

	if library.saved["solo-max"] == nil {
		t.Fatal("expected details to be persisted")
	}

	// two new chapters, newest first
	if len(syncer.urls) != 2 {
		t.Fatalf("expected 2 chapter syncs, got %d: %v", len(syncer.urls), syncer.urls)
	}
	if syncer.urls[0] != "https://comix.to/title/solo-max/1-chapter-4" {
		t.Fatalf("first synced url = %q", syncer.urls[0])
	}
	if syncer.urls[1] != "https://comix.to/title/solo-max/1-chapter-3" {
		t.Fatalf("second synced url = %q", syncer.urls[1])
	}

	if len(notifier.chapters) != 2 {
		t.Fatalf("expected 2 chapter notifications, got %d", len(notifier.chapters))
	}
	if notifier.errors != 0 {
		t.Fatalf("expected no error notifications, got %d", notifier.errors)
	}
}

func TestTriggerUpdateNoNewChapters(t *testing.T) {
	library := newFakeLibrary(domain.StoredTitle{MangaID: "solo-max", Title: "Solo Max", TotalChapters: 3, AutoUpdate: true})
	details := &fakeDetails{results: map[string]scraper.MangaDetailsResult{
		"solo-max": detailsWithChapters("solo-max", "Solo Max", 1, 2, 3),
	}}
	syncer := &fakeSyncer{}

	u := newTestUpdater(library, details, syncer, &fakeNotifier{})
	u.TriggerUpdate(context.Background())

	if len(syncer.urls) != 0 {
		t.Fatalf("expected no chapter syncs, got %v", syncer.urls)
	}
	if library.saved["solo-max"] == nil {
		t.Fatal("details must still be persisted on a no-change run")
	}
}

func TestTriggerUpdateSkipsWhenRunning(t *testing.T) {
	library := newFakeLibrary(domain.StoredTitle{MangaID: "solo-max", TotalChapters: 0, AutoUpdate: true})
	block := make(chan struct{})
	details := &fakeDetails{
		results: map[string]scraper.MangaDetailsResult{"solo-max": detailsWithChapters("solo-max", "Solo Max")},
		block:   block,
	}

	u := newTestUpdater(library, details, &fakeSyncer{}, nil)

	started := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		close(started)
		u.TriggerUpdate(context.Background())
		close(finished)
	}()

	<-started
	// wait until the first batch is inside the detail scrape
	for {
		details.mu.Lock()
		calls := details.calls
		details.mu.Unlock()
		if calls > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// second trigger must bounce off the in-flight batch
	u.TriggerUpdate(context.Background())

	library.mu.Lock()
	lists := library.lists
	library.mu.Unlock()
	if lists != 1 {
		t.Fatalf("expected 1 list call, got %d", lists)
	}

	close(block)
	<-finished
}

func TestTriggerUpdateFailureDoesNotAbortBatch(t *testing.T) {
	library := newFakeLibrary(
		domain.StoredTitle{MangaID: "broken", TotalChapters: 0, AutoUpdate: true},
		domain.StoredTitle{MangaID: "solo-max", TotalChapters: 0, AutoUpdate: true},
	)
	details := &fakeDetails{results: map[string]scraper.MangaDetailsResult{
		"broken":   {Success: false, Error: "site said no"},
		"solo-max": detailsWithChapters("solo-max", "Solo Max", 1),
	}}
	syncer := &fakeSyncer{}
	notifier := &fakeNotifier{}

	u := newTestUpdater(library, details, syncer, notifier)
	u.TriggerUpdate(context.Background())

	if library.saved["solo-max"] == nil {
		t.Fatal("healthy title must still update when an earlier one fails")
	}
	if len(syncer.urls) != 1 {
		t.Fatalf("expected 1 chapter sync, got %v", syncer.urls)
	}
	if notifier.errors != 1 {
		t.Fatalf("expected 1 error notification, got %d", notifier.errors)
	}

	// a clean follow-up run announces recovery
	details.mu.Lock()
	details.results["broken"] = detailsWithChapters("broken", "Broken", 1)
	details.mu.Unlock()

	u.TriggerUpdate(context.Background())
	if notifier.resolved != 1 {
		t.Fatalf("expected 1 resolved notification, got %d", notifier.resolved)
	}
}

func TestTriggerUpdateListError(t *testing.T) {
	library := newFakeLibrary()
	library.err = errors.New("db closed")
	notifier := &fakeNotifier{}

	u := newTestUpdater(library, &fakeDetails{}, &fakeSyncer{}, notifier)
	u.TriggerUpdate(context.Background())

	if notifier.errors != 1 {
		t.Fatalf("expected 1 error notification, got %d", notifier.errors)
	}
}
