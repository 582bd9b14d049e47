package updater

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"comix-sync/internal/config"
	"comix-sync/internal/domain"
	"comix-sync/internal/logger"
	"comix-sync/internal/scraper"

	"github.com/rs/zerolog"
)

// TitleLibrary is the slice of the store the updater needs.
type TitleLibrary interface {
	ListAutoUpdateTitles() ([]domain.StoredTitle, error)
	SaveTitleDetails(mangaID string, details *domain.MangaDetails) error
}

// DetailScraper re-scrapes one title's details and chapter list.
type DetailScraper interface {
	GetMangaDetails(ctx context.Context, mangaID string) scraper.MangaDetailsResult
}

// ChapterSyncer warms the chapter cache for one chapter URL.
type ChapterSyncer interface {
	ScrapeChapterWithHint(ctx context.Context, chapterURL, providerHint string) domain.ChapterScrapeResult
}

// Notifier announces sync outcomes. Optional; a nil notifier disables it.
type Notifier interface {
	SendNewChapterNotification(title string, chapter domain.ChapterSummary) error
	SendErrorNotification(error string) error
	SendResolvedNotification() error
}

// AutoUpdater periodically re-scrapes every tracked title and pre-warms the
// chapter cache for anything new, pacing itself between titles so the site
// sees browsing-speed traffic rather than a burst.
type AutoUpdater struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	library  TitleLibrary
	details  DetailScraper
	chapters ChapterSyncer
	notifier Notifier

	running  atomic.Bool
	errored  atomic.Bool
	done     chan struct{}
	stopped  chan struct{}

	// injectable for tests, defaults to a randomized pause
	delay func()
}

func New(log logger.Logger, cfg *config.AppConfig, library TitleLibrary, details DetailScraper, chapters ChapterSyncer, notifier Notifier) *AutoUpdater {
	u := &AutoUpdater{
		log:      log.With().Str("module", "updater").Logger(),
		cfg:      cfg,
		library:  library,
		details:  details,
		chapters: chapters,
		notifier: notifier,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	u.delay = u.randomDelay
	return u
}

// Start launches the update loop. The interval comes from the configured
// hours, with the minutes setting taking precedence when set.
func (u *AutoUpdater) Start() {
	interval := time.Duration(u.cfg.Config.UpdateIntervalHours) * time.Hour
	if u.cfg.Config.UpdateIntervalMinutes > 0 {
		interval = time.Duration(u.cfg.Config.UpdateIntervalMinutes) * time.Minute
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	u.log.Info().Msgf("starting auto updater, interval %s", interval)

	go func() {
		defer close(u.stopped)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				u.runUpdate(context.Background())
			case <-u.done:
				return
			}
		}
	}()
}

// Stop shuts the loop down and waits for it to exit. A tick in flight is
// not interrupted.
func (u *AutoUpdater) Stop() {
	close(u.done)
	<-u.stopped
}

// TriggerUpdate runs one update batch immediately. Skips when a batch is
// already in flight.
func (u *AutoUpdater) TriggerUpdate(ctx context.Context) {
	u.runUpdate(ctx)
}

func (u *AutoUpdater) runUpdate(ctx context.Context) {
	if !u.running.CompareAndSwap(false, true) {
		u.log.Info().Msg("update already running, skipping this tick")
		return
	}
	defer u.running.Store(false)

	titles, err := u.library.ListAutoUpdateTitles()
	if err != nil {
		u.log.Error().Err(err).Msg("error listing tracked titles")
		u.reportFailure(fmt.Sprintf("could not list tracked titles: %v", err))
		return
	}
	if len(titles) == 0 {
		u.log.Debug().Msg("no titles flagged for auto update")
		return
	}

	u.log.Info().Msgf("updating %d tracked titles", len(titles))

	failures := 0
	for i, title := range titles {
		if err := ctx.Err(); err != nil {
			u.log.Warn().Msg("update batch cancelled")
			return
		}
		if i > 0 {
			u.delay()
		}

		if err := u.updateTitle(ctx, title); err != nil {
			u.log.Error().Err(err).Str("manga", title.MangaID).Msg("error updating title")
			failures++
		}
	}

	if failures > 0 {
		u.reportFailure(fmt.Sprintf("%d of %d titles failed to update", failures, len(titles)))
		return
	}
	u.reportRecovered()
}

func (u *AutoUpdater) updateTitle(ctx context.Context, title domain.StoredTitle) error {
	result := u.details.GetMangaDetails(ctx, title.MangaID)
	if !result.Success || result.Data == nil {
		return fmt.Errorf("detail scrape failed: %s", result.Error)
	}

	fresh := result.Data
	newCount := fresh.TotalChapters - title.TotalChapters

	if err := u.library.SaveTitleDetails(title.MangaID, fresh); err != nil {
		return err
	}

	if newCount <= 0 {
		u.log.Trace().Str("manga", title.MangaID).Msg("no new chapters")
		return nil
	}
	if newCount > len(fresh.Chapters) {
		newCount = len(fresh.Chapters)
	}

	u.log.Info().Msgf("found %d new chapters for %s", newCount, fresh.Title)

	// chapters are sorted newest first, the head of the list is the delta
	for _, chapter := range fresh.Chapters[:newCount] {
		scraped := u.chapters.ScrapeChapterWithHint(ctx, chapter.URL, chapter.Provider)
		if !scraped.Success {
			u.log.Error().Msgf("error warming cache for %s: %s", chapter.URL, scraped.Error)
			continue
		}
		if scraped.FromCache {
			continue
		}

		if u.notifier != nil {
			if err := u.notifier.SendNewChapterNotification(fresh.Title, chapter); err != nil {
				u.log.Error().Err(err).Msg("error sending chapter notification")
			}
		}
	}

	return nil
}

// randomDelay pauses between titles so consecutive scrapes do not hammer
// the site.
func (u *AutoUpdater) randomDelay() {
	min := u.cfg.Config.TitleDelayMinSeconds
	max := u.cfg.Config.TitleDelayMaxSeconds
	if max < min {
		max = min
	}

	pause := time.Duration(min) * time.Second
	if max > min {
		pause += time.Duration(rand.Intn(max-min)) * time.Second
	}

	u.log.Trace().Msgf("sleeping %s before next title", pause)
	time.Sleep(pause)
}

func (u *AutoUpdater) reportFailure(msg string) {
	if u.notifier != nil && !u.errored.Load() {
		if err := u.notifier.SendErrorNotification(msg); err != nil {
			u.log.Error().Err(err).Msg("error sending error notification")
		}
	}
	u.errored.Store(true)
}

func (u *AutoUpdater) reportRecovered() {
	if u.errored.CompareAndSwap(true, false) && u.notifier != nil {
		if err := u.notifier.SendResolvedNotification(); err != nil {
			u.log.Error().Err(err).Msg("error sending resolved notification")
		}
	}
}
