package scraper

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"

	"comix-sync/internal/config"
	"comix-sync/internal/domain"
	"comix-sync/internal/logger"
	"comix-sync/internal/storage"
	"comix-sync/internal/utils"

	"github.com/rs/zerolog"
)

var chapterPathRe = regexp.MustCompile(`/title/([^/]+)/([^/?#]+)`)

// ChapterCache is the persistence surface the chapter scraper needs.
type ChapterCache interface {
	FindChapter(key string) (*domain.CacheEntry, error)
	SaveChapter(key string, images []domain.Image, metadata domain.ChapterMetadata) error
}

// ChapterScraper turns a chapter URL into a durable image set. Cached
// chapters are served without touching the site; everything else runs
// through the extraction strategy chain, gets normalized and, when a
// storage backend is configured, re-hosted page by page.
type ChapterScraper struct {
	log        zerolog.Logger
	cfg        *config.AppConfig
	cache      ChapterCache
	cookies    CookieSource
	store      storage.ObjectStore
	strategies []Strategy
}

func NewChapterScraper(log logger.Logger, cfg *config.AppConfig, cache ChapterCache, cookies CookieSource, store storage.ObjectStore, strategies []Strategy) *ChapterScraper {
	return &ChapterScraper{
		log:        log.With().Str("module", "scraper").Logger(),
		cfg:        cfg,
		cache:      cache,
		cookies:    cookies,
		store:      store,
		strategies: strategies,
	}
}

func (s *ChapterScraper) ScrapeChapter(ctx context.Context, chapterURL string) domain.ChapterScrapeResult {
	return s.ScrapeChapterWithHint(ctx, chapterURL, "")
}

// ScrapeChapterWithHint scrapes a chapter with an optional provider hint
// from the caller, typically the provider shown next to the chapter in a
// title's chapter list.
func (s *ChapterScraper) ScrapeChapterWithHint(ctx context.Context, chapterURL, providerHint string) domain.ChapterScrapeResult {
	key := domain.CanonicalChapterKey(chapterURL)

	if entry, err := s.cache.FindChapter(key); err != nil {
		s.log.Error().Err(err).Str("chapter", key).Msg("error reading chapter cache")
	} else if entry != nil && len(entry.Images) > 0 {
		s.log.Debug().Str("chapter", key).Msg("serving chapter from cache")
		return domain.ChapterScrapeResult{
			Success:   true,
			Images:    entry.Images,
			Metadata:  entry.Metadata,
			SourceURL: chapterURL,
			FromCache: true,
		}
	}

	// a missing session is not fatal, the direct fetch may still pass
	cookieHeader, err := s.cookies.CookieString(ctx, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not obtain session cookies, scraping without them")
		cookieHeader = ""
	}

	images, hydration, meta := s.runStrategies(ctx, chapterURL, cookieHeader)
	if len(images) == 0 {
		s.log.Error().Str("chapter", key).Msg("every extraction strategy came up empty")
		return domain.ChapterScrapeResult{
			Success:   false,
			SourceURL: chapterURL,
			Error:     "extraction failed",
		}
	}

	metadata := s.normalizeMetadata(chapterURL, providerHint, hydration, meta)

	// entries are immutable once written, so only a fully durable image set
	// is cached; a batch with failed pages stays uncached and gets retried
	uploaded, failed := s.uploadImages(ctx, images, metadata)
	if s.store.Enabled() && failed == 0 {
		if err := s.cache.SaveChapter(key, uploaded, metadata); err != nil {
			s.log.Error().Err(err).Str("chapter", key).Msg("error caching chapter")
		}
	}

	return domain.ChapterScrapeResult{
		Success:   true,
		Images:    uploaded,
		Metadata:  metadata,
		SourceURL: chapterURL,
	}
}

// runStrategies walks the chain cheapest first and returns the first result
// that clears its strategy's quality gate. A hydration payload with images
// short-circuits the chain outright since structured data beats heuristics.
// When no attempt clears a gate the largest image set seen wins.
func (s *ChapterScraper) runStrategies(ctx context.Context, chapterURL, cookieHeader string) ([]domain.Image, *HydrationPayload, DOMMetadata) {
	var (
		bestImages    []domain.Image
		bestHydration *HydrationPayload
		bestMeta      DOMMetadata
	)

	for _, strategy := range s.strategies {
		result, err := strategy.Attempt(ctx, chapterURL, cookieHeader)
		if err != nil {
			s.log.Warn().Err(err).Msgf("strategy %s failed for %s", strategy.Name(), chapterURL)
			continue
		}

		hydration := TryParseHydrationPayload(result.HTML)
		if hydration != nil && len(hydration.Images) > 0 {
			s.log.Debug().Msgf("strategy %s yielded hydration payload with %d images", strategy.Name(), len(hydration.Images))
			return hydration.Images, hydration, result.Metadata
		}

		if len(result.Images) >= strategy.MinImages() {
			s.log.Debug().Msgf("strategy %s cleared its gate with %d images", strategy.Name(), len(result.Images))
			return result.Images, hydration, result.Metadata
		}

		if len(result.Images) > len(bestImages) {
			bestImages = result.Images
			bestHydration = hydration
			bestMeta = result.Metadata
		}
	}

	return bestImages, bestHydration, bestMeta
}

// normalizeMetadata merges the metadata sources by precedence: hydration
// payload, then the caller's hint, then the visible DOM. "Official" from a
// weaker source never overrides a named scanlator from a stronger one.
func (s *ChapterScraper) normalizeMetadata(chapterURL, providerHint string, hydration *HydrationPayload, meta DOMMetadata) domain.ChapterMetadata {
	mangaID, chapterID := "", ""
	if m := chapterPathRe.FindStringSubmatch(chapterURL); m != nil {
		mangaID, chapterID = m[1], m[2]
	}

	metadata := domain.ChapterMetadata{
		Title:          meta.Title,
		ChapterLabel:   meta.ChapterLabel,
		Provider:       resolveProvider(hydrationProvider(hydration), providerHint, meta.Provider),
		MangaID:        mangaID,
		ChapterID:      chapterID,
		NextChapterURL: meta.NextURL,
		PrevChapterURL: meta.PrevURL,
	}

	if hydration != nil {
		if hydration.Title != "" {
			metadata.Title = hydration.Title
		}
		if hydration.ChapterLabel != "" {
			metadata.ChapterLabel = hydration.ChapterLabel
		}
		if hydration.NextURL != "" {
			metadata.NextChapterURL = hydration.NextURL
		}
		if hydration.PrevURL != "" {
			metadata.PrevChapterURL = hydration.PrevURL
		}
		metadata.ChapterNumber = hydration.ChapterNumber
	}

	if metadata.ChapterNumber == nil {
		metadata.ChapterNumber = utils.ParseChapterNumber(metadata.ChapterLabel)
	}
	if metadata.ChapterNumber == nil {
		metadata.ChapterNumber = utils.ChapterNumberFromURL(chapterURL)
	}

	return metadata
}

func hydrationProvider(h *HydrationPayload) string {
	if h == nil {
		return ""
	}
	return h.Provider
}

// resolveProvider picks the provider name by source strength. The site
// labels many chapters "Official" or "Unknown" generically, so a more
// specific name from a weaker source still wins over those.
func resolveProvider(structured, hint, domText string) string {
	candidates := []string{structured, hint, domText}

	picked := ""
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if picked == "" {
			picked = c
			continue
		}
		if genericProvider(picked) && !genericProvider(c) {
			picked = c
		}
	}

	if picked == "" {
		return "Unknown"
	}
	return picked
}

func genericProvider(name string) bool {
	return strings.EqualFold(name, "Official") || strings.EqualFold(name, "Unknown")
}

// uploadImages re-hosts every page through the configured store with
// bounded concurrency, writing results into place so reading order is
// preserved. A failed page keeps its ephemeral source URL.
func (s *ChapterScraper) uploadImages(ctx context.Context, images []domain.Image, metadata domain.ChapterMetadata) ([]domain.Image, int) {
	if !s.store.Enabled() {
		return images, 0
	}

	folder := fmt.Sprintf("/%s/%s/%s",
		utils.Slugify(metadata.MangaID),
		utils.Slugify(metadata.Provider),
		utils.Slugify(metadata.ChapterID))

	uploaded := make([]domain.Image, len(images))
	copy(uploaded, images)

	limit := s.cfg.Config.UploadBatchSize
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for i := range uploaded {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			img := uploaded[i]
			fileName := fmt.Sprintf("page-%02d%s", img.PageIndex+1, imageExt(img.URL))

			durable, err := s.store.Upload(ctx, img.URL, fileName, folder)
			if err != nil {
				s.log.Error().Err(err).Msgf("error uploading page %d, keeping source url", img.PageIndex+1)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			uploaded[i].URL = durable
		}(i)
	}
	wg.Wait()

	if failed > 0 {
		s.log.Warn().Msgf("%d/%d page uploads failed for %s", failed, len(uploaded), metadata.ChapterID)
	}

	return uploaded, failed
}

func imageExt(rawURL string) string {
	ext := path.Ext(strings.SplitN(rawURL, "?", 2)[0])
	if ext == "" {
		return ".webp"
	}
	return ext
}
