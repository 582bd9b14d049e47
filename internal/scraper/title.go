package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"comix-sync/internal/browser"
	"comix-sync/internal/config"
	"comix-sync/internal/domain"
	"comix-sync/internal/logger"
	"comix-sync/internal/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	statusRe       = regexp.MustCompile(`(?i)(ongoing|completed|hiatus|cancelled|dropped)`)
	relativeFragRe = regexp.MustCompile(`^\d+(?:mo|m|h|d|w|y)$`)
)

// consecutive pages yielding nothing new before pagination gives up
const zeroPageLimit = 3

// MangaDetailsResult is the envelope for a detail scrape. Failures are data,
// not errors; callers always get a result they can serialize.
type MangaDetailsResult struct {
	Success bool                 `json:"success"`
	Data    *domain.MangaDetails `json:"data,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// chapterPager fetches one page of a title's chapter list. Two
// implementations exist: the site's JSON API and a rendered-page fallback.
type chapterPager interface {
	FetchChapterPage(ctx context.Context, mangaID string, page int) ([]domain.ChapterSummary, error)
}

// TitleScraper scrapes a title's detail page and full chapter list.
type TitleScraper struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	cookies CookieSource
	direct  Strategy
	render  Strategy

	api    chapterPager
	paged  chapterPager
}

func NewTitleScraper(log logger.Logger, cfg *config.AppConfig, cookies CookieSource, direct, render Strategy, mgr *browser.Manager) *TitleScraper {
	child := log.With().Str("module", "scraper").Logger()
	return &TitleScraper{
		log:     child,
		cfg:     cfg,
		cookies: cookies,
		direct:  direct,
		render:  render,
		api: &apiPager{
			log: child,
			cfg: cfg,
			client: &http.Client{
				Timeout: cfg.FetchTimeout(),
			},
		},
		paged: &renderPager{
			log:     child,
			cfg:     cfg,
			browser: mgr,
		},
	}
}

// GetMangaDetails scrapes one title end to end: detail metadata plus the
// complete paginated chapter list. Accepts a bare title id or a full title
// page URL.
func (t *TitleScraper) GetMangaDetails(ctx context.Context, mangaID string) MangaDetailsResult {
	if idx := strings.Index(mangaID, "/title/"); idx != -1 {
		mangaID = strings.Trim(mangaID[idx+len("/title/"):], "/")
		if slash := strings.IndexByte(mangaID, '/'); slash != -1 {
			mangaID = mangaID[:slash]
		}
	}

	pageURL := fmt.Sprintf("%s/title/%s", strings.TrimRight(t.cfg.Config.SiteURL, "/"), mangaID)

	cookieHeader, err := t.cookies.CookieString(ctx, false)
	if err != nil {
		t.log.Warn().Err(err).Msg("could not obtain session cookies, scraping without them")
		cookieHeader = ""
	}

	html, err := t.fetchPage(ctx, pageURL, cookieHeader)
	if err != nil {
		t.log.Error().Err(err).Str("manga", mangaID).Msg("error fetching title detail page")
		return MangaDetailsResult{Success: false, Error: "could not load title page"}
	}

	details := t.parseDetails(html, mangaID)
	if details.Title == "" {
		return MangaDetailsResult{Success: false, Error: "title page had no parseable metadata"}
	}

	chapters, err := collectChapters(ctx, t.api, mangaID, t.cfg.Config.MaxChapterPages)
	if err != nil || len(chapters) == 0 {
		if err != nil {
			t.log.Debug().Err(err).Str("manga", mangaID).Msg("chapter api unavailable, rendering pagination")
		}
		chapters, err = collectChapters(ctx, t.paged, mangaID, t.cfg.Config.MaxChapterPages)
		if err != nil {
			t.log.Error().Err(err).Str("manga", mangaID).Msg("error walking chapter pages")
		}
	}

	domain.SortChapters(chapters)
	details.Chapters = chapters
	details.TotalChapters = len(chapters)
	if len(chapters) > 0 {
		details.LatestChapter = chapters[0].Number
	}

	return MangaDetailsResult{Success: true, Data: details}
}

// fetchPage loads a page with the cheap path first. The render fallback
// covers detail pages served as client-rendered shells.
func (t *TitleScraper) fetchPage(ctx context.Context, pageURL, cookieHeader string) (string, error) {
	result, err := t.direct.Attempt(ctx, pageURL, cookieHeader)
	if err == nil && looksRendered(result.HTML) {
		return result.HTML, nil
	}
	if err != nil {
		t.log.Debug().Err(err).Msgf("direct fetch of %s failed, falling back to render", pageURL)
	}

	result, err = t.render.Attempt(ctx, pageURL, cookieHeader)
	if err != nil {
		return "", err
	}
	return result.HTML, nil
}

// looksRendered rejects empty shells that only carry the app mount point.
func looksRendered(html string) bool {
	return strings.Contains(html, "</h1>") || strings.Contains(html, "metadata")
}

func (t *TitleScraper) parseDetails(html, mangaID string) *domain.MangaDetails {
	details := &domain.MangaDetails{ID: mangaID, MangaType: "Unknown", Status: "Unknown"}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return details
	}

	details.Title = strings.TrimSpace(doc.Find("h1.title").First().Text())
	if details.Title == "" {
		details.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	if subtitle := strings.TrimSpace(doc.Find("h3.subtitle").First().Text()); subtitle != "" {
		for _, alt := range strings.Split(subtitle, " / ") {
			if alt = strings.TrimSpace(alt); alt != "" {
				details.AltTitles = append(details.AltTitles, alt)
			}
		}
	}

	details.Synopsis = synopsisText(doc.Find(".description .content").First())

	if src, ok := doc.Find(".poster img").First().Attr("src"); ok {
		details.Thumbnail = normalizeImageURL(src, t.cfg.Config.SiteURL)
	}

	if m := statusRe.FindString(doc.Find(".status").First().Text()); m != "" {
		details.Status = strings.ToUpper(m[:1]) + strings.ToLower(m[1:])
	}

	t.parseMetadataSections(doc, details)

	if typeLink := strings.TrimSpace(doc.Find(`a[href*='/types/'], a[href*='/type/']`).First().Text()); typeLink != "" {
		details.MangaType = typeLink
	} else {
		details.MangaType = domain.MangaTypeForLanguage(details.OriginalLanguage)
	}

	return details
}

// parseMetadataSections walks the labeled #metadata region. Each section is
// a label followed by links or text values; matching is on the label text
// so reordered sections keep working.
func (t *TitleScraper) parseMetadataSections(doc *goquery.Document, details *domain.MangaDetails) {
	doc.Find("#metadata > div, #metadata .meta-item").Each(func(_ int, s *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(s.Find("strong, b, .label").First().Text()))
		label = strings.TrimRight(label, ":")
		if label == "" {
			return
		}

		values := sectionValues(s)
		if len(values) == 0 {
			return
		}

		switch {
		case strings.HasPrefix(label, "author"):
			details.Authors = values
		case strings.HasPrefix(label, "artist"):
			details.Artists = values
		case strings.HasPrefix(label, "genre"):
			details.Genres = values
		case strings.HasPrefix(label, "theme"):
			details.Themes = values
		case strings.HasPrefix(label, "demographic"):
			details.Demographics = values
		case strings.Contains(label, "language"):
			details.OriginalLanguage = values[0]
		}
	})
}

func sectionValues(s *goquery.Selection) []string {
	var values []string
	s.Find("a, span.value").Each(func(_ int, v *goquery.Selection) {
		if text := strings.TrimSpace(v.Text()); text != "" {
			values = append(values, text)
		}
	})
	if len(values) > 0 {
		return values
	}

	// plain text section, strip the label off the front
	text := strings.TrimSpace(s.Text())
	if label := strings.TrimSpace(s.Find("strong, b, .label").First().Text()); label != "" {
		text = strings.TrimSpace(strings.TrimPrefix(text, label))
		text = strings.TrimSpace(strings.TrimPrefix(text, ":"))
	}
	if text != "" {
		values = append(values, text)
	}
	return values
}

// synopsisText flattens the synopsis markup to plain text while keeping
// paragraph breaks.
func synopsisText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}

	var parts []string
	s.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}
	return strings.TrimSpace(s.Text())
}

// collectChapters walks chapter pages until the pager stops yielding new
// chapters. Providers reorder and repeat rows across pages, so dedupe is by
// chapter id and termination is heuristic: several consecutive pages with
// nothing new, or the hard page ceiling.
func collectChapters(ctx context.Context, pager chapterPager, mangaID string, maxPages int) ([]domain.ChapterSummary, error) {
	if maxPages < 1 {
		maxPages = 50
	}

	seen := make(map[string]struct{})
	var chapters []domain.ChapterSummary
	zeroPages := 0

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return chapters, err
		}

		rows, err := pager.FetchChapterPage(ctx, mangaID, page)
		if err != nil {
			return chapters, err
		}

		added := 0
		for _, row := range rows {
			if row.ID == "" {
				continue
			}
			if _, ok := seen[row.ID]; ok {
				continue
			}
			seen[row.ID] = struct{}{}
			chapters = append(chapters, row)
			added++
		}

		if added == 0 {
			zeroPages++
			if zeroPages >= zeroPageLimit {
				break
			}
			continue
		}
		zeroPages = 0
	}

	return chapters, nil
}

// apiPager reads the site's JSON chapter endpoint. The endpoint is
// undocumented and not always deployed, so any failure just hands control
// to the rendered fallback.
type apiPager struct {
	log    zerolog.Logger
	cfg    *config.AppConfig
	client *http.Client
}

func (p *apiPager) FetchChapterPage(ctx context.Context, mangaID string, page int) ([]domain.ChapterSummary, error) {
	endpoint := fmt.Sprintf("%s/api/title/%s/chapters?page=%d",
		strings.TrimRight(p.cfg.Config.SiteURL, "/"), mangaID, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.cfg.Config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", p.cfg.Config.SiteURL+"/")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("chapter api returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	return decodeAPIChapters(body, p.cfg.Config.SiteURL, mangaID)
}

type apiChapterRow struct {
	ID       string      `json:"id"`
	Number   json.Number `json:"number"`
	Chapter  string      `json:"chapter"`
	URL      string      `json:"url"`
	Provider string      `json:"provider"`
	Date     string      `json:"date"`
}

func decodeAPIChapters(body []byte, siteURL, mangaID string) ([]domain.ChapterSummary, error) {
	var rows []apiChapterRow
	if err := json.Unmarshal(body, &rows); err != nil {
		var envelope struct {
			Chapters []apiChapterRow `json:"chapters"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, errors.Wrap(err, "unrecognized chapter api response")
		}
		rows = envelope.Chapters
	}

	var chapters []domain.ChapterSummary
	for _, row := range rows {
		if row.ID == "" {
			continue
		}

		summary := domain.ChapterSummary{
			ID:       row.ID,
			URL:      row.URL,
			Provider: row.Provider,
		}
		if summary.URL == "" {
			summary.URL = fmt.Sprintf("%s/title/%s/%s", strings.TrimRight(siteURL, "/"), mangaID, row.ID)
		}
		if summary.Provider == "" {
			summary.Provider = "Unknown"
		}
		if n, err := row.Number.Float64(); err == nil && row.Number != "" {
			summary.Number = n
		} else if fromLabel := utils.ParseChapterNumber(row.Chapter); fromLabel != nil {
			summary.Number = *fromLabel
		} else if fromID := utils.ChapterNumberFromURL(row.ID); fromID != nil {
			summary.Number = *fromID
		}
		if row.Date != "" {
			if iso := utils.NormalizeUploadDate(row.Date); iso != nil {
				summary.UploadDate = iso
			} else {
				date := row.Date
				summary.UploadDate = &date
			}
		}

		chapters = append(chapters, summary)
	}

	return chapters, nil
}

// renderPager loads each paginated chapter list page in the shared browser
// and scrapes the rows out of the rendered markup.
type renderPager struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	browser *browser.Manager
}

func (p *renderPager) FetchChapterPage(ctx context.Context, mangaID string, page int) ([]domain.ChapterSummary, error) {
	tabCtx, tabCancel, err := p.browser.NewPage()
	if err != nil {
		return nil, err
	}
	defer tabCancel()

	navCtx, navCancel := context.WithTimeout(tabCtx, p.cfg.NavigationTimeout())
	defer navCancel()

	stop := context.AfterFunc(ctx, navCancel)
	defer stop()

	pageURL := fmt.Sprintf("%s/title/%s?page=%d",
		strings.TrimRight(p.cfg.Config.SiteURL, "/"), mangaID, page)

	var html string
	err = chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, errors.Wrap(err, "chapter page navigation failed")
	}

	return parseChapterRows(html, p.cfg.Config.SiteURL, mangaID), nil
}

// parseChapterRows pulls chapter entries out of a title page: every anchor
// that looks like a chapter link, with provider and upload age read from
// the surrounding row.
func parseChapterRows(html, siteURL, mangaID string) []domain.ChapterSummary {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	prefix := "/title/" + mangaID + "/"

	var chapters []domain.ChapterSummary
	doc.Find(`a[href*='` + prefix + `']`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !utils.ValidateChapterLink(href) {
			return
		}

		id := strings.TrimPrefix(strings.TrimRight(href, "/"), prefix)
		if id == "" || strings.Contains(id, "/") {
			return
		}

		summary := domain.ChapterSummary{
			ID:       id,
			URL:      strings.TrimRight(siteURL, "/") + href,
			Provider: "Unknown",
		}

		if n := utils.ParseChapterNumber(a.Text()); n != nil {
			summary.Number = *n
		} else if n := utils.ChapterNumberFromURL(href); n != nil {
			summary.Number = *n
		}

		row := a.Closest("li, div, tr")
		if row.Length() > 0 {
			if provider := strings.TrimSpace(row.Find(`a[href*='/scanlator/'], a[href*='/team/'], [class*='provider']`).First().Text()); provider != "" {
				summary.Provider = provider
			}

			row.Find("time, span, small").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				frag := strings.TrimSpace(s.Text())
				if !relativeFragRe.MatchString(frag) {
					return true
				}
				summary.RelativeTime = &frag
				if resolved := utils.ResolveRelativeTime(frag, time.Now()); resolved != nil {
					iso := resolved.UTC().Format(time.RFC3339)
					summary.UploadDate = &iso
				}
				return false
			})
		}

		chapters = append(chapters, summary)
	})

	return chapters
}
