package scraper

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"comix-sync/internal/config"
	"comix-sync/internal/domain"
	"comix-sync/internal/logger"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"
	"github.com/rs/zerolog"
)

var (
	titlePathRe     = regexp.MustCompile(`^/title/([^/?#]+)`)
	latestChapterRe = regexp.MustCompile(`Ch\.?\s*(\d+(?:\.\d+)?)`)
)

// HomepageResult is the envelope for a homepage scrape.
type HomepageResult struct {
	Success bool                  `json:"success"`
	Data    []domain.MangaSummary `json:"data,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// HomepageScraper collects the title cards shown on the site's landing
// page. Cards are deduplicated by title id, first appearance wins.
type HomepageScraper struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	cookies CookieSource
	render  Strategy
}

func NewHomepageScraper(log logger.Logger, cfg *config.AppConfig, cookies CookieSource, render Strategy) *HomepageScraper {
	return &HomepageScraper{
		log:     log.With().Str("module", "scraper").Logger(),
		cfg:     cfg,
		cookies: cookies,
		render:  render,
	}
}

func (h *HomepageScraper) GetHomepage(ctx context.Context) HomepageResult {
	cookieHeader, err := h.cookies.CookieString(ctx, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("could not obtain session cookies, scraping without them")
		cookieHeader = ""
	}

	summaries := h.collectCards(cookieHeader)

	if len(summaries) == 0 {
		h.log.Debug().Msg("direct homepage fetch found no cards, falling back to render")

		result, err := h.render.Attempt(ctx, h.cfg.Config.SiteURL, cookieHeader)
		if err != nil {
			h.log.Error().Err(err).Msg("error rendering homepage")
			return HomepageResult{Success: false, Error: "could not load homepage"}
		}
		summaries = parseHomepageHTML(result.HTML, h.cfg.Config.SiteURL)
	}

	if len(summaries) == 0 {
		return HomepageResult{Success: false, Error: "no titles found on homepage"}
	}

	h.log.Debug().Msgf("homepage scrape found %d titles", len(summaries))
	return HomepageResult{Success: true, Data: summaries}
}

// collectCards does the cheap path: plain HTTP through colly, walking the
// card elements as they stream in.
func (h *HomepageScraper) collectCards(cookieHeader string) []domain.MangaSummary {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(h.cfg.Config.UserAgent),
	)
	c.SetRequestTimeout(h.cfg.FetchTimeout())

	if h.cfg.Config.ProxyURL != "" {
		if err := c.SetProxy(h.cfg.Config.ProxyURL); err != nil {
			h.log.Error().Err(err).Msg("error configuring proxy for homepage fetch")
			return nil
		}
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		if cookieHeader != "" {
			r.Headers.Set("Cookie", cookieHeader)
		}
	})

	seen := make(map[string]struct{})
	var summaries []domain.MangaSummary

	c.OnHTML(".comic .item", func(e *colly.HTMLElement) {
		summary, ok := parseCard(e.DOM, h.cfg.Config.SiteURL)
		if !ok {
			return
		}
		if _, dup := seen[summary.ID]; dup {
			return
		}
		seen[summary.ID] = struct{}{}
		summaries = append(summaries, summary)
	})

	if err := c.Visit(h.cfg.Config.SiteURL); err != nil {
		h.log.Debug().Err(err).Msg("direct homepage fetch failed")
		return nil
	}

	return summaries
}

// parseHomepageHTML walks the same cards out of rendered markup.
func parseHomepageHTML(html, siteURL string) []domain.MangaSummary {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var summaries []domain.MangaSummary

	doc.Find(".comic .item").Each(func(_ int, s *goquery.Selection) {
		summary, ok := parseCard(s, siteURL)
		if !ok {
			return
		}
		if _, dup := seen[summary.ID]; dup {
			return
		}
		seen[summary.ID] = struct{}{}
		summaries = append(summaries, summary)
	})

	return summaries
}

// parseCard reads one homepage card. Cards without a title link or with a
// trivial title are advertising filler and get skipped.
func parseCard(s *goquery.Selection, siteURL string) (domain.MangaSummary, bool) {
	var summary domain.MangaSummary

	href, ok := s.Find("a.poster").First().Attr("href")
	if !ok {
		href, ok = s.Find(`a[href^='/title/']`).First().Attr("href")
	}
	if !ok {
		return summary, false
	}

	m := titlePathRe.FindStringSubmatch(href)
	if m == nil {
		return summary, false
	}
	summary.ID = m[1]
	summary.URL = strings.TrimRight(siteURL, "/") + "/title/" + summary.ID

	summary.Title = strings.TrimSpace(s.Find("a.title").First().Text())
	if summary.Title == "" {
		summary.Title = strings.TrimSpace(s.Find(".title").First().Text())
	}
	if len(summary.Title) <= 2 {
		return summary, false
	}

	if src, ok := s.Find("img").First().Attr("src"); ok {
		summary.Thumbnail = normalizeImageURL(src, siteURL)
	}

	s.Find(".metadata span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		m := latestChapterRe.FindStringSubmatch(span.Text())
		if m == nil {
			return true
		}
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			summary.LatestChapter = n
		}
		return false
	})

	return summary, true
}
