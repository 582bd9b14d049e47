package scraper

import (
	"context"

	"comix-sync/internal/config"
	"comix-sync/internal/logger"

	"github.com/gocolly/colly"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DirectStrategy fetches the chapter page over plain HTTP with the shared
// session cookies attached. It is by far the cheapest path but sees only
// server-rendered markup, so its quality gate is strict.
type DirectStrategy struct {
	log zerolog.Logger
	cfg *config.AppConfig
}

func NewDirectStrategy(log logger.Logger, cfg *config.AppConfig) *DirectStrategy {
	return &DirectStrategy{
		log: log.With().Str("module", "scraper").Str("strategy", "direct").Logger(),
		cfg: cfg,
	}
}

func (d *DirectStrategy) Name() string { return "direct" }

func (d *DirectStrategy) MinImages() int { return 5 }

func (d *DirectStrategy) Attempt(ctx context.Context, pageURL, cookieHeader string) (*StrategyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(d.cfg.Config.UserAgent),
	)
	c.SetRequestTimeout(d.cfg.FetchTimeout())

	if d.cfg.Config.ProxyURL != "" {
		if err := c.SetProxy(d.cfg.Config.ProxyURL); err != nil {
			return nil, errors.Wrap(err, "could not configure proxy")
		}
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Referer", d.cfg.Config.SiteURL+"/")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		if cookieHeader != "" {
			r.Headers.Set("Cookie", cookieHeader)
		}
	})

	var html string
	c.OnResponse(func(r *colly.Response) {
		html = string(r.Body)
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, errors.Wrap(err, "direct fetch failed")
	}
	if html == "" {
		return nil, errors.New("direct fetch returned empty body")
	}

	images := ExtractImages(html, pageURL)
	d.log.Debug().Msgf("direct fetch of %s found %d images", pageURL, len(images))

	return &StrategyResult{
		HTML:     html,
		Images:   images,
		Metadata: ExtractDOMMetadata(html, d.cfg.Config.SiteURL),
	}, nil
}
