package scraper

import (
	"context"
	"net/url"
	"strings"
	"time"

	"comix-sync/internal/browser"
	"comix-sync/internal/config"
	"comix-sync/internal/logger"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// RenderStrategy loads the chapter page in the shared headless browser so
// client-side hydration runs before extraction. It is the expensive path of
// last resort and accepts any non-empty result.
type RenderStrategy struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	browser *browser.Manager
}

func NewRenderStrategy(log logger.Logger, cfg *config.AppConfig, mgr *browser.Manager) *RenderStrategy {
	return &RenderStrategy{
		log:     log.With().Str("module", "scraper").Str("strategy", "render").Logger(),
		cfg:     cfg,
		browser: mgr,
	}
}

func (r *RenderStrategy) Name() string { return "render" }

func (r *RenderStrategy) MinImages() int { return 1 }

func (r *RenderStrategy) Attempt(ctx context.Context, pageURL, cookieHeader string) (*StrategyResult, error) {
	tabCtx, tabCancel, err := r.browser.NewPage()
	if err != nil {
		return nil, err
	}
	defer tabCancel()

	navCtx, navCancel := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout())
	defer navCancel()

	// honor the caller's deadline too, the tab context knows nothing of it
	stop := context.AfterFunc(ctx, navCancel)
	defer stop()

	actions := []chromedp.Action{
		setCookiesAction(cookieHeader, r.cfg.Config.SiteURL),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		// hydration scripts populate the reader after load
		chromedp.Sleep(2 * time.Second),
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(navCtx, actions...); err != nil {
		return nil, errors.Wrap(err, "render navigation failed")
	}
	if html == "" {
		return nil, errors.New("render returned empty document")
	}

	images := ExtractImages(html, pageURL)
	r.log.Debug().Msgf("render of %s found %d images", pageURL, len(images))

	return &StrategyResult{
		HTML:     html,
		Images:   images,
		Metadata: ExtractDOMMetadata(html, r.cfg.Config.SiteURL),
	}, nil
}

// setCookiesAction replays a "name=value; name2=value2" header into the tab
// before navigation so the bot challenge is not triggered again.
func setCookiesAction(cookieHeader, siteURL string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if cookieHeader == "" {
			return nil
		}

		host := ""
		if u, err := url.Parse(siteURL); err == nil {
			host = u.Hostname()
		}
		if host == "" {
			return nil
		}

		for _, pair := range strings.Split(cookieHeader, "; ") {
			name, value, ok := strings.Cut(pair, "=")
			if !ok || name == "" {
				continue
			}
			err := network.SetCookie(name, value).
				WithDomain(host).
				WithPath("/").
				Do(ctx)
			if err != nil {
				return errors.Wrapf(err, "could not set cookie %s", name)
			}
		}
		return nil
	})
}
