package session

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"comix-sync/internal/browser"
	"comix-sync/internal/config"
	"comix-sync/internal/domain"
	"comix-sync/internal/logger"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// CookieStore persists cookie sets across restarts.
type CookieStore interface {
	LoadSession() (*domain.SessionState, error)
	SaveSession(state *domain.SessionState) error
}

// Refresher acquires a fresh bot-challenge-passing cookie set.
type Refresher interface {
	Refresh(ctx context.Context) (*domain.SessionState, error)
}

// Provider hands out the shared session cookie header. The in-memory set is
// read by every concurrent scrape; refreshes are single-flight so a cookie
// expiry under load launches exactly one browser navigation.
type Provider struct {
	log       zerolog.Logger
	store     CookieStore
	refresher Refresher

	mu         sync.Mutex
	state      *domain.SessionState
	inflight   chan struct{}
	refreshErr error
}

func NewProvider(log logger.Logger, store CookieStore, refresher Refresher) *Provider {
	return &Provider{
		log:       log.With().Str("module", "session").Logger(),
		store:     store,
		refresher: refresher,
	}
}

// CookieString returns the "name=value; name2=value2" header for the
// current session, refreshing when the cached set is missing or expired.
// A failed refresh is returned to the caller and never cached.
func (p *Provider) CookieString(ctx context.Context, forceRefresh bool) (string, error) {
	now := time.Now()

	p.mu.Lock()

	if !forceRefresh && p.state.Valid(now) {
		header := p.state.CookieHeader()
		p.mu.Unlock()
		return header, nil
	}

	// another caller is already refreshing, wait on its result
	if p.inflight != nil {
		done := p.inflight
		p.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return "", ctx.Err()
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.refreshErr != nil {
			return "", p.refreshErr
		}
		if p.state == nil {
			return "", errors.New("no session available after refresh")
		}
		return p.state.CookieHeader(), nil
	}

	if !forceRefresh {
		if persisted, err := p.store.LoadSession(); err != nil {
			p.log.Error().Err(err).Msg("error loading persisted session")
		} else if persisted.Valid(now) {
			p.log.Debug().Msg("adopted persisted session cookies")
			p.state = persisted
			header := persisted.CookieHeader()
			p.mu.Unlock()
			return header, nil
		}
	}

	done := make(chan struct{})
	p.inflight = done
	p.mu.Unlock()

	state, err := p.doRefresh(ctx)

	p.mu.Lock()
	p.refreshErr = err
	if err == nil {
		p.state = state
	}
	p.inflight = nil
	close(done)

	if err != nil {
		p.mu.Unlock()
		return "", err
	}

	header := state.CookieHeader()
	p.mu.Unlock()
	return header, nil
}

func (p *Provider) doRefresh(ctx context.Context) (*domain.SessionState, error) {
	p.log.Info().Msg("refreshing session cookies using browser")

	state, err := p.refresher.Refresh(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not refresh session cookies")
	}

	if err := p.store.SaveSession(state); err != nil {
		// persisting is best effort, the in-memory set still works
		p.log.Error().Err(err).Msg("error persisting refreshed session")
	}

	if state.ExpiresAt != nil {
		p.log.Info().Msgf("refreshed session cookies (%d total), expire at %s", len(state.Cookies), state.ExpiresAt)
	} else {
		p.log.Info().Msgf("refreshed session cookies (%d total)", len(state.Cookies))
	}

	return state, nil
}

// BrowserRefresher navigates the shared headless browser to the site root,
// lets the bot challenge settle and collects every cookie scoped to the
// site's domain.
type BrowserRefresher struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	browser *browser.Manager
}

func NewBrowserRefresher(log logger.Logger, cfg *config.AppConfig, mgr *browser.Manager) *BrowserRefresher {
	return &BrowserRefresher{
		log:     log.With().Str("module", "session").Logger(),
		cfg:     cfg,
		browser: mgr,
	}
}

func (r *BrowserRefresher) Refresh(ctx context.Context) (*domain.SessionState, error) {
	tabCtx, tabCancel, err := r.browser.NewPage()
	if err != nil {
		return nil, err
	}
	defer tabCancel()

	timeout := time.Duration(r.cfg.Config.NavigationTimeoutSeconds) * time.Second
	navCtx, navCancel := context.WithTimeout(tabCtx, timeout)
	defer navCancel()

	var raw []*network.Cookie
	err = chromedp.Run(navCtx,
		chromedp.Navigate(r.cfg.Config.SiteURL),
		// extra wait for delayed challenge JS
		chromedp.Sleep(2*time.Second),
		chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := storage.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			raw = cookies
			return nil
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "challenge navigation failed")
	}

	host := siteHost(r.cfg.Config.SiteURL)
	now := time.Now()

	var cookies []domain.Cookie
	for _, c := range raw {
		domainName := strings.TrimPrefix(c.Domain, ".")
		if host != "" && !strings.HasSuffix(domainName, host) {
			continue
		}

		cookie := domain.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: domainName,
			Path:   c.Path,
		}
		if c.Expires > 0 {
			t := time.Unix(int64(c.Expires), 0)
			cookie.ExpiresAt = &t
		}
		cookies = append(cookies, cookie)
	}

	if len(cookies) == 0 {
		return nil, errors.New("no cookies extracted from browser")
	}

	return &domain.SessionState{
		Cookies:   cookies,
		ExpiresAt: domain.EarliestExpiry(cookies),
		FetchedAt: now,
	}, nil
}

func siteHost(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
