package browser

import (
	"context"
	"sync"

	"comix-sync/internal/config"
	"comix-sync/internal/logger"

	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Manager owns the shared headless browser. The browser is expensive to
// start, so it is launched lazily, reused by every scrape call and
// relaunched when the underlying process disconnects. Callers get their own
// tab via NewPage; tabs are never shared across calls.
type Manager struct {
	log zerolog.Logger
	cfg *config.AppConfig

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewManager(log logger.Logger, cfg *config.AppConfig) *Manager {
	return &Manager{
		log: log.With().Str("module", "browser").Logger(),
		cfg: cfg,
	}
}

// NewPage returns a context for a fresh tab on the shared browser and a
// cancel func that closes the tab. The browser is launched or relaunched
// as needed.
func (m *Manager) NewPage() (context.Context, context.CancelFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureBrowser(); err != nil {
		return nil, nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	return tabCtx, tabCancel, nil
}

// Healthy reports whether a launched browser is still connected.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browserCtx != nil && m.browserCtx.Err() == nil
}

// Close tears the browser down. Safe to call multiple times.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browserCancel != nil {
		m.browserCancel()
		m.browserCancel = nil
	}
	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCancel = nil
	}
	m.browserCtx = nil
}

func (m *Manager) ensureBrowser() error {
	if m.browserCtx != nil {
		if m.browserCtx.Err() == nil {
			return nil
		}

		m.log.Info().Msg("browser disconnected, relaunching")
		if m.browserCancel != nil {
			m.browserCancel()
		}
		if m.allocCancel != nil {
			m.allocCancel()
		}
		m.browserCtx = nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.UserAgent(m.cfg.Config.UserAgent),
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-first-run", true),
	)

	if m.cfg.Config.ProxyURL != "" {
		m.log.Debug().Msg("launching browser with proxy server")
		opts = append(opts,
			chromedp.ProxyServer(m.cfg.Config.ProxyURL),
			chromedp.Flag("ignore-certificate-errors", true),
		)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// start the browser process now so failures surface here, not on the
	// first navigation
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return errors.Wrap(err, "could not launch browser")
	}

	m.log.Info().Msg("launched headless browser")

	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel
	return nil
}
