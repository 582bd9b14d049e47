package scraper

import (
	"context"

	"comix-sync/internal/domain"
)

// StrategyResult is the uniform outcome of one extraction attempt.
type StrategyResult struct {
	HTML     string
	Images   []domain.Image
	Metadata DOMMetadata
}

// Strategy is one independent technique for turning a chapter URL into raw
// HTML and an image list. Strategies are tried in priority order, cheapest
// first; an internal failure means "zero images", never a fatal error for
// the chain.
type Strategy interface {
	Name() string

	// MinImages is the quality gate: how many images this strategy must
	// produce before the chain accepts its result without trying the next
	// one. Structured extraction outranks noisy regex matches, so the
	// cheap direct fetch carries a higher gate than a full render.
	MinImages() int

	Attempt(ctx context.Context, pageURL, cookieHeader string) (*StrategyResult, error)
}

// CookieSource supplies the shared session cookie header.
type CookieSource interface {
	CookieString(ctx context.Context, forceRefresh bool) (string, error)
}
