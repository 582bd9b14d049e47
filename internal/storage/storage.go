package storage

import (
	"context"

	"comix-sync/internal/config"
	"comix-sync/internal/logger"
)

// ObjectStore uploads a remote image to durable hosting and returns the
// durable URL. Implementations must be safe for concurrent use.
type ObjectStore interface {
	Upload(ctx context.Context, sourceURL, fileName, folderPath string) (string, error)
	Enabled() bool
}

// New picks the configured backend. With nothing configured the scraper
// degrades to serving source URLs instead of failing.
func New(log logger.Logger, cfg *config.AppConfig) ObjectStore {
	switch cfg.Config.StorageProvider {
	case "imagekit":
		if cfg.Config.ImageKitPrivateKey != "" {
			return NewImageKitStore(log, cfg)
		}
		log.Warn().Msg("storageProvider is imagekit but no private key configured, uploads disabled")
	case "":
	default:
		log.Warn().Msgf("unsupported storageProvider: %s", cfg.Config.StorageProvider)
	}

	return NoopStore{}
}

// NoopStore is the passthrough used when no storage backend is configured.
type NoopStore struct{}

func (NoopStore) Upload(_ context.Context, sourceURL, _, _ string) (string, error) {
	return sourceURL, nil
}

func (NoopStore) Enabled() bool { return false }
