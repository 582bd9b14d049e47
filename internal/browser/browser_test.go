package browser

import (
	"testing"

	"comix-sync/internal/config"
	"comix-sync/internal/domain"
	"comix-sync/internal/logger"
)

func TestManagerLifecycleWithoutLaunch(t *testing.T) {
	mgr := NewManager(logger.Mock(), &config.AppConfig{
		Config: &domain.Config{UserAgent: "test-agent"},
	})

	if mgr.Healthy() {
		t.Fatal("fresh manager must not report a healthy browser")
	}

	// closing before any launch is a no-op and safe to repeat
	mgr.Close()
	mgr.Close()

	if mgr.Healthy() {
		t.Fatal("closed manager must not report a healthy browser")
	}
}
