//go:build !tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/devlink/internal/config"
)

// initTailscale warns when a tailnet hostname is configured in a binary
// built without -tags tsnet.
func initTailscale(_ context.Context, cfg *config.Config, _ http.Handler) func() {
	if cfg.Tailscale.Hostname != "" {
		slog.Warn("tailscale.hostname is set but this binary was built without -tags tsnet",
			"hostname", cfg.Tailscale.Hostname)
	}
	return nil
}
