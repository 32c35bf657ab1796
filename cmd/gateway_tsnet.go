//go:build tsnet

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tailscale.com/tsnet"

	"github.com/nextlevelbuilder/devlink/internal/config"
)

// initTailscale joins the tailnet as cfg.Tailscale.Hostname and serves the
// relay surface there, so devices on the tailnet can connect without a
// public port. Returns nil when not configured or when the node fails to start.
func initTailscale(ctx context.Context, cfg *config.Config, mux http.Handler) func() {
	tc := cfg.Tailscale
	if tc.Hostname == "" {
		slog.Debug("tailnet listener disabled (set DEVLINK_TSNET_HOSTNAME to enable)")
		return nil
	}

	node := &tsnet.Server{
		Hostname:  tc.Hostname,
		AuthKey:   tc.AuthKey,
		Ephemeral: tc.Ephemeral,
	}
	if tc.StateDir != "" {
		node.Dir = config.ExpandHome(tc.StateDir)
	}

	ln, addr, err := listenTailnet(node, tc.EnableTLS)
	if err != nil {
		slog.Warn("tailnet listener failed", "hostname", tc.Hostname, "error", err)
		node.Close()
		return nil
	}
	slog.Info("tailnet listener started", "hostname", tc.Hostname, "addr", addr, "tls", tc.EnableTLS)

	relay := &http.Server{Handler: tailnetHandler(mux), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := relay.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("tailnet relay stopped", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := relay.Shutdown(shutdownCtx); err != nil {
			relay.Close()
		}
		node.Close()
		slog.Info("tailnet listener stopped", "hostname", tc.Hostname)
	}
}

func listenTailnet(node *tsnet.Server, useTLS bool) (net.Listener, string, error) {
	if useTLS {
		ln, err := node.ListenTLS("tcp", ":443")
		return ln, ":443", err
	}
	ln, err := node.Listen("tcp", ":80")
	return ln, ":80", err
}
