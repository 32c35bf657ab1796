package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/devlink/internal/auth"
	"github.com/nextlevelbuilder/devlink/internal/config"
	"github.com/nextlevelbuilder/devlink/internal/gateway"
	httpapi "github.com/nextlevelbuilder/devlink/internal/http"
	"github.com/nextlevelbuilder/devlink/internal/presence"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := setupLogging(cfg.Log)

	shutdownTracing := initOTelExporter(ctx, cfg)
	defer shutdownTracing()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	jwtVerifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("auth: %w (set auth.jwt_secret or DEVLINK_JWT_SECRET)", err)
	}
	verifier := auth.NewCachingVerifier(jwtVerifier, cfg.Auth.CacheSize, time.Duration(cfg.Auth.CacheTTL)*time.Second)

	var opts []gateway.Option
	if cfg.Presence.RedisURL != "" {
		sink, err := presence.NewRedisSink(ctx, cfg.Presence.RedisURL, cfg.Presence.Channel)
		if err != nil {
			slog.Warn("presence sink disabled", "error", err)
		} else {
			defer sink.Close()
			opts = append(opts, gateway.WithPresenceSink(sink))
			slog.Info("presence sink enabled", "channel", cfg.Presence.Channel)
		}
	}

	gw := gateway.NewServer(cfg.Gateway, st, verifier, opts...)
	gw.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	httpapi.NewDevicesHandler(gw, verifier).RegisterRoutes(mux)

	watcher, err := config.NewWatcher(cfgPath)
	if err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	} else {
		watcher.OnReload(func(c *config.Config) {
			if !verbose {
				level.Set(parseLevel(c.Log.Level))
			}
			gw.UpdateLimits(c.Gateway.CommandsPerMinute, c.Gateway.CommandBurst)
			slog.Info("config reloaded", "log_level", c.Log.Level, "commands_per_minute", c.Gateway.CommandsPerMinute)
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	stopTailscale := initTailscale(ctx, cfg, mux)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("devlink listening", "addr", srv.Addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case serveErr = <-errCh:
		slog.Error("http server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	if stopTailscale != nil {
		stopTailscale()
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		slog.Warn("gateway shutdown", "error", err)
	}
	return serveErr
}

// tailnetHandler exposes only the relay's device surface on the tailnet
// listener.
func tailnetHandler(h http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.Handle("/health", h)
	mux.Handle("/api/", h)
	return mux
}
