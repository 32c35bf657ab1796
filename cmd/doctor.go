package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/devlink/internal/config"
	"github.com/nextlevelbuilder/devlink/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment, configuration and store health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("devlink doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Printf("  Listen:   %s\n", cfg.Addr())
	if cfg.Auth.JWTSecret == "" {
		fmt.Println("  Auth:     MISSING jwt_secret")
	} else {
		fmt.Println("  Auth:     jwt secret configured")
	}

	fmt.Println()
	fmt.Printf("  Store:    %s", storeBackend(cfg))
	st, err := openStore(cfg)
	if err != nil {
		fmt.Printf(" (ERROR: %s)\n", err)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := st.DB().PingContext(ctx); err != nil {
			fmt.Printf(" (ERROR: %s)\n", err)
		} else {
			fmt.Println(" (OK)")
		}
		cancel()
		st.Close()
	}

	fmt.Print("  Presence: ")
	checkRedis(cfg.Presence.RedisURL)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkRedis(rawURL string) {
	if rawURL == "" {
		fmt.Println("(not configured)")
		return
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		fmt.Printf("invalid url: %s\n", err)
		return
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		fmt.Printf("%s (ERROR: %s)\n", opts.Addr, err)
		return
	}
	fmt.Printf("%s (OK)\n", opts.Addr)
}
