package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/devlink/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and validate configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configPathCmd())
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, err := json.MarshalIndent(redactConfig(cfg), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()
			if _, err := config.Load(cfgPath); err != nil {
				fmt.Fprintf(os.Stderr, "Invalid: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s: OK\n", cfgPath)
		},
	}
}

// redactConfig returns a copy of cfg with secrets masked.
func redactConfig(cfg *config.Config) config.Config {
	out := *cfg
	out.Auth.JWTSecret = maskSecret(out.Auth.JWTSecret)
	out.Database.PostgresDSN = maskSecret(out.Database.PostgresDSN)
	out.Presence.RedisURL = maskSecret(out.Presence.RedisURL)
	out.Tailscale.AuthKey = maskSecret(out.Tailscale.AuthKey)
	if len(out.Telemetry.Headers) > 0 {
		headers := make(map[string]string, len(out.Telemetry.Headers))
		for k, v := range out.Telemetry.Headers {
			headers[k] = maskSecret(v)
		}
		out.Telemetry.Headers = headers
	}
	return out
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-2:]
}
