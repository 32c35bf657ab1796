// Package cmd implements the devlink command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "devlink",
		Short: "Relay commands between a user's paired devices",
		Long: "devlink accepts WebSocket connections from a user's devices, tracks which are online,\n" +
			"lets devices of the same user pair with each other and forwards commands between paired devices.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default $DEVLINK_CONFIG or ./config.json5)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(devicesCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveConfigPath returns the config file path: --config, then
// $DEVLINK_CONFIG, then ./config.json5.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("DEVLINK_CONFIG"); v != "" {
		return v
	}
	return "config.json5"
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("devlink", Version)
		},
	}
}
