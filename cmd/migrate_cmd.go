package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/devlink/internal/config"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			setupLogging(cfg.Log)

			// Opening a store applies pending migrations.
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Printf("Schema up to date (%s)\n", storeBackend(cfg))
			return nil
		},
	}
}
