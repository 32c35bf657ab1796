package cmd

import (
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/devlink/internal/auth"
	"github.com/nextlevelbuilder/devlink/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		ttl time.Duration
		qr  bool
	)
	cmd := &cobra.Command{
		Use:   "token <userId> [username]",
		Short: "Mint a device token signed with the configured secret",
		Long: "Mint a JWT that devices present in their auth message. Intended for\n" +
			"self-hosted setups without a separate identity service.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return fmt.Errorf("auth: %w (set auth.jwt_secret or DEVLINK_JWT_SECRET)", err)
			}

			username := ""
			if len(args) == 2 {
				username = args[1]
			}
			token, err := issuer.Issue(args[0], username, ttl)
			if err != nil {
				return err
			}

			fmt.Println(token)
			if qr {
				code, err := qrcode.New(token, qrcode.Low)
				if err != nil {
					return fmt.Errorf("render qr code: %w", err)
				}
				fmt.Println()
				fmt.Print(code.ToString(false))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&qr, "qr", false, "also print the token as a terminal QR code")
	return cmd
}
