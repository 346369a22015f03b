package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hrportal/internal/domain/identity"
	"hrportal/internal/domain/session"
	"hrportal/internal/platform/crypto"
	"hrportal/internal/platform/db"
)

func newMFACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mfa",
		Short: "Manage one-time-code second factors for directory accounts",
	}
	cmd.AddCommand(newMFAEnrollCmd())
	return cmd
}

func newMFAEnrollCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enable TOTP for an account and print its provisioning URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("--email is required")
			}
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			cryptoSvc, err := crypto.New(cfg.DataEncryptionKey)
			if err != nil {
				return err
			}
			var sealer session.Sealer
			if cryptoSvc.Configured() {
				sealer = cryptoSvc.WithLabel(crypto.LabelMFASecret)
			}

			pool, err := db.Connect(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			url, err := identity.NewPostgresDirectory(pool, sealer, log).EnrollMFA(cmd.Context(), email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}
