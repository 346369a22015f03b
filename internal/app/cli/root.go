package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hrportal/internal/platform/config"
	"hrportal/internal/platform/logger"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hrportal",
		Short:         "HR portal session gateway",
		Long:          "hrportal serves the HR portal, keeping one session per browser client and gating every page by role.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSeedCmd(),
		newRoutesCmd(),
		newMFACmd(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Output:  cmd.ErrOrStderr(),
		Service: "hrportal",
	})
	return cfg, log, nil
}
