package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/infiotinc/team-sync/internal/manifest"
	"github.com/infiotinc/team-sync/internal/metrics"
)

// Sync returns the command that reconciles the manifest against the realm.
//
// Required configuration arrives via environment variables or --config:
//
//	KEYCLOAK_URL:            Keycloak base URL (required)
//	KEYCLOAK_CLIENT_SECRET:  service account secret, or VAULT_SECRET_PATH
//	                         plus VAULT_ADDR/VAULT_TOKEN to fetch it
func Sync() *cobra.Command {
	var (
		teamsPath  string
		configPath string
		prefix     string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile declared teams against the realm",
		Long: `Reconcile the teams manifest against the Keycloak realm.

Groups are created, reparented, and their memberships converged until the
realm matches the manifest exactly. Parents are reconciled before their
children; the run stops at the first failure.

Examples:
  # Sync teams.yaml in the current directory
  team-sync sync

  # Sync a specific manifest with a name prefix
  team-sync sync --teams people/teams.yaml --prefix ACME`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, teamsPath, configPath, prefix)
		},
	}

	cmd.Flags().StringVar(&teamsPath, "teams", "teams.yaml", "Path to the teams manifest")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Prefix applied to every team name")

	return cmd
}

func runSync(cmd *cobra.Command, teamsPath, configPath, prefix string) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()

	cfg, err := loadConfig(ctx, logger, configPath, prefix)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return err
	}

	teams, err := manifest.Load(teamsPath, cfg.TeamPrefix)
	if err != nil {
		logger.Error("failed to load manifest", zap.Error(err))
		return err
	}
	logger.Info("manifest loaded",
		zap.String("path", teamsPath),
		zap.Int("teams", len(teams)),
		zap.String("prefix", cfg.TeamPrefix),
	)

	runner, err := buildRunner(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize keycloak client", zap.Error(err))
		return err
	}

	result, runErr := runner.Run(ctx, teams)

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(cfg.PushgatewayURL, "team-sync"); err != nil {
			logger.Warn("failed to push metrics", zap.Error(err))
		}
	}

	if runErr != nil {
		if result != nil {
			logger.Error("sync failed",
				zap.Int("converged", result.Converged()),
				zap.Int("attempted", len(result.Outcomes)),
				zap.Error(runErr),
			)
		} else {
			logger.Error("sync failed", zap.Error(runErr))
		}
		return runErr
	}

	logger.Info("sync complete",
		zap.Int("groups", result.Converged()),
		zap.Duration("duration", result.Duration),
	)
	return nil
}
