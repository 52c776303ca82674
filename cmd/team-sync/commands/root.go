// Package commands defines the CLI command structure and flag bindings.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/infiotinc/team-sync/internal/config"
	"github.com/infiotinc/team-sync/internal/keycloak"
	"github.com/infiotinc/team-sync/internal/sync"
	"github.com/infiotinc/team-sync/internal/vault"
)

var (
	logLevel string
	logJSON  bool
)

// Root returns the root command for the team-sync CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team-sync",
		Short: "Converge declared teams onto a Keycloak realm's groups",
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON instead of console output")

	cmd.AddCommand(Sync())
	cmd.AddCommand(Plan())
	cmd.AddCommand(Validate())
	cmd.AddCommand(Version())

	return cmd
}

// buildLogger constructs the zap logger the run logs through. Batch runs
// default to console encoding; --log-json switches to the production JSON
// encoder.
func buildLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", logLevel, err)
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level = level
	logCfg.EncoderConfig.TimeKey = "timestamp"
	logCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logCfg.EncoderConfig.StacktraceKey = "stacktrace"
	if !logJSON {
		logCfg.Encoding = "console"
		logCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	logger, err := logCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return logger, nil
}

// loadConfig assembles the run configuration, resolving the Keycloak client
// secret through Vault when it is not set directly. A non-empty prefix flag
// overrides the configured team prefix.
func loadConfig(ctx context.Context, logger *zap.Logger, configPath, prefix string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if prefix != "" {
		cfg.TeamPrefix = prefix
	}

	if cfg.KeycloakClientSecret == "" {
		vc, err := vault.NewClient(logger)
		if err != nil {
			return nil, err
		}
		secret, err := vc.ClientSecret(ctx, cfg.VaultSecretPath)
		if err != nil {
			return nil, err
		}
		cfg.KeycloakClientSecret = secret
	}

	return cfg, nil
}

// buildRunner wires the Keycloak-backed engine and its runner.
func buildRunner(cfg *config.Config, logger *zap.Logger) (*sync.Runner, error) {
	kc, err := keycloak.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return sync.NewRunner(sync.NewEngine(kc, logger), logger), nil
}
