// Package config assembles tool configuration from an optional YAML file and
// environment variables. Environment variables win over the file, so a
// checked-in config can hold the stable values while credentials stay in the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a team-sync run.
type Config struct {
	KeycloakURL          string `mapstructure:"keycloakUrl"`
	KeycloakRealm        string `mapstructure:"keycloakRealm"`
	KeycloakClientID     string `mapstructure:"keycloakClientId"`
	KeycloakClientSecret string `mapstructure:"-"`
	VaultSecretPath      string `mapstructure:"vaultSecretPath"`
	PushgatewayURL       string `mapstructure:"pushgatewayUrl"`
	TeamPrefix           string `mapstructure:"teamPrefix"`
}

// Load builds the configuration. path may be empty, in which case only the
// environment is consulted.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.KeycloakRealm == "" {
		cfg.KeycloakRealm = "master"
	}
	if cfg.KeycloakClientID == "" {
		cfg.KeycloakClientID = "team-sync"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}

	if err := mapstructure.Decode(raw, cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.KeycloakURL, "KEYCLOAK_URL")
	setFromEnv(&cfg.KeycloakRealm, "KEYCLOAK_REALM")
	setFromEnv(&cfg.KeycloakClientID, "KEYCLOAK_CLIENT_ID")
	setFromEnv(&cfg.KeycloakClientSecret, "KEYCLOAK_CLIENT_SECRET")
	setFromEnv(&cfg.VaultSecretPath, "VAULT_SECRET_PATH")
	setFromEnv(&cfg.PushgatewayURL, "PUSHGATEWAY_URL")
	setFromEnv(&cfg.TeamPrefix, "TEAM_PREFIX")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	required := map[string]string{
		"KEYCLOAK_URL": c.KeycloakURL,
	}

	var missing []string
	for name, value := range required {
		if value == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	// The client secret may arrive directly or be fetched from Vault later,
	// but one of the two sources must be configured.
	if c.KeycloakClientSecret == "" && c.VaultSecretPath == "" {
		return fmt.Errorf("missing required configuration: KEYCLOAK_CLIENT_SECRET or VAULT_SECRET_PATH")
	}

	return nil
}
