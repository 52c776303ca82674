// Package vault fetches the Keycloak client secret from HashiCorp Vault so
// the credential never has to live in the environment of the machine running
// the sync.
package vault

import (
	"context"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/infiotinc/team-sync/internal/metrics"
)

const secretField = "client_secret"

// Client wraps the Vault API client. Address and token come from the
// standard VAULT_ADDR and VAULT_TOKEN environment variables.
type Client struct {
	client *vaultapi.Client
	logger *zap.Logger
}

// NewClient creates a Vault client from the environment.
func NewClient(logger *zap.Logger) (*Client, error) {
	vaultCfg := vaultapi.DefaultConfig()
	vaultCfg.Timeout = 30 * time.Second

	vc, err := vaultapi.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if vc.Token() == "" {
		return nil, fmt.Errorf("no vault token: set VAULT_TOKEN")
	}

	return &Client{client: vc, logger: logger.Named("vault")}, nil
}

// ClientSecret reads the Keycloak client secret from the given KV path.
func (c *Client) ClientSecret(ctx context.Context, path string) (string, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		metrics.VaultErrorsTotal.WithLabelValues("read_secret").Inc()
		return "", fmt.Errorf("read vault secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		metrics.VaultErrorsTotal.WithLabelValues("read_secret").Inc()
		return "", fmt.Errorf("vault secret %s not found", path)
	}

	metrics.VaultRequestsTotal.WithLabelValues("read_secret", "success").Inc()

	// KV v2 nests the payload under a second "data" key.
	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}

	value, ok := data[secretField].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("vault secret %s has no %s field", path, secretField)
	}

	c.logger.Debug("client secret fetched from vault", zap.String("path", path))
	return value, nil
}
