package keycloak

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/infiotinc/team-sync/internal/metrics"
)

// WhoAmI returns the username of the service account this client runs as, by
// asking the realm's OIDC userinfo endpoint about our own access token.
// Keycloak enrolls that account as the first member of every group it
// creates, so the engine needs to know who it is.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return "", err
	}

	provider, err := c.oidcProvider(ctx)
	if err != nil {
		return "", err
	}

	info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	if err != nil {
		metrics.DirectoryErrorsTotal.WithLabelValues("userinfo").Inc()
		return "", fmt.Errorf("userinfo: %w", err)
	}

	metrics.DirectoryRequestsTotal.WithLabelValues("userinfo", "success").Inc()

	var claims struct {
		PreferredUsername string `json:"preferred_username"`
	}
	if err := info.Claims(&claims); err != nil {
		return "", fmt.Errorf("parse userinfo claims: %w", err)
	}
	if claims.PreferredUsername != "" {
		return claims.PreferredUsername, nil
	}
	return info.Subject, nil
}

// oidcProvider initializes the OIDC provider lazily on first use so runs that
// never create a group skip the issuer discovery round-trip.
func (c *Client) oidcProvider(ctx context.Context) (*oidc.Provider, error) {
	c.oidcMu.Lock()
	defer c.oidcMu.Unlock()

	if c.provider != nil {
		return c.provider, nil
	}

	issuer := fmt.Sprintf("%s/realms/%s", strings.TrimSuffix(c.cfg.KeycloakURL, "/"), c.cfg.KeycloakRealm)
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider %s: %w", issuer, err)
	}

	c.provider = provider
	return provider, nil
}
