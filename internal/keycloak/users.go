package keycloak

import (
	"context"
	"fmt"
	"strings"

	"github.com/Nerzal/gocloak/v13"

	"github.com/infiotinc/team-sync/internal/metrics"
)

// userID resolves a username to a Keycloak user ID with an exact-match
// search. An unknown username is an error: memberships are only ever declared
// for accounts that already exist in the realm.
func (c *Client) userID(ctx context.Context, username string) (string, error) {
	if id, ok := c.cachedUserID(username); ok {
		return id, nil
	}

	token, err := c.Token(ctx)
	if err != nil {
		return "", err
	}

	users, err := c.gc.GetUsers(ctx, token, c.cfg.KeycloakRealm, gocloak.GetUsersParams{
		Username: gocloak.StringP(username),
		Exact:    gocloak.BoolP(true),
	})
	if err != nil {
		metrics.DirectoryErrorsTotal.WithLabelValues("get_users").Inc()
		return "", fmt.Errorf("get users: %w", err)
	}

	metrics.DirectoryRequestsTotal.WithLabelValues("get_users", "success").Inc()

	for _, u := range users {
		if u.Username == nil || u.ID == nil {
			continue
		}
		if strings.EqualFold(*u.Username, username) {
			c.cacheUserID(username, *u.ID)
			return *u.ID, nil
		}
	}
	return "", fmt.Errorf("user %q not found in realm %s", username, c.cfg.KeycloakRealm)
}

func (c *Client) cacheUserID(username, id string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.userIDs[username] = id
}

func (c *Client) cachedUserID(username string) (string, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	id, ok := c.userIDs[username]
	return id, ok
}
