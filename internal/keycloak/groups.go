package keycloak

import (
	"context"
	"fmt"

	"github.com/Nerzal/gocloak/v13"
	"go.uber.org/zap"

	"github.com/infiotinc/team-sync/internal/directory"
	"github.com/infiotinc/team-sync/internal/manifest"
	"github.com/infiotinc/team-sync/internal/metrics"
)

// Group attribute names used to round-trip fields Keycloak groups do not
// carry natively.
const (
	attrDescription = "description"
	attrVisibility  = "visibility"
)

// LookupGroup finds a group by its slug key anywhere in the realm group tree.
func (c *Client) LookupGroup(ctx context.Context, key string) (*directory.Group, error) {
	return c.findGroup(ctx, key)
}

// LookupGroupMembers returns the group together with its member usernames.
// User IDs seen in the member list are cached for later membership calls.
func (c *Client) LookupGroupMembers(ctx context.Context, key string) (*directory.Group, error) {
	group, err := c.findGroup(ctx, key)
	if err != nil {
		return nil, err
	}

	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	members, err := c.gc.GetGroupMembers(ctx, token, c.cfg.KeycloakRealm, group.ID, gocloak.GetGroupsParams{})
	if err != nil {
		metrics.DirectoryErrorsTotal.WithLabelValues("get_group_members").Inc()
		return nil, fmt.Errorf("get group members: %w", err)
	}

	metrics.DirectoryRequestsTotal.WithLabelValues("get_group_members", "success").Inc()

	group.Members = make([]string, 0, len(members))
	for _, u := range members {
		if u.Username == nil {
			continue
		}
		group.Members = append(group.Members, *u.Username)
		if u.ID != nil {
			c.cacheUserID(*u.Username, *u.ID)
		}
	}
	return group, nil
}

// CreateGroup creates a group, as a child when ParentID is set.
func (c *Client) CreateGroup(ctx context.Context, req directory.CreateGroup) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	group := gocloak.Group{
		Name: gocloak.StringP(req.Name),
		Attributes: &map[string][]string{
			attrDescription: {req.Description},
			attrVisibility:  {req.Visibility},
		},
	}

	var groupID string
	if req.ParentID != "" {
		groupID, err = c.gc.CreateChildGroup(ctx, token, c.cfg.KeycloakRealm, req.ParentID, group)
	} else {
		groupID, err = c.gc.CreateGroup(ctx, token, c.cfg.KeycloakRealm, group)
	}
	if err != nil {
		metrics.DirectoryErrorsTotal.WithLabelValues("create_group").Inc()
		return fmt.Errorf("create group %s: %w", req.Key, err)
	}

	metrics.DirectoryRequestsTotal.WithLabelValues("create_group", "success").Inc()

	c.cacheGroupID(req.Key, groupID)
	c.logger.Info("group created",
		zap.String("key", req.Key),
		zap.String("group_id", groupID),
	)
	return nil
}

// UpdateGroup sets the display name and description of an existing group.
// Other attributes, the visibility included, are preserved.
func (c *Client) UpdateGroup(ctx context.Context, key, name, description string) error {
	id, err := c.groupID(ctx, key)
	if err != nil {
		return err
	}

	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	existing, err := c.gc.GetGroup(ctx, token, c.cfg.KeycloakRealm, id)
	if err != nil {
		metrics.DirectoryErrorsTotal.WithLabelValues("get_group").Inc()
		return fmt.Errorf("get group for update: %w", err)
	}
	metrics.DirectoryRequestsTotal.WithLabelValues("get_group", "success").Inc()

	existing.Name = gocloak.StringP(name)
	attrs := map[string][]string{}
	if existing.Attributes != nil {
		attrs = *existing.Attributes
	}
	attrs[attrDescription] = []string{description}
	existing.Attributes = &attrs

	if err := c.gc.UpdateGroup(ctx, token, c.cfg.KeycloakRealm, *existing); err != nil {
		metrics.DirectoryErrorsTotal.WithLabelValues("update_group").Inc()
		return fmt.Errorf("update group %s: %w", key, err)
	}

	metrics.DirectoryRequestsTotal.WithLabelValues("update_group", "success").Inc()
	return nil
}

// DeleteGroup removes a group and its ID cache entry.
func (c *Client) DeleteGroup(ctx context.Context, key string) error {
	id, err := c.groupID(ctx, key)
	if err != nil {
		return err
	}

	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	if err := c.gc.DeleteGroup(ctx, token, c.cfg.KeycloakRealm, id); err != nil {
		metrics.DirectoryErrorsTotal.WithLabelValues("delete_group").Inc()
		return fmt.Errorf("delete group %s: %w", key, err)
	}

	metrics.DirectoryRequestsTotal.WithLabelValues("delete_group", "success").Inc()

	c.evictGroupID(key)
	c.logger.Info("group deleted", zap.String("key", key))
	return nil
}

// AddMember adds a user to a group by username.
func (c *Client) AddMember(ctx context.Context, key, username string) error {
	groupID, err := c.groupID(ctx, key)
	if err != nil {
		return err
	}
	userID, err := c.userID(ctx, username)
	if err != nil {
		return err
	}

	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	if err := c.gc.AddUserToGroup(ctx, token, c.cfg.KeycloakRealm, userID, groupID); err != nil {
		metrics.DirectoryErrorsTotal.WithLabelValues("add_user_to_group").Inc()
		return fmt.Errorf("add %s to group %s: %w", username, key, err)
	}

	metrics.DirectoryRequestsTotal.WithLabelValues("add_user_to_group", "success").Inc()
	return nil
}

// RemoveMember removes a user from a group by username.
func (c *Client) RemoveMember(ctx context.Context, key, username string) error {
	groupID, err := c.groupID(ctx, key)
	if err != nil {
		return err
	}
	userID, err := c.userID(ctx, username)
	if err != nil {
		return err
	}

	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	if err := c.gc.DeleteUserFromGroup(ctx, token, c.cfg.KeycloakRealm, userID, groupID); err != nil {
		metrics.DirectoryErrorsTotal.WithLabelValues("remove_user_from_group").Inc()
		return fmt.Errorf("remove %s from group %s: %w", username, key, err)
	}

	metrics.DirectoryRequestsTotal.WithLabelValues("remove_user_from_group", "success").Inc()
	return nil
}

// findGroup walks the realm group tree for the group whose slugged display
// name equals key. Lookups never consult the ID cache, so the engine always
// sees fresh remote state; they do warm it for the mutating calls that
// follow.
func (c *Client) findGroup(ctx context.Context, key string) (*directory.Group, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	groups, err := c.gc.GetGroups(ctx, token, c.cfg.KeycloakRealm, gocloak.GetGroupsParams{
		BriefRepresentation: gocloak.BoolP(false),
	})
	if err != nil {
		metrics.DirectoryErrorsTotal.WithLabelValues("get_groups").Inc()
		return nil, fmt.Errorf("get groups: %w", err)
	}

	metrics.DirectoryRequestsTotal.WithLabelValues("get_groups", "success").Inc()

	if g := matchGroup(groups, "", key); g != nil {
		c.cacheGroupID(key, g.ID)
		return g, nil
	}
	return nil, fmt.Errorf("group %q: %w", key, directory.ErrNotFound)
}

// groupID resolves a key to a Keycloak group ID, via cache when warm.
func (c *Client) groupID(ctx context.Context, key string) (string, error) {
	if id, ok := c.cachedGroupID(key); ok {
		return id, nil
	}
	g, err := c.findGroup(ctx, key)
	if err != nil {
		return "", err
	}
	return g.ID, nil
}

// matchGroup searches the tree depth-first for the first group whose slugged
// name equals key, tracking the parent ID along the descent.
func matchGroup(groups []*gocloak.Group, parentID, key string) *directory.Group {
	for _, g := range groups {
		if g == nil || g.Name == nil {
			continue
		}
		if manifest.Slug(*g.Name) == key {
			return mapGroup(g, parentID)
		}
		if g.SubGroups != nil && g.ID != nil {
			subs := make([]*gocloak.Group, 0, len(*g.SubGroups))
			for i := range *g.SubGroups {
				subs = append(subs, &(*g.SubGroups)[i])
			}
			if m := matchGroup(subs, *g.ID, key); m != nil {
				return m
			}
		}
	}
	return nil
}

func mapGroup(g *gocloak.Group, parentID string) *directory.Group {
	group := &directory.Group{ParentID: parentID}
	if g.ID != nil {
		group.ID = *g.ID
	}
	if g.Name != nil {
		group.Name = *g.Name
		group.Key = manifest.Slug(*g.Name)
	}
	group.Description = attr(g, attrDescription)
	return group
}

func attr(g *gocloak.Group, name string) string {
	if g.Attributes == nil {
		return ""
	}
	if v := (*g.Attributes)[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}
