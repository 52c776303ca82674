// Package directory defines the capability surface team-sync needs from a
// remote group directory. Implementations live elsewhere; the reconciliation
// engine depends only on this package.
package directory

import (
	"context"
	"errors"
)

// ErrNotFound signals that a lookup key matched no group. It is the only
// recoverable lookup outcome; implementations wrap it so callers can test
// with errors.Is.
var ErrNotFound = errors.New("group not found")

// VisibilityClosed is the visibility every managed group is created with:
// membership is assigned, never self-service.
const VisibilityClosed = "closed"

// Group is the remote state of a single group.
//
// Key is the normalized slug derived from the display name, so a group keeps
// its identity across display-name formatting changes. ParentID is empty for
// top-level groups. Members is nil when the lookup did not load membership.
type Group struct {
	ID          string
	Key         string
	Name        string
	Description string
	ParentID    string
	Members     []string
}

// CreateGroup carries everything needed to create a group. A non-empty
// ParentID creates the group as a child of that group; parentage is fixed at
// creation and cannot be changed afterwards.
type CreateGroup struct {
	Key         string
	Name        string
	Description string
	Visibility  string
	ParentID    string
}

// Directory is the remote directory client used by the engine. All lookups
// address groups by key and report absence with ErrNotFound.
type Directory interface {
	// LookupGroup fetches a group without loading its membership.
	LookupGroup(ctx context.Context, key string) (*Group, error)

	// LookupGroupMembers fetches a group including its current member
	// usernames.
	LookupGroupMembers(ctx context.Context, key string) (*Group, error)

	// CreateGroup creates a new group.
	CreateGroup(ctx context.Context, req CreateGroup) error

	// UpdateGroup sets the display name and description of an existing
	// group. It is idempotent.
	UpdateGroup(ctx context.Context, key, name, description string) error

	// DeleteGroup removes a group and its memberships.
	DeleteGroup(ctx context.Context, key string) error

	// AddMember puts the named user into the group.
	AddMember(ctx context.Context, key, username string) error

	// RemoveMember takes the named user out of the group.
	RemoveMember(ctx context.Context, key, username string) error

	// WhoAmI returns the username of the authenticated caller.
	WhoAmI(ctx context.Context) (string, error)
}
