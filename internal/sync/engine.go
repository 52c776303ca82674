package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/infiotinc/team-sync/internal/directory"
	"github.com/infiotinc/team-sync/internal/manifest"
	"github.com/infiotinc/team-sync/internal/metrics"
)

// ErrMissingParent is returned when a team's parent group does not exist in
// the directory at reconcile time. No mutating call is issued for the group.
var ErrMissingParent = errors.New("parent group not found")

// Engine converges a single team onto the directory: resolve the remote
// state, check the parent, then issue the minimal set of mutating calls.
// Reconcile is deterministic and idempotent for a given desired and remote
// state.
type Engine struct {
	dir    directory.Directory
	logger *zap.Logger

	mu      sync.Mutex
	creator string
}

// NewEngine creates an engine over the given directory.
func NewEngine(dir directory.Directory, logger *zap.Logger) *Engine {
	return &Engine{dir: dir, logger: logger.Named("engine")}
}

// Reconcile converges one team. Within the member phases, calls for distinct
// users run concurrently; removals always complete before additions start.
// Any remote failure other than a not-found lookup aborts the group without
// compensation.
func (e *Engine) Reconcile(ctx context.Context, team manifest.Team) error {
	log := e.logger.With(zap.String("group", team.Name), zap.String("key", team.Key))

	current, err := e.dir.LookupGroupMembers(ctx, team.Key)
	exists := err == nil
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return fmt.Errorf("lookup group %q: %w", team.Key, err)
	}

	// The parent is resolved before any mutating call so an ordering
	// violation leaves the group untouched.
	var parentID string
	if team.Parent != "" {
		parentKey := manifest.Slug(team.Parent)
		parent, err := e.dir.LookupGroup(ctx, parentKey)
		if errors.Is(err, directory.ErrNotFound) {
			return fmt.Errorf("group %q: parent %q: %w", team.Name, team.Parent, ErrMissingParent)
		}
		if err != nil {
			return fmt.Errorf("lookup parent %q: %w", parentKey, err)
		}
		parentID = parent.ID
	}

	// Parentage is fixed at creation, so a parent change means delete and
	// recreate. The group is treated as absent from here on; its membership
	// starts over from empty.
	rebuilt := false
	if exists && team.Parent != "" && current.ParentID != parentID {
		log.Info("parent changed, rebuilding group", zap.String("parent", team.Parent))
		if err := e.dir.DeleteGroup(ctx, team.Key); err != nil {
			return fmt.Errorf("delete group %q: %w", team.Key, err)
		}
		exists = false
		rebuilt = true
	}

	var existing []string
	if exists {
		existing = current.Members

		// The update is idempotent, so it is issued even when nothing
		// changed.
		if err := e.dir.UpdateGroup(ctx, team.Key, team.Name, team.Description); err != nil {
			return fmt.Errorf("update group %q: %w", team.Key, err)
		}
		metrics.GroupsUpdatedTotal.Inc()

		toRemove := subtract(existing, team.Members)
		if err := e.forEachMember(ctx, team.Key, toRemove, e.dir.RemoveMember); err != nil {
			return fmt.Errorf("remove members from %q: %w", team.Key, err)
		}
		metrics.MembersRemovedTotal.Add(float64(len(toRemove)))
		if len(toRemove) > 0 {
			log.Info("members removed", zap.Strings("usernames", toRemove))
		}
	} else {
		if err := e.dir.CreateGroup(ctx, directory.CreateGroup{
			Key:         team.Key,
			Name:        team.Name,
			Description: team.Description,
			Visibility:  directory.VisibilityClosed,
			ParentID:    parentID,
		}); err != nil {
			return fmt.Errorf("create group %q: %w", team.Key, err)
		}
		if rebuilt {
			metrics.GroupsRebuiltTotal.Inc()
		} else {
			metrics.GroupsCreatedTotal.Inc()
		}
		log.Info("group created", zap.String("parent", team.Parent))

		// Creation enrolls the caller into the new group. Membership comes
		// exclusively from the manifest, so the creator is removed here and
		// re-added below only when listed.
		creator, err := e.creatorUsername(ctx)
		if err != nil {
			return err
		}
		if err := e.dir.RemoveMember(ctx, team.Key, creator); err != nil {
			return fmt.Errorf("remove creator from %q: %w", team.Key, err)
		}
	}

	toAdd := subtract(team.Members, existing)
	if err := e.forEachMember(ctx, team.Key, toAdd, e.dir.AddMember); err != nil {
		return fmt.Errorf("add members to %q: %w", team.Key, err)
	}
	metrics.MembersAddedTotal.Add(float64(len(toAdd)))
	if len(toAdd) > 0 {
		log.Info("members added", zap.Strings("usernames", toAdd))
	}

	return nil
}

// forEachMember applies op to every username concurrently and waits for the
// whole batch to settle. The first failure is returned.
func (e *Engine) forEachMember(ctx context.Context, key string, usernames []string, op func(context.Context, string, string) error) error {
	if len(usernames) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(usernames))

	for _, username := range usernames {
		wg.Add(1)
		go func(username string) {
			defer wg.Done()
			if err := op(ctx, key, username); err != nil {
				errs <- err
			}
		}(username)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// creatorUsername resolves the authenticated caller once and caches it for
// the lifetime of the engine. It is only needed when a group gets created.
func (e *Engine) creatorUsername(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.creator != "" {
		return e.creator, nil
	}

	username, err := e.dir.WhoAmI(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve caller identity: %w", err)
	}
	if username == "" {
		return "", fmt.Errorf("caller identity has no username")
	}

	e.creator = username
	e.logger.Debug("caller identity resolved", zap.String("username", username))
	return username, nil
}

// subtract returns the elements of a that are not in b, preserving order.
func subtract(a, b []string) []string {
	have := make(map[string]struct{}, len(b))
	for _, s := range b {
		have[s] = struct{}{}
	}

	var out []string
	for _, s := range a {
		if _, ok := have[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
