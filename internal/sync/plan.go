package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/infiotinc/team-sync/internal/directory"
	"github.com/infiotinc/team-sync/internal/manifest"
)

// Action classifies what a run would do to a group.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionRebuild Action = "rebuild"
)

// GroupPlan describes the pending changes for a single group. Add and Remove
// are sorted for stable output.
type GroupPlan struct {
	Team   string
	Key    string
	Action Action
	Parent string
	Add    []string
	Remove []string
}

// Plan is the ordered set of group plans a run would execute.
type Plan struct {
	Groups []GroupPlan
}

// Changes reports whether the plan contains any mutation beyond the
// unconditional attribute update of existing groups.
func (p *Plan) Changes() bool {
	for _, g := range p.Groups {
		if g.Action != ActionUpdate || len(g.Add) > 0 || len(g.Remove) > 0 {
			return true
		}
	}
	return false
}

// Plan computes what Run would do without mutating the directory. Groups the
// plan itself creates are assumed to exist when later groups resolve their
// parents, mirroring the ordering guarantee of a real run.
func (r *Runner) Plan(ctx context.Context, teams []manifest.Team) (*Plan, error) {
	ordered, err := Order(teams)
	if err != nil {
		return nil, err
	}

	planned := make(map[string]bool, len(ordered))
	plan := &Plan{}

	for _, team := range ordered {
		g, err := r.planGroup(ctx, team, planned)
		if err != nil {
			return nil, err
		}
		planned[team.Key] = true
		plan.Groups = append(plan.Groups, *g)
	}
	return plan, nil
}

func (r *Runner) planGroup(ctx context.Context, team manifest.Team, planned map[string]bool) (*GroupPlan, error) {
	g := &GroupPlan{Team: team.Name, Key: team.Key, Parent: team.Parent}

	current, err := r.engine.dir.LookupGroupMembers(ctx, team.Key)
	exists := err == nil
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return nil, fmt.Errorf("lookup group %q: %w", team.Key, err)
	}

	// parentPending: the parent does not exist yet but an earlier step of
	// this plan creates it. An existing group cannot already hang under it.
	parentID := ""
	parentPending := false
	if team.Parent != "" {
		parentKey := manifest.Slug(team.Parent)
		parent, err := r.engine.dir.LookupGroup(ctx, parentKey)
		switch {
		case errors.Is(err, directory.ErrNotFound):
			if !planned[parentKey] {
				return nil, fmt.Errorf("group %q: parent %q: %w", team.Name, team.Parent, ErrMissingParent)
			}
			parentPending = true
		case err != nil:
			return nil, fmt.Errorf("lookup parent %q: %w", parentKey, err)
		default:
			parentID = parent.ID
		}
	}

	var existing []string
	switch {
	case !exists:
		g.Action = ActionCreate
	case team.Parent != "" && (parentPending || current.ParentID != parentID):
		g.Action = ActionRebuild
	default:
		g.Action = ActionUpdate
		existing = current.Members
	}

	g.Add = subtract(team.Members, existing)
	g.Remove = subtract(existing, team.Members)
	sort.Strings(g.Add)
	sort.Strings(g.Remove)
	return g, nil
}
