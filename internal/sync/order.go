package sync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/infiotinc/team-sync/internal/manifest"
)

// ErrDependencyCycle is returned when the declared parent relationships form
// a cycle and no valid processing order exists. It is reported before any
// remote call is made.
var ErrDependencyCycle = errors.New("dependency cycle in group parents")

// Order filters out ignored teams and sorts the remainder so that every
// parent precedes its children. Manifest document order is kept between
// teams that do not depend on each other.
//
// A parent naming an ignored team contributes no edge; whether that parent
// actually exists is checked against the directory at reconcile time.
func Order(teams []manifest.Team) ([]manifest.Team, error) {
	active := make([]manifest.Team, 0, len(teams))
	for _, t := range teams {
		if !t.Ignored {
			active = append(active, t)
		}
	}

	index := make(map[string]int, len(active))
	for i, t := range active {
		index[t.Name] = i
	}

	// children[p] lists the teams whose parent is active[p].
	children := make(map[int][]int, len(active))
	indegree := make([]int, len(active))
	for i, t := range active {
		if t.Parent == "" {
			continue
		}
		p, ok := index[t.Parent]
		if !ok {
			continue
		}
		children[p] = append(children[p], i)
		indegree[i]++
	}

	ordered := make([]manifest.Team, 0, len(active))
	done := make([]bool, len(active))
	for len(ordered) < len(active) {
		// Always take the first still-pending team with no unmet parent, so
		// document order survives among independent teams.
		next := -1
		for i := range active {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			return nil, fmt.Errorf("groups %s: %w", strings.Join(pending(active, done), ", "), ErrDependencyCycle)
		}

		done[next] = true
		ordered = append(ordered, active[next])
		for _, c := range children[next] {
			indegree[c]--
		}
	}

	return ordered, nil
}

func pending(teams []manifest.Team, done []bool) []string {
	var names []string
	for i, t := range teams {
		if !done[i] {
			names = append(names, t.Name)
		}
	}
	return names
}
