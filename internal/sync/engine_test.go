package sync

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/infiotinc/team-sync/internal/directory"
	"github.com/infiotinc/team-sync/internal/manifest"
)

// fakeDirectory is an in-memory Directory that records every call in order.
// CreateGroup enrolls the caller into the new group, like the real service.
type fakeDirectory struct {
	mu     sync.Mutex
	groups map[string]*fakeGroup
	nextID int
	whoami string
	calls  []string
	failOn map[string]error
}

type fakeGroup struct {
	id          string
	name        string
	description string
	visibility  string
	parentID    string
	members     map[string]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		groups: make(map[string]*fakeGroup),
		whoami: "svc-team-sync",
		failOn: make(map[string]error),
	}
}

func (f *fakeDirectory) seed(key, name, parentID string, members ...string) *fakeGroup {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	g := &fakeGroup{
		id:       fmt.Sprintf("id-%d", f.nextID),
		name:     name,
		parentID: parentID,
		members:  make(map[string]bool),
	}
	for _, m := range members {
		g.members[m] = true
	}
	f.groups[key] = g
	return g
}

// record appends the call and returns the injected failure, if any. Callers
// hold f.mu.
func (f *fakeDirectory) record(op string) error {
	f.calls = append(f.calls, op)
	return f.failOn[op]
}

func (f *fakeDirectory) LookupGroup(_ context.Context, key string) (*directory.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("lookup " + key); err != nil {
		return nil, err
	}
	g, ok := f.groups[key]
	if !ok {
		return nil, fmt.Errorf("group %q: %w", key, directory.ErrNotFound)
	}
	return &directory.Group{ID: g.id, Key: key, Name: g.name, Description: g.description, ParentID: g.parentID}, nil
}

func (f *fakeDirectory) LookupGroupMembers(_ context.Context, key string) (*directory.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("lookup-members " + key); err != nil {
		return nil, err
	}
	g, ok := f.groups[key]
	if !ok {
		return nil, fmt.Errorf("group %q: %w", key, directory.ErrNotFound)
	}

	members := make([]string, 0, len(g.members))
	for m := range g.members {
		members = append(members, m)
	}
	sort.Strings(members)
	return &directory.Group{ID: g.id, Key: key, Name: g.name, Description: g.description, ParentID: g.parentID, Members: members}, nil
}

func (f *fakeDirectory) CreateGroup(_ context.Context, req directory.CreateGroup) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("create " + req.Key); err != nil {
		return err
	}
	f.nextID++
	f.groups[req.Key] = &fakeGroup{
		id:          fmt.Sprintf("id-%d", f.nextID),
		name:        req.Name,
		description: req.Description,
		visibility:  req.Visibility,
		parentID:    req.ParentID,
		members:     map[string]bool{f.whoami: true},
	}
	return nil
}

func (f *fakeDirectory) UpdateGroup(_ context.Context, key, name, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("update " + key); err != nil {
		return err
	}
	g, ok := f.groups[key]
	if !ok {
		return fmt.Errorf("update: group %q missing", key)
	}
	g.name = name
	g.description = description
	return nil
}

func (f *fakeDirectory) DeleteGroup(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("delete " + key); err != nil {
		return err
	}
	delete(f.groups, key)
	return nil
}

func (f *fakeDirectory) AddMember(_ context.Context, key, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("add " + key + " " + username); err != nil {
		return err
	}
	g, ok := f.groups[key]
	if !ok {
		return fmt.Errorf("add: group %q missing", key)
	}
	g.members[username] = true
	return nil
}

func (f *fakeDirectory) RemoveMember(_ context.Context, key, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("remove " + key + " " + username); err != nil {
		return err
	}
	if g, ok := f.groups[key]; ok {
		delete(g.members, username)
	}
	return nil
}

func (f *fakeDirectory) WhoAmI(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("whoami"); err != nil {
		return "", err
	}
	return f.whoami, nil
}

func (f *fakeDirectory) group(key string) *fakeGroup {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups[key]
}

func (f *fakeDirectory) members(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []string{}
	if g, ok := f.groups[key]; ok {
		for m := range g.members {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func (f *fakeDirectory) called(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.calls {
		if c == op {
			return true
		}
	}
	return false
}

func (f *fakeDirectory) callsMatching(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// mutations returns every call that changes remote state.
func (f *fakeDirectory) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.calls {
		for _, p := range []string{"create ", "update ", "delete ", "add ", "remove "} {
			if strings.HasPrefix(c, p) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (f *fakeDirectory) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func newTestEngine(f *fakeDirectory) *Engine {
	return NewEngine(f, zap.NewNop())
}

func TestReconcile_CreatesAbsentGroup(t *testing.T) {
	f := newFakeDirectory()
	e := newTestEngine(f)

	team := manifest.Team{
		Name:        "ACME Core",
		Key:         "acme-core",
		Description: "Core team",
		Members:     []string{"alice", "bob"},
	}
	if err := e.Reconcile(context.Background(), team); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	g := f.group("acme-core")
	if g == nil {
		t.Fatal("group was not created")
	}
	if g.name != "ACME Core" || g.description != "Core team" || g.parentID != "" {
		t.Errorf("created group = %+v", *g)
	}
	if g.visibility != directory.VisibilityClosed {
		t.Errorf("visibility = %q, want %q", g.visibility, directory.VisibilityClosed)
	}
	if got := f.members("acme-core"); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("members = %v, want [alice bob]", got)
	}

	// The creator is removed right after creation, and nobody else is.
	if !f.called("remove acme-core svc-team-sync") {
		t.Error("creator was not removed after creation")
	}
	if removes := f.callsMatching("remove "); len(removes) != 1 {
		t.Errorf("removals = %v, want only the creator removal", removes)
	}
}

func TestReconcile_RemovesUndeclaredMember(t *testing.T) {
	f := newFakeDirectory()
	f.seed("acme-core", "ACME Core", "", "alice", "bob")
	e := newTestEngine(f)

	team := manifest.Team{Name: "ACME Core", Key: "acme-core", Members: []string{"alice"}}
	if err := e.Reconcile(context.Background(), team); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if !f.called("update acme-core") {
		t.Error("expected an attribute update for the existing group")
	}
	if !f.called("remove acme-core bob") {
		t.Error("bob was not removed")
	}
	if adds := f.callsMatching("add "); len(adds) != 0 {
		t.Errorf("unexpected additions: %v", adds)
	}
	if creates := f.callsMatching("create "); len(creates) != 0 {
		t.Errorf("unexpected creations: %v", creates)
	}
	if got := f.members("acme-core"); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("members = %v, want [alice]", got)
	}
}

func TestReconcile_MembershipConvergence(t *testing.T) {
	tests := []struct {
		name     string
		existing []string // nil means the group is absent
		desired  []string
	}{
		{"absent group", nil, []string{"alice", "bob"}},
		{"empty to some", []string{}, []string{"alice"}},
		{"some to empty", []string{"alice", "bob"}, []string{}},
		{"disjoint", []string{"carol"}, []string{"alice", "bob"}},
		{"overlap", []string{"alice", "carol"}, []string{"alice", "bob"}},
		{"subset of existing", []string{"alice", "bob", "carol"}, []string{"alice"}},
		{"superset of existing", []string{"alice"}, []string{"alice", "bob", "carol"}},
		{"already converged", []string{"alice", "bob"}, []string{"alice", "bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeDirectory()
			if tt.existing != nil {
				f.seed("acme-core", "ACME Core", "", tt.existing...)
			}
			e := newTestEngine(f)

			team := manifest.Team{Name: "ACME Core", Key: "acme-core", Members: tt.desired}
			if err := e.Reconcile(context.Background(), team); err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}

			want := []string{}
			want = append(want, tt.desired...)
			sort.Strings(want)
			if got := f.members("acme-core"); !reflect.DeepEqual(got, want) {
				t.Errorf("members = %v, want %v", got, want)
			}
		})
	}
}

func TestReconcile_SecondRunMakesNoMembershipChanges(t *testing.T) {
	f := newFakeDirectory()
	e := newTestEngine(f)
	team := manifest.Team{
		Name:        "ACME Core",
		Key:         "acme-core",
		Description: "Core team",
		Members:     []string{"alice", "bob"},
	}

	if err := e.Reconcile(context.Background(), team); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	f.reset()

	if err := e.Reconcile(context.Background(), team); err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}

	if !f.called("update acme-core") {
		t.Error("the idempotent update should still be issued")
	}
	for _, prefix := range []string{"create ", "delete ", "add ", "remove "} {
		if calls := f.callsMatching(prefix); len(calls) != 0 {
			t.Errorf("second run issued %v", calls)
		}
	}
	if f.called("whoami") {
		t.Error("caller identity resolved without any creation")
	}
}

func TestReconcile_RemovalsCompleteBeforeAdditions(t *testing.T) {
	f := newFakeDirectory()
	f.seed("acme-core", "ACME Core", "", "bob", "carol")
	e := newTestEngine(f)

	team := manifest.Team{Name: "ACME Core", Key: "acme-core", Members: []string{"alice", "dave"}}
	if err := e.Reconcile(context.Background(), team); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	lastRemove, firstAdd := -1, len(f.calls)
	for i, call := range f.calls {
		if strings.HasPrefix(call, "remove ") && i > lastRemove {
			lastRemove = i
		}
		if strings.HasPrefix(call, "add ") && i < firstAdd {
			firstAdd = i
		}
	}
	if lastRemove == -1 || firstAdd == len(f.calls) {
		t.Fatalf("expected both removals and additions, got %v", f.calls)
	}
	if lastRemove > firstAdd {
		t.Errorf("addition started before removals finished: %v", f.calls)
	}
}

func TestReconcile_ParentChangeRebuildsGroup(t *testing.T) {
	f := newFakeDirectory()
	parent := f.seed("acme-platform", "ACME Platform", "")
	f.seed("acme-core", "ACME Core", "", "alice", "bob")

	e := newTestEngine(f)
	team := manifest.Team{
		Name:    "ACME Core",
		Key:     "acme-core",
		Parent:  "ACME Platform",
		Members: []string{"alice"},
	}
	if err := e.Reconcile(context.Background(), team); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if !f.called("delete acme-core") {
		t.Error("group was not deleted for the parent change")
	}
	if !f.called("create acme-core") {
		t.Error("group was not recreated")
	}

	g := f.group("acme-core")
	if g == nil {
		t.Fatal("group missing after rebuild")
	}
	if g.parentID != parent.id {
		t.Errorf("parentID = %q, want %q", g.parentID, parent.id)
	}
	if got := f.members("acme-core"); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("members = %v, want [alice]", got)
	}
}

func TestReconcile_SameParentDoesNotRebuild(t *testing.T) {
	f := newFakeDirectory()
	parent := f.seed("acme-platform", "ACME Platform", "")
	f.seed("acme-core", "ACME Core", parent.id, "alice")

	e := newTestEngine(f)
	team := manifest.Team{Name: "ACME Core", Key: "acme-core", Parent: "ACME Platform", Members: []string{"alice"}}
	if err := e.Reconcile(context.Background(), team); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if f.called("delete acme-core") {
		t.Error("group with the desired parent was deleted")
	}
	if !f.called("update acme-core") {
		t.Error("expected an attribute update")
	}
}

func TestReconcile_MissingParentAborts(t *testing.T) {
	tests := []struct {
		name      string
		seedGroup bool
	}{
		{"group exists", true},
		{"group absent", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeDirectory()
			if tt.seedGroup {
				f.seed("acme-core", "ACME Core", "", "alice")
			}
			e := newTestEngine(f)

			team := manifest.Team{
				Name:    "ACME Core",
				Key:     "acme-core",
				Parent:  "ACME Platform",
				Members: []string{"alice"},
			}
			err := e.Reconcile(context.Background(), team)
			if !errors.Is(err, ErrMissingParent) {
				t.Fatalf("error = %v, want ErrMissingParent", err)
			}
			if muts := f.mutations(); len(muts) != 0 {
				t.Errorf("mutating calls issued despite missing parent: %v", muts)
			}
		})
	}
}

func TestReconcile_CreatorKeptWhenListed(t *testing.T) {
	f := newFakeDirectory()
	e := newTestEngine(f)

	team := manifest.Team{
		Name:    "ACME Core",
		Key:     "acme-core",
		Members: []string{"alice", "svc-team-sync"},
	}
	if err := e.Reconcile(context.Background(), team); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	// Removed unconditionally after creation, then re-added with the rest.
	if !f.called("remove acme-core svc-team-sync") {
		t.Error("creator was not removed after creation")
	}
	if !f.called("add acme-core svc-team-sync") {
		t.Error("listed creator was not re-added")
	}
	if got := f.members("acme-core"); !reflect.DeepEqual(got, []string{"alice", "svc-team-sync"}) {
		t.Errorf("members = %v, want [alice svc-team-sync]", got)
	}
}

func TestReconcile_CallerResolvedOnce(t *testing.T) {
	f := newFakeDirectory()
	e := newTestEngine(f)

	for _, team := range []manifest.Team{
		{Name: "ACME Core", Key: "acme-core"},
		{Name: "ACME Ops", Key: "acme-ops"},
	} {
		if err := e.Reconcile(context.Background(), team); err != nil {
			t.Fatalf("Reconcile(%s) error = %v", team.Name, err)
		}
	}

	if calls := f.callsMatching("whoami"); len(calls) != 1 {
		t.Errorf("whoami calls = %d, want 1", len(calls))
	}
}

func TestReconcile_RemoteFailureAborts(t *testing.T) {
	tests := []struct {
		name      string
		failOp    string
		seedGroup bool
	}{
		{"lookup failure", "lookup-members acme-core", true},
		{"update failure", "update acme-core", true},
		{"remove failure", "remove acme-core bob", true},
		{"create failure", "create acme-core", false},
		{"add failure", "add acme-core alice", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeDirectory()
			if tt.seedGroup {
				f.seed("acme-core", "ACME Core", "", "bob")
			}
			f.failOn[tt.failOp] = errors.New("directory unavailable")
			e := newTestEngine(f)

			team := manifest.Team{Name: "ACME Core", Key: "acme-core", Members: []string{"alice"}}
			err := e.Reconcile(context.Background(), team)
			if err == nil {
				t.Fatal("Reconcile() succeeded despite remote failure")
			}
			if errors.Is(err, directory.ErrNotFound) || errors.Is(err, ErrMissingParent) {
				t.Errorf("remote failure misclassified: %v", err)
			}
		})
	}
}
