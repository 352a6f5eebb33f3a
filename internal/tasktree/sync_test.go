package tasktree

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskdigest/internal/clickup"
	"github.com/kazz187/taskdigest/pkg/cerr"
)

type fakeFetcher struct {
	mu sync.Mutex

	userID  int64
	teams   []clickup.Team
	spaces  map[string][]clickup.Space
	lists   map[string][]clickup.List
	details map[string]*clickup.List
	// pages[listID][page]
	pages map[string][]clickup.TaskPage

	failList string
	queries  []clickup.TaskQuery
}

func (f *fakeFetcher) GetUser(context.Context) (*clickup.User, error) {
	return &clickup.User{ID: f.userID}, nil
}

func (f *fakeFetcher) GetTeams(context.Context) ([]clickup.Team, error) {
	return f.teams, nil
}

func (f *fakeFetcher) GetSpaces(_ context.Context, teamID string) ([]clickup.Space, error) {
	return f.spaces[teamID], nil
}

func (f *fakeFetcher) GetLists(_ context.Context, spaceID string) ([]clickup.List, error) {
	return f.lists[spaceID], nil
}

func (f *fakeFetcher) GetList(_ context.Context, listID string) (*clickup.List, error) {
	if d, ok := f.details[listID]; ok {
		cp := *d
		return &cp, nil
	}
	return &clickup.List{ID: listID}, nil
}

func (f *fakeFetcher) GetTaskPage(_ context.Context, listID string, q clickup.TaskQuery) (*clickup.TaskPage, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if listID == f.failList {
		return nil, cerr.NewError(cerr.Unavailable, "clickup request failed", &clickup.ResponseError{StatusCode: 502})
	}
	pages := f.pages[listID]
	if q.Page >= len(pages) {
		return nil, fmt.Errorf("page %d of %s requested past the last page", q.Page, listID)
	}
	p := pages[q.Page]
	return &p, nil
}

func task(id, parent string) clickup.Task {
	return clickup.Task{
		ID:       id,
		Name:     "task " + id,
		ParentID: parent,
		Status:   clickup.Status{Name: "to do", Type: clickup.StatusTypeOpen},
	}
}

func newFixture() *fakeFetcher {
	return &fakeFetcher{
		userID: 7,
		teams:  []clickup.Team{{ID: "t1", Name: "Home"}},
		spaces: map[string][]clickup.Space{"t1": {{ID: "s1", Name: "School"}}},
		lists:  map[string][]clickup.List{"s1": {{ID: "l1", Name: "Courses"}, {ID: "l2", Name: "Chores"}}},
		details: map[string]*clickup.List{
			"l1": {ID: "l1", Name: "Courses", Statuses: []clickup.Status{
				{Name: "to do", Type: clickup.StatusTypeOpen},
				{Name: "doing", Type: clickup.StatusTypeCustom},
				{Name: "complete", Type: clickup.StatusTypeClosed},
			}},
		},
		pages: map[string][]clickup.TaskPage{
			"l1": {
				{Tasks: []clickup.Task{task("a", ""), task("a1", "a")}},
				// An empty page in the middle must not end pagination.
				{Tasks: nil},
				{Tasks: []clickup.Task{task("a2", "a"), task("x", "ghost")}, LastPage: true},
			},
			"l2": {
				{Tasks: []clickup.Task{task("b", ""), task("b1", "a")}, LastPage: true},
			},
		},
	}
}

func TestSyncer_Synchronize(t *testing.T) {
	f := newFixture()
	tree, err := NewSyncer(f, SyncOptions{AssignedOnly: true, Concurrency: 2}).Synchronize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Stats{Teams: 1, Spaces: 1, Lists: 2, Tasks: 6, Roots: 3, Orphans: 1}, tree.Stats())

	var ids []string
	for _, task := range tree.Tasks() {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"a", "a1", "a2", "x", "b", "b1"}, ids)

	a, ok := tree.Lookup("a")
	require.True(t, ok)
	var children []string
	for _, c := range tree.Children(a) {
		children = append(children, tree.Task(c).ID)
	}
	// b1 lives in another list but still resolves to its parent.
	assert.Equal(t, []string{"a1", "a2", "b1"}, children)

	x, _ := tree.Lookup("x")
	_, hasParent := tree.Parent(x)
	assert.False(t, hasParent)
	assert.Contains(t, tree.Roots(), x)
	assert.Equal(t, []Orphan{{TaskID: "x", ParentID: "ghost"}}, tree.Orphans())

	lists := tree.Teams[0].Spaces[0].Lists
	assert.Equal(t, "Courses", lists[0].List.Name)
	assert.Len(t, lists[0].List.Statuses, 3)
	assert.Len(t, lists[0].Tasks, 4)
	assert.Len(t, lists[0].Roots, 2)
	assert.Len(t, lists[1].Roots, 1)

	for _, q := range f.queries {
		assert.Equal(t, int64(7), q.AssigneeID)
	}
	assert.Len(t, f.queries, 4)
}

func TestSyncer_ParentChildConsistency(t *testing.T) {
	tree, err := NewSyncer(newFixture(), SyncOptions{}).Synchronize(context.Background())
	require.NoError(t, err)

	for i := range tree.Tasks() {
		p, ok := tree.Parent(i)
		if !ok {
			assert.Contains(t, tree.Roots(), i)
			continue
		}
		assert.Less(t, p, tree.Len())
		assert.Contains(t, tree.Children(p), i)
		assert.Equal(t, tree.Task(p).ID, tree.Task(i).ParentID)
	}
}

func TestSyncer_OpenStatusFilter(t *testing.T) {
	f := newFixture()
	_, err := NewSyncer(f, SyncOptions{}).Synchronize(context.Background())
	require.NoError(t, err)

	var sawCourses bool
	for _, q := range f.queries {
		assert.Zero(t, q.AssigneeID)
		if len(q.Statuses) > 0 {
			sawCourses = true
			assert.Equal(t, []string{"to do", "doing"}, q.Statuses)
		}
	}
	assert.True(t, sawCourses)
}

func TestSyncer_DuplicateTaskKeepsFirst(t *testing.T) {
	f := newFixture()
	dup := task("a", "")
	dup.Name = "duplicate"
	f.pages["l2"][0].Tasks = append(f.pages["l2"][0].Tasks, dup)

	tree, err := NewSyncer(f, SyncOptions{}).Synchronize(context.Background())
	require.NoError(t, err)

	i, ok := tree.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "task a", tree.Task(i).Name)
	assert.Equal(t, 6, tree.Len())
	assert.Contains(t, tree.Teams[0].Spaces[0].Lists[1].Tasks, i)
}

func TestSyncer_FailureAborts(t *testing.T) {
	f := newFixture()
	f.failList = "l2"

	tree, err := NewSyncer(f, SyncOptions{Concurrency: 2}).Synchronize(context.Background())
	require.Error(t, err)
	assert.Nil(t, tree)
	assert.Equal(t, cerr.Unavailable, cerr.CodeOf(err))
}

func TestSyncer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSyncer(newFixture(), SyncOptions{}).Synchronize(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
