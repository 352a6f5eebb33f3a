package tasktree

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/kazz187/taskdigest/internal/clickup"
	"github.com/kazz187/taskdigest/pkg/panicerr"
)

// Fetcher is the part of the ClickUp API the synchronization walks.
type Fetcher interface {
	GetUser(ctx context.Context) (*clickup.User, error)
	GetTeams(ctx context.Context) ([]clickup.Team, error)
	GetSpaces(ctx context.Context, teamID string) ([]clickup.Space, error)
	GetLists(ctx context.Context, spaceID string) ([]clickup.List, error)
	GetList(ctx context.Context, listID string) (*clickup.List, error)
	GetTaskPage(ctx context.Context, listID string, q clickup.TaskQuery) (*clickup.TaskPage, error)
}

type SyncOptions struct {
	// AssignedOnly limits tasks to those assigned to the credential's user.
	AssignedOnly bool
	// Concurrency bounds the number of lists fetched at once.
	Concurrency int
}

type Syncer struct {
	fetcher Fetcher
	opts    SyncOptions
}

func NewSyncer(fetcher Fetcher, opts SyncOptions) *Syncer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Syncer{fetcher: fetcher, opts: opts}
}

// Synchronize fetches the whole hierarchy and returns a fresh Tree. Any
// failure aborts the call; a partial Tree is never returned.
func (s *Syncer) Synchronize(ctx context.Context) (*Tree, error) {
	start := time.Now()

	var assignee int64
	if s.opts.AssignedOnly {
		user, err := s.fetcher.GetUser(ctx)
		if err != nil {
			return nil, err
		}
		assignee = user.ID
	}

	b := newBuilder()
	tree := b.tree

	teams, err := s.fetcher.GetTeams(ctx)
	if err != nil {
		return nil, err
	}
	var slots []*ListNode
	for _, team := range teams {
		teamNode := TeamNode{Team: team}
		spaces, err := s.fetcher.GetSpaces(ctx, team.ID)
		if err != nil {
			return nil, err
		}
		for _, space := range spaces {
			lists, err := s.fetcher.GetLists(ctx, space.ID)
			if err != nil {
				return nil, err
			}
			spaceNode := SpaceNode{Space: space, Lists: make([]ListNode, len(lists))}
			for i, l := range lists {
				spaceNode.Lists[i].List = l
			}
			teamNode.Spaces = append(teamNode.Spaces, spaceNode)
		}
		tree.Teams = append(tree.Teams, teamNode)
	}
	for ti := range tree.Teams {
		for si := range tree.Teams[ti].Spaces {
			for li := range tree.Teams[ti].Spaces[si].Lists {
				slots = append(slots, &tree.Teams[ti].Spaces[si].Lists[li])
			}
		}
	}

	// Lists are fetched concurrently but merged in hierarchy order so that
	// the arena layout does not depend on scheduling.
	fetched := make([][]clickup.Task, len(slots))
	p := pool.New().
		WithMaxGoroutines(s.opts.Concurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i, slot := range slots {
		p.Go(panicerr.SafeContext(func(ctx context.Context) error {
			list, tasks, err := s.fetchList(ctx, slot.List, assignee)
			if err != nil {
				return err
			}
			slot.List = *list
			fetched[i] = tasks
			return nil
		}))
	}
	if err := p.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	for i, slot := range slots {
		b.addTasks(slot, fetched[i])
	}
	tree = b.link()

	for _, o := range tree.Orphans() {
		slog.WarnContext(ctx, "tasktree: task parent not in this sync", "task_id", o.TaskID, "parent_id", o.ParentID)
	}
	stats := tree.Stats()
	slog.InfoContext(ctx, "tasktree: synchronized",
		"teams", stats.Teams,
		"spaces", stats.Spaces,
		"lists", stats.Lists,
		"tasks", stats.Tasks,
		"orphans", stats.Orphans,
		"duration", time.Since(start),
	)
	return tree, nil
}

// fetchList refreshes the list's status set and pages through its tasks
// until the server reports the last page. An empty page does not end the loop.
func (s *Syncer) fetchList(ctx context.Context, l clickup.List, assignee int64) (*clickup.List, []clickup.Task, error) {
	list, err := s.fetcher.GetList(ctx, l.ID)
	if err != nil {
		return nil, nil, err
	}
	if list.Name == "" {
		list.Name = l.Name
	}

	q := clickup.TaskQuery{AssigneeID: assignee, Statuses: list.OpenStatusNames()}
	var tasks []clickup.Task
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		q.Page = page
		resp, err := s.fetcher.GetTaskPage(ctx, list.ID, q)
		if err != nil {
			return nil, nil, fmt.Errorf("list %s page %d: %w", list.ID, page, err)
		}
		tasks = append(tasks, resp.Tasks...)
		if resp.LastPage {
			return list, tasks, nil
		}
	}
}
