package digest

import (
	"cmp"
	"slices"
	"time"

	"github.com/kazz187/taskdigest/internal/clickup"
	"github.com/kazz187/taskdigest/internal/tasktree"
)

const (
	BucketScheduled = "scheduled"
	BucketActive    = "active"
)

// Item is a task placed in a bucket. Parent is set for subtasks whose
// parent was part of the same synchronization.
type Item struct {
	Task   *clickup.Task
	Parent *clickup.Task
}

type Bucket struct {
	Name  string
	Title string
	Items []Item
}

type ClassifyOptions struct {
	ScheduleTag    string
	ScheduledTitle string
	ActiveTitle    string
}

// Classify splits the tree into the scheduled and active buckets, in that
// order. A schedule item is kept only when it is due on now's calendar day in
// now's location; it is scheduled unless done or closed, and like any other
// open task it is also active. A task can therefore be in both buckets.
func Classify(tree *tasktree.Tree, now time.Time, opts ClassifyOptions) []Bucket {
	scheduled := Bucket{Name: BucketScheduled, Title: opts.ScheduledTitle}
	active := Bucket{Name: BucketActive, Title: opts.ActiveTitle}

	for i := range tree.Len() {
		task := tree.Task(i)
		item := Item{Task: task}
		if p, ok := tree.Parent(i); ok {
			item.Parent = tree.Task(p)
		}

		if task.HasTag(opts.ScheduleTag) {
			// Schedule items of other days are left out of this digest entirely.
			if !dueOn(task, now) {
				continue
			}
			if task.Status.Type.Active() {
				scheduled.Items = append(scheduled.Items, item)
			}
		}
		if task.Status.Type.Active() {
			active.Items = append(active.Items, item)
		}
	}

	sortItems(scheduled.Items)
	sortItems(active.Items)
	return []Bucket{scheduled, active}
}

func dueOn(task *clickup.Task, now time.Time) bool {
	if task.Due == nil {
		return false
	}
	dy, dm, dd := task.Due.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	return dy == ny && dm == nm && dd == nd
}

// sortItems orders by due date ascending with undated tasks last, then by ID.
func sortItems(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		ad, bd := a.Task.Due, b.Task.Due
		switch {
		case ad == nil && bd != nil:
			return 1
		case ad != nil && bd == nil:
			return -1
		case ad != nil && bd != nil:
			if c := ad.Compare(*bd); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Task.ID, b.Task.ID)
	})
}
