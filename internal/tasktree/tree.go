package tasktree

import (
	"github.com/kazz187/taskdigest/internal/clickup"
)

const noParent = -1

// Tree is one synchronization result. Tasks live in a flat arena and refer
// to each other by arena index, so parent and child links are consistent by
// construction and never outlive the Tree.
type Tree struct {
	Teams []TeamNode

	tasks    []clickup.Task
	index    map[string]int
	parent   []int
	children [][]int
	roots    []int
	orphans  []Orphan
}

type TeamNode struct {
	Team   clickup.Team
	Spaces []SpaceNode
}

type SpaceNode struct {
	Space clickup.Space
	Lists []ListNode
}

// ListNode holds arena indices of the tasks fetched for a list and of those
// among them without a resolved parent.
type ListNode struct {
	List  clickup.List
	Tasks []int
	Roots []int
}

// Orphan is a task whose parent was not part of the same synchronization.
type Orphan struct {
	TaskID   string
	ParentID string
}

type Stats struct {
	Teams   int
	Spaces  int
	Lists   int
	Tasks   int
	Roots   int
	Orphans int
}

func (t *Tree) Len() int {
	return len(t.tasks)
}

// Tasks returns every task of the tree. The slice must not be modified.
func (t *Tree) Tasks() []clickup.Task {
	return t.tasks
}

func (t *Tree) Task(i int) *clickup.Task {
	return &t.tasks[i]
}

func (t *Tree) Lookup(id string) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// Parent returns the arena index of the resolved parent of task i.
func (t *Tree) Parent(i int) (int, bool) {
	p := t.parent[i]
	return p, p != noParent
}

func (t *Tree) Children(i int) []int {
	return t.children[i]
}

// Roots returns the tasks without a resolved parent, orphans included.
func (t *Tree) Roots() []int {
	return t.roots
}

func (t *Tree) Orphans() []Orphan {
	return t.orphans
}

func (t *Tree) Stats() Stats {
	s := Stats{
		Teams:   len(t.Teams),
		Tasks:   len(t.tasks),
		Roots:   len(t.roots),
		Orphans: len(t.orphans),
	}
	for _, team := range t.Teams {
		s.Spaces += len(team.Spaces)
		for _, space := range team.Spaces {
			s.Lists += len(space.Lists)
		}
	}
	return s
}

// FromTasks builds a tree outside of any list hierarchy, linking parents
// the same way a synchronization does.
func FromTasks(tasks []clickup.Task) *Tree {
	b := newBuilder()
	var node ListNode
	b.addTasks(&node, tasks)
	return b.link()
}

// builder assembles a Tree from fetched lists. Tasks that appear in more
// than one list are stored once, at their first occurrence.
type builder struct {
	tree *Tree
}

func newBuilder() *builder {
	return &builder{tree: &Tree{index: make(map[string]int)}}
}

func (b *builder) addTasks(node *ListNode, tasks []clickup.Task) {
	t := b.tree
	for _, task := range tasks {
		i, ok := t.index[task.ID]
		if !ok {
			i = len(t.tasks)
			t.tasks = append(t.tasks, task)
			t.index[task.ID] = i
		}
		node.Tasks = append(node.Tasks, i)
	}
}

// link resolves parent identifiers across the whole arena.
func (b *builder) link() *Tree {
	t := b.tree
	t.parent = make([]int, len(t.tasks))
	t.children = make([][]int, len(t.tasks))
	for i := range t.tasks {
		t.parent[i] = noParent
		pid := t.tasks[i].ParentID
		if pid == "" {
			continue
		}
		p, ok := t.index[pid]
		if !ok || p == i {
			t.orphans = append(t.orphans, Orphan{TaskID: t.tasks[i].ID, ParentID: pid})
			continue
		}
		t.parent[i] = p
		t.children[p] = append(t.children[p], i)
	}
	for i := range t.tasks {
		if t.parent[i] == noParent {
			t.roots = append(t.roots, i)
		}
	}
	for ti := range t.Teams {
		for si := range t.Teams[ti].Spaces {
			lists := t.Teams[ti].Spaces[si].Lists
			for li := range lists {
				for _, i := range lists[li].Tasks {
					if t.parent[i] == noParent {
						lists[li].Roots = append(lists[li].Roots, i)
					}
				}
			}
		}
	}
	return t
}
