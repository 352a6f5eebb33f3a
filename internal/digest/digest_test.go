package digest

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskdigest/internal/clickup"
	"github.com/kazz187/taskdigest/internal/tasktree"
)

var (
	testNow  = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	testOpts = ClassifyOptions{ScheduleTag: "course", ScheduledTitle: "Scheduled for today", ActiveTitle: "In progress"}
)

func at(t time.Time) *time.Time { return &t }

func newTask(id string, statusType clickup.StatusType, due *time.Time, tags ...string) clickup.Task {
	return clickup.Task{
		ID:     id,
		Name:   strings.ToUpper(id),
		Tags:   clickup.NewTagSet(tags...),
		Status: clickup.Status{Name: string(statusType), Type: statusType},
		Due:    due,
		URL:    "u/" + id,
	}
}

func itemIDs(b Bucket) []string {
	var ids []string
	for _, it := range b.Items {
		ids = append(ids, it.Task.ID)
	}
	return ids
}

// threeTaskTree is a course due today, an assignment due in three days and a
// finished task due yesterday.
func threeTaskTree() *tasktree.Tree {
	return tasktree.FromTasks([]clickup.Task{
		newTask("a", clickup.StatusTypeOpen, at(time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)), "course"),
		newTask("b", clickup.StatusTypeCustom, at(testNow.Add(72*time.Hour)), "assignment"),
		newTask("c", clickup.StatusTypeDone, at(testNow.Add(-24*time.Hour)), "done"),
	})
}

func TestClassify_ThreeTasks(t *testing.T) {
	buckets := Classify(threeTaskTree(), testNow, testOpts)
	require.Len(t, buckets, 2)
	assert.Equal(t, BucketScheduled, buckets[0].Name)
	assert.Equal(t, []string{"a"}, itemIDs(buckets[0]))
	assert.Equal(t, BucketActive, buckets[1].Name)
	assert.Equal(t, []string{"a", "b"}, itemIDs(buckets[1]))
}

func TestClassify_ScheduleItemOnlyToday(t *testing.T) {
	tests := []struct {
		name      string
		due       *time.Time
		status    clickup.StatusType
		scheduled bool
		active    bool
	}{
		{"today", at(time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC)), clickup.StatusTypeOpen, true, true},
		{"today early morning", at(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)), clickup.StatusTypeOpen, true, true},
		{"yesterday", at(time.Date(2026, 3, 3, 23, 59, 0, 0, time.UTC)), clickup.StatusTypeOpen, false, false},
		{"tomorrow", at(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)), clickup.StatusTypeOpen, false, false},
		{"no due date", nil, clickup.StatusTypeOpen, false, false},
		{"today but closed", at(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)), clickup.StatusTypeClosed, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := tasktree.FromTasks([]clickup.Task{newTask("x", tt.status, tt.due, "course")})
			buckets := Classify(tree, testNow, testOpts)
			assert.Equal(t, tt.scheduled, len(buckets[0].Items) == 1)
			assert.Equal(t, tt.active, len(buckets[1].Items) == 1)
		})
	}
}

func TestClassify_LocalCalendarDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	now := time.Date(2026, 3, 4, 7, 0, 0, 0, tokyo)
	// 2026-03-03 23:30 UTC is 08:30 on Mar 04 in JST.
	due := time.Date(2026, 3, 3, 23, 30, 0, 0, time.UTC)
	tree := tasktree.FromTasks([]clickup.Task{newTask("x", clickup.StatusTypeOpen, &due, "course")})

	buckets := Classify(tree, now, testOpts)
	assert.Equal(t, []string{"x"}, itemIDs(buckets[0]))
}

func TestClassify_Ordering(t *testing.T) {
	tree := tasktree.FromTasks([]clickup.Task{
		newTask("n2", clickup.StatusTypeOpen, nil),
		newTask("late", clickup.StatusTypeOpen, at(testNow.Add(48*time.Hour))),
		newTask("n1", clickup.StatusTypeOpen, nil),
		newTask("tie-b", clickup.StatusTypeOpen, at(testNow.Add(time.Hour))),
		newTask("tie-a", clickup.StatusTypeOpen, at(testNow.Add(time.Hour))),
		newTask("done", clickup.StatusTypeClosed, at(testNow)),
	})
	buckets := Classify(tree, testNow, testOpts)
	assert.Empty(t, buckets[0].Items)
	assert.Equal(t, []string{"tie-a", "tie-b", "late", "n1", "n2"}, itemIDs(buckets[1]))
}

func TestClassify_Parent(t *testing.T) {
	parent := newTask("p", clickup.StatusTypeOpen, nil)
	child := newTask("c", clickup.StatusTypeOpen, nil)
	child.ParentID = "p"
	orphan := newTask("o", clickup.StatusTypeOpen, nil)
	orphan.ParentID = "gone"

	buckets := Classify(tasktree.FromTasks([]clickup.Task{parent, child, orphan}), testNow, testOpts)
	byID := map[string]Item{}
	for _, it := range buckets[1].Items {
		byID[it.Task.ID] = it
	}
	require.NotNil(t, byID["c"].Parent)
	assert.Equal(t, "p", byID["c"].Parent.ID)
	assert.Nil(t, byID["o"].Parent)
	assert.Nil(t, byID["p"].Parent)
}

func TestRenderer_ThreeTasks(t *testing.T) {
	r := NewRenderer("course", 20)
	lines := r.Render(Classify(threeTaskTree(), testNow, testOpts), testNow)
	assert.Equal(t, []string{
		"## Scheduled for today",
		"- 🏫 **14:00** [a](<u/a>) A",
		"## In progress",
		"- 🏫 **14:00** [a](<u/a>) A",
		"- 📝 **+3d 0h, Mar 07 09:00** [b](<u/b>) B",
	}, lines)

	assert.Len(t, Chunk(lines, 2000), 1)

	chunks := Chunk(lines, 80)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 80)
	}
	assert.Equal(t, lines, strings.Split(strings.Join(chunks, "\n"), "\n"))
}

func TestRenderer_Truncation(t *testing.T) {
	var tasks []clickup.Task
	for i := range 25 {
		tasks = append(tasks, newTask(fmt.Sprintf("t%02d", i), clickup.StatusTypeOpen, at(testNow.Add(time.Duration(i+1)*time.Hour))))
	}
	buckets := Classify(tasktree.FromTasks(tasks), testNow, testOpts)
	lines := NewRenderer("course", 20).Render(buckets, testNow)

	require.Len(t, lines, 22)
	assert.Equal(t, "## In progress", lines[0])
	var taskLines int
	for _, l := range lines {
		if strings.HasPrefix(l, "- ") {
			taskLines++
		}
	}
	assert.Equal(t, 20, taskLines)
	assert.Equal(t, "…and 5 more", lines[21])
	assert.Contains(t, lines[20], "[t19]")
}

func TestRenderer_Empty(t *testing.T) {
	r := NewRenderer("course", 20)
	assert.Nil(t, r.RenderBucket(Bucket{Title: "In progress"}, testNow))
	assert.Equal(t, []string{FallbackLine}, r.Render([]Bucket{{Title: "a"}, {Title: "b"}}, testNow))
}

func TestRenderer_Item(t *testing.T) {
	r := NewRenderer("course", 20)
	overdue := newTask("x", clickup.StatusTypeOpen, at(testNow.Add(-(26*time.Hour + 30*time.Minute))), "exam", "meeting")
	overdue.Name = "Final\nexam"
	parent := newTask("p", clickup.StatusTypeOpen, nil)
	parent.Name = "Physics"

	tests := []struct {
		name string
		item Item
		want string
	}{
		{
			"overdue subtask with priority glyph",
			Item{Task: &overdue, Parent: &parent},
			"- 📖 **-1d 2h, Mar 03 06:30** [x](<u/x>) [Physics] Final exam",
		},
		{
			"no due date",
			Item{Task: at2(newTask("n", clickup.StatusTypeOpen, nil, "misc"))},
			"- 📌 **no due date** [n](<u/n>) N",
		},
		{
			"course without time",
			Item{Task: at2(newTask("c", clickup.StatusTypeOpen, nil, "course", "event"))},
			"- 🎉 **no time** [c](<u/c>) C",
		},
		{
			"meeting",
			Item{Task: at2(newTask("m", clickup.StatusTypeOpen, at(testNow.Add(90*time.Minute)), "meeting"))},
			"- 👥 **+0d 1h, Mar 04 10:30** [m](<u/m>) M",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.RenderItem(tt.item, testNow))
		})
	}
}

func at2(t clickup.Task) *clickup.Task { return &t }

func TestCountdown(t *testing.T) {
	assert.Equal(t, "+3d 0h", Countdown(testNow.Add(72*time.Hour), testNow))
	assert.Equal(t, "+0d 0h", Countdown(testNow.Add(59*time.Minute), testNow))
	assert.Equal(t, "-0d 5h", Countdown(testNow.Add(-5*time.Hour), testNow))
}

func TestChunk(t *testing.T) {
	t.Run("preserves order and limit", func(t *testing.T) {
		lines := []string{"aaaa", "bb", "cccccc", "d", "eeeee", "ffffffffff"}
		for limit := 10; limit <= 30; limit++ {
			chunks := Chunk(lines, limit)
			for _, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c), limit)
			}
			assert.Equal(t, lines, strings.Split(strings.Join(chunks, "\n"), "\n"))
		}
	})

	t.Run("line at exactly the limit fits alone", func(t *testing.T) {
		chunks := Chunk([]string{"ab", "0123456789", "cd"}, 10)
		assert.Equal(t, []string{"ab", "0123456789", "cd"}, chunks)
	})

	t.Run("greedy packing", func(t *testing.T) {
		assert.Equal(t, []string{"ab\ncd", "ef"}, Chunk([]string{"ab", "cd", "ef"}, 5))
	})

	t.Run("counts runes", func(t *testing.T) {
		assert.Equal(t, []string{"ééé\nüü"}, Chunk([]string{"ééé", "üü"}, 6))
	})

	t.Run("over-long line is truncated", func(t *testing.T) {
		chunks := Chunk([]string{"short", "this line is far too long"}, 10)
		assert.Equal(t, []string{"short", "this line…"}, chunks)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, Chunk(nil, 10))
	})
}
