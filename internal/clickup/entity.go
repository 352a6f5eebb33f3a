package clickup

import (
	"fmt"
	"time"
)

type StatusType string

const (
	StatusTypeOpen   StatusType = "open"
	StatusTypeCustom StatusType = "custom"
	StatusTypeDone   StatusType = "done"
	StatusTypeClosed StatusType = "closed"
)

func ParseStatusType(s string) (StatusType, error) {
	switch t := StatusType(s); t {
	case StatusTypeOpen, StatusTypeCustom, StatusTypeDone, StatusTypeClosed:
		return t, nil
	}
	return "", fmt.Errorf("unknown status type %q", s)
}

// Active reports whether the status still needs work.
func (t StatusType) Active() bool {
	return t == StatusTypeOpen || t == StatusTypeCustom
}

type Status struct {
	ID         string
	Name       string
	Type       StatusType
	OrderIndex int
	Color      string
}

type Task struct {
	ID          string
	Name        string
	Tags        TagSet
	TextContent string
	Status      Status
	Created     time.Time
	Updated     time.Time
	Due         *time.Time
	// ParentID is empty for top-level tasks.
	ParentID string
	URL      string
	ListID   string
}

func (t *Task) HasTag(tag string) bool {
	return t.Tags.Has(tag)
}

func (t *Task) IsSubtask() bool {
	return t.ParentID != ""
}

// TagSet is an unordered set of tag names.
type TagSet map[string]struct{}

func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, tag := range tags {
		s[tag] = struct{}{}
	}
	return s
}

func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

type User struct {
	ID       int64
	Username string
}

type Team struct {
	ID   string
	Name string
}

type Space struct {
	ID   string
	Name string
}

type List struct {
	ID       string
	Name     string
	Statuses []Status
}

// OpenStatusNames returns the names of the statuses that are not done or closed.
func (l *List) OpenStatusNames() []string {
	var names []string
	for _, s := range l.Statuses {
		if s.Type.Active() {
			names = append(names, s.Name)
		}
	}
	return names
}

type TaskPage struct {
	Tasks    []Task
	LastPage bool
}
