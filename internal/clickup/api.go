package clickup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/kazz187/taskdigest/pkg/cerr"
)

func malformed(path string, err error) error {
	return cerr.NewError(cerr.DataLoss, fmt.Sprintf("malformed clickup response for %s", path), err)
}

// GetUser returns the user owning the credential.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var resp rawUserResponse
	if err := c.Call(ctx, "user", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, malformed("user", errors.New("missing user"))
	}
	return &User{ID: int64(resp.User.ID), Username: resp.User.Username}, nil
}

func (c *Client) GetTeams(ctx context.Context) ([]Team, error) {
	var resp rawTeamsResponse
	if err := c.Call(ctx, "team", nil, &resp); err != nil {
		return nil, err
	}
	teams := make([]Team, 0, len(resp.Teams))
	for _, t := range resp.Teams {
		teams = append(teams, Team{ID: string(t.ID), Name: t.Name})
	}
	return teams, nil
}

func (c *Client) GetSpaces(ctx context.Context, teamID string) ([]Space, error) {
	path := "team/" + url.PathEscape(teamID) + "/space"
	var resp rawSpacesResponse
	if err := c.Call(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	spaces := make([]Space, 0, len(resp.Spaces))
	for _, s := range resp.Spaces {
		spaces = append(spaces, Space{ID: string(s.ID), Name: s.Name})
	}
	return spaces, nil
}

func (c *Client) GetLists(ctx context.Context, spaceID string) ([]List, error) {
	path := "space/" + url.PathEscape(spaceID) + "/list"
	var resp rawListsResponse
	if err := c.Call(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	lists := make([]List, 0, len(resp.Lists))
	for _, l := range resp.Lists {
		lists = append(lists, List{ID: string(l.ID), Name: l.Name})
	}
	return lists, nil
}

// GetList fetches a single list including its status set.
func (c *Client) GetList(ctx context.Context, listID string) (*List, error) {
	path := "list/" + url.PathEscape(listID)
	var resp rawList
	if err := c.Call(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	l := &List{ID: string(resp.ID), Name: resp.Name}
	if l.ID == "" {
		l.ID = listID
	}
	for _, rs := range resp.Statuses {
		s, err := rs.toStatus()
		if err != nil {
			return nil, malformed(path, err)
		}
		l.Statuses = append(l.Statuses, s)
	}
	return l, nil
}

type TaskQuery struct {
	Page int
	// AssigneeID restricts the page to tasks assigned to the user when non-zero.
	AssigneeID int64
	// Statuses restricts the page to the named statuses when non-empty.
	Statuses []string
}

func (q TaskQuery) values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("order_by", "due_date")
	v.Set("subtasks", "true")
	if q.AssigneeID != 0 {
		v.Add("assignees[]", strconv.FormatInt(q.AssigneeID, 10))
	}
	for _, s := range q.Statuses {
		v.Add("statuses[]", s)
	}
	return v
}

// GetTaskPage fetches one page of the tasks of a list, subtasks included.
// A response without the last_page marker is malformed.
func (c *Client) GetTaskPage(ctx context.Context, listID string, q TaskQuery) (*TaskPage, error) {
	if q.Page < 0 {
		return nil, cerr.NewError(cerr.InvalidArgument, "page must not be negative", nil)
	}
	path := "list/" + url.PathEscape(listID) + "/task"
	var resp rawTaskPage
	if err := c.Call(ctx, path, q.values(), &resp); err != nil {
		return nil, err
	}
	if resp.LastPage == nil {
		return nil, malformed(path, errors.New("missing last_page"))
	}
	page := &TaskPage{LastPage: *resp.LastPage, Tasks: make([]Task, 0, len(resp.Tasks))}
	for _, rt := range resp.Tasks {
		t, err := rt.toTask()
		if err != nil {
			return nil, malformed(path, err)
		}
		if t.ListID == "" {
			t.ListID = listID
		}
		page.Tasks = append(page.Tasks, t)
	}
	return page, nil
}
