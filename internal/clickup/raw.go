package clickup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number, a numeric string or null.
type flexInt int64

func (i *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*i = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", s, err)
	}
	*i = flexInt(f)
	return nil
}

// epochMillis is a millisecond unix timestamp sent as a string, a number or null.
type epochMillis struct {
	valid bool
	ms    int64
}

func (e *epochMillis) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*e = epochMillis{}
		return nil
	}
	ms, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	*e = epochMillis{valid: true, ms: ms}
	return nil
}

func (e epochMillis) time() time.Time {
	if !e.valid {
		return time.Time{}
	}
	return time.UnixMilli(e.ms)
}

func (e epochMillis) ptr() *time.Time {
	if !e.valid {
		return nil
	}
	t := time.UnixMilli(e.ms)
	return &t
}

type rawStatus struct {
	ID         flexString `json:"id"`
	Status     string     `json:"status"`
	Type       string     `json:"type"`
	OrderIndex flexInt    `json:"orderindex"`
	Color      string     `json:"color"`
}

func (r rawStatus) toStatus() (Status, error) {
	typ, err := ParseStatusType(r.Type)
	if err != nil {
		return Status{}, fmt.Errorf("status %q: %w", r.Status, err)
	}
	return Status{
		ID:         string(r.ID),
		Name:       r.Status,
		Type:       typ,
		OrderIndex: int(r.OrderIndex),
		Color:      r.Color,
	}, nil
}

type rawTag struct {
	Name string `json:"name"`
}

type rawTask struct {
	ID          flexString  `json:"id"`
	Name        string      `json:"name"`
	TextContent string      `json:"text_content"`
	Tags        []rawTag    `json:"tags"`
	Status      *rawStatus  `json:"status"`
	DateCreated epochMillis `json:"date_created"`
	DateUpdated epochMillis `json:"date_updated"`
	DueDate     epochMillis `json:"due_date"`
	Parent      flexString  `json:"parent"`
	URL         string      `json:"url"`
	List        *struct {
		ID flexString `json:"id"`
	} `json:"list"`
}

func (r rawTask) toTask() (Task, error) {
	if r.ID == "" {
		return Task{}, fmt.Errorf("task without id")
	}
	if r.Status == nil {
		return Task{}, fmt.Errorf("task %s has no status", r.ID)
	}
	status, err := r.Status.toStatus()
	if err != nil {
		return Task{}, fmt.Errorf("task %s: %w", r.ID, err)
	}
	tags := make(TagSet, len(r.Tags))
	for _, tag := range r.Tags {
		tags[tag.Name] = struct{}{}
	}
	t := Task{
		ID:          string(r.ID),
		Name:        r.Name,
		Tags:        tags,
		TextContent: r.TextContent,
		Status:      status,
		Created:     r.DateCreated.time(),
		Updated:     r.DateUpdated.time(),
		Due:         r.DueDate.ptr(),
		ParentID:    string(r.Parent),
		URL:         r.URL,
	}
	if r.List != nil {
		t.ListID = string(r.List.ID)
	}
	return t, nil
}

type rawTaskPage struct {
	Tasks    []rawTask `json:"tasks"`
	LastPage *bool     `json:"last_page"`
}

type rawIDName struct {
	ID   flexString `json:"id"`
	Name string     `json:"name"`
}

type rawUserResponse struct {
	User *struct {
		ID       flexInt `json:"id"`
		Username string  `json:"username"`
	} `json:"user"`
}

type rawTeamsResponse struct {
	Teams []rawIDName `json:"teams"`
}

type rawSpacesResponse struct {
	Spaces []rawIDName `json:"spaces"`
}

type rawListsResponse struct {
	Lists []rawIDName `json:"lists"`
}

type rawList struct {
	ID       flexString  `json:"id"`
	Name     string      `json:"name"`
	Statuses []rawStatus `json:"statuses"`
}
