package backend

import (
	"strings"
	"time"

	"github.com/gosuda/pulse/internal/domain"
)

// Timestamp layouts the backend is known to emit. Zone-less values are read
// in the client's location.
var timeLayouts = []string{ //nolint:gochecknoglobals // fixed parse table
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseTimePtr(s *string, loc *time.Location) *time.Time {
	if s == nil {
		return nil
	}
	t, ok := parseTime(*s, loc)
	if !ok {
		return nil
	}
	return &t
}

func parseTimeValue(s string, loc *time.Location) time.Time {
	t, _ := parseTime(s, loc)
	return t
}

type wireProject struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	OwnerEmail  string  `json:"owner_email"`
	MemberCount int     `json:"member_count"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func (w *wireProject) toDomain(loc *time.Location) *domain.Project {
	p := &domain.Project{
		ID:          w.ID,
		Name:        w.Name,
		OwnerEmail:  w.OwnerEmail,
		MemberCount: w.MemberCount,
		CreatedAt:   parseTimeValue(w.CreatedAt, loc),
		UpdatedAt:   parseTimeValue(w.UpdatedAt, loc),
	}
	if w.Description != nil {
		p.Description = *w.Description
	}
	return p
}

type wireColumn struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Color     *string `json:"color"`
	Position  int     `json:"position"`
	ProjectID int64   `json:"project_id"`
}

func (w *wireColumn) toDomain() *domain.Column {
	c := &domain.Column{
		ID:        w.ID,
		Title:     w.Title,
		Position:  w.Position,
		ProjectID: w.ProjectID,
	}
	if w.Color != nil {
		c.Color = *w.Color
	}
	return c
}

type wireUser struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type wireCard struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	Position    int        `json:"position"`
	DueDate     *string    `json:"due_date"`
	CompletedAt *string    `json:"completed_at"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
	ColumnID    int64      `json:"column_id"`
	ProjectID   int64      `json:"project_id"`
	Assignees   []wireUser `json:"assignees"`
}

func (w *wireCard) toDomain(loc *time.Location) *domain.Task {
	t := &domain.Task{
		ID:          w.ID,
		Title:       w.Title,
		Status:      w.Status,
		Priority:    domain.Priority(strings.ToLower(w.Priority)),
		Position:    w.Position,
		DueDate:     parseTimePtr(w.DueDate, loc),
		CompletedAt: parseTimePtr(w.CompletedAt, loc),
		CreatedAt:   parseTimeValue(w.CreatedAt, loc),
		UpdatedAt:   parseTimeValue(w.UpdatedAt, loc),
		ColumnID:    w.ColumnID,
		ProjectID:   w.ProjectID,
	}
	if w.Description != nil {
		t.Description = *w.Description
	}
	if !t.Priority.Valid() {
		t.Priority = domain.PriorityMedium
	}
	for _, u := range w.Assignees {
		t.Assignees = append(t.Assignees, domain.Assignee{ID: u.ID, Name: u.FullName, Email: u.Email})
	}
	return t
}
