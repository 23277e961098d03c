package domain

import (
	"context"
	"time"
)

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists every priority from most to least pressing.
var Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow} //nolint:gochecknoglobals // fixed enum order

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Label returns the display label shown on dashboards.
func (p Priority) Label() string {
	switch p {
	case PriorityUrgent:
		return "Urgente"
	case PriorityHigh:
		return "Alta"
	case PriorityMedium:
		return "Média"
	case PriorityLow:
		return "Baixa"
	default:
		return string(p)
	}
}

// Pressing reports whether the priority lands a task on the urgent list.
func (p Priority) Pressing() bool {
	return p == PriorityUrgent || p == PriorityHigh
}

type Assignee struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Task is a card on a project board. Status is whatever the backend reports;
// the owning column decides the lifecycle bucket.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Priority    Priority   `json:"priority"`
	Position    int        `json:"position"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ColumnID    int64      `json:"column_id"`
	ProjectID   int64      `json:"project_id"`
	ProjectName string     `json:"project_name,omitempty"`
	Assignees   []Assignee `json:"assignees,omitempty"`
}

// TaskSource lists the tasks of a project.
type TaskSource interface {
	ListTasks(ctx context.Context, projectID int64) ([]*Task, error)
}
