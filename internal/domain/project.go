package domain

import (
	"context"
	"time"
)

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerEmail  string    `json:"owner_email,omitempty"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Column is a lane on a project board. Tasks belong to exactly one column.
type Column struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Color     string `json:"color,omitempty"`
	Position  int    `json:"position"`
	ProjectID int64  `json:"project_id"`
}

// ProjectSource lists projects and their board columns.
type ProjectSource interface {
	ListProjects(ctx context.Context) ([]*Project, error)
	ListColumns(ctx context.Context, projectID int64) ([]*Column, error)
}
