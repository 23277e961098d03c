package domain

import (
	"context"
	"fmt"
	"time"
)

// Bucket is the lifecycle classification of a task on a dashboard.
type Bucket string

const (
	BucketPending    Bucket = "pending"
	BucketInProgress Bucket = "in_progress"
	BucketCompleted  Bucket = "completed"
)

// Valid reports whether b is one of the three buckets.
func (b Bucket) Valid() bool {
	switch b {
	case BucketPending, BucketInProgress, BucketCompleted:
		return true
	default:
		return false
	}
}

// Label returns the display label shown on dashboards.
func (b Bucket) Label() string {
	switch b {
	case BucketPending:
		return "Pendentes"
	case BucketInProgress:
		return "Em andamento"
	case BucketCompleted:
		return "Concluídas"
	default:
		return string(b)
	}
}

// ColumnRoles maps a project's columns onto the three buckets.
// A zero column id means the role is unassigned.
type ColumnRoles struct {
	PendingColumnID     int64   `json:"pending_column_id"`
	InProgressColumnIDs []int64 `json:"in_progress_column_ids"`
	CompletedColumnID   int64   `json:"completed_column_id"`
}

// InProgress reports whether columnID is one of the in-progress columns.
func (r ColumnRoles) InProgress(columnID int64) bool {
	for _, id := range r.InProgressColumnIDs {
		if id == columnID {
			return true
		}
	}
	return false
}

// RoleMap holds the column roles of every known project, keyed by project id.
type RoleMap map[int64]ColumnRoles

// RoleAssignment is an explicit role tag for one column of a project.
type RoleAssignment struct {
	ProjectID int64     `json:"project_id"`
	ColumnID  int64     `json:"column_id"`
	Role      Bucket    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateAssignments checks that a project's assignments are usable: known
// roles, positive column ids, each column tagged once, and at most one
// pending and one completed column.
func ValidateAssignments(assignments []RoleAssignment) error {
	seen := make(map[int64]struct{}, len(assignments))
	var pending, completed int

	for _, a := range assignments {
		if a.ColumnID <= 0 {
			return fmt.Errorf("column id %d: %w", a.ColumnID, ErrInvalidRoles)
		}
		if !a.Role.Valid() {
			return fmt.Errorf("role %q: %w", a.Role, ErrInvalidRoles)
		}
		if _, dup := seen[a.ColumnID]; dup {
			return fmt.Errorf("column %d tagged twice: %w", a.ColumnID, ErrInvalidRoles)
		}
		seen[a.ColumnID] = struct{}{}

		switch a.Role {
		case BucketPending:
			pending++
		case BucketCompleted:
			completed++
		case BucketInProgress:
		}
	}

	if pending > 1 {
		return fmt.Errorf("more than one pending column: %w", ErrInvalidRoles)
	}
	if completed > 1 {
		return fmt.Errorf("more than one completed column: %w", ErrInvalidRoles)
	}
	return nil
}

type RoleAssignmentRepository interface {
	ListByProject(ctx context.Context, projectID int64) ([]RoleAssignment, error)
	Replace(ctx context.Context, projectID int64, assignments []RoleAssignment) error
	DeleteByProject(ctx context.Context, projectID int64) error
}
