package v1

import (
	"context"

	"github.com/gosuda/pulse/internal/dashboard"
	"github.com/gosuda/pulse/internal/domain"
	"github.com/gosuda/pulse/internal/realtime"
)

// DashboardService abstracts snapshot and role operations for handler testing.
// *dashboard.Service satisfies this interface.
type DashboardService interface {
	Snapshot(ctx context.Context, projectID int64) (*dashboard.Snapshot, error)
	Refresh(ctx context.Context) (*dashboard.Snapshot, error)
	RefreshProject(ctx context.Context, projectID int64) (*dashboard.Snapshot, error)
	EffectiveRoles(ctx context.Context, projectID int64) (domain.ColumnRoles, []domain.RoleAssignment, error)
	SetRoles(ctx context.Context, projectID int64, assignments []domain.RoleAssignment) error
	ClearRoles(ctx context.Context, projectID int64) error
}

// LiveManager abstracts the live board stream for handler testing.
// *realtime.Manager satisfies this interface.
type LiveManager interface {
	Status() (realtime.Status, bool)
	Watch(projectID int64) *realtime.Client
}
