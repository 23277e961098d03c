package v1_test

import (
	"context"

	"github.com/gosuda/pulse/internal/dashboard"
	"github.com/gosuda/pulse/internal/domain"
	"github.com/gosuda/pulse/internal/realtime"
)

// ---------------------------------------------------------------------------
// Mock DashboardService
// ---------------------------------------------------------------------------

type mockDashboard struct {
	snapshotFunc       func(ctx context.Context, projectID int64) (*dashboard.Snapshot, error)
	refreshFunc        func(ctx context.Context) (*dashboard.Snapshot, error)
	refreshProjectFunc func(ctx context.Context, projectID int64) (*dashboard.Snapshot, error)
	effectiveRolesFunc func(ctx context.Context, projectID int64) (domain.ColumnRoles, []domain.RoleAssignment, error)
	setRolesFunc       func(ctx context.Context, projectID int64, assignments []domain.RoleAssignment) error
	clearRolesFunc     func(ctx context.Context, projectID int64) error
}

func (m *mockDashboard) Snapshot(ctx context.Context, projectID int64) (*dashboard.Snapshot, error) {
	return m.snapshotFunc(ctx, projectID)
}

func (m *mockDashboard) Refresh(ctx context.Context) (*dashboard.Snapshot, error) {
	return m.refreshFunc(ctx)
}

func (m *mockDashboard) RefreshProject(ctx context.Context, projectID int64) (*dashboard.Snapshot, error) {
	return m.refreshProjectFunc(ctx, projectID)
}

func (m *mockDashboard) EffectiveRoles(ctx context.Context, projectID int64) (domain.ColumnRoles, []domain.RoleAssignment, error) {
	return m.effectiveRolesFunc(ctx, projectID)
}

func (m *mockDashboard) SetRoles(ctx context.Context, projectID int64, assignments []domain.RoleAssignment) error {
	return m.setRolesFunc(ctx, projectID, assignments)
}

func (m *mockDashboard) ClearRoles(ctx context.Context, projectID int64) error {
	return m.clearRolesFunc(ctx, projectID)
}

// ---------------------------------------------------------------------------
// Mock LiveManager
// ---------------------------------------------------------------------------

type mockLive struct {
	status   realtime.Status
	watching bool
	watched  []int64
}

func (m *mockLive) Status() (realtime.Status, bool) { return m.status, m.watching }

func (m *mockLive) Watch(projectID int64) *realtime.Client {
	m.watched = append(m.watched, projectID)
	m.status = realtime.Status{ProjectID: projectID, State: "connecting"}
	m.watching = projectID != 0
	return nil
}

func snapshotFixture(projectID int64) *dashboard.Snapshot {
	return &dashboard.Snapshot{
		ProjectID: projectID,
		Projects:  1,
		Roles:     domain.RoleMap{},
		Summary: &dashboard.Summary{
			Counts:       dashboard.Counts{Pending: 2, InProgress: 1, Completed: 3},
			OverdueTotal: 1,
		},
	}
}
