package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/pulse/internal/dashboard"
)

type GetDashboardInput struct{}

type GetProjectDashboardInput struct {
	ProjectID int64 `path:"projectID" minimum:"1" doc:"Project ID"`
}

type RefreshDashboardInput struct {
	ProjectID int64 `query:"project_id" minimum:"0" doc:"Refresh only this project; 0 refreshes everything"`
}

type SnapshotOutput struct {
	Body *dashboard.Snapshot
}

func RegisterDashboardRoutes(api huma.API, svc DashboardService) {
	huma.Register(api, huma.Operation{
		OperationID: "get-dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Get the cross-project dashboard",
		Tags:        []string{"Dashboard"},
	}, func(ctx context.Context, _ *GetDashboardInput) (*SnapshotOutput, error) {
		snap, err := svc.Snapshot(ctx, dashboard.AllProjects)
		if err != nil {
			return nil, apiError(err, "failed to load dashboard")
		}
		return &SnapshotOutput{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard/projects/{projectID}",
		Summary:     "Get the dashboard of one project",
		Tags:        []string{"Dashboard"},
	}, func(ctx context.Context, input *GetProjectDashboardInput) (*SnapshotOutput, error) {
		snap, err := svc.Snapshot(ctx, input.ProjectID)
		if err != nil {
			return nil, apiError(err, "failed to load project dashboard")
		}
		return &SnapshotOutput{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-dashboard",
		Method:      http.MethodPost,
		Path:        "/dashboard/refresh",
		Summary:     "Refetch tasks and rebuild the dashboard",
		Tags:        []string{"Dashboard"},
	}, func(ctx context.Context, input *RefreshDashboardInput) (*SnapshotOutput, error) {
		var (
			snap *dashboard.Snapshot
			err  error
		)
		if input.ProjectID == dashboard.AllProjects {
			snap, err = svc.Refresh(ctx)
		} else {
			snap, err = svc.RefreshProject(ctx, input.ProjectID)
		}
		if err != nil {
			return nil, apiError(err, "failed to refresh dashboard")
		}
		return &SnapshotOutput{Body: snap}, nil
	})
}
