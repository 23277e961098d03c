package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/pulse/internal/domain"
)

type ProjectRolesInput struct {
	ProjectID int64 `path:"projectID" minimum:"1" doc:"Project ID"`
}

type RoleAssignmentBody struct {
	ColumnID int64         `json:"column_id" minimum:"1"`
	Role     domain.Bucket `json:"role" enum:"pending,in_progress,completed"`
}

type PutRolesInput struct {
	ProjectID int64 `path:"projectID" minimum:"1" doc:"Project ID"`
	Body      struct {
		Assignments []RoleAssignmentBody `json:"assignments" maxItems:"100"`
	}
}

type ProjectRoles struct {
	ProjectID   int64                   `json:"project_id"`
	Roles       domain.ColumnRoles      `json:"roles"`
	Assignments []domain.RoleAssignment `json:"assignments"`
	Inferred    bool                    `json:"inferred" doc:"True when no explicit assignment applies and roles come from board order"`
}

type ProjectRolesOutput struct {
	Body *ProjectRoles
}

// RegisterRoleRoutes registers the read-only role routes.
func RegisterRoleRoutes(api huma.API, svc DashboardService) {
	huma.Register(api, huma.Operation{
		OperationID: "get-project-roles",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/roles",
		Summary:     "Get the effective column roles of a project",
		Tags:        []string{"Roles"},
	}, func(ctx context.Context, input *ProjectRolesInput) (*ProjectRolesOutput, error) {
		return effectiveRoles(ctx, svc, input.ProjectID)
	})
}

// RegisterRoleAdminRoutes registers the routes that change role assignments.
func RegisterRoleAdminRoutes(api huma.API, svc DashboardService) {
	huma.Register(api, huma.Operation{
		OperationID: "put-project-roles",
		Method:      http.MethodPut,
		Path:        "/projects/{projectID}/roles",
		Summary:     "Replace the explicit column roles of a project",
		Tags:        []string{"Roles"},
	}, func(ctx context.Context, input *PutRolesInput) (*ProjectRolesOutput, error) {
		assignments := make([]domain.RoleAssignment, 0, len(input.Body.Assignments))
		for _, a := range input.Body.Assignments {
			assignments = append(assignments, domain.RoleAssignment{
				ProjectID: input.ProjectID,
				ColumnID:  a.ColumnID,
				Role:      a.Role,
			})
		}

		if err := svc.SetRoles(ctx, input.ProjectID, assignments); err != nil {
			return nil, apiError(err, "failed to save column roles")
		}
		return effectiveRoles(ctx, svc, input.ProjectID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project-roles",
		Method:      http.MethodDelete,
		Path:        "/projects/{projectID}/roles",
		Summary:     "Drop explicit column roles and infer them from board order",
		Tags:        []string{"Roles"},
	}, func(ctx context.Context, input *ProjectRolesInput) (*struct{}, error) {
		if err := svc.ClearRoles(ctx, input.ProjectID); err != nil {
			return nil, apiError(err, "failed to clear column roles")
		}
		return nil, nil
	})
}

func effectiveRoles(ctx context.Context, svc DashboardService, projectID int64) (*ProjectRolesOutput, error) {
	roles, assignments, err := svc.EffectiveRoles(ctx, projectID)
	if err != nil {
		return nil, apiError(err, "failed to resolve column roles")
	}
	if assignments == nil {
		assignments = []domain.RoleAssignment{}
	}

	return &ProjectRolesOutput{Body: &ProjectRoles{
		ProjectID:   projectID,
		Roles:       roles,
		Assignments: assignments,
		Inferred:    len(assignments) == 0,
	}}, nil
}
