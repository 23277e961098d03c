package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/pulse/internal/realtime"
)

type GetLiveInput struct{}

type LiveStatus struct {
	Watching bool `json:"watching"`
	realtime.Status
}

type LiveStatusOutput struct {
	Body *LiveStatus
}

type PutLiveInput struct {
	Body struct {
		ProjectID int64 `json:"project_id" minimum:"0" doc:"Project to follow; 0 stops following"`
	}
}

// RegisterLiveRoutes registers the live stream status route.
func RegisterLiveRoutes(api huma.API, live LiveManager) {
	huma.Register(api, huma.Operation{
		OperationID: "get-live-status",
		Method:      http.MethodGet,
		Path:        "/live",
		Summary:     "Get the status of the live board stream",
		Tags:        []string{"Live"},
	}, func(_ context.Context, _ *GetLiveInput) (*LiveStatusOutput, error) {
		return liveStatus(live), nil
	})
}

// RegisterLiveAdminRoutes registers the route switching the followed project.
func RegisterLiveAdminRoutes(api huma.API, live LiveManager) {
	huma.Register(api, huma.Operation{
		OperationID: "put-live-project",
		Method:      http.MethodPut,
		Path:        "/live",
		Summary:     "Follow another project's live board stream",
		Tags:        []string{"Live"},
	}, func(_ context.Context, input *PutLiveInput) (*LiveStatusOutput, error) {
		live.Watch(input.Body.ProjectID)
		return liveStatus(live), nil
	})
}

func liveStatus(live LiveManager) *LiveStatusOutput {
	st, ok := live.Status()
	return &LiveStatusOutput{Body: &LiveStatus{Watching: ok, Status: st}}
}
