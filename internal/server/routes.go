package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/pulse/internal/api/v1"
	"github.com/gosuda/pulse/internal/api/ws"
)

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterDashboardRoutes(api, deps.Dashboard)
	v1.RegisterRoleRoutes(api, deps.Dashboard)
	v1.RegisterLiveRoutes(api, deps.Live)
}

func registerAdminRoutes(api huma.API, deps Deps) {
	v1.RegisterRoleAdminRoutes(api, deps.Dashboard)
	v1.RegisterLiveAdminRoutes(api, deps.Live)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/dashboard", hub.ServeDashboard)
	r.Get("/dashboard/projects/{projectID}", hub.ServeDashboard)
}
