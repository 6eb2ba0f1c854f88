// Package api exposes the HTTP surface: project and story CRUD, planning
// configuration, and the artifact generation endpoints.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	"github.com/planward/planward/internal/planner"
	"github.com/planward/planward/internal/store"
)

type API struct {
	store    store.Store
	graphs   *planner.GraphBuilder
	backlogs *planner.BacklogSelector
	plans    *planner.PlanGenerator
	logger   *slog.Logger

	// flight collapses concurrent generation requests for the same
	// project and artifact into a single model call.
	flight singleflight.Group
}

func New(s store.Store, graphs *planner.GraphBuilder, backlogs *planner.BacklogSelector, plans *planner.PlanGenerator, logger *slog.Logger) *API {
	return &API{
		store:    s,
		graphs:   graphs,
		backlogs: backlogs,
		plans:    plans,
		logger:   logger,
	}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(a.logger))
	r.Use(RateLimit(20, 40))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Post("/", a.createProject)
			r.Get("/", a.listProjects)

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", a.getProject)
				r.Delete("/", a.deleteProject)

				r.Post("/stories", a.createStory)
				r.Post("/stories/bulk", a.createStoriesBulk)
				r.Get("/stories", a.listStories)
				r.Delete("/stories/{storyID}", a.deleteStory)

				r.Put("/config", a.putConfig)
				r.Get("/config", a.getConfig)

				r.Post("/dependencies/generate", a.generateGraph)
				r.Get("/dependencies", a.getGraph)

				r.Post("/backlog/generate", a.generateBacklog)
				r.Get("/backlog", a.getBacklog)

				r.Post("/release-plan/generate", a.generatePlan)
				r.Get("/release-plan", a.getPlan)
			})
		})
	})

	return r
}

// NewMetricsRouter serves the operational endpoints on a separate listener.
func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// projectID parses the path parameter, writing a 400 on malformed IDs.
func (a *API) projectID(w http.ResponseWriter, r *http.Request) (store.ID, bool) {
	id, err := store.ParseID(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return "", false
	}
	return id, true
}
