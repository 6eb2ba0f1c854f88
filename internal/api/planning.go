package api

import (
	"net/http"

	"github.com/planward/planward/internal/store"
)

// generate runs one artifact generation under singleflight so concurrent
// requests for the same project share a single model call and result.
func (a *API) generate(w http.ResponseWriter, r *http.Request, kind string, fn func(store.ID) (interface{}, error)) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	result, err, shared := a.flight.Do(kind+":"+string(id), func() (interface{}, error) {
		return fn(id)
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if shared {
		a.logger.Info("generation request coalesced", "artifact", kind, "project_id", id)
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) generateGraph(w http.ResponseWriter, r *http.Request) {
	a.generate(w, r, "graph", func(id store.ID) (interface{}, error) {
		return a.graphs.Build(r.Context(), id)
	})
}

func (a *API) getGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	graph, err := a.graphs.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (a *API) generateBacklog(w http.ResponseWriter, r *http.Request) {
	a.generate(w, r, "backlog", func(id store.ID) (interface{}, error) {
		return a.backlogs.Select(r.Context(), id)
	})
}

func (a *API) getBacklog(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	backlog, err := a.backlogs.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backlog)
}

func (a *API) generatePlan(w http.ResponseWriter, r *http.Request) {
	a.generate(w, r, "plan", func(id store.ID) (interface{}, error) {
		return a.plans.Generate(r.Context(), id)
	})
}

func (a *API) getPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	rec, err := a.plans.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
