package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/planward/planward/internal/store"
)

type configRequest struct {
	NumDevs             int    `json:"num_devs"`
	TeamVelocity        int    `json:"team_velocity"`
	SprintDurationWeeks int    `json:"sprint_duration_weeks"`
	ReleaseTargetDate   string `json:"release_target_date"`
	TeamCapacity        int    `json:"team_capacity"`
	OptimisticPct       int    `json:"optimistic_pct"`
	RealisticPct        int    `json:"realistic_pct"`
	PessimisticPct      int    `json:"pessimistic_pct"`
}

func (a *API) putConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NumDevs <= 0 || req.TeamVelocity <= 0 || req.SprintDurationWeeks <= 0 {
		writeError(w, http.StatusBadRequest, "num_devs, team_velocity and sprint_duration_weeks must be positive")
		return
	}
	target, err := time.Parse("2006-01-02", req.ReleaseTargetDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "release_target_date must be YYYY-MM-DD")
		return
	}

	project, err := a.store.GetProject(r.Context(), id)
	if err != nil {
		a.logger.Error("load project failed", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load project")
		return
	}
	if project == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	cfg := &store.ProjectConfig{
		ProjectID:           id,
		NumDevs:             req.NumDevs,
		TeamVelocity:        req.TeamVelocity,
		SprintDurationWeeks: req.SprintDurationWeeks,
		ReleaseTargetDate:   target,
		TeamCapacity:        req.TeamCapacity,
		OptimisticPct:       req.OptimisticPct,
		RealisticPct:        req.RealisticPct,
		PessimisticPct:      req.PessimisticPct,
	}
	if err := a.store.UpsertProjectConfig(r.Context(), cfg); err != nil {
		a.logger.Error("upsert config failed", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) getConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	cfg, err := a.store.GetProjectConfig(r.Context(), id)
	if err != nil {
		a.logger.Error("load config failed", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load config")
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "project config not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
