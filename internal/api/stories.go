package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/planward/planward/internal/store"
)

type storyRequest struct {
	Code               string   `json:"code"`
	Epic               string   `json:"epic"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Priority           string   `json:"priority"`
	StoryPoints        int      `json:"story_points"`
	DoR                int      `json:"dor"`
	Status             string   `json:"status"`
	DependentsCount    int      `json:"dependents_count"`
}

func (req *storyRequest) validate() error {
	if req.Code == "" || req.Name == "" {
		return errors.New("code and name are required")
	}
	if !store.ValidStoryPoints(req.StoryPoints) {
		return fmt.Errorf("story_points must be one of %v", store.StoryPointScale)
	}
	switch store.Priority(req.Priority) {
	case store.PriorityHigh, store.PriorityMedium, store.PriorityLow:
	default:
		return errors.New("priority must be High, Medium or Low")
	}
	if req.DoR < 0 || req.DoR > 100 {
		return errors.New("dor must be between 0 and 100")
	}
	if req.DependentsCount < 0 {
		return errors.New("dependents_count cannot be negative")
	}
	return nil
}

func (req *storyRequest) toStory(projectID store.ID) *store.Story {
	status := store.StoryStatus(req.Status)
	if status == "" {
		status = store.StoryStatusReady
	}
	return &store.Story{
		ProjectID:          projectID,
		Code:               req.Code,
		Epic:               req.Epic,
		Name:               req.Name,
		Description:        req.Description,
		AcceptanceCriteria: req.AcceptanceCriteria,
		Priority:           store.Priority(req.Priority),
		StoryPoints:        req.StoryPoints,
		DoR:                req.DoR,
		Status:             status,
		DependentsCount:    req.DependentsCount,
	}
}

func (a *API) createStory(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	var req storyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st := req.toStory(id)
	if err := a.store.CreateStory(r.Context(), st); err != nil {
		a.logger.Error("create story failed", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create story")
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// createStoriesBulk inserts a batch atomically. Any duplicate code rejects
// the whole batch with a 409.
func (a *API) createStoriesBulk(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	var reqs []storyRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one story is required")
		return
	}

	seen := map[string]bool{}
	stories := make([]*store.Story, 0, len(reqs))
	for i := range reqs {
		if err := reqs[i].validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("story %d: %s", i, err))
			return
		}
		if seen[reqs[i].Code] {
			writeError(w, http.StatusConflict, fmt.Sprintf("duplicate code %s in request", reqs[i].Code))
			return
		}
		seen[reqs[i].Code] = true
		stories = append(stories, reqs[i].toStory(id))
	}

	if err := a.store.CreateStories(r.Context(), id, stories); err != nil {
		if errors.Is(err, store.ErrDuplicateCode) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		a.logger.Error("bulk create stories failed", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create stories")
		return
	}
	writeJSON(w, http.StatusCreated, stories)
}

func (a *API) listStories(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	stories, err := a.store.ListStories(r.Context(), id)
	if err != nil {
		a.logger.Error("list stories failed", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list stories")
		return
	}
	if stories == nil {
		stories = []*store.Story{}
	}
	writeJSON(w, http.StatusOK, stories)
}

func (a *API) deleteStory(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.projectID(w, r); !ok {
		return
	}
	storyID, err := store.ParseID(chi.URLParam(r, "storyID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid story id")
		return
	}
	if err := a.store.DeleteStory(r.Context(), storyID); err != nil {
		a.logger.Error("delete story failed", "story_id", storyID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete story")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
