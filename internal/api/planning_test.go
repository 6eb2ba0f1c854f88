package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/planward/planward/internal/gemini"
	"github.com/planward/planward/internal/store"
)

func TestGenerateGraph(t *testing.T) {
	ms := newMockStore()
	pid := seedProject(ms)
	seedStory(ms, pid, "US-1")
	seedStory(ms, pid, "US-2")
	gen := &scriptedGen{result: gemini.Result{
		Text:   `{"frm": "US-1", "to": ["US-2"]}`,
		Status: gemini.StatusOK,
	}}
	r := newTestAPI(ms, gen).Router()

	rec := serve(r, http.MethodPost, "/api/v1/projects/"+string(pid)+"/dependencies/generate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var graph store.DependencyGraph
	if err := json.Unmarshal(rec.Body.Bytes(), &graph); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(graph.Edges["US-1"]) != 1 {
		t.Errorf("edges = %v", graph.Edges)
	}
	if ms.graphs[pid] == nil {
		t.Error("graph was not persisted")
	}
}

func TestGenerateGraphEmptyProject(t *testing.T) {
	ms := newMockStore()
	pid := seedProject(ms)
	r := newTestAPI(ms, nil).Router()

	rec := serve(r, http.MethodPost, "/api/v1/projects/"+string(pid)+"/dependencies/generate", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetGraphMissing(t *testing.T) {
	ms := newMockStore()
	pid := seedProject(ms)
	r := newTestAPI(ms, nil).Router()

	rec := serve(r, http.MethodGet, "/api/v1/projects/"+string(pid)+"/dependencies", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGenerateBacklogFallback(t *testing.T) {
	ms := newMockStore()
	pid := seedProject(ms)
	seedStory(ms, pid, "US-2")
	seedStory(ms, pid, "US-1")
	gen := &scriptedGen{result: gemini.Result{Status: gemini.StatusBlocked}}
	r := newTestAPI(ms, gen).Router()

	rec := serve(r, http.MethodPost, "/api/v1/projects/"+string(pid)+"/backlog/generate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var backlog store.ReleaseBacklog
	if err := json.Unmarshal(rec.Body.Bytes(), &backlog); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(backlog.StoryCodes) != 2 || backlog.StoryCodes[0] != "US-1" {
		t.Errorf("codes = %v, want alphabetical fallback", backlog.StoryCodes)
	}
}

func TestGeneratePlanWithoutConfig(t *testing.T) {
	ms := newMockStore()
	pid := seedProject(ms)
	seedStory(ms, pid, "US-1")
	r := newTestAPI(ms, nil).Router()

	rec := serve(r, http.MethodPost, "/api/v1/projects/"+string(pid)+"/release-plan/generate", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGeneratePlanUnusableResponse(t *testing.T) {
	ms := newMockStore()
	pid := seedProject(ms)
	seedStory(ms, pid, "US-1")
	_ = ms.UpsertProjectConfig(context.Background(), &store.ProjectConfig{
		ProjectID:           pid,
		NumDevs:             2,
		TeamVelocity:        10,
		SprintDurationWeeks: 2,
		ReleaseTargetDate:   time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	gen := &scriptedGen{result: gemini.Result{Text: "no plan here", Status: gemini.StatusOK}}
	r := newTestAPI(ms, gen).Router()

	rec := serve(r, http.MethodPost, "/api/v1/projects/"+string(pid)+"/release-plan/generate", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestPutAndGetConfig(t *testing.T) {
	ms := newMockStore()
	pid := seedProject(ms)
	r := newTestAPI(ms, nil).Router()

	rec := serve(r, http.MethodPut, "/api/v1/projects/"+string(pid)+"/config",
		`{"num_devs": 3, "team_velocity": 12, "sprint_duration_weeks": 2, "release_target_date": "2026-12-01"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = serve(r, http.MethodGet, "/api/v1/projects/"+string(pid)+"/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var cfg store.ProjectConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.TeamVelocity != 12 {
		t.Errorf("velocity = %d, want 12", cfg.TeamVelocity)
	}
}

func TestPutConfigValidation(t *testing.T) {
	ms := newMockStore()
	pid := seedProject(ms)
	r := newTestAPI(ms, nil).Router()

	cases := []string{
		`{"num_devs": 0, "team_velocity": 12, "sprint_duration_weeks": 2, "release_target_date": "2026-12-01"}`,
		`{"num_devs": 3, "team_velocity": 12, "sprint_duration_weeks": 2, "release_target_date": "December 1st"}`,
	}
	for _, body := range cases {
		rec := serve(r, http.MethodPut, "/api/v1/projects/"+string(pid)+"/config", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}
