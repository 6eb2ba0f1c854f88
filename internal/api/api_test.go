package api

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/planward/planward/internal/gemini"
	"github.com/planward/planward/internal/planner"
	"github.com/planward/planward/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStore keeps everything in memory so handler tests exercise the full
// request path without a database.
type mockStore struct {
	projects map[store.ID]*store.Project
	stories  map[store.ID][]*store.Story
	configs  map[store.ID]*store.ProjectConfig
	graphs   map[store.ID]*store.DependencyGraph
	backlogs map[store.ID]*store.ReleaseBacklog
	plans    map[store.ID]*store.ReleasePlanRecord
}

func newMockStore() *mockStore {
	return &mockStore{
		projects: map[store.ID]*store.Project{},
		stories:  map[store.ID][]*store.Story{},
		configs:  map[store.ID]*store.ProjectConfig{},
		graphs:   map[store.ID]*store.DependencyGraph{},
		backlogs: map[store.ID]*store.ReleaseBacklog{},
		plans:    map[store.ID]*store.ReleasePlanRecord{},
	}
}

func (m *mockStore) CreateProject(_ context.Context, p *store.Project) error {
	if p.ID == "" {
		p.ID = store.NewID()
	}
	p.CreatedAt = time.Now()
	m.projects[p.ID] = p
	return nil
}

func (m *mockStore) GetProject(_ context.Context, id store.ID) (*store.Project, error) {
	return m.projects[id], nil
}

func (m *mockStore) ListProjects(_ context.Context, _ store.ProjectFilter) ([]*store.Project, error) {
	var out []*store.Project
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockStore) DeleteProject(_ context.Context, id store.ID) error {
	delete(m.projects, id)
	return nil
}

func (m *mockStore) CreateStory(_ context.Context, s *store.Story) error {
	if s.ID == "" {
		s.ID = store.NewID()
	}
	m.stories[s.ProjectID] = append(m.stories[s.ProjectID], s)
	return nil
}

func (m *mockStore) CreateStories(_ context.Context, projectID store.ID, stories []*store.Story) error {
	existing := map[string]bool{}
	for _, s := range m.stories[projectID] {
		existing[s.Code] = true
	}
	for _, s := range stories {
		if existing[s.Code] {
			return store.ErrDuplicateCode
		}
	}
	for _, s := range stories {
		if s.ID == "" {
			s.ID = store.NewID()
		}
		m.stories[projectID] = append(m.stories[projectID], s)
	}
	return nil
}

func (m *mockStore) ListStories(_ context.Context, projectID store.ID) ([]*store.Story, error) {
	return m.stories[projectID], nil
}

func (m *mockStore) DeleteStory(_ context.Context, id store.ID) error {
	for pid, list := range m.stories {
		for i, s := range list {
			if s.ID == id {
				m.stories[pid] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (m *mockStore) UpdateStoryDependents(_ context.Context, projectID store.ID, counts map[string]int) error {
	for _, s := range m.stories[projectID] {
		s.DependentsCount = counts[s.Code]
	}
	return nil
}

func (m *mockStore) UpsertProjectConfig(_ context.Context, cfg *store.ProjectConfig) error {
	m.configs[cfg.ProjectID] = cfg
	return nil
}

func (m *mockStore) GetProjectConfig(_ context.Context, projectID store.ID) (*store.ProjectConfig, error) {
	return m.configs[projectID], nil
}

func (m *mockStore) ReplaceDependencyGraph(_ context.Context, g *store.DependencyGraph) error {
	g.GeneratedAt = time.Now()
	m.graphs[g.ProjectID] = g
	return nil
}

func (m *mockStore) GetDependencyGraph(_ context.Context, projectID store.ID) (*store.DependencyGraph, error) {
	return m.graphs[projectID], nil
}

func (m *mockStore) ReplaceReleaseBacklog(_ context.Context, b *store.ReleaseBacklog) error {
	b.GeneratedAt = time.Now()
	m.backlogs[b.ProjectID] = b
	return nil
}

func (m *mockStore) GetReleaseBacklog(_ context.Context, projectID store.ID) (*store.ReleaseBacklog, error) {
	return m.backlogs[projectID], nil
}

func (m *mockStore) ReplaceReleasePlan(_ context.Context, rec *store.ReleasePlanRecord) error {
	if rec.ID == "" {
		rec.ID = store.NewID()
	}
	rec.GeneratedAt = time.Now()
	m.plans[rec.ProjectID] = rec
	return nil
}

func (m *mockStore) GetReleasePlan(_ context.Context, projectID store.ID) (*store.ReleasePlanRecord, error) {
	return m.plans[projectID], nil
}

func (m *mockStore) Close() error { return nil }

// scriptedGen returns the same result on every call.
type scriptedGen struct {
	result gemini.Result
}

func (g *scriptedGen) Generate(_ context.Context, _ string, _ gemini.Options) gemini.Result {
	return g.result
}

func newTestAPI(ms *mockStore, gen gemini.Client) *API {
	if gen == nil {
		gen = &scriptedGen{result: gemini.Result{Status: gemini.StatusError}}
	}
	logger := testLogger()
	return New(ms,
		planner.NewGraphBuilder(ms, gen, nil, logger),
		planner.NewBacklogSelector(ms, gen, nil, 2, 10, logger),
		planner.NewPlanGenerator(ms, gen, nil, logger),
		logger,
	)
}

func serve(r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func seedProject(ms *mockStore) store.ID {
	p := &store.Project{Code: "PW", Name: "Planward"}
	_ = ms.CreateProject(context.Background(), p)
	return p.ID
}

func seedStory(ms *mockStore, pid store.ID, code string) {
	_ = ms.CreateStory(context.Background(), &store.Story{
		ProjectID:   pid,
		Code:        code,
		Name:        "Story " + code,
		Priority:    store.PriorityHigh,
		StoryPoints: 5,
		Status:      store.StoryStatusReady,
	})
}
