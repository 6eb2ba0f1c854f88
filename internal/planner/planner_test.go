package planner

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/planward/planward/internal/gemini"
	"github.com/planward/planward/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory store keyed the same way the real one is.
type fakeStore struct {
	projects map[store.ID]*store.Project
	stories  map[store.ID][]*store.Story
	configs  map[store.ID]*store.ProjectConfig
	graphs   map[store.ID]*store.DependencyGraph
	backlogs map[store.ID]*store.ReleaseBacklog
	plans    map[store.ID]*store.ReleasePlanRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: map[store.ID]*store.Project{},
		stories:  map[store.ID][]*store.Story{},
		configs:  map[store.ID]*store.ProjectConfig{},
		graphs:   map[store.ID]*store.DependencyGraph{},
		backlogs: map[store.ID]*store.ReleaseBacklog{},
		plans:    map[store.ID]*store.ReleasePlanRecord{},
	}
}

func (f *fakeStore) CreateProject(_ context.Context, p *store.Project) error {
	if p.ID == "" {
		p.ID = store.NewID()
	}
	p.CreatedAt = time.Now()
	f.projects[p.ID] = p
	return nil
}

func (f *fakeStore) GetProject(_ context.Context, id store.ID) (*store.Project, error) {
	return f.projects[id], nil
}

func (f *fakeStore) ListProjects(_ context.Context, _ store.ProjectFilter) ([]*store.Project, error) {
	var out []*store.Project
	for _, p := range f.projects {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) DeleteProject(_ context.Context, id store.ID) error {
	delete(f.projects, id)
	return nil
}

func (f *fakeStore) CreateStory(_ context.Context, s *store.Story) error {
	if s.ID == "" {
		s.ID = store.NewID()
	}
	f.stories[s.ProjectID] = append(f.stories[s.ProjectID], s)
	return nil
}

func (f *fakeStore) CreateStories(_ context.Context, projectID store.ID, stories []*store.Story) error {
	existing := map[string]bool{}
	for _, s := range f.stories[projectID] {
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
		s.ProjectID = projectID
		f.stories[projectID] = append(f.stories[projectID], s)
	}
	return nil
}

func (f *fakeStore) ListStories(_ context.Context, projectID store.ID) ([]*store.Story, error) {
	return f.stories[projectID], nil
}

func (f *fakeStore) DeleteStory(_ context.Context, id store.ID) error {
	for pid, list := range f.stories {
		for i, s := range list {
			if s.ID == id {
				f.stories[pid] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (f *fakeStore) UpdateStoryDependents(_ context.Context, projectID store.ID, counts map[string]int) error {
	for _, s := range f.stories[projectID] {
		s.DependentsCount = counts[s.Code]
	}
	return nil
}

func (f *fakeStore) UpsertProjectConfig(_ context.Context, cfg *store.ProjectConfig) error {
	f.configs[cfg.ProjectID] = cfg
	return nil
}

func (f *fakeStore) GetProjectConfig(_ context.Context, projectID store.ID) (*store.ProjectConfig, error) {
	return f.configs[projectID], nil
}

func (f *fakeStore) ReplaceDependencyGraph(_ context.Context, g *store.DependencyGraph) error {
	g.GeneratedAt = time.Now()
	f.graphs[g.ProjectID] = g
	return nil
}

func (f *fakeStore) GetDependencyGraph(_ context.Context, projectID store.ID) (*store.DependencyGraph, error) {
	return f.graphs[projectID], nil
}

func (f *fakeStore) ReplaceReleaseBacklog(_ context.Context, b *store.ReleaseBacklog) error {
	b.GeneratedAt = time.Now()
	f.backlogs[b.ProjectID] = b
	return nil
}

func (f *fakeStore) GetReleaseBacklog(_ context.Context, projectID store.ID) (*store.ReleaseBacklog, error) {
	return f.backlogs[projectID], nil
}

func (f *fakeStore) ReplaceReleasePlan(_ context.Context, rec *store.ReleasePlanRecord) error {
	if rec.ID == "" {
		rec.ID = store.NewID()
	}
	rec.GeneratedAt = time.Now()
	f.plans[rec.ProjectID] = rec
	return nil
}

func (f *fakeStore) GetReleasePlan(_ context.Context, projectID store.ID) (*store.ReleasePlanRecord, error) {
	return f.plans[projectID], nil
}

func (f *fakeStore) Close() error { return nil }

// fakeGen returns scripted results in order; extra calls repeat the last one.
type fakeGen struct {
	results []gemini.Result
	prompts []string
	calls   int
}

func (g *fakeGen) Generate(_ context.Context, prompt string, _ gemini.Options) gemini.Result {
	g.prompts = append(g.prompts, prompt)
	i := g.calls
	if i >= len(g.results) {
		i = len(g.results) - 1
	}
	g.calls++
	if i < 0 {
		return gemini.Result{Status: gemini.StatusError}
	}
	return g.results[i]
}

func okResult(text string) gemini.Result {
	return gemini.Result{Text: text, PromptTokens: 100, CompletionTokens: 50, LatencyMS: 10, Status: gemini.StatusOK}
}

func seedProject(f *fakeStore, codes ...string) store.ID {
	p := &store.Project{Code: "PW", Name: "Planward"}
	_ = f.CreateProject(context.Background(), p)
	for _, code := range codes {
		_ = f.CreateStory(context.Background(), &store.Story{
			ProjectID:   p.ID,
			Code:        code,
			Name:        "Story " + code,
			Priority:    store.PriorityHigh,
			StoryPoints: 5,
			Status:      store.StoryStatusReady,
		})
	}
	return p.ID
}
