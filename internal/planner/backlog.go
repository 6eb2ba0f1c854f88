package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/planward/planward/internal/events"
	"github.com/planward/planward/internal/extract"
	"github.com/planward/planward/internal/gemini"
	"github.com/planward/planward/internal/store"
)

const (
	backlogTemperature = 0.2
	backlogMaxTokens   = 4096
)

// BacklogSelector picks the story subset for the first release. Selection is
// model-driven with a deterministic alphabetical fallback, so the artifact is
// never empty for a project that has stories.
type BacklogSelector struct {
	store   store.Store
	gen     gemini.Client
	events  events.Publisher
	logger  *slog.Logger
	minSize int
	maxSize int
}

func NewBacklogSelector(s store.Store, gen gemini.Client, pub events.Publisher, minSize, maxSize int, logger *slog.Logger) *BacklogSelector {
	if minSize <= 0 {
		minSize = 5
	}
	if maxSize < minSize {
		maxSize = minSize
	}
	return &BacklogSelector{store: s, gen: gen, events: pub, logger: logger, minSize: minSize, maxSize: maxSize}
}

// Select generates and persists the first-release backlog, replacing any
// previous one.
func (b *BacklogSelector) Select(ctx context.Context, projectID store.ID) (*store.ReleaseBacklog, error) {
	project, err := b.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}

	stories, err := b.store.ListStories(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load stories: %w", err)
	}
	if len(stories) == 0 {
		return nil, fmt.Errorf("%w: project %s has no stories", ErrNotFound, projectID)
	}

	known := make(map[string]bool, len(stories))
	for _, st := range stories {
		known[st.Code] = true
	}

	// The graph is optional context for the prompt, not a precondition.
	graph, err := b.store.GetDependencyGraph(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load dependency graph: %w", err)
	}

	res := b.gen.Generate(ctx, backlogPrompt(stories, graph, b.minSize, b.maxSize), gemini.Options{
		Temperature: backlogTemperature,
		MaxTokens:   backlogMaxTokens,
	})

	codes := b.parseSelection(projectID, res, known)
	if len(codes) == 0 {
		codes = fallbackSelection(stories)
		b.logger.Warn("backlog selection fell back to alphabetical order",
			"project_id", projectID, "status", res.Status, "size", len(codes))
	}

	backlog := &store.ReleaseBacklog{
		ProjectID:  projectID,
		StoryCodes: codes,
		Usage: store.Usage{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			LatencyMS:        res.LatencyMS,
		},
	}
	if err := b.store.ReplaceReleaseBacklog(ctx, backlog); err != nil {
		return nil, fmt.Errorf("persist release backlog: %w", err)
	}

	b.publish(ctx, projectID)
	b.logger.Info("release backlog generated", "project_id", projectID, "size", len(codes))
	return backlog, nil
}

func (b *BacklogSelector) Get(ctx context.Context, projectID store.ID) (*store.ReleaseBacklog, error) {
	backlog, err := b.store.GetReleaseBacklog(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load release backlog: %w", err)
	}
	if backlog == nil {
		return nil, fmt.Errorf("%w: no release backlog for project %s", ErrNotFound, projectID)
	}
	return backlog, nil
}

// parseSelection extracts the code array and keeps only codes that exist in
// the project, preserving the model's order and deduplicating.
func (b *BacklogSelector) parseSelection(projectID store.ID, res gemini.Result, known map[string]bool) []string {
	if res.Empty() {
		return nil
	}
	doc, extErr := extract.Document(res.Text)
	if extErr != nil {
		b.logger.Warn("backlog response unusable", "project_id", projectID,
			"tag", extErr.Tag, "response_length", extErr.InputLen)
		return nil
	}
	var raw []string
	if err := json.Unmarshal(doc, &raw); err != nil {
		b.logger.Warn("backlog document is not a code array", "project_id", projectID, "error", err)
		return nil
	}

	seen := map[string]bool{}
	var codes []string
	for _, code := range raw {
		if !known[code] || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	if len(codes) > b.maxSize {
		codes = codes[:b.maxSize]
	}
	return codes
}

// fallbackSelection returns every story code in alphabetical order. The size
// bounds only apply to model output; the deterministic fallback never drops
// stories.
func fallbackSelection(stories []*store.Story) []string {
	codes := make([]string, 0, len(stories))
	for _, st := range stories {
		codes = append(codes, st.Code)
	}
	sort.Strings(codes)
	return codes
}

func (b *BacklogSelector) publish(ctx context.Context, projectID store.ID) {
	if b.events == nil {
		return
	}
	subject := events.SubjectBacklogGenerated(string(projectID))
	if err := b.events.Publish(ctx, subject, string(projectID), "release_backlog"); err != nil {
		b.logger.Warn("publish backlog event failed", "project_id", projectID, "error", err)
	}
}
