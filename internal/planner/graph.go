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
	graphTemperature = 0.3
	graphMaxTokens   = 2048
)

// GraphBuilder infers the inter-story dependency graph for a project.
type GraphBuilder struct {
	store  store.Store
	gen    gemini.Client
	events events.Publisher
	logger *slog.Logger
}

func NewGraphBuilder(s store.Store, gen gemini.Client, pub events.Publisher, logger *slog.Logger) *GraphBuilder {
	return &GraphBuilder{store: s, gen: gen, events: pub, logger: logger}
}

// edgeRecord is one line of model output. The "to" field arrives as either a
// list of codes or a bare string depending on the model's mood, so it gets a
// tolerant decoder.
type edgeRecord struct {
	From string   `json:"frm"`
	To   codeList `json:"to"`
}

type codeList []string

func (c *codeList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*c = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*c = []string{single}
		return nil
	}
	return fmt.Errorf("to field is neither string nor list: %s", data)
}

// Build generates and persists a fresh dependency graph, replacing any
// previous one. A blocked or failed generation still persists an empty graph
// so the artifact's generated_at reflects the attempt.
func (b *GraphBuilder) Build(ctx context.Context, projectID store.ID) (*store.DependencyGraph, error) {
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

	res := b.gen.Generate(ctx, dependencyPrompt(stories), gemini.Options{
		Temperature: graphTemperature,
		MaxTokens:   graphMaxTokens,
	})

	edges := map[string][]string{}
	if res.Empty() {
		b.logger.Warn("dependency generation produced no text, persisting empty graph",
			"project_id", projectID, "status", res.Status)
	} else {
		objects, dropped := extract.Objects(res.Text)
		if dropped > 0 {
			b.logger.Warn("dropped unparseable dependency lines",
				"project_id", projectID, "dropped", dropped)
		}
		edges = mergeEdges(objects, known, b.logger)
	}

	graph := &store.DependencyGraph{
		ProjectID: projectID,
		Edges:     edges,
		HasCycles: detectCycles(edges),
		Usage: store.Usage{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			LatencyMS:        res.LatencyMS,
		},
	}
	if graph.HasCycles {
		b.logger.Warn("dependency graph contains cycles", "project_id", projectID)
	}

	if err := b.store.ReplaceDependencyGraph(ctx, graph); err != nil {
		return nil, fmt.Errorf("persist dependency graph: %w", err)
	}

	counts := make(map[string]int, len(edges))
	for from, tos := range edges {
		counts[from] = len(tos)
	}
	if err := b.store.UpdateStoryDependents(ctx, projectID, counts); err != nil {
		b.logger.Warn("update story dependents failed", "project_id", projectID, "error", err)
	}

	b.publish(ctx, projectID)
	b.logger.Info("dependency graph generated",
		"project_id", projectID, "edges", len(edges), "has_cycles", graph.HasCycles)
	return graph, nil
}

func (b *GraphBuilder) Get(ctx context.Context, projectID store.ID) (*store.DependencyGraph, error) {
	graph, err := b.store.GetDependencyGraph(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load dependency graph: %w", err)
	}
	if graph == nil {
		return nil, fmt.Errorf("%w: no dependency graph for project %s", ErrNotFound, projectID)
	}
	return graph, nil
}

func (b *GraphBuilder) publish(ctx context.Context, projectID store.ID) {
	if b.events == nil {
		return
	}
	subject := events.SubjectGraphGenerated(string(projectID))
	if err := b.events.Publish(ctx, subject, string(projectID), "dependency_graph"); err != nil {
		b.logger.Warn("publish graph event failed", "project_id", projectID, "error", err)
	}
}

// mergeEdges unions duplicate "frm" records, drops edges that reference
// unknown codes or point a story at itself, and sorts each dependent list.
func mergeEdges(objects []json.RawMessage, known map[string]bool, logger *slog.Logger) map[string][]string {
	sets := map[string]map[string]bool{}
	for _, obj := range objects {
		var rec edgeRecord
		if err := json.Unmarshal(obj, &rec); err != nil {
			logger.Warn("skipping malformed edge record", "error", err)
			continue
		}
		if !known[rec.From] {
			continue
		}
		for _, to := range rec.To {
			if !known[to] || to == rec.From {
				continue
			}
			if sets[rec.From] == nil {
				sets[rec.From] = map[string]bool{}
			}
			sets[rec.From][to] = true
		}
	}

	edges := make(map[string][]string, len(sets))
	for from, tos := range sets {
		list := make([]string, 0, len(tos))
		for to := range tos {
			list = append(list, to)
		}
		sort.Strings(list)
		edges[from] = list
	}
	return edges
}

// detectCycles runs an iterative three-color DFS over the edge map.
func detectCycles(edges map[string][]string) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}

	for start := range edges {
		if color[start] != white {
			continue
		}
		type frame struct {
			node string
			next int
		}
		stack := []frame{{node: start}}
		color[start] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := edges[top.node]
			if top.next < len(children) {
				child := children[top.next]
				top.next++
				switch color[child] {
				case gray:
					return true
				case white:
					color[child] = gray
					stack = append(stack, frame{node: child})
				}
				continue
			}
			color[top.node] = black
			stack = stack[:len(stack)-1]
		}
	}
	return false
}
