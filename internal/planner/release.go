package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/planward/planward/internal/events"
	"github.com/planward/planward/internal/extract"
	"github.com/planward/planward/internal/gemini"
	"github.com/planward/planward/internal/store"
)

const (
	planTemperature = 0.3
	planMaxTokens   = 8192

	dateLayout = "2006-01-02"
)

// PlanGenerator produces the multi-sprint release plan. Model output passes
// through a fixed pipeline: parse, completeness check with at most one
// regeneration, duplicate repair, feasibility annotation, then a single
// transactional replace of the stored plan.
type PlanGenerator struct {
	store  store.Store
	gen    gemini.Client
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewPlanGenerator(s store.Store, gen gemini.Client, pub events.Publisher, logger *slog.Logger) *PlanGenerator {
	return &PlanGenerator{store: s, gen: gen, events: pub, logger: logger, now: time.Now}
}

func (g *PlanGenerator) Generate(ctx context.Context, projectID store.ID) (*store.ReleasePlanRecord, error) {
	project, err := g.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}

	cfg, err := g.store.GetProjectConfig(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project config: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: configure project %s before generating a plan", ErrNotFound, projectID)
	}

	stories, err := g.store.ListStories(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load stories: %w", err)
	}
	if len(stories) == 0 {
		return nil, fmt.Errorf("%w: project %s has no stories", ErrNotFound, projectID)
	}

	totalPoints := 0
	for _, st := range stories {
		totalPoints += st.StoryPoints
	}
	sprints := estimateSprints(totalPoints, cfg.TeamVelocity)

	firstStart := nextMonday(g.now())
	firstEnd := firstStart.AddDate(0, 0, cfg.SprintDurationWeeks*7-1)
	basePrompt := releasePlanPrompt(stories, cfg,
		firstStart.Format(dateLayout), firstEnd.Format(dateLayout), sprints)

	var usage store.Usage
	res := g.gen.Generate(ctx, basePrompt, gemini.Options{
		Temperature: planTemperature,
		MaxTokens:   planMaxTokens,
	})
	usage.Add(res.PromptTokens, res.CompletionTokens, res.LatencyMS)
	if res.Empty() {
		return nil, fmt.Errorf("%w: plan generation produced no text (status %s)", ErrGeneration, res.Status)
	}

	plan, extErr := g.parsePlan(projectID, res.Text)
	if extErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrGeneration, extErr.Error())
	}
	g.logger.Info("release plan generated", "project_id", projectID, "sprints", len(plan.Sprints))

	if missing := missingCodes(plan, stories); len(missing) > 0 {
		g.logger.Warn("release plan incomplete, regenerating once",
			"project_id", projectID, "missing", len(missing))
		regen := g.gen.Generate(ctx, regenerationPrompt(basePrompt, missing, plan), gemini.Options{
			Temperature: planTemperature,
			MaxTokens:   planMaxTokens,
		})
		usage.Add(regen.PromptTokens, regen.CompletionTokens, regen.LatencyMS)

		if regen.Empty() {
			g.logger.Warn("regeneration produced no text, keeping partial plan", "project_id", projectID)
		} else if regenPlan, regenErr := g.parsePlan(projectID, regen.Text); regenErr != nil {
			g.logger.Warn("regeneration unusable, keeping partial plan",
				"project_id", projectID, "tag", regenErr.Tag)
		} else {
			plan = regenPlan
			g.logger.Info("release plan regenerated", "project_id", projectID, "sprints", len(plan.Sprints))
		}
	}

	// Repair after the retry decision so missing codes from a still-partial
	// plan land in the final sprint instead of being lost.
	repairPlan(plan, stories, cfg, g.logger.With("project_id", projectID))
	g.applyFeasibility(projectID, plan, cfg)

	rec := &store.ReleasePlanRecord{
		ProjectID: projectID,
		Plan:      *plan,
		Usage:     usage,
	}
	if err := g.store.ReplaceReleasePlan(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist release plan: %w", err)
	}

	g.publish(ctx, projectID)
	g.logger.Info("release plan persisted", "project_id", projectID,
		"sprints", len(plan.Sprints), "feasible", plan.ProjectAnalysis.TargetDateFeasible)
	return rec, nil
}

func (g *PlanGenerator) Get(ctx context.Context, projectID store.ID) (*store.ReleasePlanRecord, error) {
	rec, err := g.store.GetReleasePlan(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load release plan: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: no release plan for project %s", ErrNotFound, projectID)
	}
	return rec, nil
}

func (g *PlanGenerator) parsePlan(projectID store.ID, text string) (*store.ReleasePlan, *extract.ExtractError) {
	doc, extErr := extract.Document(text)
	if extErr != nil {
		detail, _ := json.Marshal(extErr)
		g.logger.Error("release plan response unusable",
			"project_id", projectID, "detail", string(detail))
		return nil, extErr
	}
	plan := &store.ReleasePlan{}
	if err := json.Unmarshal(doc, plan); err != nil {
		extErr = &extract.ExtractError{
			Tag:      "schema_mismatch",
			Message:  err.Error(),
			InputLen: len(text),
		}
		g.logger.Error("release plan document does not match schema",
			"project_id", projectID, "error", err)
		return nil, extErr
	}
	return plan, nil
}

func (g *PlanGenerator) publish(ctx context.Context, projectID store.ID) {
	if g.events == nil {
		return
	}
	subject := events.SubjectPlanGenerated(string(projectID))
	if err := g.events.Publish(ctx, subject, string(projectID), "release_plan"); err != nil {
		g.logger.Warn("publish plan event failed", "project_id", projectID, "error", err)
	}
}

// estimateSprints rounds total points over velocity, never below one sprint.
func estimateSprints(totalPoints, velocity int) int {
	if velocity <= 0 || totalPoints <= 0 {
		return 1
	}
	n := int(math.Round(float64(totalPoints) / float64(velocity)))
	if n < 1 {
		return 1
	}
	return n
}

// nextMonday returns the upcoming Monday, or t itself when t is a Monday.
func nextMonday(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	days := (int(time.Monday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, days)
}

func missingCodes(plan *store.ReleasePlan, stories []*store.Story) []string {
	planned := map[string]bool{}
	for _, sp := range plan.Sprints {
		for _, st := range sp.Stories {
			planned[st.Code] = true
		}
	}
	var missing []string
	for _, st := range stories {
		if !planned[st.Code] {
			missing = append(missing, st.Code)
		}
	}
	return missing
}

// repairPlan removes duplicate story occurrences (first sprint wins), appends
// any still-missing stories to the last sprint, and recomputes sprint totals
// and the plan analysis from what actually remains.
func repairPlan(plan *store.ReleasePlan, stories []*store.Story, cfg *store.ProjectConfig, logger *slog.Logger) {
	byCode := make(map[string]*store.Story, len(stories))
	for _, st := range stories {
		byCode[st.Code] = st
	}

	seen := map[string]bool{}
	duplicates, unknown := 0, 0
	for i := range plan.Sprints {
		kept := plan.Sprints[i].Stories[:0]
		for _, st := range plan.Sprints[i].Stories {
			if byCode[st.Code] == nil {
				unknown++
				continue
			}
			if seen[st.Code] {
				duplicates++
				continue
			}
			seen[st.Code] = true
			kept = append(kept, st)
		}
		plan.Sprints[i].Stories = kept
	}
	if duplicates > 0 {
		logger.Warn("removed duplicate stories from plan", "duplicates", duplicates)
	}
	if unknown > 0 {
		logger.Warn("removed unknown story codes from plan", "unknown", unknown)
	}

	if missing := missingCodes(plan, stories); len(missing) > 0 && len(plan.Sprints) > 0 {
		last := &plan.Sprints[len(plan.Sprints)-1]
		for _, code := range missing {
			st := byCode[code]
			last.Stories = append(last.Stories, store.PlannedStory{
				Code:         st.Code,
				Name:         st.Name,
				StoryPoints:  st.StoryPoints,
				Priority:     string(st.Priority),
				Dependencies: []string{},
			})
		}
		logger.Warn("appended missing stories to final sprint", "missing", len(missing))
	}

	totalPoints := 0
	for i := range plan.Sprints {
		points := 0
		for _, st := range plan.Sprints[i].Stories {
			points += st.StoryPoints
		}
		plan.Sprints[i].PointsPlanned = points
		plan.Sprints[i].CapacityUsedPct = capacityPct(points, cfg.TeamVelocity)
		totalPoints += points
	}

	plan.ProjectAnalysis.TotalStoryPoints = totalPoints
	plan.ProjectAnalysis.EstimatedSprints = len(plan.Sprints)
	plan.ProjectAnalysis.TotalDurationWeeks = len(plan.Sprints) * cfg.SprintDurationWeeks
}

func capacityPct(points, velocity int) int {
	if velocity <= 0 {
		return 0
	}
	pct := int(math.Round(float64(points) / float64(velocity) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

// applyFeasibility compares the final sprint end date with the release
// target. Finishing after the target is a critical risk; landing exactly on
// it flags the lack of buffer. Unparseable dates skip the check.
func (g *PlanGenerator) applyFeasibility(projectID store.ID, plan *store.ReleasePlan, cfg *store.ProjectConfig) {
	if len(plan.Sprints) == 0 || cfg.ReleaseTargetDate.IsZero() {
		return
	}
	end, err := time.Parse(dateLayout, plan.Sprints[len(plan.Sprints)-1].EndDate)
	if err != nil {
		g.logger.Warn("final sprint end date unparseable, skipping feasibility check",
			"project_id", projectID, "end_date", plan.Sprints[len(plan.Sprints)-1].EndDate)
		return
	}
	target := cfg.ReleaseTargetDate.Truncate(24 * time.Hour)
	end = end.Truncate(24 * time.Hour)

	switch {
	case end.After(target):
		overrun := int(end.Sub(target).Hours() / 24)
		plan.ProjectAnalysis.TargetDateFeasible = false
		plan.Risks = append(plan.Risks, store.Risk{
			Level: store.RiskCritical,
			Description: fmt.Sprintf("Plan ends %s, %d days after the release target %s.",
				end.Format(dateLayout), overrun, target.Format(dateLayout)),
			Mitigation: "Reduce scope, increase velocity or move the release target.",
		})
		plan.Recommendations = append(plan.Recommendations,
			fmt.Sprintf("Current scope needs %d sprints; cut %d story points or extend the target date by %d days.",
				len(plan.Sprints), plan.Sprints[len(plan.Sprints)-1].PointsPlanned, overrun))
		g.logger.Warn("release target not feasible", "project_id", projectID, "overrun_days", overrun)
	case end.Equal(target):
		plan.Risks = append(plan.Risks, store.Risk{
			Level:       store.RiskMedium,
			Description: "Plan ends exactly on the release target date with no buffer.",
			Mitigation:  "Keep a small scope reserve or plan a hardening sprint.",
		})
	default:
		g.logger.Info("plan finishes before release target",
			"project_id", projectID, "end", end.Format(dateLayout), "target", target.Format(dateLayout))
	}
}
