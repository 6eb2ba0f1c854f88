package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/planward/planward/internal/store"
)

func storyLines(stories []*store.Story) string {
	var sb strings.Builder
	for _, st := range stories {
		fmt.Fprintf(&sb, "- %s | %s | epic: %s | priority: %s | points: %d | status: %s | dependents: %d\n",
			st.Code, st.Name, st.Epic, st.Priority, st.StoryPoints, st.Status, st.DependentsCount)
		if st.Description != "" {
			fmt.Fprintf(&sb, "  description: %s\n", st.Description)
		}
	}
	return sb.String()
}

func dependencyPrompt(stories []*store.Story) string {
	var sb strings.Builder
	sb.WriteString("You are a technical project planner. Analyze the user stories below and identify which stories must be completed before others can start.\n\n")
	sb.WriteString("User stories:\n")
	sb.WriteString(storyLines(stories))
	sb.WriteString("\nOutput one JSON object per line, nothing else. Each line has the form:\n")
	sb.WriteString(`{"frm": "<prerequisite story code>", "to": ["<dependent story code>", ...]}` + "\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Use only story codes that appear in the list above.\n")
	sb.WriteString("- Only include real technical or functional dependencies.\n")
	sb.WriteString("- A story with no dependents gets no line.\n")
	return sb.String()
}

func backlogPrompt(stories []*store.Story, graph *store.DependencyGraph, minSize, maxSize int) string {
	var sb strings.Builder
	sb.WriteString("You are an agile release planner. Select the user stories that belong in the first release.\n\n")
	sb.WriteString("User stories:\n")
	sb.WriteString(storyLines(stories))
	if graph != nil && len(graph.Edges) > 0 {
		sb.WriteString("\nKnown dependencies (prerequisite -> dependents):\n")
		edgesJSON, _ := json.Marshal(graph.Edges)
		sb.Write(edgesJSON)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nSelect between %d and %d stories. Prefer high priority stories and stories that unblock others. Break ties by story code in alphabetical order.\n\n", minSize, maxSize)
	sb.WriteString("Output a single flat JSON array of story codes, nothing else. Example:\n")
	sb.WriteString(`["US-1", "US-3", "US-7"]` + "\n")
	return sb.String()
}

func releasePlanPrompt(stories []*store.Story, cfg *store.ProjectConfig, firstStart, firstEnd string, estimatedSprints int) string {
	var sb strings.Builder
	sb.WriteString("You are an experienced agile release planner. Create a complete multi-sprint release plan for the user stories below.\n\n")
	sb.WriteString("User stories:\n")
	sb.WriteString(storyLines(stories))
	sb.WriteString("\nTeam configuration:\n")
	fmt.Fprintf(&sb, "- developers: %d\n", cfg.NumDevs)
	fmt.Fprintf(&sb, "- velocity: %d story points per sprint\n", cfg.TeamVelocity)
	fmt.Fprintf(&sb, "- sprint duration: %d weeks\n", cfg.SprintDurationWeeks)
	fmt.Fprintf(&sb, "- release target date: %s\n", cfg.ReleaseTargetDate.Format(dateLayout))
	fmt.Fprintf(&sb, "\nSprint 1 starts on %s and ends on %s. Each following sprint starts the day after the previous one ends and lasts %d weeks. We estimate roughly %d sprints are needed.\n\n",
		firstStart, firstEnd, cfg.SprintDurationWeeks, estimatedSprints)
	sb.WriteString("Requirements:\n")
	sb.WriteString("- Every story code above must appear in exactly one sprint.\n")
	sb.WriteString("- Never plan more story points into a sprint than the team velocity allows.\n")
	sb.WriteString("- Schedule prerequisite stories before the stories that depend on them.\n\n")
	sb.WriteString("Respond with a single JSON document matching exactly this schema, inside a ```json code fence:\n")
	sb.WriteString("```json\n")
	sb.WriteString(`{
  "project_analysis": {
    "total_story_points": 0,
    "estimated_sprints": 0,
    "total_duration_weeks": 0,
    "target_date_feasible": true,
    "recommended_adjustments": []
  },
  "sprints": [
    {
      "sprint_number": 1,
      "start_date": "YYYY-MM-DD",
      "end_date": "YYYY-MM-DD",
      "story_points_planned": 0,
      "capacity_used_percentage": 0,
      "stories": [
        {"code": "US-1", "name": "...", "story_points": 0, "priority": "High", "dependencies": []}
      ]
    }
  ],
  "risks": [
    {"level": "LOW", "description": "...", "mitigation": "..."}
  ],
  "recommendations": []
}`)
	sb.WriteString("\n```\n")
	return sb.String()
}

func regenerationPrompt(base string, missing []string, partial *store.ReleasePlan) string {
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\nYour previous plan was incomplete. The following story codes were missing:\n")
	fmt.Fprintf(&sb, "%s\n\n", strings.Join(missing, ", "))
	sb.WriteString("Previous plan for reference:\n")
	partialJSON, _ := json.Marshal(partial)
	sb.Write(partialJSON)
	sb.WriteString("\n\nProduce the plan again, this time including EVERY story code exactly once. Respond with the full JSON document, not a diff.\n")
	return sb.String()
}
