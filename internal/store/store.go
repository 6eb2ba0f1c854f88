package store

import (
	"context"
	"errors"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

type StoryStatus string

const (
	StoryStatusReady           StoryStatus = "Ready"
	StoryStatusNeedsRefinement StoryStatus = "Needs Refinement"
	StoryStatusInProgress      StoryStatus = "In Progress"
	StoryStatusDone            StoryStatus = "Done"
)

// StoryPointScale is the set of accepted story point estimates.
var StoryPointScale = []int{1, 2, 3, 5, 8, 13, 21}

func ValidStoryPoints(points int) bool {
	for _, p := range StoryPointScale {
		if p == points {
			return true
		}
	}
	return false
}

// ErrDuplicateCode is returned by bulk story inserts when a code already
// exists within the project.
var ErrDuplicateCode = errors.New("duplicate story code")

type Project struct {
	ID          ID        `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type ProjectFilter struct {
	Query  string
	Limit  int
	Offset int
}

// Story is a unit of product work. Code is unique within its project and is
// the join key across graph, backlog and plan artifacts.
type Story struct {
	ID                 ID          `json:"id"`
	ProjectID          ID          `json:"project_id"`
	Code               string      `json:"code"`
	Epic               string      `json:"epic"`
	Name               string      `json:"name"`
	Description        string      `json:"description"`
	AcceptanceCriteria []string    `json:"acceptance_criteria"`
	Priority           Priority    `json:"priority"`
	StoryPoints        int         `json:"story_points"`
	DoR                int         `json:"dor"`
	Status             StoryStatus `json:"status"`
	DependentsCount    int         `json:"dependents_count"`
	CreatedAt          time.Time   `json:"created_at"`
}

// ProjectConfig holds the planning parameters for a project. One per project.
type ProjectConfig struct {
	ProjectID           ID        `json:"project_id"`
	NumDevs             int       `json:"num_devs"`
	TeamVelocity        int       `json:"team_velocity"`
	SprintDurationWeeks int       `json:"sprint_duration_weeks"`
	ReleaseTargetDate   time.Time `json:"release_target_date"`
	TeamCapacity        int       `json:"team_capacity,omitempty"`
	OptimisticPct       int       `json:"optimistic_pct,omitempty"`
	RealisticPct        int       `json:"realistic_pct,omitempty"`
	PessimisticPct      int       `json:"pessimistic_pct,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Usage accumulates generation metrics across the calls made for one artifact.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	LatencyMS        float64 `json:"latency_ms"`
}

func (u *Usage) Add(promptTokens, completionTokens int, latencyMS float64) {
	u.PromptTokens += promptTokens
	u.CompletionTokens += completionTokens
	u.LatencyMS += latencyMS
}

// DependencyGraph maps a prerequisite story code to the codes that depend on
// it. Replaced wholesale on regeneration.
type DependencyGraph struct {
	ProjectID   ID                  `json:"project_id"`
	Edges       map[string][]string `json:"edges"`
	HasCycles   bool                `json:"has_cycles"`
	Usage       Usage               `json:"usage"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// ReleaseBacklog is the ordered story-code subset selected for the first
// release. Replaced wholesale on regeneration.
type ReleaseBacklog struct {
	ProjectID   ID        `json:"project_id"`
	StoryCodes  []string  `json:"story_codes"`
	Usage       Usage     `json:"usage"`
	GeneratedAt time.Time `json:"generated_at"`
}

// --- Release plan shapes ---

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

type Risk struct {
	Level       RiskLevel `json:"level"`
	Description string    `json:"description"`
	Mitigation  string    `json:"mitigation"`
}

type PlannedStory struct {
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	StoryPoints  int      `json:"story_points"`
	Priority     string   `json:"priority"`
	Dependencies []string `json:"dependencies"`
}

// Sprint dates are plain "2006-01-02" strings as emitted by the generation
// backend; they are parsed only where the feasibility check needs them.
type Sprint struct {
	Number          int            `json:"sprint_number"`
	StartDate       string         `json:"start_date"`
	EndDate         string         `json:"end_date"`
	PointsPlanned   int            `json:"story_points_planned"`
	CapacityUsedPct int            `json:"capacity_used_percentage"`
	Stories         []PlannedStory `json:"stories"`
}

type ProjectAnalysis struct {
	TotalStoryPoints       int      `json:"total_story_points"`
	EstimatedSprints       int      `json:"estimated_sprints"`
	TotalDurationWeeks     int      `json:"total_duration_weeks"`
	TargetDateFeasible     bool     `json:"target_date_feasible"`
	RecommendedAdjustments []string `json:"recommended_adjustments"`
}

type ReleasePlan struct {
	ProjectAnalysis ProjectAnalysis `json:"project_analysis"`
	Sprints         []Sprint        `json:"sprints"`
	Risks           []Risk          `json:"risks"`
	Recommendations []string        `json:"recommendations"`
}

// ReleasePlanRecord is the persisted plan artifact. At most one exists per
// project; replacement happens in a single transaction.
type ReleasePlanRecord struct {
	ID          ID          `json:"id"`
	ProjectID   ID          `json:"project_id"`
	Plan        ReleasePlan `json:"release_plan"`
	Usage       Usage       `json:"usage"`
	GeneratedAt time.Time   `json:"generated_at"`
}

type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id ID) (*Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error)
	DeleteProject(ctx context.Context, id ID) error

	CreateStory(ctx context.Context, s *Story) error
	CreateStories(ctx context.Context, projectID ID, stories []*Story) error
	ListStories(ctx context.Context, projectID ID) ([]*Story, error)
	DeleteStory(ctx context.Context, id ID) error
	UpdateStoryDependents(ctx context.Context, projectID ID, counts map[string]int) error

	UpsertProjectConfig(ctx context.Context, cfg *ProjectConfig) error
	GetProjectConfig(ctx context.Context, projectID ID) (*ProjectConfig, error)

	ReplaceDependencyGraph(ctx context.Context, g *DependencyGraph) error
	GetDependencyGraph(ctx context.Context, projectID ID) (*DependencyGraph, error)

	ReplaceReleaseBacklog(ctx context.Context, b *ReleaseBacklog) error
	GetReleaseBacklog(ctx context.Context, projectID ID) (*ReleaseBacklog, error)

	ReplaceReleasePlan(ctx context.Context, rec *ReleasePlanRecord) error
	GetReleasePlan(ctx context.Context, projectID ID) (*ReleasePlanRecord, error)

	Close() error
}
