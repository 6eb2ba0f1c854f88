package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Projects ---

func (s *PostgresStore) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO projects (id, code, name, description)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		p.ID, p.Code, p.Name, p.Description,
	).Scan(&p.CreatedAt)
}

func (s *PostgresStore) GetProject(ctx context.Context, id ID) (*Project, error) {
	p := &Project{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, description, created_at
		FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	query := `SELECT id, code, name, description, created_at FROM projects WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Query != "" {
		n++
		query += fmt.Sprintf(" AND (code ILIKE $%d OR name ILIKE $%d)", n, n)
		args = append(args, "%"+filter.Query+"%")
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limit)

	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id ID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

// --- Stories ---

const storyColumns = `id, project_id, code, epic, name, description, acceptance_criteria,
	priority, story_points, dor, status, dependents_count, created_at`

func (s *PostgresStore) CreateStory(ctx context.Context, st *Story) error {
	if st.ID == "" {
		st.ID = NewID()
	}
	criteriaJSON, _ := json.Marshal(st.AcceptanceCriteria)
	return s.pool.QueryRow(ctx, `
		INSERT INTO user_stories (id, project_id, code, epic, name, description,
			acceptance_criteria, priority, story_points, dor, status, dependents_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`,
		st.ID, st.ProjectID, st.Code, st.Epic, st.Name, st.Description,
		criteriaJSON, st.Priority, st.StoryPoints, st.DoR, st.Status, st.DependentsCount,
	).Scan(&st.CreatedAt)
}

// CreateStories inserts a batch of stories in one transaction, rejecting the
// whole batch if any code already exists within the project.
func (s *PostgresStore) CreateStories(ctx context.Context, projectID ID, stories []*Story) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	codes := make([]string, 0, len(stories))
	for _, st := range stories {
		codes = append(codes, st.Code)
	}

	rows, err := tx.Query(ctx, `
		SELECT code FROM user_stories WHERE project_id = $1 AND code = ANY($2)`,
		projectID, codes)
	if err != nil {
		return err
	}
	var existing []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, code)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %v", ErrDuplicateCode, existing)
	}

	for _, st := range stories {
		if st.ID == "" {
			st.ID = NewID()
		}
		st.ProjectID = projectID
		criteriaJSON, _ := json.Marshal(st.AcceptanceCriteria)
		err := tx.QueryRow(ctx, `
			INSERT INTO user_stories (id, project_id, code, epic, name, description,
				acceptance_criteria, priority, story_points, dor, status, dependents_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING created_at`,
			st.ID, st.ProjectID, st.Code, st.Epic, st.Name, st.Description,
			criteriaJSON, st.Priority, st.StoryPoints, st.DoR, st.Status, st.DependentsCount,
		).Scan(&st.CreatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListStories(ctx context.Context, projectID ID) ([]*Story, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+storyColumns+`
		FROM user_stories WHERE project_id = $1
		ORDER BY code ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []*Story
	for rows.Next() {
		st := &Story{}
		var criteriaJSON []byte
		if err := rows.Scan(
			&st.ID, &st.ProjectID, &st.Code, &st.Epic, &st.Name, &st.Description,
			&criteriaJSON, &st.Priority, &st.StoryPoints, &st.DoR, &st.Status,
			&st.DependentsCount, &st.CreatedAt,
		); err != nil {
			return nil, err
		}
		if criteriaJSON != nil {
			_ = json.Unmarshal(criteriaJSON, &st.AcceptanceCriteria)
		}
		stories = append(stories, st)
	}
	return stories, rows.Err()
}

func (s *PostgresStore) DeleteStory(ctx context.Context, id ID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_stories WHERE id = $1`, id)
	return err
}

// UpdateStoryDependents resets every story's dependents count for the
// project and applies the given counts in one transaction.
func (s *PostgresStore) UpdateStoryDependents(ctx context.Context, projectID ID, counts map[string]int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE user_stories SET dependents_count = 0 WHERE project_id = $1`, projectID); err != nil {
		return err
	}
	for code, n := range counts {
		if _, err := tx.Exec(ctx, `
			UPDATE user_stories SET dependents_count = $1
			WHERE project_id = $2 AND code = $3`, n, projectID, code); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// --- Project config ---

func (s *PostgresStore) UpsertProjectConfig(ctx context.Context, cfg *ProjectConfig) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO project_configs (project_id, num_devs, team_velocity, sprint_duration_weeks,
			release_target_date, team_capacity, optimistic_pct, realistic_pct, pessimistic_pct)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (project_id) DO UPDATE SET
			num_devs = EXCLUDED.num_devs,
			team_velocity = EXCLUDED.team_velocity,
			sprint_duration_weeks = EXCLUDED.sprint_duration_weeks,
			release_target_date = EXCLUDED.release_target_date,
			team_capacity = EXCLUDED.team_capacity,
			optimistic_pct = EXCLUDED.optimistic_pct,
			realistic_pct = EXCLUDED.realistic_pct,
			pessimistic_pct = EXCLUDED.pessimistic_pct,
			updated_at = now()
		RETURNING created_at, updated_at`,
		cfg.ProjectID, cfg.NumDevs, cfg.TeamVelocity, cfg.SprintDurationWeeks,
		cfg.ReleaseTargetDate, cfg.TeamCapacity, cfg.OptimisticPct, cfg.RealisticPct, cfg.PessimisticPct,
	).Scan(&cfg.CreatedAt, &cfg.UpdatedAt)
}

func (s *PostgresStore) GetProjectConfig(ctx context.Context, projectID ID) (*ProjectConfig, error) {
	cfg := &ProjectConfig{}
	err := s.pool.QueryRow(ctx, `
		SELECT project_id, num_devs, team_velocity, sprint_duration_weeks, release_target_date,
			team_capacity, optimistic_pct, realistic_pct, pessimistic_pct, created_at, updated_at
		FROM project_configs WHERE project_id = $1`, projectID,
	).Scan(
		&cfg.ProjectID, &cfg.NumDevs, &cfg.TeamVelocity, &cfg.SprintDurationWeeks,
		&cfg.ReleaseTargetDate, &cfg.TeamCapacity, &cfg.OptimisticPct, &cfg.RealisticPct,
		&cfg.PessimisticPct, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
