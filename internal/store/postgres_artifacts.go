package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// --- Dependency graphs ---

func (s *PostgresStore) ReplaceDependencyGraph(ctx context.Context, g *DependencyGraph) error {
	edgesJSON, err := json.Marshal(g.Edges)
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}
	usageJSON, _ := json.Marshal(g.Usage)
	return s.pool.QueryRow(ctx, `
		INSERT INTO dependency_graphs (project_id, edges, has_cycles, usage)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id) DO UPDATE SET
			edges = EXCLUDED.edges,
			has_cycles = EXCLUDED.has_cycles,
			usage = EXCLUDED.usage,
			generated_at = now()
		RETURNING generated_at`,
		g.ProjectID, edgesJSON, g.HasCycles, usageJSON,
	).Scan(&g.GeneratedAt)
}

func (s *PostgresStore) GetDependencyGraph(ctx context.Context, projectID ID) (*DependencyGraph, error) {
	g := &DependencyGraph{}
	var edgesJSON, usageJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT project_id, edges, has_cycles, usage, generated_at
		FROM dependency_graphs WHERE project_id = $1`, projectID,
	).Scan(&g.ProjectID, &edgesJSON, &g.HasCycles, &usageJSON, &g.GeneratedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(edgesJSON, &g.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	_ = json.Unmarshal(usageJSON, &g.Usage)
	return g, nil
}

// --- Release backlogs ---

func (s *PostgresStore) ReplaceReleaseBacklog(ctx context.Context, b *ReleaseBacklog) error {
	codesJSON, err := json.Marshal(b.StoryCodes)
	if err != nil {
		return fmt.Errorf("marshal story codes: %w", err)
	}
	usageJSON, _ := json.Marshal(b.Usage)
	return s.pool.QueryRow(ctx, `
		INSERT INTO release_backlogs (project_id, story_codes, usage)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id) DO UPDATE SET
			story_codes = EXCLUDED.story_codes,
			usage = EXCLUDED.usage,
			generated_at = now()
		RETURNING generated_at`,
		b.ProjectID, codesJSON, usageJSON,
	).Scan(&b.GeneratedAt)
}

func (s *PostgresStore) GetReleaseBacklog(ctx context.Context, projectID ID) (*ReleaseBacklog, error) {
	b := &ReleaseBacklog{}
	var codesJSON, usageJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT project_id, story_codes, usage, generated_at
		FROM release_backlogs WHERE project_id = $1`, projectID,
	).Scan(&b.ProjectID, &codesJSON, &usageJSON, &b.GeneratedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(codesJSON, &b.StoryCodes); err != nil {
		return nil, fmt.Errorf("unmarshal story codes: %w", err)
	}
	_ = json.Unmarshal(usageJSON, &b.Usage)
	return b, nil
}

// --- Release plans ---

// ReplaceReleasePlan swaps the project's plan in one transaction so readers
// never observe a window with no plan between delete and insert.
func (s *PostgresStore) ReplaceReleasePlan(ctx context.Context, rec *ReleasePlanRecord) error {
	planJSON, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	usageJSON, _ := json.Marshal(rec.Usage)
	if rec.ID == "" {
		rec.ID = NewID()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM release_plans WHERE project_id = $1`, rec.ProjectID); err != nil {
		return err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO release_plans (id, project_id, plan, usage)
		VALUES ($1, $2, $3, $4)
		RETURNING generated_at`,
		rec.ID, rec.ProjectID, planJSON, usageJSON,
	).Scan(&rec.GeneratedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetReleasePlan(ctx context.Context, projectID ID) (*ReleasePlanRecord, error) {
	rec := &ReleasePlanRecord{}
	var planJSON, usageJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, plan, usage, generated_at
		FROM release_plans WHERE project_id = $1`, projectID,
	).Scan(&rec.ID, &rec.ProjectID, &planJSON, &usageJSON, &rec.GeneratedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(planJSON, &rec.Plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	_ = json.Unmarshal(usageJSON, &rec.Usage)
	return rec, nil
}
