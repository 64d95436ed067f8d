package db

import (
	"context"
	"fmt"

	"github.com/jonathan/content-swarm/internal/types"
)

// UpsertAgent creates or updates an agent by (org, slug)
func (db *DB) UpsertAgent(ctx context.Context, agent *types.Agent) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO marketing.agents (org, slug, role, provider, model)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (org, slug) DO UPDATE
		 SET role = EXCLUDED.role, provider = EXCLUDED.provider, model = EXCLUDED.model`,
		agent.Org, agent.Slug, agent.Role, agent.Provider, agent.Model,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", agent.Slug, err)
	}
	return nil
}

// ListAgents retrieves all agents of an org ordered by slug
func (db *DB) ListAgents(ctx context.Context, org string) ([]types.Agent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT org, slug, role, provider, model FROM marketing.agents WHERE org = $1 ORDER BY slug`,
		org,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []types.Agent
	for rows.Next() {
		var a types.Agent
		if err := rows.Scan(&a.Org, &a.Slug, &a.Role, &a.Provider, &a.Model); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}
