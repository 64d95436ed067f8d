package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/content-swarm/internal/types"
)

// SaveInitialRankings clears round-one projections on every output of the task and
// writes the given ones, in one transaction
func (db *DB) SaveInitialRankings(ctx context.Context, taskID uuid.UUID, rankings []types.InitialRanking) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE marketing.outputs SET initial_avg_score = NULL, initial_rank = NULL, updated_at = NOW()
			 WHERE task_id = $1`, taskID); err != nil {
			return fmt.Errorf("failed to clear initial rankings: %w", err)
		}
		for _, r := range rankings {
			if _, err := tx.Exec(ctx,
				`UPDATE marketing.outputs SET initial_avg_score = $3, initial_rank = $4, updated_at = NOW()
				 WHERE id = $1 AND task_id = $2`,
				r.OutputID, taskID, r.AvgScore, r.Rank); err != nil {
				return fmt.Errorf("failed to save initial ranking for %s: %w", r.OutputID, err)
			}
		}
		return nil
	})
}

// SaveFinalists sets is_finalist for exactly the given outputs of the task
func (db *DB) SaveFinalists(ctx context.Context, taskID uuid.UUID, finalists []uuid.UUID) error {
	if finalists == nil {
		finalists = []uuid.UUID{}
	}
	_, err := db.pool.Exec(ctx,
		`UPDATE marketing.outputs SET is_finalist = (id = ANY($2)), updated_at = NOW()
		 WHERE task_id = $1`,
		taskID, finalists,
	)
	if err != nil {
		return fmt.Errorf("failed to save finalists: %w", err)
	}
	return nil
}

// SaveFinalRankings clears round-two projections on every output of the task and
// writes the given ones, in one transaction
func (db *DB) SaveFinalRankings(ctx context.Context, taskID uuid.UUID, rankings []types.FinalRanking) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE marketing.outputs SET final_total_score = NULL, final_rank = NULL, updated_at = NOW()
			 WHERE task_id = $1`, taskID); err != nil {
			return fmt.Errorf("failed to clear final rankings: %w", err)
		}
		for _, r := range rankings {
			if _, err := tx.Exec(ctx,
				`UPDATE marketing.outputs SET final_total_score = $3, final_rank = $4, updated_at = NOW()
				 WHERE id = $1 AND task_id = $2`,
				r.OutputID, taskID, r.TotalScore, r.Rank); err != nil {
				return fmt.Errorf("failed to save final ranking for %s: %w", r.OutputID, err)
			}
		}
		return nil
	})
}
