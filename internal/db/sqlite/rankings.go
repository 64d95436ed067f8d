package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// SaveInitialRankings clears round-one projections on every output of the task and
// writes the given ones, in one transaction
func (s *Store) SaveInitialRankings(ctx context.Context, taskID uuid.UUID, rankings []types.InitialRanking) error {
	now := nowNanos()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outputs SET initial_avg_score = NULL, initial_rank = NULL, updated_at = ? WHERE task_id = ?`,
			now, taskID); err != nil {
			return fmt.Errorf("failed to clear initial rankings: %w", err)
		}
		for _, r := range rankings {
			if _, err := tx.ExecContext(ctx,
				`UPDATE outputs SET initial_avg_score = ?, initial_rank = ?, updated_at = ?
				 WHERE id = ? AND task_id = ?`,
				r.AvgScore, r.Rank, now, r.OutputID, taskID); err != nil {
				return fmt.Errorf("failed to save initial ranking for %s: %w", r.OutputID, err)
			}
		}
		return nil
	})
}

// SaveFinalists sets is_finalist for exactly the given outputs of the task
func (s *Store) SaveFinalists(ctx context.Context, taskID uuid.UUID, finalists []uuid.UUID) error {
	now := nowNanos()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outputs SET is_finalist = 0, updated_at = ? WHERE task_id = ?`,
			now, taskID); err != nil {
			return fmt.Errorf("failed to clear finalists: %w", err)
		}
		for _, id := range finalists {
			if _, err := tx.ExecContext(ctx,
				`UPDATE outputs SET is_finalist = 1, updated_at = ? WHERE id = ? AND task_id = ?`,
				now, id, taskID); err != nil {
				return fmt.Errorf("failed to save finalist %s: %w", id, err)
			}
		}
		return nil
	})
}

// SaveFinalRankings clears round-two projections on every output of the task and
// writes the given ones, in one transaction
func (s *Store) SaveFinalRankings(ctx context.Context, taskID uuid.UUID, rankings []types.FinalRanking) error {
	now := nowNanos()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outputs SET final_total_score = NULL, final_rank = NULL, updated_at = ? WHERE task_id = ?`,
			now, taskID); err != nil {
			return fmt.Errorf("failed to clear final rankings: %w", err)
		}
		for _, r := range rankings {
			if _, err := tx.ExecContext(ctx,
				`UPDATE outputs SET final_total_score = ?, final_rank = ?, updated_at = ?
				 WHERE id = ? AND task_id = ?`,
				r.TotalScore, r.Rank, now, r.OutputID, taskID); err != nil {
				return fmt.Errorf("failed to save final ranking for %s: %w", r.OutputID, err)
			}
		}
		return nil
	})
}
