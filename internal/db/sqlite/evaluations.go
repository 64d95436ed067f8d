package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

const evaluationColumns = `id, seq, task_id, output_id, evaluator_agent_slug, status, stage,
	score, rank, weighted_score, error_message, created_at, updated_at`

// CreateEvaluations inserts evaluation rows, skipping any that already exist for the
// same output, evaluator and stage. Returns the number of rows inserted.
func (s *Store) CreateEvaluations(ctx context.Context, evals []types.Evaluation) (int, error) {
	inserted := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = insertEvaluations(ctx, tx, evals)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func insertEvaluations(ctx context.Context, tx *sql.Tx, evals []types.Evaluation) (int, error) {
	inserted := 0
	now := nowNanos()
	for i := range evals {
		ev := &evals[i]
		if ev.Status == "" {
			ev.Status = types.EvalPending
		}
		result, err := tx.ExecContext(ctx,
			`INSERT INTO evaluations
			   (id, task_id, output_id, evaluator_agent_slug, status, stage, score, rank, weighted_score,
			    created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (output_id, evaluator_agent_slug, stage) DO NOTHING`,
			ev.ID, ev.TaskID, ev.OutputID, ev.EvaluatorSlug, ev.Status, ev.Stage,
			ev.Score, ev.Rank, ev.WeightedScore, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to create evaluation: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// GetEvaluation retrieves an evaluation by ID. Returns nil, nil when it does not exist.
func (s *Store) GetEvaluation(ctx context.Context, evaluationID uuid.UUID) (*types.Evaluation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE id = ?`, evaluationID)
	ev, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	return ev, nil
}

// ListEvaluations retrieves a task's evaluations for one stage in insertion order
func (s *Store) ListEvaluations(ctx context.Context, taskID uuid.UUID, stage types.EvaluationStage) ([]types.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE task_id = ? AND stage = ? ORDER BY seq`,
		taskID, stage,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var evals []types.Evaluation
	for rows.Next() {
		ev, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		evals = append(evals, *ev)
	}
	return evals, rows.Err()
}

// TransitionEvaluation applies a status change only if the evaluation is still in r.From
func (s *Store) TransitionEvaluation(ctx context.Context, evaluationID uuid.UUID, r types.EvaluationResult) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE evaluations
		 SET status = ?,
		     score = COALESCE(?, score),
		     rank = COALESCE(?, rank),
		     weighted_score = COALESCE(?, weighted_score),
		     error_message = COALESCE(?, error_message),
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		r.To, r.Score, r.Rank, r.WeightedScore, r.ErrorMessage, nowNanos(), evaluationID, r.From,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition evaluation: %w", err)
	}
	return affectedOne(result)
}

func scanEvaluation(row scanner) (*types.Evaluation, error) {
	var ev types.Evaluation
	var createdAt, updatedAt int64
	if err := row.Scan(&ev.ID, &ev.Seq, &ev.TaskID, &ev.OutputID, &ev.EvaluatorSlug, &ev.Status,
		&ev.Stage, &ev.Score, &ev.Rank, &ev.WeightedScore, &ev.ErrorMessage,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	ev.CreatedAt = fromNanos(createdAt)
	ev.UpdatedAt = fromNanos(updatedAt)
	return &ev, nil
}
