package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/content-swarm/internal/types"
)

const evaluationColumns = `id, seq, task_id, output_id, evaluator_agent_slug, status, stage,
	score, rank, weighted_score, error_message, created_at, updated_at`

// CreateEvaluations inserts evaluation rows, skipping any that already exist for the
// same output, evaluator and stage. Returns the number of rows inserted.
func (db *DB) CreateEvaluations(ctx context.Context, evals []types.Evaluation) (int, error) {
	inserted := 0
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		inserted, err = insertEvaluations(ctx, tx, evals)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func insertEvaluations(ctx context.Context, tx pgx.Tx, evals []types.Evaluation) (int, error) {
	inserted := 0
	for i := range evals {
		ev := &evals[i]
		if ev.Status == "" {
			ev.Status = types.EvalPending
		}
		result, err := tx.Exec(ctx,
			`INSERT INTO marketing.evaluations
			   (id, task_id, output_id, evaluator_agent_slug, status, stage, score, rank, weighted_score)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (output_id, evaluator_agent_slug, stage) DO NOTHING`,
			ev.ID, ev.TaskID, ev.OutputID, ev.EvaluatorSlug, ev.Status, ev.Stage,
			ev.Score, ev.Rank, ev.WeightedScore,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to create evaluation: %w", err)
		}
		inserted += int(result.RowsAffected())
	}
	return inserted, nil
}

// GetEvaluation retrieves an evaluation by ID. Returns nil, nil when it does not exist.
func (db *DB) GetEvaluation(ctx context.Context, evaluationID uuid.UUID) (*types.Evaluation, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+evaluationColumns+` FROM marketing.evaluations WHERE id = $1`, evaluationID)
	ev, err := scanEvaluation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	return ev, nil
}

// ListEvaluations retrieves a task's evaluations for one stage in insertion order
func (db *DB) ListEvaluations(ctx context.Context, taskID uuid.UUID, stage types.EvaluationStage) ([]types.Evaluation, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+evaluationColumns+` FROM marketing.evaluations
		 WHERE task_id = $1 AND stage = $2 ORDER BY seq`,
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
func (db *DB) TransitionEvaluation(ctx context.Context, evaluationID uuid.UUID, r types.EvaluationResult) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE marketing.evaluations
		 SET status = $3,
		     score = COALESCE($4, score),
		     rank = COALESCE($5, rank),
		     weighted_score = COALESCE($6, weighted_score),
		     error_message = COALESCE($7, error_message),
		     updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		evaluationID, r.From, r.To, r.Score, r.Rank, r.WeightedScore, r.ErrorMessage,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition evaluation: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func scanEvaluation(row scanner) (*types.Evaluation, error) {
	var ev types.Evaluation
	if err := row.Scan(&ev.ID, &ev.Seq, &ev.TaskID, &ev.OutputID, &ev.EvaluatorSlug, &ev.Status,
		&ev.Stage, &ev.Score, &ev.Rank, &ev.WeightedScore, &ev.ErrorMessage,
		&ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	return &ev, nil
}
