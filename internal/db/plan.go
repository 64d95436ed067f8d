package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/content-swarm/internal/types"
)

// CreatePlan inserts a task with its outputs, steps and initial evaluations in one
// transaction. Nothing is stored if any insert fails.
func (db *DB) CreatePlan(ctx context.Context, task *types.Task, outputs []types.Output, steps []types.ExecutionStep, evals []types.Evaluation) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertTask(ctx, tx, task); err != nil {
			return err
		}
		if err := insertOutputs(ctx, tx, outputs); err != nil {
			return err
		}
		if err := insertSteps(ctx, tx, steps); err != nil {
			return err
		}
		_, err := insertEvaluations(ctx, tx, evals)
		return err
	})
}
