package sqlite

import (
	"context"
	"database/sql"

	"github.com/jonathan/content-swarm/internal/types"
)

// CreatePlan inserts a task with its outputs, steps and initial evaluations in one
// transaction. Nothing is stored if any insert fails.
func (s *Store) CreatePlan(ctx context.Context, task *types.Task, outputs []types.Output, steps []types.ExecutionStep, evals []types.Evaluation) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
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
