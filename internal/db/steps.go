package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/content-swarm/internal/types"
)

const stepColumns = `id, task_id, step_type, sequence, agent_slug, depends_on, input_output_id,
	status, error_message, created_at, updated_at`

// CreateSteps inserts execution steps in one transaction
func (db *DB) CreateSteps(ctx context.Context, steps []types.ExecutionStep) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		return insertSteps(ctx, tx, steps)
	})
}

func insertSteps(ctx context.Context, tx pgx.Tx, steps []types.ExecutionStep) error {
	for i := range steps {
		step := &steps[i]
		if step.Status == "" {
			step.Status = types.StepPending
		}
		dependsOn := step.DependsOn.IDs()
		err := tx.QueryRow(ctx,
			`INSERT INTO marketing.execution_steps
			   (id, task_id, step_type, sequence, agent_slug, depends_on, input_output_id, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING created_at, updated_at`,
			step.ID, step.TaskID, step.StepType, step.Sequence, step.AgentSlug,
			dependsOn, step.InputOutputID, step.Status,
		).Scan(&step.CreatedAt, &step.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create step %d: %w", step.Sequence, err)
		}
	}
	return nil
}

// GetStep retrieves a step by ID. Returns nil, nil when it does not exist.
func (db *DB) GetStep(ctx context.Context, stepID uuid.UUID) (*types.ExecutionStep, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM marketing.execution_steps WHERE id = $1`, stepID)
	step, err := scanStep(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return step, nil
}

// ListSteps retrieves all steps of a task ordered by sequence
func (db *DB) ListSteps(ctx context.Context, taskID uuid.UUID) ([]types.ExecutionStep, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+stepColumns+` FROM marketing.execution_steps
		 WHERE task_id = $1 ORDER BY sequence`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []types.ExecutionStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// TransitionStep changes a step's status only if it is still in from
func (db *DB) TransitionStep(ctx context.Context, stepID uuid.UUID, from, to types.StepStatus, errMsg *string) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE marketing.execution_steps
		 SET status = $3, error_message = COALESCE($4, error_message), updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		stepID, from, to, errMsg,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition step: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func scanStep(row scanner) (*types.ExecutionStep, error) {
	var step types.ExecutionStep
	var dependsOn []uuid.UUID
	if err := row.Scan(&step.ID, &step.TaskID, &step.StepType, &step.Sequence, &step.AgentSlug,
		&dependsOn, &step.InputOutputID, &step.Status, &step.ErrorMessage,
		&step.CreatedAt, &step.UpdatedAt); err != nil {
		return nil, err
	}
	step.DependsOn = types.NewStepSet(dependsOn...)
	return &step, nil
}
