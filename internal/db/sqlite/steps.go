package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

const stepColumns = `id, task_id, step_type, sequence, agent_slug, depends_on, input_output_id,
	status, error_message, created_at, updated_at`

// CreateSteps inserts execution steps in one transaction
func (s *Store) CreateSteps(ctx context.Context, steps []types.ExecutionStep) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertSteps(ctx, tx, steps)
	})
}

func insertSteps(ctx context.Context, tx *sql.Tx, steps []types.ExecutionStep) error {
	now := nowNanos()
	for i := range steps {
		step := &steps[i]
		if step.Status == "" {
			step.Status = types.StepPending
		}
		dependsOn, err := json.Marshal(step.DependsOn)
		if err != nil {
			return fmt.Errorf("failed to marshal dependencies of step %d: %w", step.Sequence, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO execution_steps
			   (id, task_id, step_type, sequence, agent_slug, depends_on, input_output_id, status,
			    created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			step.ID, step.TaskID, step.StepType, step.Sequence, step.AgentSlug,
			string(dependsOn), step.InputOutputID, step.Status, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to create step %d: %w", step.Sequence, err)
		}
		step.CreatedAt = fromNanos(now)
		step.UpdatedAt = step.CreatedAt
	}
	return nil
}

// GetStep retrieves a step by ID. Returns nil, nil when it does not exist.
func (s *Store) GetStep(ctx context.Context, stepID uuid.UUID) (*types.ExecutionStep, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM execution_steps WHERE id = ?`, stepID)
	step, err := scanStep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return step, nil
}

// ListSteps retrieves all steps of a task ordered by sequence
func (s *Store) ListSteps(ctx context.Context, taskID uuid.UUID) ([]types.ExecutionStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM execution_steps WHERE task_id = ? ORDER BY sequence`, taskID)
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
func (s *Store) TransitionStep(ctx context.Context, stepID uuid.UUID, from, to types.StepStatus, errMsg *string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE execution_steps SET status = ?, error_message = COALESCE(?, error_message), updated_at = ?
		 WHERE id = ? AND status = ?`,
		to, errMsg, nowNanos(), stepID, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition step: %w", err)
	}
	return affectedOne(result)
}

func scanStep(row scanner) (*types.ExecutionStep, error) {
	var step types.ExecutionStep
	var dependsOn string
	var createdAt, updatedAt int64
	if err := row.Scan(&step.ID, &step.TaskID, &step.StepType, &step.Sequence, &step.AgentSlug,
		&dependsOn, &step.InputOutputID, &step.Status, &step.ErrorMessage,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dependsOn), &step.DependsOn); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step dependencies: %w", err)
	}
	step.CreatedAt = fromNanos(createdAt)
	step.UpdatedAt = fromNanos(updatedAt)
	return &step, nil
}
