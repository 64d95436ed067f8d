package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/content-swarm/internal/types"
)

const taskColumns = `id, org, config, status, progress, error_message, created_at, updated_at`

// CreateTask inserts a task record
func (db *DB) CreateTask(ctx context.Context, task *types.Task) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		return insertTask(ctx, tx, task)
	})
}

func insertTask(ctx context.Context, tx pgx.Tx, task *types.Task) error {
	configJSON, err := json.Marshal(task.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal task config: %w", err)
	}
	if task.Status == "" {
		task.Status = types.TaskPending
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO marketing.tasks (id, org, config, status, progress)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		task.ID, task.Org, configJSON, task.Status, task.Progress,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil, nil when it does not exist.
func (db *DB) GetTask(ctx context.Context, taskID uuid.UUID) (*types.Task, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM marketing.tasks WHERE id = $1`, taskID)
	task, err := scanTask(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks retrieves recent tasks, optionally for one org
func (db *DB) ListTasks(ctx context.Context, org string, limit int) ([]types.Task, error) {
	if limit == 0 {
		limit = 50
	}
	query := `SELECT ` + taskColumns + ` FROM marketing.tasks`
	args := []any{}
	if org != "" {
		query += ` WHERE org = $1`
		args = append(args, org)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// TransitionTask changes a task's status only if it is still in from
func (db *DB) TransitionTask(ctx context.Context, taskID uuid.UUID, from, to types.TaskStatus, errMsg *string) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE marketing.tasks
		 SET status = $3, error_message = COALESCE($4, error_message), updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		taskID, from, to, errMsg,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition task: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// UpdateTaskProgress stores the latest progress percentage
func (db *DB) UpdateTaskProgress(ctx context.Context, taskID uuid.UUID, progress int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE marketing.tasks SET progress = $2, updated_at = NOW() WHERE id = $1`,
		taskID, progress,
	)
	if err != nil {
		return fmt.Errorf("failed to update task progress: %w", err)
	}
	return nil
}

func scanTask(row scanner) (*types.Task, error) {
	var task types.Task
	var configJSON []byte
	var createdAt, updatedAt time.Time
	if err := row.Scan(&task.ID, &task.Org, &configJSON, &task.Status, &task.Progress,
		&task.ErrorMessage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &task.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task config: %w", err)
		}
	}
	task.CreatedAt = createdAt
	task.UpdatedAt = updatedAt
	return &task, nil
}
