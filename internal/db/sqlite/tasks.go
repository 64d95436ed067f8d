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

const taskColumns = `id, org, config, status, progress, error_message, created_at, updated_at`

// CreateTask inserts a task record
func (s *Store) CreateTask(ctx context.Context, task *types.Task) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertTask(ctx, tx, task)
	})
}

func insertTask(ctx context.Context, tx *sql.Tx, task *types.Task) error {
	configJSON, err := json.Marshal(task.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal task config: %w", err)
	}
	if task.Status == "" {
		task.Status = types.TaskPending
	}
	now := nowNanos()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, org, config, status, progress, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Org, string(configJSON), task.Status, task.Progress, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	task.CreatedAt = fromNanos(now)
	task.UpdatedAt = task.CreatedAt
	return nil
}

// GetTask retrieves a task by ID. Returns nil, nil when it does not exist.
func (s *Store) GetTask(ctx context.Context, taskID uuid.UUID) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks retrieves recent tasks, optionally for one org
func (s *Store) ListTasks(ctx context.Context, org string, limit int) ([]types.Task, error) {
	if limit == 0 {
		limit = 50
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if org != "" {
		query += ` WHERE org = ?`
		args = append(args, org)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *Store) TransitionTask(ctx context.Context, taskID uuid.UUID, from, to types.TaskStatus, errMsg *string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error_message = COALESCE(?, error_message), updated_at = ?
		 WHERE id = ? AND status = ?`,
		to, errMsg, nowNanos(), taskID, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition task: %w", err)
	}
	return affectedOne(result)
}

// UpdateTaskProgress stores the latest progress percentage
func (s *Store) UpdateTaskProgress(ctx context.Context, taskID uuid.UUID, progress int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET progress = ?, updated_at = ? WHERE id = ?`,
		progress, nowNanos(), taskID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task progress: %w", err)
	}
	return nil
}

func scanTask(row scanner) (*types.Task, error) {
	var task types.Task
	var configJSON string
	var createdAt, updatedAt int64
	if err := row.Scan(&task.ID, &task.Org, &configJSON, &task.Status, &task.Progress,
		&task.ErrorMessage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &task.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task config: %w", err)
		}
	}
	task.CreatedAt = fromNanos(createdAt)
	task.UpdatedAt = fromNanos(updatedAt)
	return &task, nil
}

func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}
