package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

const outputColumns = `id, task_id, writer_agent_slug, editor_agent_slug, writer_provider, writer_model,
	editor_provider, editor_model, content, edit_cycle, status, editor_feedback, editor_approved,
	initial_avg_score, initial_rank, is_finalist, final_total_score, final_rank, error_message,
	created_at, updated_at`

// CreateOutputs inserts output placeholders in one transaction, preserving slice order
func (s *Store) CreateOutputs(ctx context.Context, outputs []types.Output) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertOutputs(ctx, tx, outputs)
	})
}

func insertOutputs(ctx context.Context, tx *sql.Tx, outputs []types.Output) error {
	now := time.Now()
	for i := range outputs {
		out := &outputs[i]
		if out.Status == "" {
			out.Status = types.OutputPendingWrite
		}
		if out.CreatedAt.IsZero() {
			out.CreatedAt = now
		}
		out.UpdatedAt = now
		_, err := tx.ExecContext(ctx,
			`INSERT INTO outputs
			   (id, task_id, writer_agent_slug, editor_agent_slug, writer_provider, writer_model,
			    editor_provider, editor_model, content, edit_cycle, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			out.ID, out.TaskID, out.WriterSlug, out.EditorSlug, out.WriterProvider, out.WriterModel,
			out.EditorProvider, out.EditorModel, out.Content, out.EditCycle, out.Status,
			out.CreatedAt.UnixNano(), out.UpdatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
	}
	return nil
}

// GetOutput retrieves an output by ID. Returns nil, nil when it does not exist.
func (s *Store) GetOutput(ctx context.Context, outputID uuid.UUID) (*types.Output, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outputColumns+` FROM outputs WHERE id = ?`, outputID)
	out, err := scanOutput(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get output: %w", err)
	}
	return out, nil
}

// ListOutputs retrieves all outputs of a task in creation order
func (s *Store) ListOutputs(ctx context.Context, taskID uuid.UUID) ([]types.Output, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outputColumns+` FROM outputs WHERE task_id = ? ORDER BY created_at, seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	defer rows.Close()

	var outputs []types.Output
	for rows.Next() {
		out, err := scanOutput(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		outputs = append(outputs, *out)
	}
	return outputs, rows.Err()
}

// TransitionOutput applies a status change only if the output is still in t.From.
// The optional version row is appended in the same transaction.
func (s *Store) TransitionOutput(ctx context.Context, outputID uuid.UUID, t types.OutputTransition) (bool, error) {
	applied := false
	now := nowNanos()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE outputs
			 SET status = ?,
			     content = COALESCE(?, content),
			     edit_cycle = COALESCE(?, edit_cycle),
			     editor_feedback = COALESCE(?, editor_feedback),
			     editor_approved = COALESCE(?, editor_approved),
			     error_message = COALESCE(?, error_message),
			     updated_at = ?
			 WHERE id = ? AND status = ?`,
			t.To, t.Content, t.EditCycle, t.EditorFeedback, t.EditorApproved, t.ErrorMessage, now,
			outputID, t.From,
		)
		if err != nil {
			return fmt.Errorf("failed to update output: %w", err)
		}
		ok, err := affectedOne(result)
		if err != nil || !ok {
			return err
		}
		if v := t.Version; v != nil {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO output_versions
				   (id, output_id, version_number, content, action_type, editor_feedback, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				v.ID, outputID, v.VersionNumber, v.Content, v.ActionType, v.EditorFeedback, now,
			)
			if err != nil {
				return fmt.Errorf("failed to append output version %d: %w", v.VersionNumber, err)
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ListOutputVersions retrieves an output's history in version order
func (s *Store) ListOutputVersions(ctx context.Context, outputID uuid.UUID) ([]types.OutputVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, output_id, version_number, content, action_type, editor_feedback, created_at
		 FROM output_versions WHERE output_id = ? ORDER BY version_number`,
		outputID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list output versions: %w", err)
	}
	defer rows.Close()

	var versions []types.OutputVersion
	for rows.Next() {
		var v types.OutputVersion
		var createdAt int64
		if err := rows.Scan(&v.ID, &v.OutputID, &v.VersionNumber, &v.Content, &v.ActionType,
			&v.EditorFeedback, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan output version: %w", err)
		}
		v.CreatedAt = fromNanos(createdAt)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func scanOutput(row scanner) (*types.Output, error) {
	var out types.Output
	var createdAt, updatedAt int64
	if err := row.Scan(&out.ID, &out.TaskID, &out.WriterSlug, &out.EditorSlug, &out.WriterProvider,
		&out.WriterModel, &out.EditorProvider, &out.EditorModel, &out.Content, &out.EditCycle,
		&out.Status, &out.EditorFeedback, &out.EditorApproved, &out.InitialAvgScore, &out.InitialRank,
		&out.IsFinalist, &out.FinalTotalScore, &out.FinalRank, &out.ErrorMessage,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	out.CreatedAt = fromNanos(createdAt)
	out.UpdatedAt = fromNanos(updatedAt)
	return &out, nil
}
