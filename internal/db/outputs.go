package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/content-swarm/internal/types"
)

const outputColumns = `id, task_id, writer_agent_slug, editor_agent_slug, writer_provider, writer_model,
	editor_provider, editor_model, content, edit_cycle, status, editor_feedback, editor_approved,
	initial_avg_score, initial_rank, is_finalist, final_total_score, final_rank, error_message,
	created_at, updated_at`

// CreateOutputs inserts output placeholders in one transaction, preserving slice order
func (db *DB) CreateOutputs(ctx context.Context, outputs []types.Output) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		return insertOutputs(ctx, tx, outputs)
	})
}

func insertOutputs(ctx context.Context, tx pgx.Tx, outputs []types.Output) error {
	now := time.Now()
	for i := range outputs {
		out := &outputs[i]
		if out.Status == "" {
			out.Status = types.OutputPendingWrite
		}
		if out.CreatedAt.IsZero() {
			out.CreatedAt = now
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO marketing.outputs
			   (id, task_id, writer_agent_slug, editor_agent_slug, writer_provider, writer_model,
			    editor_provider, editor_model, content, edit_cycle, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 RETURNING updated_at`,
			out.ID, out.TaskID, out.WriterSlug, out.EditorSlug, out.WriterProvider, out.WriterModel,
			out.EditorProvider, out.EditorModel, out.Content, out.EditCycle, out.Status, out.CreatedAt,
		).Scan(&out.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
	}
	return nil
}

// GetOutput retrieves an output by ID. Returns nil, nil when it does not exist.
func (db *DB) GetOutput(ctx context.Context, outputID uuid.UUID) (*types.Output, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+outputColumns+` FROM marketing.outputs WHERE id = $1`, outputID)
	out, err := scanOutput(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get output: %w", err)
	}
	return out, nil
}

// ListOutputs retrieves all outputs of a task in creation order
func (db *DB) ListOutputs(ctx context.Context, taskID uuid.UUID) ([]types.Output, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+outputColumns+` FROM marketing.outputs
		 WHERE task_id = $1 ORDER BY created_at, seq`,
		taskID,
	)
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
func (db *DB) TransitionOutput(ctx context.Context, outputID uuid.UUID, t types.OutputTransition) (bool, error) {
	applied := false
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx,
			`UPDATE marketing.outputs
			 SET status = $3,
			     content = COALESCE($4, content),
			     edit_cycle = COALESCE($5, edit_cycle),
			     editor_feedback = COALESCE($6, editor_feedback),
			     editor_approved = COALESCE($7, editor_approved),
			     error_message = COALESCE($8, error_message),
			     updated_at = NOW()
			 WHERE id = $1 AND status = $2`,
			outputID, t.From, t.To, t.Content, t.EditCycle, t.EditorFeedback, t.EditorApproved, t.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to update output: %w", err)
		}
		if result.RowsAffected() != 1 {
			return nil
		}
		if v := t.Version; v != nil {
			_, err := tx.Exec(ctx,
				`INSERT INTO marketing.output_versions
				   (id, output_id, version_number, content, action_type, editor_feedback)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				v.ID, outputID, v.VersionNumber, v.Content, v.ActionType, v.EditorFeedback,
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
func (db *DB) ListOutputVersions(ctx context.Context, outputID uuid.UUID) ([]types.OutputVersion, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, output_id, version_number, content, action_type, editor_feedback, created_at
		 FROM marketing.output_versions WHERE output_id = $1 ORDER BY version_number`,
		outputID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list output versions: %w", err)
	}
	defer rows.Close()

	var versions []types.OutputVersion
	for rows.Next() {
		var v types.OutputVersion
		if err := rows.Scan(&v.ID, &v.OutputID, &v.VersionNumber, &v.Content, &v.ActionType,
			&v.EditorFeedback, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan output version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func scanOutput(row scanner) (*types.Output, error) {
	var out types.Output
	if err := row.Scan(&out.ID, &out.TaskID, &out.WriterSlug, &out.EditorSlug, &out.WriterProvider,
		&out.WriterModel, &out.EditorProvider, &out.EditorModel, &out.Content, &out.EditCycle,
		&out.Status, &out.EditorFeedback, &out.EditorApproved, &out.InitialAvgScore, &out.InitialRank,
		&out.IsFinalist, &out.FinalTotalScore, &out.FinalRank, &out.ErrorMessage,
		&out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}
