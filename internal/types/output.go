package types

import (
	"time"

	"github.com/google/uuid"
)

// OutputStatus is the per-draft state machine status.
type OutputStatus string

// OutputStatus values
const (
	OutputPendingWrite     OutputStatus = "pending_write"
	OutputWriting          OutputStatus = "writing"
	OutputPendingEdit      OutputStatus = "pending_edit"
	OutputEditing          OutputStatus = "editing"
	OutputPendingRewrite   OutputStatus = "pending_rewrite"
	OutputRewriting        OutputStatus = "rewriting"
	OutputApproved         OutputStatus = "approved"
	OutputMaxCyclesReached OutputStatus = "max_cycles_reached"
	OutputFailed           OutputStatus = "failed"
)

// IsTerminal reports whether the status is immutable.
func (s OutputStatus) IsTerminal() bool {
	switch s {
	case OutputApproved, OutputFailed, OutputMaxCyclesReached:
		return true
	}
	return false
}

// IsInFlight reports whether an agent is currently working on the output.
func (s OutputStatus) IsInFlight() bool {
	switch s {
	case OutputWriting, OutputEditing, OutputRewriting:
		return true
	}
	return false
}

// IsPending reports whether the output is waiting to be claimed.
func (s OutputStatus) IsPending() bool {
	switch s {
	case OutputPendingWrite, OutputPendingEdit, OutputPendingRewrite:
		return true
	}
	return false
}

// Output is one candidate draft for a task.
type Output struct {
	ID              uuid.UUID    `json:"id"`
	TaskID          uuid.UUID    `json:"task_id"`
	WriterSlug      string       `json:"writer_agent_slug"`
	EditorSlug      string       `json:"editor_agent_slug"`
	WriterProvider  string       `json:"writer_provider"`
	WriterModel     string       `json:"writer_model"`
	EditorProvider  string       `json:"editor_provider"`
	EditorModel     string       `json:"editor_model"`
	Content         string       `json:"content"`
	EditCycle       int          `json:"edit_cycle"`
	Status          OutputStatus `json:"status"`
	EditorFeedback  *string      `json:"editor_feedback,omitempty"`
	EditorApproved  *bool        `json:"editor_approved,omitempty"`
	InitialAvgScore *float64     `json:"initial_avg_score,omitempty"`
	InitialRank     *int         `json:"initial_rank,omitempty"`
	IsFinalist      bool         `json:"is_finalist"`
	FinalTotalScore *int         `json:"final_total_score,omitempty"`
	FinalRank       *int         `json:"final_rank,omitempty"`
	ErrorMessage    *string      `json:"error_message,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// ActiveProvider returns the provider bound to the step the output is in or waiting for.
// Write and rewrite run on the writer; edit runs on the editor.
func (o *Output) ActiveProvider() string {
	switch o.Status {
	case OutputPendingEdit, OutputEditing:
		return o.EditorProvider
	default:
		return o.WriterProvider
	}
}

// VersionAction records which agent action produced an OutputVersion.
type VersionAction string

// VersionAction values
const (
	ActionWrite   VersionAction = "write"
	ActionRewrite VersionAction = "rewrite"
)

// OutputVersion is one immutable entry of an output's content history.
type OutputVersion struct {
	ID             uuid.UUID     `json:"id"`
	OutputID       uuid.UUID     `json:"output_id"`
	VersionNumber  int           `json:"version_number"`
	Content        string        `json:"content"`
	ActionType     VersionAction `json:"action_type"`
	EditorFeedback *string       `json:"editor_feedback,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// OutputTransition describes a compare-and-swap status change on an output row.
// Nil pointer fields are left untouched.
type OutputTransition struct {
	From           OutputStatus
	To             OutputStatus
	Content        *string
	EditCycle      *int
	EditorFeedback *string
	EditorApproved *bool
	ErrorMessage   *string
	// Version, when set, is appended in the same transaction as the status change.
	Version *OutputVersion
}
