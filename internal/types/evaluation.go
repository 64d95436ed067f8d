package types

import (
	"time"

	"github.com/google/uuid"
)

// EvaluationStatus is the response status of an evaluator for one output.
type EvaluationStatus string

// EvaluationStatus values
const (
	EvalPending    EvaluationStatus = "pending"
	EvalProcessing EvaluationStatus = "processing"
	EvalCompleted  EvaluationStatus = "completed"
	EvalFailed     EvaluationStatus = "failed"
)

// EvaluationStage selects the tournament round.
type EvaluationStage string

// EvaluationStage values
const (
	StageInitial EvaluationStage = "initial"
	StageFinal   EvaluationStage = "final"
)

// Score bounds for initial-stage evaluations and rank bounds for final-stage ones.
const (
	MinScore = 1
	MaxScore = 10
	MinRank  = 1
	MaxRank  = 5
)

// Evaluation is one evaluator's verdict on one output in one round.
type Evaluation struct {
	ID            uuid.UUID        `json:"id"`
	TaskID        uuid.UUID        `json:"task_id"`
	OutputID      uuid.UUID        `json:"output_id"`
	EvaluatorSlug string           `json:"evaluator_agent_slug"`
	Status        EvaluationStatus `json:"status"`
	Stage         EvaluationStage  `json:"stage"`
	Score         *int             `json:"score,omitempty"`
	Rank          *int             `json:"rank,omitempty"`
	WeightedScore *int             `json:"weighted_score,omitempty"`
	ErrorMessage  *string          `json:"error_message,omitempty"`
	// Seq is the insertion order of the row within the store.
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EvaluationResult carries the fields written when an evaluation completes or fails.
type EvaluationResult struct {
	From          EvaluationStatus
	To            EvaluationStatus
	Score         *int
	Rank          *int
	WeightedScore *int
	ErrorMessage  *string
}
