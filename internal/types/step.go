package types

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// StepType is the agent action an execution step performs.
type StepType string

// StepType values
const (
	StepWrite    StepType = "write"
	StepEdit     StepType = "edit"
	StepEvaluate StepType = "evaluate"
)

// StepStatus is the execution status of a step.
type StepStatus string

// StepStatus values
const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// Resolves reports whether a dependency in this status unblocks its dependents.
// Failed does not: dependents stay blocked until a supervisor skips them.
func (s StepStatus) Resolves() bool {
	return s == StepCompleted || s == StepSkipped
}

var stepTransitions = map[StepStatus][]StepStatus{
	StepPending:    {StepProcessing, StepSkipped},
	StepProcessing: {StepCompleted, StepFailed},
}

// CanTransitionStep reports whether a step may move from one status to another.
func CanTransitionStep(from, to StepStatus) bool {
	for _, next := range stepTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StepSet is a set of step ids. It marshals to a sorted JSON array.
type StepSet map[uuid.UUID]struct{}

// NewStepSet builds a set from ids.
func NewStepSet(ids ...uuid.UUID) StepSet {
	s := make(StepSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s StepSet) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in byte order.
func (s StepSet) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// MarshalJSON encodes the set as an array.
func (s StepSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// UnmarshalJSON decodes an array of ids.
func (s *StepSet) UnmarshalJSON(data []byte) error {
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewStepSet(ids...)
	return nil
}

// ExecutionStep is one unit of scheduled agent work.
type ExecutionStep struct {
	ID            uuid.UUID  `json:"id"`
	TaskID        uuid.UUID  `json:"task_id"`
	StepType      StepType   `json:"step_type"`
	Sequence      int        `json:"sequence"`
	AgentSlug     string     `json:"agent_slug"`
	DependsOn     StepSet    `json:"depends_on"`
	InputOutputID *uuid.UUID `json:"input_output_id,omitempty"`
	Status        StepStatus `json:"status"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
