// Package types provides the entities and status enums shared by the swarm scheduler,
// throttle, ranking engine and stores.
package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// TaskStatus is the lifecycle status of a content task. Transitions are monotonic.
type TaskStatus string

// TaskStatus values
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending: {TaskRunning, TaskFailed},
	TaskRunning: {TaskCompleted, TaskFailed},
}

// CanTransitionTask reports whether a task may move from one status to another.
func CanTransitionTask(from, to TaskStatus) bool {
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// ExecutionConfig is the task-level execution budget stored under config.execution.
type ExecutionConfig struct {
	MaxLocalConcurrent  int `json:"maxLocalConcurrent" yaml:"maxLocalConcurrent" validate:"min=0"`
	MaxCloudConcurrent  int `json:"maxCloudConcurrent" yaml:"maxCloudConcurrent" validate:"min=0"`
	MaxEditCycles       int `json:"maxEditCycles" yaml:"maxEditCycles" validate:"min=0"`
	TopNForFinalRanking int `json:"topNForFinalRanking" yaml:"topNForFinalRanking" validate:"min=1"`
	TopNForDeliverable  int `json:"topNForDeliverable" yaml:"topNForDeliverable" validate:"min=1,ltefield=TopNForFinalRanking"`
}

// Validate checks the execution budget against its validator tags.
func (c *ExecutionConfig) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// MaxConcurrent returns the concurrency budget for a resource class.
func (c ExecutionConfig) MaxConcurrent(class ResourceClass) int {
	if class == ClassLocal {
		return c.MaxLocalConcurrent
	}
	return c.MaxCloudConcurrent
}

// TaskConfig is the JSON document stored in the task config column.
type TaskConfig struct {
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
}

// Task is one content-generation job.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	Org          string     `json:"org"`
	Config       TaskConfig `json:"config"`
	Status       TaskStatus `json:"status"`
	Progress     int        `json:"progress"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TaskProgress is the step-level progress snapshot exposed for polling.
type TaskProgress struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Percentage int `json:"percentage"`
}
