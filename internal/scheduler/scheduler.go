package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// Store is the subset of persistence the scheduler reads and writes.
type Store interface {
	GetTask(ctx context.Context, taskID uuid.UUID) (*types.Task, error)
	ListSteps(ctx context.Context, taskID uuid.UUID) ([]types.ExecutionStep, error)
	GetStep(ctx context.Context, stepID uuid.UUID) (*types.ExecutionStep, error)
	// TransitionStep changes status only if the row is still in from.
	TransitionStep(ctx context.Context, stepID uuid.UUID, from, to types.StepStatus, errMsg *string) (bool, error)
}

// Scheduler answers step readiness queries and applies step status changes.
type Scheduler struct {
	store  Store
	logger *slog.Logger
}

// New creates a Scheduler. A nil logger discards output.
func New(store Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{store: store, logger: logger.With("component", "scheduler")}
}

// NextReadyStep returns the next runnable step of a task, or nil when nothing is
// pending or everything pending is blocked. Use HasPendingSteps to tell those apart.
func (s *Scheduler) NextReadyStep(ctx context.Context, taskID uuid.UUID) (*types.ExecutionStep, error) {
	steps, err := s.loadSteps(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return NextReady(steps), nil
}

// HasPendingSteps reports whether any step of the task is still pending.
func (s *Scheduler) HasPendingSteps(ctx context.Context, taskID uuid.UUID) (bool, error) {
	steps, err := s.loadSteps(ctx, taskID)
	if err != nil {
		return false, err
	}
	for _, step := range steps {
		if step.Status == types.StepPending {
			return true, nil
		}
	}
	return false, nil
}

// BlockedSteps returns pending steps held back by a failed or missing dependency.
func (s *Scheduler) BlockedSteps(ctx context.Context, taskID uuid.UUID) ([]types.ExecutionStep, error) {
	steps, err := s.loadSteps(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return Blocked(steps), nil
}

// TaskProgress returns step counts by status for a task.
func (s *Scheduler) TaskProgress(ctx context.Context, taskID uuid.UUID) (types.TaskProgress, error) {
	steps, err := s.loadSteps(ctx, taskID)
	if err != nil {
		return types.TaskProgress{}, err
	}
	return Progress(steps), nil
}

// StepForOutput returns the step of the given type that works on an output, or nil.
func (s *Scheduler) StepForOutput(ctx context.Context, taskID, outputID uuid.UUID, stepType types.StepType) (*types.ExecutionStep, error) {
	steps, err := s.loadSteps(ctx, taskID)
	if err != nil {
		return nil, err
	}
	for i := range steps {
		step := &steps[i]
		if step.StepType == stepType && step.InputOutputID != nil && *step.InputOutputID == outputID {
			return cloneStep(step), nil
		}
	}
	return nil, nil
}

// SkipOutputSteps skips every pending step that works on an output. It is the
// supervisor action for a draft that failed: its remaining edit and evaluate steps
// can never run, and skipping them keeps them from blocking the rest of the task.
func (s *Scheduler) SkipOutputSteps(ctx context.Context, taskID, outputID uuid.UUID) (int, error) {
	steps, err := s.loadSteps(ctx, taskID)
	if err != nil {
		return 0, err
	}
	skipped := 0
	for _, step := range steps {
		if step.Status != types.StepPending || step.InputOutputID == nil || *step.InputOutputID != outputID {
			continue
		}
		ok, err := s.SkipStep(ctx, step.ID)
		if err != nil {
			return skipped, err
		}
		if ok {
			skipped++
		}
	}
	if skipped > 0 {
		s.logger.Debug("output steps skipped", "task_id", taskID, "output_id", outputID, "skipped", skipped)
	}
	return skipped, nil
}

// ClaimStep moves a pending step to processing. It returns false when another
// caller claimed it first.
func (s *Scheduler) ClaimStep(ctx context.Context, stepID uuid.UUID) (bool, error) {
	return s.transition(ctx, stepID, types.StepPending, types.StepProcessing, nil)
}

// CompleteStep moves a processing step to completed.
func (s *Scheduler) CompleteStep(ctx context.Context, stepID uuid.UUID) (bool, error) {
	return s.transition(ctx, stepID, types.StepProcessing, types.StepCompleted, nil)
}

// FailStep moves a processing step to failed. Failed steps are never retried here.
func (s *Scheduler) FailStep(ctx context.Context, stepID uuid.UUID, message string) (bool, error) {
	return s.transition(ctx, stepID, types.StepProcessing, types.StepFailed, &message)
}

// SkipStep marks a pending step skipped, which unblocks its dependents.
func (s *Scheduler) SkipStep(ctx context.Context, stepID uuid.UUID) (bool, error) {
	return s.transition(ctx, stepID, types.StepPending, types.StepSkipped, nil)
}

func (s *Scheduler) loadSteps(ctx context.Context, taskID uuid.UUID) ([]types.ExecutionStep, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrTaskNotFound, taskID)
	}
	steps, err := s.store.ListSteps(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	return steps, nil
}

func (s *Scheduler) transition(ctx context.Context, stepID uuid.UUID, from, to types.StepStatus, errMsg *string) (bool, error) {
	if !types.CanTransitionStep(from, to) {
		return false, fmt.Errorf("%w: step %s -> %s", types.ErrInvalidTransition, from, to)
	}

	step, err := s.store.GetStep(ctx, stepID)
	if err != nil {
		return false, err
	}
	if step == nil {
		return false, fmt.Errorf("%w: %s", types.ErrStepNotFound, stepID)
	}
	if step.Status != from {
		s.logger.Debug("step not in expected status", "step_id", stepID, "expected", from, "actual", step.Status)
		return false, nil
	}

	ok, err := s.store.TransitionStep(ctx, stepID, from, to, errMsg)
	if err != nil {
		return false, fmt.Errorf("failed to transition step %s: %w", stepID, err)
	}
	if !ok {
		s.logger.Debug("lost step claim", "step_id", stepID, "to", to)
		return false, nil
	}
	s.logger.Debug("step transitioned", "step_id", stepID, "task_id", step.TaskID, "from", from, "to", to)
	return true, nil
}
