// Package scheduler selects the next runnable execution step of a task.
//
// Readiness is derived from step rows on every call; nothing is cached between calls.
// A failed dependency keeps its dependents blocked until they are explicitly skipped.
// Cycles in depends_on are not detected here; the plan compiler rejects them.
package scheduler

import (
	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// NextReady returns the lowest-sequence pending step whose dependencies are all
// completed or skipped, or nil when there is none.
func NextReady(steps []types.ExecutionStep) *types.ExecutionStep {
	status := make(map[uuid.UUID]types.StepStatus, len(steps))
	for _, step := range steps {
		status[step.ID] = step.Status
	}

	var next *types.ExecutionStep
	for i := range steps {
		step := &steps[i]
		if step.Status != types.StepPending {
			continue
		}
		if !dependenciesResolved(step, status) {
			continue
		}
		if next == nil || step.Sequence < next.Sequence {
			next = step
		}
	}

	if next == nil {
		return nil
	}
	return cloneStep(next)
}

// Blocked returns pending steps that cannot run because a dependency failed
// or references a step outside the task.
func Blocked(steps []types.ExecutionStep) []types.ExecutionStep {
	status := make(map[uuid.UUID]types.StepStatus, len(steps))
	for _, step := range steps {
		status[step.ID] = step.Status
	}

	var blocked []types.ExecutionStep
	for i := range steps {
		step := &steps[i]
		if step.Status != types.StepPending {
			continue
		}
		for depID := range step.DependsOn {
			depStatus, ok := status[depID]
			if !ok || depStatus == types.StepFailed {
				blocked = append(blocked, *cloneStep(step))
				break
			}
		}
	}
	return blocked
}

// Progress summarizes step statuses. Percentage counts completed, failed and
// skipped steps as finished.
func Progress(steps []types.ExecutionStep) types.TaskProgress {
	var p types.TaskProgress
	p.Total = len(steps)
	for _, step := range steps {
		switch step.Status {
		case types.StepPending:
			p.Pending++
		case types.StepProcessing:
			p.Processing++
		case types.StepCompleted:
			p.Completed++
		case types.StepFailed:
			p.Failed++
		case types.StepSkipped:
			p.Skipped++
		}
	}
	if p.Total > 0 {
		p.Percentage = (p.Completed + p.Failed + p.Skipped) * 100 / p.Total
	}
	return p
}

func dependenciesResolved(step *types.ExecutionStep, status map[uuid.UUID]types.StepStatus) bool {
	for depID := range step.DependsOn {
		depStatus, ok := status[depID]
		if !ok || !depStatus.Resolves() {
			return false
		}
	}
	return true
}

func cloneStep(step *types.ExecutionStep) *types.ExecutionStep {
	cp := *step
	if step.DependsOn != nil {
		cp.DependsOn = types.NewStepSet(step.DependsOn.IDs()...)
	}
	if step.InputOutputID != nil {
		id := *step.InputOutputID
		cp.InputOutputID = &id
	}
	return &cp
}
