package swarm

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// CancelSummary counts the rows closed by CancelTask.
type CancelSummary struct {
	StepsSkipped      int `json:"steps_skipped"`
	OutputsFailed     int `json:"outputs_failed"`
	EvaluationsFailed int `json:"evaluations_failed"`
}

// CancelTask stops a task cooperatively. Pending steps are skipped, unfinished
// outputs and evaluations are failed, and the task is failed with reason. Work an
// agent is still doing is not interrupted; its result is rejected when it reports back.
func (s *Service) CancelTask(ctx context.Context, taskID uuid.UUID, reason string) (CancelSummary, error) {
	var summary CancelSummary
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return summary, err
	}
	if task.Status.IsTerminal() {
		return summary, fmt.Errorf("%w: task %s is already %s", types.ErrInvalidTransition, taskID, task.Status)
	}
	if reason == "" {
		reason = "task cancelled"
	}

	steps, err := s.store.ListSteps(ctx, taskID)
	if err != nil {
		return summary, fmt.Errorf("failed to list steps: %w", err)
	}
	for _, step := range steps {
		if step.Status != types.StepPending {
			continue
		}
		ok, err := s.scheduler.SkipStep(ctx, step.ID)
		if err != nil {
			return summary, err
		}
		if ok {
			summary.StepsSkipped++
		}
	}

	outputs, err := s.store.ListOutputs(ctx, taskID)
	if err != nil {
		return summary, fmt.Errorf("failed to list outputs: %w", err)
	}
	for i := range outputs {
		ok, err := s.throttle.CancelOutput(ctx, &outputs[i], reason)
		if err != nil {
			return summary, err
		}
		if ok {
			summary.OutputsFailed++
		}
	}

	for _, stage := range []types.EvaluationStage{types.StageInitial, types.StageFinal} {
		evals, err := s.store.ListEvaluations(ctx, taskID, stage)
		if err != nil {
			return summary, fmt.Errorf("failed to list evaluations: %w", err)
		}
		for i := range evals {
			ok, err := s.ranking.CancelEvaluation(ctx, &evals[i], reason)
			if err != nil {
				return summary, err
			}
			if ok {
				summary.EvaluationsFailed++
			}
		}
	}

	if _, err := s.FailTask(ctx, taskID, reason); err != nil {
		return summary, err
	}
	if _, err := s.TaskProgress(ctx, taskID); err != nil {
		return summary, err
	}

	s.logger.Info("task cancelled", "task_id", taskID, "reason", reason,
		"steps_skipped", summary.StepsSkipped, "outputs_failed", summary.OutputsFailed,
		"evaluations_failed", summary.EvaluationsFailed)
	return summary, nil
}
