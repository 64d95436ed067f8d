package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// runOutput performs the agent call for a claimed output and records the result.
// Agent errors fail the output; only store errors are returned.
func (d *Dispatcher) runOutput(ctx context.Context, taskID, outputID uuid.UUID, status types.OutputStatus) error {
	out, err := d.svc.Store().GetOutput(ctx, outputID)
	if err != nil {
		return err
	}
	if out == nil {
		return fmt.Errorf("%w: %s", types.ErrOutputNotFound, outputID)
	}

	switch status {
	case types.OutputWriting:
		return d.write(ctx, taskID, out)
	case types.OutputEditing:
		return d.edit(ctx, taskID, out)
	case types.OutputRewriting:
		return d.rewrite(ctx, taskID, out)
	}
	return fmt.Errorf("%w: output %s claimed into %s", types.ErrInvalidTransition, outputID, status)
}

func (d *Dispatcher) write(ctx context.Context, taskID uuid.UUID, out *types.Output) error {
	step, err := d.beginStep(ctx, taskID, out.ID, types.StepWrite)
	if err != nil {
		return err
	}

	content, agentErr := d.agent.Write(ctx, *out)
	if agentErr != nil {
		return d.failOutput(ctx, out, step, agentErr)
	}

	ok, err := d.svc.Throttle().CompleteWrite(ctx, out.ID, content)
	if err != nil {
		return err
	}
	return d.endStep(ctx, step, ok)
}

func (d *Dispatcher) edit(ctx context.Context, taskID uuid.UUID, out *types.Output) error {
	step, err := d.beginStep(ctx, taskID, out.ID, types.StepEdit)
	if err != nil {
		return err
	}

	review, agentErr := d.agent.Edit(ctx, *out)
	if agentErr != nil {
		return d.failOutput(ctx, out, step, agentErr)
	}

	next, ok, err := d.svc.Throttle().CompleteEdit(ctx, out.ID, review.Approved, review.Feedback)
	if err != nil {
		return err
	}
	if ok && next == types.OutputPendingRewrite {
		// The edit loop continues; the step stays processing until it settles.
		return nil
	}
	return d.endStep(ctx, step, ok)
}

func (d *Dispatcher) rewrite(ctx context.Context, taskID uuid.UUID, out *types.Output) error {
	step, err := d.svc.Scheduler().StepForOutput(ctx, taskID, out.ID, types.StepEdit)
	if err != nil {
		return err
	}

	content, agentErr := d.agent.Rewrite(ctx, *out)
	if agentErr != nil {
		return d.failOutput(ctx, out, step, agentErr)
	}

	ok, err := d.svc.Throttle().CompleteRewrite(ctx, out.ID, content)
	if err != nil {
		return err
	}
	if !ok {
		return d.endStep(ctx, step, false)
	}
	return nil
}

// beginStep claims the output's step of the given type if it is still pending and
// returns it. Edit steps are claimed on the first review and reused by later cycles.
func (d *Dispatcher) beginStep(ctx context.Context, taskID, outputID uuid.UUID, stepType types.StepType) (*types.ExecutionStep, error) {
	sched := d.svc.Scheduler()
	step, err := sched.StepForOutput(ctx, taskID, outputID, stepType)
	if err != nil || step == nil {
		return nil, err
	}
	if step.Status == types.StepPending {
		if _, err := sched.ClaimStep(ctx, step.ID); err != nil {
			return nil, err
		}
	}
	return step, nil
}

// endStep completes step when the output result was accepted and fails it when the
// output had moved on, e.g. after cancellation.
func (d *Dispatcher) endStep(ctx context.Context, step *types.ExecutionStep, accepted bool) error {
	if step == nil {
		return nil
	}
	sched := d.svc.Scheduler()
	if accepted {
		_, err := sched.CompleteStep(ctx, step.ID)
		return err
	}
	d.logger.Info("agent result rejected", "step_id", step.ID, "task_id", step.TaskID)
	_, err := sched.FailStep(ctx, step.ID, "agent result rejected: output changed state")
	return err
}

func (d *Dispatcher) failOutput(ctx context.Context, out *types.Output, step *types.ExecutionStep, agentErr error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	message := agentErr.Error()
	d.logger.Warn("agent failed", "task_id", out.TaskID, "output_id", out.ID, "status", out.Status, "error", message)

	if _, err := d.svc.Throttle().FailOutput(ctx, out.ID, message); err != nil {
		return err
	}
	if step != nil {
		if _, err := d.svc.Scheduler().FailStep(ctx, step.ID, message); err != nil {
			return err
		}
	}
	return d.dropOutput(ctx, out, message)
}

// dropOutput skips the remaining steps of a failed output and fails its round-one
// evaluations, so the other drafts carry the task.
func (d *Dispatcher) dropOutput(ctx context.Context, out *types.Output, message string) error {
	skipped, err := d.svc.Scheduler().SkipOutputSteps(ctx, out.TaskID, out.ID)
	if err != nil {
		return err
	}

	engine := d.svc.Ranking()
	pending, err := engine.PendingEvaluations(ctx, out.TaskID, types.StageInitial)
	if err != nil {
		return err
	}
	failed := 0
	reason := "output failed: " + message
	for _, ev := range pending {
		if ev.OutputID != out.ID {
			continue
		}
		ok, err := engine.CancelEvaluation(ctx, &ev, reason)
		if err != nil {
			return err
		}
		if ok {
			failed++
		}
	}
	d.logger.Info("output dropped", "task_id", out.TaskID, "output_id", out.ID,
		"steps_skipped", skipped, "evaluations_failed", failed)
	return nil
}
