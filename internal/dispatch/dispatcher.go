// Package dispatch runs a task to completion: it polls the scheduler and throttle
// for work, calls agents, writes results back and drives both tournament rounds.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/content-swarm/internal/swarm"
	"github.com/jonathan/content-swarm/internal/types"
)

// ErrStalled is returned by Run when pending steps remain but nothing can run and
// nothing is in flight, typically because a step failed outside the dispatcher
// and blocks its dependents.
var ErrStalled = errors.New("task stalled")

// Options configures a Dispatcher.
type Options struct {
	PollInterval time.Duration
}

// TickResult reports what one Tick did.
type TickResult struct {
	// Progressed counts claims and tournament phases advanced during the tick.
	Progressed int
	// Done is set once the task is completed or failed.
	Done bool
}

// Dispatcher drives one or more tasks through the swarm. Several dispatchers may
// work the same task; every claim is a compare-and-swap.
type Dispatcher struct {
	svc    *swarm.Service
	agent  Agent
	opts   Options
	logger *slog.Logger
}

// New creates a Dispatcher. A nil logger discards output.
func New(svc *swarm.Service, agent Agent, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{svc: svc, agent: agent, opts: opts, logger: logger.With("component", "dispatch")}
}

// Run ticks until the task is done, ctx ends, or the task stalls.
func (d *Dispatcher) Run(ctx context.Context, taskID uuid.UUID) error {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		result, err := d.Tick(ctx, taskID)
		if err != nil {
			return err
		}
		if result.Done {
			return nil
		}
		if result.Progressed == 0 {
			stalled, err := d.stalled(ctx, taskID)
			if err != nil {
				return err
			}
			if stalled {
				return d.stallError(ctx, taskID)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick claims all work currently allowed, waits for it to finish, then advances
// the tournament if every evaluate step is resolved.
func (d *Dispatcher) Tick(ctx context.Context, taskID uuid.UUID) (TickResult, error) {
	var result TickResult

	task, err := d.svc.GetTask(ctx, taskID)
	if err != nil {
		return result, err
	}
	if task.Status.IsTerminal() {
		result.Done = true
		return result, nil
	}
	if task.Status == types.TaskPending {
		started, err := d.svc.StartTask(ctx, taskID)
		if err != nil {
			return result, err
		}
		if started {
			result.Progressed++
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	claimed, err := d.claimOutputs(ctx, gCtx, g, taskID)
	if err != nil {
		_ = g.Wait()
		return result, err
	}
	result.Progressed += claimed

	claimed, err = d.claimEvaluateSteps(ctx, gCtx, g, taskID)
	if err != nil {
		_ = g.Wait()
		return result, err
	}
	result.Progressed += claimed

	if err := g.Wait(); err != nil {
		return result, err
	}

	advanced, done, err := d.advanceTournament(ctx, taskID)
	if err != nil {
		return result, err
	}
	result.Progressed += advanced
	result.Done = done
	return result, nil
}

// claimOutputs claims up to each class's free budget of pending outputs and starts
// a worker for each.
func (d *Dispatcher) claimOutputs(ctx, gCtx context.Context, g *errgroup.Group, taskID uuid.UUID) (int, error) {
	th := d.svc.Throttle()
	claimed := 0
	for _, class := range types.ResourceClasses {
		budget, err := th.Budget(ctx, taskID, class)
		if err != nil {
			return claimed, err
		}
		if budget == 0 {
			continue
		}
		ids, err := th.NextOutputsToProcess(ctx, taskID, class, budget)
		if err != nil {
			return claimed, err
		}
		for _, id := range ids {
			status, ok, err := th.ClaimOutput(ctx, id)
			if err != nil {
				return claimed, err
			}
			if !ok {
				continue
			}
			claimed++
			d.logger.Debug("output claimed", "task_id", taskID, "output_id", id, "class", class, "status", status)
			g.Go(func() error {
				return d.runOutput(gCtx, taskID, id, status)
			})
		}
	}
	return claimed, nil
}

// claimEvaluateSteps claims every ready evaluate step. Write and edit steps are
// claimed alongside their outputs, so the loop stops at the first other step type.
func (d *Dispatcher) claimEvaluateSteps(ctx, gCtx context.Context, g *errgroup.Group, taskID uuid.UUID) (int, error) {
	sched := d.svc.Scheduler()
	claimed := 0
	for {
		step, err := sched.NextReadyStep(ctx, taskID)
		if err != nil {
			return claimed, err
		}
		if step == nil || step.StepType != types.StepEvaluate {
			return claimed, nil
		}
		ok, err := sched.ClaimStep(ctx, step.ID)
		if err != nil {
			return claimed, err
		}
		if !ok {
			continue
		}
		claimed++
		g.Go(func() error {
			return d.runEvaluateStep(gCtx, step)
		})
	}
}

func (d *Dispatcher) stalled(ctx context.Context, taskID uuid.UUID) (bool, error) {
	running, err := d.svc.Throttle().RunningCounts(ctx, taskID)
	if err != nil {
		return false, err
	}
	if running.Local+running.Cloud > 0 {
		return false, nil
	}
	progress, err := d.svc.Scheduler().TaskProgress(ctx, taskID)
	if err != nil {
		return false, err
	}
	return progress.Processing == 0, nil
}

func (d *Dispatcher) stallError(ctx context.Context, taskID uuid.UUID) error {
	blocked, err := d.svc.Scheduler().BlockedSteps(ctx, taskID)
	if err != nil {
		return err
	}
	for _, step := range blocked {
		d.logger.Warn("step blocked", "task_id", taskID, "step_id", step.ID,
			"sequence", step.Sequence, "type", step.StepType, "agent", step.AgentSlug)
	}
	return fmt.Errorf("%w: %d blocked steps in task %s", ErrStalled, len(blocked), taskID)
}
