package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/content-swarm/internal/ranking"
	"github.com/jonathan/content-swarm/internal/types"
)

// runEvaluateStep scores the pending round-one evaluations of the step's evaluator
// for the step's output, then completes the step. Per-evaluation agent errors fail
// only that evaluation.
func (d *Dispatcher) runEvaluateStep(ctx context.Context, step *types.ExecutionStep) error {
	engine := d.svc.Ranking()
	pending, err := engine.PendingEvaluations(ctx, step.TaskID, types.StageInitial)
	if err != nil {
		return err
	}

	for _, ev := range pending {
		if ev.EvaluatorSlug != step.AgentSlug {
			continue
		}
		if step.InputOutputID != nil && ev.OutputID != *step.InputOutputID {
			continue
		}
		ok, err := engine.ClaimEvaluation(ctx, ev.ID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := d.score(ctx, &ev); err != nil {
			return err
		}
	}

	_, err = d.svc.Scheduler().CompleteStep(ctx, step.ID)
	return err
}

func (d *Dispatcher) score(ctx context.Context, ev *types.Evaluation) error {
	engine := d.svc.Ranking()
	out, err := d.svc.Store().GetOutput(ctx, ev.OutputID)
	if err != nil {
		return err
	}
	if out == nil {
		return fmt.Errorf("%w: %s", types.ErrOutputNotFound, ev.OutputID)
	}
	if out.Status != types.OutputApproved && out.Status != types.OutputMaxCyclesReached {
		_, err := engine.FailEvaluation(ctx, ev.ID, fmt.Sprintf("output is %s", out.Status))
		return err
	}

	score, agentErr := d.agent.Score(ctx, ev.EvaluatorSlug, *out)
	if agentErr == nil {
		_, agentErr = engine.RecordInitialScore(ctx, ev.ID, score)
		if agentErr != nil && !errors.Is(agentErr, types.ErrInvalidScore) {
			return agentErr
		}
	}
	if agentErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn("evaluator failed", "evaluation_id", ev.ID, "evaluator", ev.EvaluatorSlug, "error", agentErr)
		_, err := engine.FailEvaluation(ctx, ev.ID, agentErr.Error())
		return err
	}
	return nil
}

// advanceTournament runs the ranking phases once every step is resolved. It returns
// how many phases advanced and whether the task reached a terminal status.
func (d *Dispatcher) advanceTournament(ctx context.Context, taskID uuid.UUID) (int, bool, error) {
	progress, err := d.svc.Scheduler().TaskProgress(ctx, taskID)
	if err != nil {
		return 0, false, err
	}
	if progress.Pending > 0 || progress.Processing > 0 {
		return 0, false, nil
	}

	engine := d.svc.Ranking()
	advanced := 0

	finals, err := engine.Evaluations(ctx, taskID, types.StageFinal)
	if err != nil {
		return 0, false, err
	}
	if len(finals) == 0 {
		if _, err := engine.CalculateInitialRankings(ctx, taskID); err != nil {
			return 0, false, err
		}
		if _, err := engine.SelectConfiguredFinalists(ctx, taskID); err != nil {
			return 0, false, err
		}
		created, err := engine.PrepareFinalRound(ctx, taskID)
		if err != nil {
			return 0, false, err
		}
		advanced++
		if created == 0 {
			done, err := d.finish(ctx, taskID)
			return advanced, done, err
		}
		if finals, err = engine.Evaluations(ctx, taskID, types.StageFinal); err != nil {
			return advanced, false, err
		}
	}

	byEvaluator := make(map[string][]types.Evaluation)
	var order []string
	inFlight := false
	for _, ev := range finals {
		switch ev.Status {
		case types.EvalPending:
			if _, ok := byEvaluator[ev.EvaluatorSlug]; !ok {
				order = append(order, ev.EvaluatorSlug)
			}
			byEvaluator[ev.EvaluatorSlug] = append(byEvaluator[ev.EvaluatorSlug], ev)
		case types.EvalProcessing:
			inFlight = true
		}
	}

	if len(order) > 0 {
		g, gCtx := errgroup.WithContext(ctx)
		for _, evaluator := range order {
			evals := byEvaluator[evaluator]
			g.Go(func() error {
				return d.rankFinalists(gCtx, evaluator, evals)
			})
		}
		if err := g.Wait(); err != nil {
			return advanced, false, err
		}
		return advanced + 1, false, nil
	}
	if inFlight {
		return advanced, false, nil
	}

	done, err := d.finish(ctx, taskID)
	return advanced + 1, done, err
}

// rankFinalists claims an evaluator's pending final-round evaluations, asks the agent
// for one ranking over all of their finalists and records it.
func (d *Dispatcher) rankFinalists(ctx context.Context, evaluator string, evals []types.Evaluation) error {
	engine := d.svc.Ranking()
	store := d.svc.Store()

	var claimed []types.Evaluation
	var finalists []types.Output
	for _, ev := range evals {
		ok, err := engine.ClaimEvaluation(ctx, ev.ID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		out, err := store.GetOutput(ctx, ev.OutputID)
		if err != nil {
			return err
		}
		if out == nil {
			return fmt.Errorf("%w: %s", types.ErrOutputNotFound, ev.OutputID)
		}
		claimed = append(claimed, ev)
		finalists = append(finalists, *out)
	}
	if len(claimed) == 0 {
		return nil
	}

	ranks, agentErr := d.agent.RankFinalists(ctx, evaluator, finalists)
	if agentErr == nil {
		agentErr = ranking.CheckForcedRanking(ranks)
	}
	if agentErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn("evaluator failed", "evaluator", evaluator, "stage", types.StageFinal, "error", agentErr)
		for _, ev := range claimed {
			if _, err := engine.FailEvaluation(ctx, ev.ID, agentErr.Error()); err != nil {
				return err
			}
		}
		return nil
	}

	for _, ev := range claimed {
		var rank *int
		if r, ok := ranks[ev.OutputID]; ok {
			rank = &r
		}
		_, err := engine.RecordFinalRank(ctx, ev.ID, rank)
		if errors.Is(err, types.ErrInvalidRank) {
			_, err = engine.FailEvaluation(ctx, ev.ID, err.Error())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// finish computes the final standings and closes the task. A task whose drafts all
// failed ends failed.
func (d *Dispatcher) finish(ctx context.Context, taskID uuid.UUID) (bool, error) {
	rankings, err := d.svc.Ranking().CalculateFinalRankings(ctx, taskID)
	if err != nil {
		return false, err
	}
	if len(rankings) == 0 {
		if _, err := d.svc.FailTask(ctx, taskID, "no output reached the final round"); err != nil {
			return false, err
		}
		return true, nil
	}
	if _, err := d.svc.CompleteTask(ctx, taskID); err != nil {
		return false, err
	}
	d.logger.Info("task finished", "task_id", taskID, "winner", rankings[0].OutputID, "score", rankings[0].TotalScore)
	return true, nil
}
