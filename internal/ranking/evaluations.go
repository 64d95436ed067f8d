package ranking

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// ClaimEvaluation moves a pending evaluation to processing. False means another
// caller got it first.
func (e *Engine) ClaimEvaluation(ctx context.Context, evaluationID uuid.UUID) (bool, error) {
	ev, err := e.getEvaluation(ctx, evaluationID)
	if err != nil {
		return false, err
	}
	if ev.Status != types.EvalPending {
		return false, nil
	}
	return e.transition(ctx, ev, types.EvaluationResult{From: types.EvalPending, To: types.EvalProcessing})
}

// RecordInitialScore completes an initial-stage evaluation with a 1-10 score.
func (e *Engine) RecordInitialScore(ctx context.Context, evaluationID uuid.UUID, score int) (bool, error) {
	if score < types.MinScore || score > types.MaxScore {
		return false, fmt.Errorf("%w: %d not in [%d, %d]", types.ErrInvalidScore, score, types.MinScore, types.MaxScore)
	}
	ev, err := e.getEvaluation(ctx, evaluationID)
	if err != nil {
		return false, err
	}
	if ev.Stage != types.StageInitial {
		return false, fmt.Errorf("%w: evaluation %s is %s stage, not initial", types.ErrInvalidArgument, evaluationID, ev.Stage)
	}
	if ev.Status != types.EvalProcessing {
		return false, nil
	}
	return e.transition(ctx, ev, types.EvaluationResult{
		From:  types.EvalProcessing,
		To:    types.EvalCompleted,
		Score: &score,
	})
}

// RecordFinalRank completes a final-stage evaluation. A nil rank means the
// evaluator left the finalist out of their top five.
func (e *Engine) RecordFinalRank(ctx context.Context, evaluationID uuid.UUID, rank *int) (bool, error) {
	if rank != nil && (*rank < types.MinRank || *rank > types.MaxRank) {
		return false, fmt.Errorf("%w: %d not in [%d, %d]", types.ErrInvalidRank, *rank, types.MinRank, types.MaxRank)
	}
	ev, err := e.getEvaluation(ctx, evaluationID)
	if err != nil {
		return false, err
	}
	if ev.Stage != types.StageFinal {
		return false, fmt.Errorf("%w: evaluation %s is %s stage, not final", types.ErrInvalidArgument, evaluationID, ev.Stage)
	}
	if ev.Status != types.EvalProcessing {
		return false, nil
	}
	if rank != nil {
		if err := e.checkRankUnused(ctx, ev, *rank); err != nil {
			return false, err
		}
	}
	weighted := WeightForRank(rank)
	return e.transition(ctx, ev, types.EvaluationResult{
		From:          types.EvalProcessing,
		To:            types.EvalCompleted,
		Rank:          rank,
		WeightedScore: &weighted,
	})
}

// checkRankUnused rejects a rank the evaluator already gave to another finalist of
// the task. Round two is a forced ranking: each rank is used at most once per evaluator.
func (e *Engine) checkRankUnused(ctx context.Context, ev *types.Evaluation, rank int) error {
	evals, err := e.store.ListEvaluations(ctx, ev.TaskID, types.StageFinal)
	if err != nil {
		return fmt.Errorf("failed to list final evaluations: %w", err)
	}
	for _, other := range evals {
		if other.ID == ev.ID || other.EvaluatorSlug != ev.EvaluatorSlug || other.Status != types.EvalCompleted {
			continue
		}
		if other.Rank != nil && *other.Rank == rank {
			return fmt.Errorf("%w: evaluator %s already gave rank %d to output %s",
				types.ErrInvalidRank, ev.EvaluatorSlug, rank, other.OutputID)
		}
	}
	return nil
}

// FailEvaluation records an evaluator error. Failed evaluations are left out of
// aggregation, shrinking the sample instead of blocking the round.
func (e *Engine) FailEvaluation(ctx context.Context, evaluationID uuid.UUID, message string) (bool, error) {
	ev, err := e.getEvaluation(ctx, evaluationID)
	if err != nil {
		return false, err
	}
	if ev.Status != types.EvalProcessing {
		return false, nil
	}
	return e.transition(ctx, ev, types.EvaluationResult{
		From:         types.EvalProcessing,
		To:           types.EvalFailed,
		ErrorMessage: &message,
	})
}

// CancelEvaluation fails a pending or processing evaluation on task cancellation.
func (e *Engine) CancelEvaluation(ctx context.Context, ev *types.Evaluation, reason string) (bool, error) {
	if ev.Status != types.EvalPending && ev.Status != types.EvalProcessing {
		return false, nil
	}
	return e.transition(ctx, ev, types.EvaluationResult{
		From:         ev.Status,
		To:           types.EvalFailed,
		ErrorMessage: &reason,
	})
}

// Evaluations returns every evaluation of a stage in insertion order.
func (e *Engine) Evaluations(ctx context.Context, taskID uuid.UUID, stage types.EvaluationStage) ([]types.Evaluation, error) {
	if _, err := e.getTask(ctx, taskID); err != nil {
		return nil, err
	}
	evals, err := e.store.ListEvaluations(ctx, taskID, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	return evals, nil
}

// PendingEvaluations returns evaluations of a stage still waiting to be claimed.
func (e *Engine) PendingEvaluations(ctx context.Context, taskID uuid.UUID, stage types.EvaluationStage) ([]types.Evaluation, error) {
	if _, err := e.getTask(ctx, taskID); err != nil {
		return nil, err
	}
	evals, err := e.store.ListEvaluations(ctx, taskID, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	var pending []types.Evaluation
	for _, ev := range evals {
		if ev.Status == types.EvalPending {
			pending = append(pending, ev)
		}
	}
	return pending, nil
}

var evaluationTransitions = map[types.EvaluationStatus][]types.EvaluationStatus{
	types.EvalPending:    {types.EvalProcessing, types.EvalFailed},
	types.EvalProcessing: {types.EvalCompleted, types.EvalFailed},
}

func canTransitionEvaluation(from, to types.EvaluationStatus) bool {
	for _, next := range evaluationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (e *Engine) transition(ctx context.Context, ev *types.Evaluation, r types.EvaluationResult) (bool, error) {
	if !canTransitionEvaluation(r.From, r.To) {
		return false, fmt.Errorf("%w: evaluation %s -> %s", types.ErrInvalidTransition, r.From, r.To)
	}
	ok, err := e.store.TransitionEvaluation(ctx, ev.ID, r)
	if err != nil {
		return false, fmt.Errorf("failed to transition evaluation %s: %w", ev.ID, err)
	}
	if !ok {
		e.logger.Debug("lost evaluation transition", "evaluation_id", ev.ID, "to", r.To)
	}
	return ok, nil
}

func (e *Engine) getEvaluation(ctx context.Context, evaluationID uuid.UUID) (*types.Evaluation, error) {
	ev, err := e.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrEvaluationNotFound, evaluationID)
	}
	return ev, nil
}
