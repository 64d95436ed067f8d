package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// Store is the subset of persistence the ranking engine reads and writes.
type Store interface {
	GetTask(ctx context.Context, taskID uuid.UUID) (*types.Task, error)
	ListOutputs(ctx context.Context, taskID uuid.UUID) ([]types.Output, error)
	ListEvaluations(ctx context.Context, taskID uuid.UUID, stage types.EvaluationStage) ([]types.Evaluation, error)
	GetEvaluation(ctx context.Context, evaluationID uuid.UUID) (*types.Evaluation, error)
	// CreateEvaluations inserts rows, ignoring ones that already exist for the same
	// output, evaluator and stage. It returns the number inserted.
	CreateEvaluations(ctx context.Context, evals []types.Evaluation) (int, error)
	// TransitionEvaluation applies r only if the row is still in r.From.
	TransitionEvaluation(ctx context.Context, evaluationID uuid.UUID, r types.EvaluationResult) (bool, error)
	// SaveInitialRankings writes the given projections and clears them on every
	// other output of the task.
	SaveInitialRankings(ctx context.Context, taskID uuid.UUID, rankings []types.InitialRanking) error
	// SaveFinalists sets is_finalist to true for the ids and false for every other output.
	SaveFinalists(ctx context.Context, taskID uuid.UUID, finalists []uuid.UUID) error
	// SaveFinalRankings writes the given projections and clears them on every
	// other output of the task.
	SaveFinalRankings(ctx context.Context, taskID uuid.UUID, rankings []types.FinalRanking) error
}

// Engine runs the tournament rounds against a store.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil logger discards output.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: store, logger: logger.With("component", "ranking")}
}

// CalculateInitialRankings recomputes initial_avg_score and initial_rank for a task.
func (e *Engine) CalculateInitialRankings(ctx context.Context, taskID uuid.UUID) ([]types.InitialRanking, error) {
	if _, err := e.getTask(ctx, taskID); err != nil {
		return nil, err
	}
	evals, err := e.store.ListEvaluations(ctx, taskID, types.StageInitial)
	if err != nil {
		return nil, fmt.Errorf("failed to list initial evaluations: %w", err)
	}

	rankings := ComputeInitialRankings(evals)
	if err := e.store.SaveInitialRankings(ctx, taskID, rankings); err != nil {
		return nil, fmt.Errorf("failed to save initial rankings: %w", err)
	}
	e.logger.Info("initial rankings calculated", "task_id", taskID, "ranked", len(rankings), "evaluations", len(evals))
	return rankings, nil
}

// SelectFinalists marks the min(topN, ranked) best initially ranked outputs as
// finalists and clears the flag on all others.
func (e *Engine) SelectFinalists(ctx context.Context, taskID uuid.UUID, topN int) ([]uuid.UUID, error) {
	if topN < 1 {
		return nil, fmt.Errorf("%w: topN must be at least 1, got %d", types.ErrInvalidArgument, topN)
	}
	if _, err := e.getTask(ctx, taskID); err != nil {
		return nil, err
	}
	outputs, err := e.store.ListOutputs(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}

	finalists := ChooseFinalists(outputs, topN)
	if err := e.store.SaveFinalists(ctx, taskID, finalists); err != nil {
		return nil, fmt.Errorf("failed to save finalists: %w", err)
	}
	e.logger.Info("finalists selected", "task_id", taskID, "top_n", topN, "finalists", len(finalists))
	return finalists, nil
}

// SelectConfiguredFinalists selects finalists using the task's topNForFinalRanking.
func (e *Engine) SelectConfiguredFinalists(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return e.SelectFinalists(ctx, taskID, task.Config.Execution.TopNForFinalRanking)
}

// PrepareFinalRound creates a pending final-stage evaluation for every evaluator
// that took part in round one and every finalist. Existing rows are kept.
func (e *Engine) PrepareFinalRound(ctx context.Context, taskID uuid.UUID) (int, error) {
	if _, err := e.getTask(ctx, taskID); err != nil {
		return 0, err
	}
	initial, err := e.store.ListEvaluations(ctx, taskID, types.StageInitial)
	if err != nil {
		return 0, fmt.Errorf("failed to list initial evaluations: %w", err)
	}
	outputs, err := e.store.ListOutputs(ctx, taskID)
	if err != nil {
		return 0, fmt.Errorf("failed to list outputs: %w", err)
	}

	seen := make(map[string]bool)
	var evaluators []string
	for _, ev := range sortedBySeq(initial) {
		if !seen[ev.EvaluatorSlug] {
			seen[ev.EvaluatorSlug] = true
			evaluators = append(evaluators, ev.EvaluatorSlug)
		}
	}

	var rows []types.Evaluation
	for _, evaluator := range evaluators {
		for _, out := range outputs {
			if !out.IsFinalist {
				continue
			}
			rows = append(rows, types.Evaluation{
				ID:            uuid.New(),
				TaskID:        taskID,
				OutputID:      out.ID,
				EvaluatorSlug: evaluator,
				Status:        types.EvalPending,
				Stage:         types.StageFinal,
			})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	created, err := e.store.CreateEvaluations(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to create final evaluations: %w", err)
	}
	e.logger.Info("final round prepared", "task_id", taskID, "evaluators", len(evaluators), "created", created)
	return created, nil
}

// CalculateFinalRankings recomputes final_total_score and final_rank for the
// task's finalists and clears them on every other output.
func (e *Engine) CalculateFinalRankings(ctx context.Context, taskID uuid.UUID) ([]types.FinalRanking, error) {
	if _, err := e.getTask(ctx, taskID); err != nil {
		return nil, err
	}
	outputs, err := e.store.ListOutputs(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	evals, err := e.store.ListEvaluations(ctx, taskID, types.StageFinal)
	if err != nil {
		return nil, fmt.Errorf("failed to list final evaluations: %w", err)
	}

	var finalists []types.Output
	for _, out := range outputs {
		if out.IsFinalist {
			finalists = append(finalists, out)
		}
	}

	rankings := ComputeFinalRankings(finalists, evals)
	if err := e.store.SaveFinalRankings(ctx, taskID, rankings); err != nil {
		return nil, fmt.Errorf("failed to save final rankings: %w", err)
	}
	if len(rankings) > 0 {
		e.logger.Info("final rankings calculated", "task_id", taskID,
			"finalists", len(rankings), "winner", rankings[0].OutputID, "winner_score", rankings[0].TotalScore)
	}
	return rankings, nil
}

// Deliverables returns outputs with final_rank within topNForDeliverable, best first.
func (e *Engine) Deliverables(ctx context.Context, taskID uuid.UUID) ([]types.Output, error) {
	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	outputs, err := e.store.ListOutputs(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}

	var winners []types.Output
	for _, out := range outputs {
		if out.FinalRank != nil && *out.FinalRank <= task.Config.Execution.TopNForDeliverable {
			winners = append(winners, out)
		}
	}
	sort.Slice(winners, func(i, j int) bool {
		return *winners[i].FinalRank < *winners[j].FinalRank
	})
	return winners, nil
}

// Standings returns all outputs ordered by final rank, then initial rank, then creation.
func (e *Engine) Standings(ctx context.Context, taskID uuid.UUID) ([]types.Output, error) {
	if _, err := e.getTask(ctx, taskID); err != nil {
		return nil, err
	}
	outputs, err := e.store.ListOutputs(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	sort.SliceStable(outputs, func(i, j int) bool {
		if c := compareRank(outputs[i].FinalRank, outputs[j].FinalRank); c != 0 {
			return c < 0
		}
		return compareRank(outputs[i].InitialRank, outputs[j].InitialRank) < 0
	})
	return outputs, nil
}

// compareRank orders ranked before unranked and lower ranks first.
func compareRank(a, b *int) int {
	switch {
	case a != nil && b != nil:
		return *a - *b
	case a != nil:
		return -1
	case b != nil:
		return 1
	}
	return 0
}

func (e *Engine) getTask(ctx context.Context, taskID uuid.UUID) (*types.Task, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrTaskNotFound, taskID)
	}
	return task, nil
}
