package ranking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-swarm/internal/db/sqlite"
	"github.com/jonathan/content-swarm/internal/types"
)

type fixture struct {
	store   *sqlite.Store
	engine  *Engine
	taskID  uuid.UUID
	outputs []types.Output
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.NewMemoryStore(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	task := &types.Task{
		ID:     uuid.New(),
		Org:    "acme",
		Status: types.TaskRunning,
		Config: types.TaskConfig{Execution: types.ExecutionConfig{
			MaxLocalConcurrent: 1, MaxCloudConcurrent: 1, MaxEditCycles: 1,
			TopNForFinalRanking: 5, TopNForDeliverable: 2,
		}},
	}
	require.NoError(t, store.CreateTask(ctx, task))

	outputs := make([]types.Output, n)
	base := time.Now()
	for i := range outputs {
		outputs[i] = types.Output{
			ID:         uuid.New(),
			TaskID:     task.ID,
			WriterSlug: "writer",
			EditorSlug: "editor",
			Status:     types.OutputApproved,
			CreatedAt:  base.Add(time.Duration(i) * time.Millisecond),
		}
	}
	require.NoError(t, store.CreateOutputs(ctx, outputs))

	return &fixture{store: store, engine: NewEngine(store, nil), taskID: task.ID, outputs: outputs}
}

func (f *fixture) score(t *testing.T, outputIdx int, evaluator string, score int) {
	t.Helper()
	_, err := f.store.CreateEvaluations(context.Background(), []types.Evaluation{{
		ID:            uuid.New(),
		TaskID:        f.taskID,
		OutputID:      f.outputs[outputIdx].ID,
		EvaluatorSlug: evaluator,
		Status:        types.EvalCompleted,
		Stage:         types.StageInitial,
		Score:         intPtr(score),
	}})
	require.NoError(t, err)
}

func (f *fixture) rank(t *testing.T, outputIdx int, evaluator string, rank *int) {
	t.Helper()
	weighted := WeightForRank(rank)
	_, err := f.store.CreateEvaluations(context.Background(), []types.Evaluation{{
		ID:            uuid.New(),
		TaskID:        f.taskID,
		OutputID:      f.outputs[outputIdx].ID,
		EvaluatorSlug: evaluator,
		Status:        types.EvalCompleted,
		Stage:         types.StageFinal,
		Rank:          rank,
		WeightedScore: &weighted,
	}})
	require.NoError(t, err)
}

func TestEngine_InitialRankingsAndFinalists(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	for i, s := range []int{9, 8, 8, 7, 6, 6, 5, 4, 3, 2} {
		f.score(t, i, "judge", s)
	}

	rankings, err := f.engine.CalculateInitialRankings(ctx, f.taskID)
	require.NoError(t, err)
	require.Len(t, rankings, 10)

	outputs, err := f.store.ListOutputs(ctx, f.taskID)
	require.NoError(t, err)
	for i, out := range outputs {
		require.NotNil(t, out.InitialRank)
		assert.Equal(t, i+1, *out.InitialRank)
	}

	finalists, err := f.engine.SelectConfiguredFinalists(ctx, f.taskID)
	require.NoError(t, err)
	require.Len(t, finalists, 5)
	for i, id := range finalists {
		assert.Equal(t, f.outputs[i].ID, id)
	}

	outputs, err = f.store.ListOutputs(ctx, f.taskID)
	require.NoError(t, err)
	count := 0
	for _, out := range outputs {
		if out.IsFinalist {
			count++
		}
	}
	assert.Equal(t, 5, count)

	// Narrowing the field clears the flag on dropped outputs.
	finalists, err = f.engine.SelectFinalists(ctx, f.taskID, 2)
	require.NoError(t, err)
	assert.Len(t, finalists, 2)
	outputs, err = f.store.ListOutputs(ctx, f.taskID)
	require.NoError(t, err)
	count = 0
	for _, out := range outputs {
		if out.IsFinalist {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestEngine_CalculateInitialRankings_Idempotent(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.score(t, 0, "j1", 4)
	f.score(t, 1, "j1", 7)
	f.score(t, 1, "j2", 8)

	first, err := f.engine.CalculateInitialRankings(ctx, f.taskID)
	require.NoError(t, err)
	before, err := f.store.ListOutputs(ctx, f.taskID)
	require.NoError(t, err)

	second, err := f.engine.CalculateInitialRankings(ctx, f.taskID)
	require.NoError(t, err)
	after, err := f.store.ListOutputs(ctx, f.taskID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	for i := range before {
		assert.Equal(t, before[i].InitialRank, after[i].InitialRank)
		assert.Equal(t, before[i].InitialAvgScore, after[i].InitialAvgScore)
	}
	assert.Nil(t, after[2].InitialRank, "unscored output stays unranked")
}

func TestEngine_SelectFinalists_InvalidTopN(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.engine.SelectFinalists(context.Background(), f.taskID, 0)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}

func TestEngine_UnknownTask(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.engine.CalculateInitialRankings(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, types.ErrTaskNotFound))
}

func TestEngine_FinalRound(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.score(t, 0, "j1", 9)
	f.score(t, 1, "j1", 8)
	f.score(t, 2, "j1", 7)
	f.score(t, 0, "j2", 9)
	f.score(t, 1, "j2", 8)
	f.score(t, 2, "j2", 7)

	_, err := f.engine.CalculateInitialRankings(ctx, f.taskID)
	require.NoError(t, err)
	_, err = f.engine.SelectFinalists(ctx, f.taskID, 2)
	require.NoError(t, err)

	created, err := f.engine.PrepareFinalRound(ctx, f.taskID)
	require.NoError(t, err)
	assert.Equal(t, 4, created, "two evaluators times two finalists")

	created, err = f.engine.PrepareFinalRound(ctx, f.taskID)
	require.NoError(t, err)
	assert.Equal(t, 0, created, "existing rows are kept")

	pending, err := f.engine.PendingEvaluations(ctx, f.taskID, types.StageFinal)
	require.NoError(t, err)
	require.Len(t, pending, 4)
	for _, ev := range pending {
		ok, err := f.engine.ClaimEvaluation(ctx, ev.ID)
		require.NoError(t, err)
		require.True(t, ok)

		var rank *int
		if ev.OutputID == f.outputs[1].ID {
			rank = intPtr(1)
		} else if ev.EvaluatorSlug == "j1" {
			rank = intPtr(2)
		}
		ok, err = f.engine.RecordFinalRank(ctx, ev.ID, rank)
		require.NoError(t, err)
		require.True(t, ok)
	}

	rankings, err := f.engine.CalculateFinalRankings(ctx, f.taskID)
	require.NoError(t, err)
	require.Len(t, rankings, 2)
	assert.Equal(t, f.outputs[1].ID, rankings[0].OutputID)
	assert.Equal(t, 200, rankings[0].TotalScore)
	assert.Equal(t, f.outputs[0].ID, rankings[1].OutputID)
	assert.Equal(t, 60, rankings[1].TotalScore)

	deliverables, err := f.engine.Deliverables(ctx, f.taskID)
	require.NoError(t, err)
	require.Len(t, deliverables, 2)
	assert.Equal(t, f.outputs[1].ID, deliverables[0].ID)

	standings, err := f.engine.Standings(ctx, f.taskID)
	require.NoError(t, err)
	require.Len(t, standings, 3)
	assert.Equal(t, f.outputs[1].ID, standings[0].ID)
	assert.Equal(t, f.outputs[0].ID, standings[1].ID)
	assert.Equal(t, f.outputs[2].ID, standings[2].ID)
	assert.Nil(t, standings[2].FinalRank)
}

func TestEngine_RecordFinalRank_ForcedRanking(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	require.NoError(t, f.store.SaveInitialRankings(ctx, f.taskID, []types.InitialRanking{
		{OutputID: f.outputs[0].ID, AvgScore: 9, Rank: 1, Count: 1},
		{OutputID: f.outputs[1].ID, AvgScore: 8, Rank: 2, Count: 1},
		{OutputID: f.outputs[2].ID, AvgScore: 7, Rank: 3, Count: 1},
	}))
	require.NoError(t, f.store.SaveFinalists(ctx, f.taskID,
		[]uuid.UUID{f.outputs[0].ID, f.outputs[1].ID, f.outputs[2].ID}))

	evals := make([]types.Evaluation, 0, 4)
	for _, out := range f.outputs {
		evals = append(evals, types.Evaluation{
			ID: uuid.New(), TaskID: f.taskID, OutputID: out.ID, EvaluatorSlug: "j1", Stage: types.StageFinal,
		})
	}
	evals = append(evals, types.Evaluation{
		ID: uuid.New(), TaskID: f.taskID, OutputID: f.outputs[1].ID, EvaluatorSlug: "j2", Stage: types.StageFinal,
	})
	_, err := f.store.CreateEvaluations(ctx, evals)
	require.NoError(t, err)
	for _, ev := range evals {
		ok, err := f.engine.ClaimEvaluation(ctx, ev.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := f.engine.RecordFinalRank(ctx, evals[0].ID, intPtr(1))
	require.NoError(t, err)
	require.True(t, ok)

	// j1 already used rank 1.
	ok, err = f.engine.RecordFinalRank(ctx, evals[1].ID, intPtr(1))
	assert.True(t, errors.Is(err, types.ErrInvalidRank))
	assert.False(t, ok)
	stored, err := f.store.GetEvaluation(ctx, evals[1].ID)
	require.NoError(t, err)
	assert.Equal(t, types.EvalProcessing, stored.Status)

	// Leaving several finalists unranked is allowed.
	ok, err = f.engine.RecordFinalRank(ctx, evals[1].ID, nil)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.engine.RecordFinalRank(ctx, evals[2].ID, intPtr(2))
	require.NoError(t, err)
	require.True(t, ok)

	// Ranks are per evaluator.
	ok, err = f.engine.RecordFinalRank(ctx, evals[3].ID, intPtr(1))
	require.NoError(t, err)
	require.True(t, ok)

	rankings, err := f.engine.CalculateFinalRankings(ctx, f.taskID)
	require.NoError(t, err)
	require.Len(t, rankings, 3)
	assert.Equal(t, f.outputs[0].ID, rankings[0].OutputID)
	assert.Equal(t, 100, rankings[0].TotalScore)
	assert.Equal(t, f.outputs[1].ID, rankings[1].OutputID)
	assert.Equal(t, 100, rankings[1].TotalScore)
	assert.Equal(t, f.outputs[2].ID, rankings[2].OutputID)
	assert.Equal(t, 60, rankings[2].TotalScore)
}

func TestEngine_CalculateFinalRankings_Scores(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.store.SaveInitialRankings(ctx, f.taskID, []types.InitialRanking{
		{OutputID: f.outputs[0].ID, AvgScore: 8, Rank: 2, Count: 1},
		{OutputID: f.outputs[1].ID, AvgScore: 9, Rank: 1, Count: 1},
	}))
	require.NoError(t, f.store.SaveFinalists(ctx, f.taskID, []uuid.UUID{f.outputs[0].ID, f.outputs[1].ID}))

	for i, judge := range []string{"j1", "j2", "j3"} {
		f.rank(t, 0, judge, intPtr([]int{1, 2, 1}[i]))
		f.rank(t, 1, judge, intPtr([]int{2, 1, 3}[i]))
	}

	rankings, err := f.engine.CalculateFinalRankings(ctx, f.taskID)
	require.NoError(t, err)
	require.Len(t, rankings, 2)
	assert.Equal(t, f.outputs[0].ID, rankings[0].OutputID)
	assert.Equal(t, 260, rankings[0].TotalScore)
	assert.Equal(t, 190, rankings[1].TotalScore)

	out, err := f.store.GetOutput(ctx, f.outputs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, out.FinalRank)
	assert.Equal(t, 1, *out.FinalRank)
	require.NotNil(t, out.FinalTotalScore)
	assert.Equal(t, 260, *out.FinalTotalScore)
}

func TestEngine_RecordScoreBounds(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	ev := types.Evaluation{
		ID: uuid.New(), TaskID: f.taskID, OutputID: f.outputs[0].ID,
		EvaluatorSlug: "j1", Stage: types.StageInitial,
	}
	_, err := f.store.CreateEvaluations(ctx, []types.Evaluation{ev})
	require.NoError(t, err)

	_, err = f.engine.RecordInitialScore(ctx, ev.ID, 11)
	assert.True(t, errors.Is(err, types.ErrInvalidScore))
	_, err = f.engine.RecordInitialScore(ctx, ev.ID, 0)
	assert.True(t, errors.Is(err, types.ErrInvalidScore))

	ok, err := f.engine.RecordInitialScore(ctx, ev.ID, 5)
	require.NoError(t, err)
	assert.False(t, ok, "unclaimed evaluation cannot complete")

	ok, err = f.engine.ClaimEvaluation(ctx, ev.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.engine.RecordFinalRank(ctx, ev.ID, intPtr(1))
	assert.True(t, errors.Is(err, types.ErrInvalidArgument), "initial-stage row takes a score, not a rank")
	_, err = f.engine.RecordFinalRank(ctx, ev.ID, intPtr(6))
	assert.True(t, errors.Is(err, types.ErrInvalidRank))

	ok, err = f.engine.RecordInitialScore(ctx, ev.ID, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := f.store.GetEvaluation(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, types.EvalCompleted, stored.Status)
	require.NotNil(t, stored.Score)
	assert.Equal(t, 5, *stored.Score)
}

func TestEngine_FailAndCancelEvaluation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	a := types.Evaluation{ID: uuid.New(), TaskID: f.taskID, OutputID: f.outputs[0].ID, EvaluatorSlug: "j1", Stage: types.StageInitial}
	b := types.Evaluation{ID: uuid.New(), TaskID: f.taskID, OutputID: f.outputs[0].ID, EvaluatorSlug: "j2", Stage: types.StageInitial}
	_, err := f.store.CreateEvaluations(ctx, []types.Evaluation{a, b})
	require.NoError(t, err)

	_, err = f.engine.ClaimEvaluation(ctx, a.ID)
	require.NoError(t, err)
	ok, err := f.engine.FailEvaluation(ctx, a.ID, "judge crashed")
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := f.store.GetEvaluation(ctx, b.ID)
	require.NoError(t, err)
	ok, err = f.engine.CancelEvaluation(ctx, stored, "cancelled")
	require.NoError(t, err)
	assert.True(t, ok)

	evals, err := f.engine.Evaluations(ctx, f.taskID, types.StageInitial)
	require.NoError(t, err)
	require.Len(t, evals, 2)
	for _, ev := range evals {
		assert.Equal(t, types.EvalFailed, ev.Status)
	}

	rankings, err := f.engine.CalculateInitialRankings(ctx, f.taskID)
	require.NoError(t, err)
	assert.Empty(t, rankings)
}
