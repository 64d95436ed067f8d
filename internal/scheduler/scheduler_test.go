package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-swarm/internal/types"
)

type memStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*types.Task
	steps map[uuid.UUID]*types.ExecutionStep
}

func newMemStore() *memStore {
	return &memStore{
		tasks: make(map[uuid.UUID]*types.Task),
		steps: make(map[uuid.UUID]*types.ExecutionStep),
	}
}

func (m *memStore) GetTask(_ context.Context, taskID uuid.UUID) (*types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, nil
	}
	cp := *task
	return &cp, nil
}

func (m *memStore) ListSteps(_ context.Context, taskID uuid.UUID) ([]types.ExecutionStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var steps []types.ExecutionStep
	for _, s := range m.steps {
		if s.TaskID == taskID {
			steps = append(steps, *s)
		}
	}
	return steps, nil
}

func (m *memStore) GetStep(_ context.Context, stepID uuid.UUID) (*types.ExecutionStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.steps[stepID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) TransitionStep(_ context.Context, stepID uuid.UUID, from, to types.StepStatus, errMsg *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.steps[stepID]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	s.ErrorMessage = errMsg
	return true, nil
}

func (m *memStore) addTask() uuid.UUID {
	id := uuid.New()
	m.tasks[id] = &types.Task{ID: id, Status: types.TaskRunning}
	return id
}

func (m *memStore) addStep(taskID uuid.UUID, s types.ExecutionStep) types.ExecutionStep {
	s.TaskID = taskID
	m.steps[s.ID] = &s
	return s
}

func TestScheduler_NextReadyStep(t *testing.T) {
	store := newMemStore()
	taskID := store.addTask()
	write := store.addStep(taskID, step(1, types.StepPending))
	edit := store.addStep(taskID, step(2, types.StepPending, write.ID))
	s := New(store, nil)
	ctx := context.Background()

	next, err := s.NextReadyStep(ctx, taskID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, write.ID, next.ID)

	ok, err := s.ClaimStep(ctx, write.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	next, err = s.NextReadyStep(ctx, taskID)
	require.NoError(t, err)
	assert.Nil(t, next, "edit waits for processing write")

	ok, err = s.CompleteStep(ctx, write.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	next, err = s.NextReadyStep(ctx, taskID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, edit.ID, next.ID)
}

func TestScheduler_UnknownTask(t *testing.T) {
	s := New(newMemStore(), nil)
	_, err := s.NextReadyStep(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, types.ErrTaskNotFound))
}

func TestScheduler_FailClosedUntilSkipped(t *testing.T) {
	store := newMemStore()
	taskID := store.addTask()
	write := store.addStep(taskID, step(1, types.StepPending))
	edit := store.addStep(taskID, step(2, types.StepPending, write.ID))
	s := New(store, nil)
	ctx := context.Background()

	_, err := s.ClaimStep(ctx, write.ID)
	require.NoError(t, err)
	ok, err := s.FailStep(ctx, write.ID, "writer timed out")
	require.NoError(t, err)
	assert.True(t, ok)

	next, err := s.NextReadyStep(ctx, taskID)
	require.NoError(t, err)
	assert.Nil(t, next)

	pending, err := s.HasPendingSteps(ctx, taskID)
	require.NoError(t, err)
	assert.True(t, pending, "blocked is distinguishable from done")

	blocked, err := s.BlockedSteps(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, edit.ID, blocked[0].ID)

	ok, err = s.SkipStep(ctx, edit.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	pending, err = s.HasPendingSteps(ctx, taskID)
	require.NoError(t, err)
	assert.False(t, pending)

	progress, err := s.TaskProgress(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, 100, progress.Percentage)
	assert.Equal(t, 1, progress.Failed)
	assert.Equal(t, 1, progress.Skipped)
}

func TestScheduler_ClaimIsExclusive(t *testing.T) {
	store := newMemStore()
	taskID := store.addTask()
	write := store.addStep(taskID, step(1, types.StepPending))
	s := New(store, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimStep(context.Background(), write.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestScheduler_Transitions(t *testing.T) {
	store := newMemStore()
	taskID := store.addTask()
	write := store.addStep(taskID, step(1, types.StepPending))
	s := New(store, nil)
	ctx := context.Background()

	ok, err := s.CompleteStep(ctx, write.ID)
	require.NoError(t, err)
	assert.False(t, ok, "pending step cannot complete")

	_, err = s.ClaimStep(ctx, uuid.New())
	assert.True(t, errors.Is(err, types.ErrStepNotFound))
}

func TestScheduler_StepForOutput(t *testing.T) {
	store := newMemStore()
	taskID := store.addTask()
	outputID := uuid.New()
	w := step(1, types.StepPending)
	w.InputOutputID = &outputID
	store.addStep(taskID, w)
	e := step(2, types.StepPending, w.ID)
	e.StepType = types.StepEdit
	e.InputOutputID = &outputID
	store.addStep(taskID, e)
	s := New(store, nil)

	found, err := s.StepForOutput(context.Background(), taskID, outputID, types.StepEdit)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, e.ID, found.ID)

	found, err = s.StepForOutput(context.Background(), taskID, uuid.New(), types.StepEdit)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestScheduler_SkipOutputSteps(t *testing.T) {
	store := newMemStore()
	taskID := store.addTask()
	failed, healthy := uuid.New(), uuid.New()

	forOutput := func(s types.ExecutionStep, outputID uuid.UUID) types.ExecutionStep {
		s.InputOutputID = &outputID
		return s
	}
	write := store.addStep(taskID, forOutput(step(1, types.StepFailed), failed))
	edit := store.addStep(taskID, forOutput(step(2, types.StepPending, write.ID), failed))
	eval := store.addStep(taskID, forOutput(step(3, types.StepPending, edit.ID), failed))
	other := store.addStep(taskID, forOutput(step(4, types.StepPending), healthy))
	s := New(store, nil)
	ctx := context.Background()

	skipped, err := s.SkipOutputSteps(ctx, taskID, failed)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)

	for id, want := range map[uuid.UUID]types.StepStatus{
		write.ID: types.StepFailed,
		edit.ID:  types.StepSkipped,
		eval.ID:  types.StepSkipped,
		other.ID: types.StepPending,
	} {
		got, err := store.GetStep(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}

	skipped, err = s.SkipOutputSteps(ctx, taskID, failed)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)

	_, err = s.SkipOutputSteps(ctx, uuid.New(), failed)
	assert.True(t, errors.Is(err, types.ErrTaskNotFound))
}
