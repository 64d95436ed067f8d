// Package swarm ties the scheduler, throttle and ranking engine together over one
// store and implements the task-level operations.
package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/plan"
	"github.com/jonathan/content-swarm/internal/ranking"
	"github.com/jonathan/content-swarm/internal/scheduler"
	"github.com/jonathan/content-swarm/internal/schemas"
	"github.com/jonathan/content-swarm/internal/throttle"
	"github.com/jonathan/content-swarm/internal/types"
)

// Store is everything the swarm persists. Both the PostgreSQL and SQLite stores
// implement it.
type Store interface {
	scheduler.Store
	throttle.Store
	ranking.Store

	CreateTask(ctx context.Context, task *types.Task) error
	// CreatePlan stores a task with its outputs, steps and evaluations atomically.
	CreatePlan(ctx context.Context, task *types.Task, outputs []types.Output, steps []types.ExecutionStep, evals []types.Evaluation) error
	ListTasks(ctx context.Context, org string, limit int) ([]types.Task, error)
	TransitionTask(ctx context.Context, taskID uuid.UUID, from, to types.TaskStatus, errMsg *string) (bool, error)
	UpdateTaskProgress(ctx context.Context, taskID uuid.UUID, progress int) error

	UpsertAgent(ctx context.Context, agent *types.Agent) error
	ListAgents(ctx context.Context, org string) ([]types.Agent, error)

	CreateOutputs(ctx context.Context, outputs []types.Output) error
	CreateSteps(ctx context.Context, steps []types.ExecutionStep) error

	Migrate(ctx context.Context) error
	Close() error
}

// Service exposes the swarm's components and task lifecycle.
type Service struct {
	store     Store
	scheduler *scheduler.Scheduler
	throttle  *throttle.Throttle
	ranking   *ranking.Engine
	logger    *slog.Logger
}

// NewService builds the components on top of store. A nil classifier uses the
// default local providers; a nil logger discards output.
func NewService(store Store, classifier *throttle.Classifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:     store,
		scheduler: scheduler.New(store, logger),
		throttle:  throttle.New(store, classifier, logger),
		ranking:   ranking.NewEngine(store, logger),
		logger:    logger.With("component", "swarm"),
	}
}

// Scheduler returns the DAG scheduler.
func (s *Service) Scheduler() *scheduler.Scheduler { return s.scheduler }

// Throttle returns the concurrency throttle.
func (s *Service) Throttle() *throttle.Throttle { return s.throttle }

// Ranking returns the tournament engine.
func (s *Service) Ranking() *ranking.Engine { return s.ranking }

// Store returns the underlying store.
func (s *Service) Store() Store { return s.store }

// RegisterAgent validates and upserts an agent.
func (s *Service) RegisterAgent(ctx context.Context, agent *types.Agent) error {
	validate := validator.New()
	if err := validate.Struct(agent); err != nil {
		return fmt.Errorf("%w: agent %q: %v", types.ErrInvalidArgument, agent.Slug, err)
	}
	return s.store.UpsertAgent(ctx, agent)
}

// ValidateTaskConfig checks a task config against the embedded schema and the
// execution budget rules.
func ValidateTaskConfig(cfg types.TaskConfig) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal task config: %w", err)
	}
	if err := schemas.ValidateTaskConfig(doc); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}
	if err := cfg.Execution.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}
	return nil
}

// CreateTask validates the config, compiles the org's agents into a plan and stores
// the task with its outputs, steps and initial evaluations. The task starts pending.
func (s *Service) CreateTask(ctx context.Context, org string, cfg types.TaskConfig) (*types.Task, error) {
	if err := ValidateTaskConfig(cfg); err != nil {
		return nil, err
	}
	agents, err := s.store.ListAgents(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	task := &types.Task{
		ID:     uuid.New(),
		Org:    org,
		Config: cfg,
		Status: types.TaskPending,
	}
	p, err := plan.Compile(task.ID, agents)
	if err != nil {
		return nil, fmt.Errorf("failed to compile plan for org %q: %w", org, err)
	}

	if err := s.store.CreatePlan(ctx, task, p.Outputs, p.Steps, p.Evaluations); err != nil {
		return nil, err
	}

	s.logger.Info("task created", "task_id", task.ID, "org", org,
		"outputs", len(p.Outputs), "steps", len(p.Steps), "evaluations", len(p.Evaluations))
	return task, nil
}

// GetTask returns a task or ErrTaskNotFound.
func (s *Service) GetTask(ctx context.Context, taskID uuid.UUID) (*types.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrTaskNotFound, taskID)
	}
	return task, nil
}

// ListTasks returns recent tasks, optionally for one org.
func (s *Service) ListTasks(ctx context.Context, org string, limit int) ([]types.Task, error) {
	return s.store.ListTasks(ctx, org, limit)
}

// StartTask moves a pending task to running.
func (s *Service) StartTask(ctx context.Context, taskID uuid.UUID) (bool, error) {
	return s.transitionTask(ctx, taskID, types.TaskPending, types.TaskRunning, nil)
}

// CompleteTask moves a running task to completed and records final progress.
func (s *Service) CompleteTask(ctx context.Context, taskID uuid.UUID) (bool, error) {
	ok, err := s.transitionTask(ctx, taskID, types.TaskRunning, types.TaskCompleted, nil)
	if err != nil || !ok {
		return ok, err
	}
	if _, err := s.TaskProgress(ctx, taskID); err != nil {
		return true, err
	}
	return true, nil
}

// FailTask moves a pending or running task to failed with a message.
func (s *Service) FailTask(ctx context.Context, taskID uuid.UUID, message string) (bool, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task.Status.IsTerminal() {
		return false, nil
	}
	return s.transitionTask(ctx, taskID, task.Status, types.TaskFailed, &message)
}

// TaskProgress counts steps by status and stores the percentage on the task.
func (s *Service) TaskProgress(ctx context.Context, taskID uuid.UUID) (types.TaskProgress, error) {
	progress, err := s.scheduler.TaskProgress(ctx, taskID)
	if err != nil {
		return types.TaskProgress{}, err
	}
	if err := s.store.UpdateTaskProgress(ctx, taskID, progress.Percentage); err != nil {
		return progress, err
	}
	return progress, nil
}

func (s *Service) transitionTask(ctx context.Context, taskID uuid.UUID, from, to types.TaskStatus, errMsg *string) (bool, error) {
	if !types.CanTransitionTask(from, to) {
		return false, fmt.Errorf("%w: task %s -> %s", types.ErrInvalidTransition, from, to)
	}
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task.Status != from {
		return false, nil
	}
	ok, err := s.store.TransitionTask(ctx, taskID, from, to, errMsg)
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Info("task transitioned", "task_id", taskID, "from", from, "to", to)
	}
	return ok, nil
}
