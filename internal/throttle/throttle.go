// Package throttle gates output work by resource class and drives the per-output
// write/edit/rewrite state machine.
//
// Running counts are recomputed from output rows on every call, so the budget check
// is a snapshot: concurrent dispatchers may briefly overshoot between counting and
// claiming. Claims themselves are compare-and-swap, so no output is worked twice.
package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// Store is the subset of persistence the throttle reads and writes.
type Store interface {
	GetTask(ctx context.Context, taskID uuid.UUID) (*types.Task, error)
	ListOutputs(ctx context.Context, taskID uuid.UUID) ([]types.Output, error)
	GetOutput(ctx context.Context, outputID uuid.UUID) (*types.Output, error)
	// TransitionOutput applies t only if the row is still in t.From.
	TransitionOutput(ctx context.Context, outputID uuid.UUID, t types.OutputTransition) (bool, error)
	ListOutputVersions(ctx context.Context, outputID uuid.UUID) ([]types.OutputVersion, error)
}

// Throttle implements the running-count and next-output queries and output mutations.
type Throttle struct {
	store      Store
	classifier *Classifier
	logger     *slog.Logger
}

// New creates a Throttle. A nil classifier uses DefaultLocalProviders.
func New(store Store, classifier *Classifier, logger *slog.Logger) *Throttle {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Throttle{store: store, classifier: classifier, logger: logger.With("component", "throttle")}
}

// Classifier returns the classifier used to partition outputs.
func (t *Throttle) Classifier() *Classifier {
	return t.classifier
}

// CountRunning counts in-flight outputs per resource class.
func CountRunning(outputs []types.Output, classifier *Classifier) types.RunningCounts {
	var counts types.RunningCounts
	for i := range outputs {
		if !outputs[i].Status.IsInFlight() {
			continue
		}
		if classifier.ClassOf(&outputs[i]) == types.ClassLocal {
			counts.Local++
		} else {
			counts.Cloud++
		}
	}
	return counts
}

// SelectPending returns up to limit pending outputs of the class, oldest first.
func SelectPending(outputs []types.Output, class types.ResourceClass, limit int, classifier *Classifier) []uuid.UUID {
	if limit <= 0 {
		return nil
	}

	candidates := make([]*types.Output, 0, len(outputs))
	for i := range outputs {
		out := &outputs[i]
		if !out.Status.IsPending() || classifier.ClassOf(out) != class {
			continue
		}
		candidates = append(candidates, out)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	ids := make([]uuid.UUID, 0, min(limit, len(candidates)))
	for _, out := range candidates {
		if len(ids) == limit {
			break
		}
		ids = append(ids, out.ID)
	}
	return ids
}

// RunningCounts returns the number of in-flight outputs per resource class.
func (t *Throttle) RunningCounts(ctx context.Context, taskID uuid.UUID) (types.RunningCounts, error) {
	_, outputs, err := t.loadOutputs(ctx, taskID)
	if err != nil {
		return types.RunningCounts{}, err
	}
	return CountRunning(outputs, t.classifier), nil
}

// NextOutputsToProcess returns up to limit claimable outputs in the class, FIFO by creation time.
func (t *Throttle) NextOutputsToProcess(ctx context.Context, taskID uuid.UUID, class types.ResourceClass, limit int) ([]uuid.UUID, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be non-negative, got %d", types.ErrInvalidArgument, limit)
	}
	if _, err := types.ParseResourceClass(string(class)); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidArgument, err)
	}
	_, outputs, err := t.loadOutputs(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return SelectPending(outputs, class, limit, t.classifier), nil
}

// Budget returns how many more outputs of the class may be claimed right now.
func (t *Throttle) Budget(ctx context.Context, taskID uuid.UUID, class types.ResourceClass) (int, error) {
	task, outputs, err := t.loadOutputs(ctx, taskID)
	if err != nil {
		return 0, err
	}
	running := CountRunning(outputs, t.classifier).For(class)
	return max(task.Config.Execution.MaxConcurrent(class)-running, 0), nil
}

// ClaimOutput moves a pending output into its in-flight status. It returns the new
// status and false when the output was no longer pending.
func (t *Throttle) ClaimOutput(ctx context.Context, outputID uuid.UUID) (types.OutputStatus, bool, error) {
	out, err := t.getOutput(ctx, outputID)
	if err != nil {
		return "", false, err
	}
	to, ok := ClaimTarget(out.Status)
	if !ok {
		t.logger.Debug("output not claimable", "output_id", outputID, "status", out.Status)
		return out.Status, false, nil
	}

	if to == types.OutputRewriting {
		task, err := t.getTask(ctx, out.TaskID)
		if err != nil {
			return "", false, err
		}
		if out.EditCycle >= task.Config.Execution.MaxEditCycles {
			return out.Status, false, fmt.Errorf("%w: output %s at edit cycle %d cannot be rewritten (max %d)",
				types.ErrInvalidTransition, outputID, out.EditCycle, task.Config.Execution.MaxEditCycles)
		}
	}

	claimed, err := t.apply(ctx, out, types.OutputTransition{From: out.Status, To: to})
	if err != nil || !claimed {
		return out.Status, false, err
	}
	return to, true, nil
}

// CompleteWrite stores the first draft and appends version 1.
func (t *Throttle) CompleteWrite(ctx context.Context, outputID uuid.UUID, content string) (bool, error) {
	out, err := t.getOutput(ctx, outputID)
	if err != nil {
		return false, err
	}
	if out.Status != types.OutputWriting {
		return false, nil
	}
	return t.apply(ctx, out, types.OutputTransition{
		From:    types.OutputWriting,
		To:      types.OutputPendingEdit,
		Content: &content,
		Version: &types.OutputVersion{
			ID:            uuid.New(),
			OutputID:      out.ID,
			VersionNumber: 1,
			Content:       content,
			ActionType:    types.ActionWrite,
		},
	})
}

// CompleteEdit records the editor verdict and returns the resulting status.
func (t *Throttle) CompleteEdit(ctx context.Context, outputID uuid.UUID, approved bool, feedback string) (types.OutputStatus, bool, error) {
	out, err := t.getOutput(ctx, outputID)
	if err != nil {
		return "", false, err
	}
	if out.Status != types.OutputEditing {
		return out.Status, false, nil
	}
	task, err := t.getTask(ctx, out.TaskID)
	if err != nil {
		return "", false, err
	}

	to := EditOutcome(approved, out.EditCycle, task.Config.Execution.MaxEditCycles)
	transition := types.OutputTransition{
		From:           types.OutputEditing,
		To:             to,
		EditorApproved: &approved,
	}
	if feedback != "" {
		transition.EditorFeedback = &feedback
	}

	ok, err := t.apply(ctx, out, transition)
	if err != nil || !ok {
		return out.Status, false, err
	}
	if to == types.OutputMaxCyclesReached {
		t.logger.Info("output exhausted edit cycles", "output_id", outputID, "edit_cycle", out.EditCycle)
	}
	return to, true, nil
}

// CompleteRewrite stores a rewritten draft, appends a version carrying the feedback
// that triggered it and advances the edit cycle.
func (t *Throttle) CompleteRewrite(ctx context.Context, outputID uuid.UUID, content string) (bool, error) {
	out, err := t.getOutput(ctx, outputID)
	if err != nil {
		return false, err
	}
	if out.Status != types.OutputRewriting {
		return false, nil
	}

	cycle := out.EditCycle + 1
	return t.apply(ctx, out, types.OutputTransition{
		From:      types.OutputRewriting,
		To:        types.OutputPendingEdit,
		Content:   &content,
		EditCycle: &cycle,
		Version: &types.OutputVersion{
			ID:             uuid.New(),
			OutputID:       out.ID,
			VersionNumber:  cycle + 1,
			Content:        content,
			ActionType:     types.ActionRewrite,
			EditorFeedback: out.EditorFeedback,
		},
	})
}

// FailOutput marks an in-flight output failed after an unrecoverable agent error.
func (t *Throttle) FailOutput(ctx context.Context, outputID uuid.UUID, message string) (bool, error) {
	out, err := t.getOutput(ctx, outputID)
	if err != nil {
		return false, err
	}
	if !out.Status.IsInFlight() {
		return false, nil
	}
	return t.apply(ctx, out, types.OutputTransition{
		From:         out.Status,
		To:           types.OutputFailed,
		ErrorMessage: &message,
	})
}

// CancelOutput fails a pending or in-flight output on task cancellation. A late
// agent result for it is then rejected by the compare-and-swap.
func (t *Throttle) CancelOutput(ctx context.Context, out *types.Output, reason string) (bool, error) {
	if out.Status.IsTerminal() {
		return false, nil
	}
	return t.apply(ctx, out, types.OutputTransition{
		From:         out.Status,
		To:           types.OutputFailed,
		ErrorMessage: &reason,
	})
}

// Versions returns the output's content history, oldest first.
func (t *Throttle) Versions(ctx context.Context, outputID uuid.UUID) ([]types.OutputVersion, error) {
	if _, err := t.getOutput(ctx, outputID); err != nil {
		return nil, err
	}
	versions, err := t.store.ListOutputVersions(ctx, outputID)
	if err != nil {
		return nil, fmt.Errorf("failed to list output versions: %w", err)
	}
	return versions, nil
}

func (t *Throttle) apply(ctx context.Context, out *types.Output, transition types.OutputTransition) (bool, error) {
	if err := checkTransition(transition.From, transition.To); err != nil {
		return false, err
	}
	ok, err := t.store.TransitionOutput(ctx, out.ID, transition)
	if err != nil {
		return false, fmt.Errorf("failed to transition output %s: %w", out.ID, err)
	}
	if !ok {
		t.logger.Debug("lost output transition", "output_id", out.ID, "from", transition.From, "to", transition.To)
		return false, nil
	}
	t.logger.Debug("output transitioned", "output_id", out.ID, "task_id", out.TaskID,
		"from", transition.From, "to", transition.To)
	return true, nil
}

func (t *Throttle) loadOutputs(ctx context.Context, taskID uuid.UUID) (*types.Task, []types.Output, error) {
	task, err := t.getTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	outputs, err := t.store.ListOutputs(ctx, taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	return task, outputs, nil
}

func (t *Throttle) getTask(ctx context.Context, taskID uuid.UUID) (*types.Task, error) {
	task, err := t.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrTaskNotFound, taskID)
	}
	return task, nil
}

func (t *Throttle) getOutput(ctx context.Context, outputID uuid.UUID) (*types.Output, error) {
	out, err := t.store.GetOutput(ctx, outputID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrOutputNotFound, outputID)
	}
	return out, nil
}
