// Package plan compiles a task's agent roster into outputs, execution steps and
// initial evaluations.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gammazero/toposort"
	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// Plan is the full set of rows created for a task before it starts.
type Plan struct {
	Outputs     []types.Output
	Steps       []types.ExecutionStep
	Evaluations []types.Evaluation
}

// Compile builds one output per writer, paired round-robin with editors, a write step
// and an edit step per output, and one evaluate step per evaluator and output that
// depends on that output's edit step. Each evaluate step has one pending initial
// evaluation. Steps of a failed draft can be skipped without holding back the rest.
func Compile(taskID uuid.UUID, agents []types.Agent) (*Plan, error) {
	writers, editors, evaluators := splitRoles(agents)
	if len(writers) == 0 {
		return nil, fmt.Errorf("%w: at least one writer is required", types.ErrInvalidArgument)
	}
	if len(editors) == 0 {
		return nil, fmt.Errorf("%w: at least one editor is required", types.ErrInvalidArgument)
	}
	if len(evaluators) == 0 {
		return nil, fmt.Errorf("%w: at least one evaluator is required", types.ErrInvalidArgument)
	}

	p := &Plan{}
	seq := 0
	nextStep := func(stepType types.StepType, agent string, input *uuid.UUID, deps ...uuid.UUID) uuid.UUID {
		seq++
		step := types.ExecutionStep{
			ID:            uuid.New(),
			TaskID:        taskID,
			StepType:      stepType,
			Sequence:      seq,
			AgentSlug:     agent,
			DependsOn:     types.NewStepSet(deps...),
			InputOutputID: input,
			Status:        types.StepPending,
		}
		p.Steps = append(p.Steps, step)
		return step.ID
	}

	editSteps := make(map[uuid.UUID]uuid.UUID, len(writers))
	for i, writer := range writers {
		editor := editors[i%len(editors)]
		out := types.Output{
			ID:             uuid.New(),
			TaskID:         taskID,
			WriterSlug:     writer.Slug,
			EditorSlug:     editor.Slug,
			WriterProvider: writer.Provider,
			WriterModel:    writer.Model,
			EditorProvider: editor.Provider,
			EditorModel:    editor.Model,
			Status:         types.OutputPendingWrite,
		}
		p.Outputs = append(p.Outputs, out)

		outputID := out.ID
		write := nextStep(types.StepWrite, writer.Slug, &outputID)
		editSteps[outputID] = nextStep(types.StepEdit, editor.Slug, &outputID, write)
	}

	for _, evaluator := range evaluators {
		for _, out := range p.Outputs {
			outputID := out.ID
			nextStep(types.StepEvaluate, evaluator.Slug, &outputID, editSteps[outputID])
			p.Evaluations = append(p.Evaluations, types.Evaluation{
				ID:            uuid.New(),
				TaskID:        taskID,
				OutputID:      out.ID,
				EvaluatorSlug: evaluator.Slug,
				Status:        types.EvalPending,
				Stage:         types.StageInitial,
			})
		}
	}

	if _, err := Validate(p.Steps); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that every dependency exists and the steps form a DAG. It
// returns step ids in a valid execution order.
func Validate(steps []types.ExecutionStep) ([]uuid.UUID, error) {
	known := make(map[uuid.UUID]bool, len(steps))
	sequences := make(map[int]bool, len(steps))
	for _, step := range steps {
		if sequences[step.Sequence] {
			return nil, fmt.Errorf("%w: duplicate step sequence %d", types.ErrInvalidArgument, step.Sequence)
		}
		sequences[step.Sequence] = true
		known[step.ID] = true
	}

	var edges []toposort.Edge
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, step.ID})
			continue
		}
		for _, dep := range step.DependsOn.IDs() {
			if !known[dep] {
				return nil, fmt.Errorf("%w: step %d depends on unknown step %s",
					types.ErrInvalidArgument, step.Sequence, dep)
			}
			edges = append(edges, toposort.Edge{dep, step.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: step graph contains a cycle: %v", types.ErrInvalidArgument, err)
	}

	order := make([]uuid.UUID, 0, len(steps))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(uuid.UUID))
		}
	}
	if len(order) != len(steps) {
		return nil, fmt.Errorf("%w: topological sort kept %d of %d steps",
			types.ErrInvalidArgument, len(order), len(steps))
	}
	return order, nil
}

func splitRoles(agents []types.Agent) (writers, editors, evaluators []types.Agent) {
	sorted := make([]types.Agent, len(agents))
	copy(sorted, agents)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.Compare(sorted[i].Slug, sorted[j].Slug) < 0
	})
	for _, a := range sorted {
		switch a.Role {
		case types.RoleWriter:
			writers = append(writers, a)
		case types.RoleEditor:
			editors = append(editors, a)
		case types.RoleEvaluator:
			evaluators = append(evaluators, a)
		}
	}
	return writers, editors, evaluators
}
