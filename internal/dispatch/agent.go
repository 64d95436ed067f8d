package dispatch

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// Review is an editor's verdict on a draft.
type Review struct {
	Approved bool
	Feedback string
}

// Agent performs the model calls behind each step. Implementations are expected to
// honor ctx cancellation.
type Agent interface {
	// Write produces the first draft of out.
	Write(ctx context.Context, out types.Output) (string, error)
	// Edit reviews out.Content.
	Edit(ctx context.Context, out types.Output) (Review, error)
	// Rewrite revises out.Content using out.EditorFeedback.
	Rewrite(ctx context.Context, out types.Output) (string, error)
	// Score rates a finished draft from 1 to 10 for round one.
	Score(ctx context.Context, evaluator string, out types.Output) (int, error)
	// RankFinalists returns distinct ranks 1-5 keyed by output id for round two.
	// Finalists missing from the map are unranked. A ballot with a repeated rank
	// fails all of the evaluator's final evaluations.
	RankFinalists(ctx context.Context, evaluator string, finalists []types.Output) (map[uuid.UUID]int, error)
}

// SimulatedAgent is a deterministic Agent for dry runs and tests. Scores and
// rankings are derived from a hash of the evaluator and output id.
type SimulatedAgent struct {
	// ApproveAfter is the edit cycle from which the editor approves.
	ApproveAfter int
}

// Write returns a placeholder draft naming the writer.
func (a SimulatedAgent) Write(_ context.Context, out types.Output) (string, error) {
	return fmt.Sprintf("Draft by %s using %s/%s", out.WriterSlug, out.WriterProvider, out.WriterModel), nil
}

// Edit approves once the output has been rewritten ApproveAfter times.
func (a SimulatedAgent) Edit(_ context.Context, out types.Output) (Review, error) {
	if out.EditCycle >= a.ApproveAfter {
		return Review{Approved: true, Feedback: "Ready to publish"}, nil
	}
	return Review{Feedback: fmt.Sprintf("Tighten the opening (review %d)", out.EditCycle+1)}, nil
}

// Rewrite appends the feedback it addressed.
func (a SimulatedAgent) Rewrite(_ context.Context, out types.Output) (string, error) {
	feedback := ""
	if out.EditorFeedback != nil {
		feedback = *out.EditorFeedback
	}
	return fmt.Sprintf("%s\n[revised: %s]", out.Content, feedback), nil
}

// Score returns a stable score in [1, 10].
func (a SimulatedAgent) Score(_ context.Context, evaluator string, out types.Output) (int, error) {
	return int(mix(evaluator, out.ID)%10) + 1, nil
}

// RankFinalists orders finalists by hash and ranks the first five.
func (a SimulatedAgent) RankFinalists(_ context.Context, evaluator string, finalists []types.Output) (map[uuid.UUID]int, error) {
	ids := make([]uuid.UUID, len(finalists))
	for i, out := range finalists {
		ids[i] = out.ID
	}
	sort.Slice(ids, func(i, j int) bool {
		return mix(evaluator, ids[i]) < mix(evaluator, ids[j])
	})

	ranks := make(map[uuid.UUID]int)
	for i, id := range ids {
		if i >= types.MaxRank {
			break
		}
		ranks[id] = i + 1
	}
	return ranks, nil
}

func mix(evaluator string, id uuid.UUID) uint32 {
	h := fnv.New32a()
	h.Write([]byte(evaluator))
	h.Write(id[:])
	return h.Sum32()
}
