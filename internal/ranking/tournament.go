// Package ranking implements the two-round tournament that picks winning drafts.
//
// Round one averages broad 1-10 scores and ranks every scored output. The best
// outputs become finalists. Round two sums convex points from forced 1-5 rankings
// of the finalists. All projections are recomputed from evaluation rows, so
// repeating a calculation on unchanged rows writes identical values.
package ranking

import (
	"bytes"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// ComputeInitialRankings averages completed initial-stage scores per output and
// assigns ranks 1..N by descending mean. Equal means are ordered by the insertion
// order of each output's earliest counted evaluation.
func ComputeInitialRankings(evals []types.Evaluation) []types.InitialRanking {
	ordered := sortedBySeq(evals)

	type tally struct {
		sum      int
		count    int
		firstSeq int64
	}
	tallies := make(map[uuid.UUID]*tally)
	var outputOrder []uuid.UUID

	for _, e := range ordered {
		if e.Stage != types.StageInitial || e.Status != types.EvalCompleted || e.Score == nil {
			continue
		}
		t, ok := tallies[e.OutputID]
		if !ok {
			t = &tally{firstSeq: e.Seq}
			tallies[e.OutputID] = t
			outputOrder = append(outputOrder, e.OutputID)
		}
		t.sum += *e.Score
		t.count++
	}

	rankings := make([]types.InitialRanking, 0, len(outputOrder))
	for _, id := range outputOrder {
		t := tallies[id]
		rankings = append(rankings, types.InitialRanking{
			OutputID: id,
			AvgScore: roundTenth(float64(t.sum) / float64(t.count)),
			Count:    t.count,
		})
	}

	// outputOrder already follows first insertion, so a stable sort keeps that as the tie break.
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].AvgScore > rankings[j].AvgScore
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings
}

// ChooseFinalists returns the ids of the min(topN, ranked) best initially ranked outputs.
func ChooseFinalists(outputs []types.Output, topN int) []uuid.UUID {
	ranked := make([]types.Output, 0, len(outputs))
	for _, out := range outputs {
		if out.InitialRank != nil {
			ranked = append(ranked, out)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].InitialRank < *ranked[j].InitialRank
	})

	n := min(topN, len(ranked))
	if n <= 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, n)
	for _, out := range ranked[:n] {
		ids = append(ids, out.ID)
	}
	return ids
}

// ComputeFinalRankings sums round-two points per finalist over completed final-stage
// evaluations and assigns ranks 1..N by descending total. Equal totals are ordered
// by the better initial rank.
func ComputeFinalRankings(finalists []types.Output, evals []types.Evaluation) []types.FinalRanking {
	totals := make(map[uuid.UUID]int, len(finalists))
	responses := make(map[uuid.UUID]int, len(finalists))
	for _, e := range evals {
		if e.Stage != types.StageFinal || e.Status != types.EvalCompleted {
			continue
		}
		totals[e.OutputID] += WeightForRank(e.Rank)
		responses[e.OutputID]++
	}

	ordered := make([]types.Output, len(finalists))
	copy(ordered, finalists)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := totals[ordered[i].ID], totals[ordered[j].ID]
		if ti != tj {
			return ti > tj
		}
		ri, rj := ordered[i].InitialRank, ordered[j].InitialRank
		switch {
		case ri != nil && rj != nil && *ri != *rj:
			return *ri < *rj
		case ri != nil && rj == nil:
			return true
		case ri == nil && rj != nil:
			return false
		}
		return bytes.Compare(ordered[i].ID[:], ordered[j].ID[:]) < 0
	})

	rankings := make([]types.FinalRanking, 0, len(ordered))
	for i, out := range ordered {
		rankings = append(rankings, types.FinalRanking{
			OutputID:   out.ID,
			TotalScore: totals[out.ID],
			Rank:       i + 1,
			Responses:  responses[out.ID],
		})
	}
	return rankings
}

func sortedBySeq(evals []types.Evaluation) []types.Evaluation {
	ordered := make([]types.Evaluation, len(evals))
	copy(ordered, evals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Seq < ordered[j].Seq
	})
	return ordered
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
