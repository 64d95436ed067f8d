package ranking

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// Round-two points per forced rank. The curve is convex so a clear favorite
// outweighs several marginal placements. It is fixed for every task so final
// totals stay comparable across tasks.
const (
	weightRank1    = 100
	weightRank2    = 60
	weightRank3    = 30
	weightRank4    = 10
	weightRank5    = 5
	weightUnranked = 0
)

// WeightForRank converts a round-two rank to points. A nil rank is unranked.
func WeightForRank(rank *int) int {
	if rank == nil {
		return weightUnranked
	}
	switch *rank {
	case 1:
		return weightRank1
	case 2:
		return weightRank2
	case 3:
		return weightRank3
	case 4:
		return weightRank4
	case 5:
		return weightRank5
	default:
		return weightUnranked
	}
}

// CheckForcedRanking validates one evaluator's round-two ballot: every rank is in
// range and no two finalists share a rank.
func CheckForcedRanking(ranks map[uuid.UUID]int) error {
	seen := make(map[int]uuid.UUID, len(ranks))
	for outputID, rank := range ranks {
		if rank < types.MinRank || rank > types.MaxRank {
			return fmt.Errorf("%w: %d not in [%d, %d]", types.ErrInvalidRank, rank, types.MinRank, types.MaxRank)
		}
		if prev, dup := seen[rank]; dup {
			return fmt.Errorf("%w: rank %d given to both %s and %s", types.ErrInvalidRank, rank, prev, outputID)
		}
		seen[rank] = outputID
	}
	return nil
}
