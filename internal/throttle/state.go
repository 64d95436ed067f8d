package throttle

import (
	"fmt"

	"github.com/jonathan/content-swarm/internal/types"
)

// outputTransitions is the complete per-output state machine. The pending_* -> failed
// edges are used only by task cancellation.
var outputTransitions = map[types.OutputStatus][]types.OutputStatus{
	types.OutputPendingWrite:   {types.OutputWriting, types.OutputFailed},
	types.OutputWriting:        {types.OutputPendingEdit, types.OutputFailed},
	types.OutputPendingEdit:    {types.OutputEditing, types.OutputFailed},
	types.OutputEditing:        {types.OutputApproved, types.OutputPendingRewrite, types.OutputMaxCyclesReached, types.OutputFailed},
	types.OutputPendingRewrite: {types.OutputRewriting, types.OutputFailed},
	types.OutputRewriting:      {types.OutputPendingEdit, types.OutputFailed},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to types.OutputStatus) bool {
	for _, next := range outputTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ClaimTarget returns the in-flight status a pending status moves to when claimed.
func ClaimTarget(from types.OutputStatus) (types.OutputStatus, bool) {
	switch from {
	case types.OutputPendingWrite:
		return types.OutputWriting, true
	case types.OutputPendingEdit:
		return types.OutputEditing, true
	case types.OutputPendingRewrite:
		return types.OutputRewriting, true
	}
	return "", false
}

// EditOutcome decides where an output goes after its editor responds.
// A rejection at the cycle limit ends in max_cycles_reached rather than another rewrite.
func EditOutcome(approved bool, editCycle, maxEditCycles int) types.OutputStatus {
	if approved {
		return types.OutputApproved
	}
	if editCycle < maxEditCycles {
		return types.OutputPendingRewrite
	}
	return types.OutputMaxCyclesReached
}

func checkTransition(from, to types.OutputStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: output %s -> %s", types.ErrInvalidTransition, from, to)
	}
	return nil
}
