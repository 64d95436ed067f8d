package types

import "errors"

// Sentinel errors for malformed calls. Expected empty states are never errors.
var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrOutputNotFound     = errors.New("output not found")
	ErrStepNotFound       = errors.New("execution step not found")
	ErrEvaluationNotFound = errors.New("evaluation not found")
	ErrInvalidConfig      = errors.New("invalid task config")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidScore       = errors.New("score out of range")
	ErrInvalidRank        = errors.New("rank out of range")
	ErrInvalidArgument    = errors.New("invalid argument")
)
