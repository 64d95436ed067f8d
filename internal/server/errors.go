package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/content-swarm/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validationErr *ErrValidation
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrTaskNotFound),
		errors.Is(err, types.ErrOutputNotFound),
		errors.Is(err, types.ErrStepNotFound),
		errors.Is(err, types.ErrEvaluationNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidConfig),
		errors.Is(err, types.ErrInvalidArgument),
		errors.Is(err, types.ErrInvalidScore),
		errors.Is(err, types.ErrInvalidRank):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
