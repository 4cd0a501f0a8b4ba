package orchestrator

import (
	"errors"

	"github.com/mcdev12/fearless/go/internal/draft/engine"
)

var (
	ErrDraftNotFound  = errors.New("draft not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// Error codes sent to websocket clients and attached to logs.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeFailedPrecondition = "FAILED_PRECONDITION"
	CodeInternal           = "INTERNAL"
)

// ErrorCode classifies err for clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrDraftNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidArgument
	case errors.Is(err, engine.ErrDraftComplete),
		errors.Is(err, engine.ErrWrongTurn),
		errors.Is(err, engine.ErrWrongPhase):
		return CodeFailedPrecondition
	case engine.IsValidation(err):
		return CodeInvalidArgument
	default:
		return CodeInternal
	}
}
