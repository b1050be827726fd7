package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Error kinds shared by the lifecycle, reminder and billing packages.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrConflict          = errors.New("concurrent modification")
	ErrAlreadyApplied    = errors.New("already applied")
	ErrRejected          = errors.New("event rejected")
	ErrUnmatched         = errors.New("no matching subscription or customer")
	ErrNotFound          = errors.New("not found")
)

// Code returns the snake_case error code used in JSON error bodies.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAlreadyApplied):
		return "already_applied"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrUnmatched):
		return "unmatched"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal_server_error"
	}
}

// HTTPStatus maps an error kind to the response status returned by the API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, ErrInvalidArgument):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrRejected):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyApplied):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrUnmatched):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// IsRetryable reports whether the caller may retry the operation as is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrAlreadyApplied),
		errors.Is(err, ErrRejected),
		errors.Is(err, ErrUnmatched),
		errors.Is(err, ErrNotFound):
		return false
	}
	return true
}
