package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeAndStatus(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{err: ErrInvalidTransition, code: "invalid_transition", status: 422},
		{err: ErrInvalidArgument, code: "invalid_argument", status: 400},
		{err: ErrConflict, code: "conflict", status: 409},
		{err: ErrAlreadyApplied, code: "already_applied", status: 409},
		{err: ErrRejected, code: "rejected", status: 400},
		{err: ErrUnmatched, code: "unmatched", status: 422},
		{err: ErrNotFound, code: "not_found", status: 404},
		{err: errors.New("boom"), code: "internal_server_error", status: 500},
	}

	for _, tt := range tests {
		wrapped := fmt.Errorf("subscription 7: %w", tt.err)
		assert.Equal(t, tt.code, Code(wrapped))
		assert.Equal(t, tt.status, HTTPStatus(wrapped))
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(ErrConflict))
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.False(t, IsRetryable(fmt.Errorf("renew: %w", ErrInvalidTransition)))
	assert.False(t, IsRetryable(ErrUnmatched))
}
