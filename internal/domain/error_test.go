package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      &Error{Code: EINVALID, Message: "invalid tier"},
			expected: "invalid tier",
		},
		{
			name:     "with operation",
			err:      &Error{Code: EINVALID, Op: "order.create", Message: "invalid tier"},
			expected: "order.create: invalid tier",
		},
		{
			name: "with wrapped error",
			err: &Error{
				Code:    EINTERNAL,
				Op:      "order.create",
				Message: "failed to save",
				Err:     errors.New("connection reset"),
			},
			expected: "order.create: failed to save: connection reset",
		},
		{
			name:     "wrapped error without op",
			err:      &Error{Code: EINTERNAL, Message: "failed to save", Err: errors.New("connection reset")},
			expected: "failed to save: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "domain error", err: &Error{Code: EINVALID, Message: "test"}, expected: EINVALID},
		{name: "wrapped domain error", err: fmt.Errorf("wrapped: %w", ErrOrderNotFound), expected: ENOTFOUND},
		{name: "non-domain error", err: errors.New("boom"), expected: EINTERNAL},
		{name: "gateway sentinel", err: ErrGatewayUnavailable.Wrap("order.create", errors.New("timeout")), expected: EUNAVAILABLE},
		{name: "quota sentinel", err: ErrQuotaExceeded.WithOp("quota.decrement"), expected: EPAYMENT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ErrorCode(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "", ErrorMessage(nil))
	assert.Equal(t, ErrQuotaExceeded.Message, ErrorMessage(ErrQuotaExceeded.WithOp("quota.decrement")))
	assert.Equal(t, "An internal error occurred. Please try again later.",
		ErrorMessage(ErrPersistenceFailure.Wrap("order.create", errors.New("disk full"))))
	assert.Equal(t, "An internal error occurred. Please try again later.", ErrorMessage(errors.New("raw")))
}

func TestErrorOp(t *testing.T) {
	assert.Equal(t, "", ErrorOp(nil))
	assert.Equal(t, "order.create", ErrorOp(Invalid("order.create", "bad tier")))
	assert.Equal(t, "", ErrorOp(errors.New("raw")))
}

func TestError_IsSentinel(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := ErrGatewayUnavailable.Wrap("reconcile.fetch", cause)

	assert.True(t, errors.Is(err, ErrGatewayUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrPersistenceFailure))

	wrapped := fmt.Errorf("handler: %w", ErrOrderNotFound.WithOp("reconcile.resolve"))
	assert.True(t, errors.Is(wrapped, ErrOrderNotFound))

	// An annotated error is never treated as a sentinel target.
	assert.False(t, errors.Is(ErrOrderNotFound, ErrOrderNotFound.WithOp("x")))
}

func TestErrorfAndWrapError(t *testing.T) {
	err := Errorf(EINVALID, "plan.lookup", "unknown tier: %d", 9)

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, EINVALID, de.Code)
	assert.Equal(t, "plan.lookup", de.Op)
	assert.Equal(t, "unknown tier: 9", de.Message)

	assert.Nil(t, WrapError(nil, EINTERNAL, "op", "msg"))

	underlying := errors.New("db down")
	wrapped := WrapError(underlying, EINTERNAL, "user.get", "failed to load user")
	assert.True(t, errors.Is(wrapped, underlying))
	assert.True(t, IsCode(wrapped, EINTERNAL))
	assert.False(t, IsCode(wrapped, ENOTFOUND))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("order.create", "tier", "tier is required")
	assert.Equal(t, "order.create: tier: tier is required", err.Error())
	assert.True(t, IsValidationError(err))

	err = AddFieldError(err, "content", "content is required")
	fields := GetValidationFields(err)
	assert.Len(t, fields, 2)
	assert.Equal(t, "order.create: validation failed for 2 fields", err.Error())

	assert.Nil(t, GetValidationFields(errors.New("plain")))
	assert.False(t, IsValidationError(errors.New("plain")))
}

func TestConvenienceFunctions(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"NotFound", NotFound("order.get", "order", "abc-123"), ENOTFOUND},
		{"Unauthorized", Unauthorized("webhook.verify", "bad signature"), EUNAUTHORIZED},
		{"Forbidden", Forbidden("plan.status", "not yours"), EFORBIDDEN},
		{"Invalid", Invalid("order.create", "tier must be positive"), EINVALID},
		{"Conflict", Conflict("order.create", "pending order exists"), ECONFLICT},
		{"Internal", Internal(errors.New("db"), "order.save", "failed to save"), EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCode(tt.err))
		})
	}
}
