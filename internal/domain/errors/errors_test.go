package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	err := NewValidationError("INVALID_PHONE_NUMBER", "phone number is required")
	assert.Equal(t, "phone number is required", err.Error())
	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.False(t, err.Retryable)

	cause := stderrors.New("parse failed")
	err = err.WithCause(cause)
	assert.Contains(t, err.Error(), "parse failed")
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestConstructors(t *testing.T) {
	assert.True(t, NewInternalError("boom").Retryable)
	assert.True(t, NewExternalError("crm", "timeout").Retryable)
	assert.False(t, NewBusinessError("ALREADY_ACTIVE", "already active").Retryable)
	assert.False(t, NewNotFoundError("campaign").Retryable)
	assert.False(t, NewConfigurationError("bad config").Retryable)

	assert.Equal(t, "campaign not found", NewNotFoundError("campaign").Error())
	assert.Contains(t, NewExternalError("crm", "timeout").Error(), "crm")
}

func TestIsType(t *testing.T) {
	err := NewNotFoundError("campaign")
	assert.True(t, IsType(err, ErrorTypeNotFound))
	assert.False(t, IsType(err, ErrorTypeBusiness))

	// Works through wrapping.
	wrapped := fmt.Errorf("loading: %w", err)
	assert.True(t, IsType(wrapped, ErrorTypeNotFound))

	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeInternal))
	assert.False(t, IsType(nil, ErrorTypeInternal))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewExternalError("webhook endpoint", "returned status 503")))
	assert.False(t, IsRetryable(NewBusinessError("ENDPOINT_REJECTED", "returned status 400")))
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))
}
