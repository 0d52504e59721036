package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/koopa0/durak/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAppError_WrapAndUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := errors.Wrap(cause, errors.ErrCodeUnavailable, "stats store unavailable")

	assert.Equal(t, "[SERVICE_UNAVAILABLE] stats store unavailable: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, errors.ErrStatsUnavailable, "同錯誤碼視為相同")
	assert.True(t, errors.IsUnavailable(fmt.Errorf("get stats: %w", err)))
}

func TestAppError_WithDetailsCopies(t *testing.T) {
	err := errors.ErrInvalidName.WithDetails("name is empty")

	assert.Equal(t, "name is empty", err.Details)
	assert.Empty(t, errors.ErrInvalidName.Details)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestCodeOfAndHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"not found", errors.ErrPlayerNotFound, errors.ErrCodeNotFound, http.StatusNotFound},
		{"invalid input", errors.ErrInvalidName, errors.ErrCodeInvalidInput, http.StatusBadRequest},
		{"missing token", errors.ErrMissingToken, errors.ErrCodeUnauthorized, http.StatusUnauthorized},
		{"invalid token", errors.ErrInvalidToken, errors.ErrCodeInvalidToken, http.StatusUnauthorized},
		{"conflict", errors.New(errors.ErrCodeConflict, "queued"), errors.ErrCodeConflict, http.StatusConflict},
		{"plain error", stderrors.New("boom"), errors.ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := errors.CodeOf(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, errors.HTTPStatus(code))
		})
	}
}

func TestPredicates(t *testing.T) {
	assert.False(t, errors.IsNotFound(nil))
	assert.True(t, errors.IsNotFound(errors.ErrPlayerNotFound))
	assert.True(t, errors.IsUnauthorized(errors.ErrMissingToken))
	assert.True(t, errors.IsUnauthorized(errors.ErrInvalidToken))
	assert.False(t, errors.IsUnauthorized(errors.ErrInvalidName))
}
