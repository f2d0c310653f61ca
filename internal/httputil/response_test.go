package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
)

func TestStatusFromCode(t *testing.T) {
	tests := []struct {
		code apperrors.ErrorCode
		want int
	}{
		{apperrors.ErrCodeValidation, http.StatusBadRequest},
		{apperrors.ErrCodeInvalidInput, http.StatusBadRequest},
		{apperrors.ErrCodeUnauthorized, http.StatusForbidden},
		{apperrors.ErrCodeForbidden, http.StatusForbidden},
		{apperrors.ErrCodeNotFound, http.StatusNotFound},
		{apperrors.ErrCodeDuplicateName, http.StatusConflict},
		{apperrors.ErrCodeInvalidState, http.StatusConflict},
		{apperrors.ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{apperrors.ErrCodeInternal, http.StatusInternalServerError},
		{apperrors.ErrCodeDatabase, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFromCode(tc.code))
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("app error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.DuplicateName("Bob"))

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Name is already taken in this session", body.Error)
		assert.Equal(t, apperrors.ErrCodeDuplicateName, body.Code)
		assert.NotNil(t, body.Details)
	})

	t.Run("plain error hides details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "pq:")
		assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	})
}
