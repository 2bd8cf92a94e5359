package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/provenance/internal/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		code       string
	}{
		{"not found", apperrors.Wrap(apperrors.ErrNotFound, "leaf not found"), http.StatusNotFound, "not_found"},
		{"duplicate leaf", apperrors.Wrap(apperrors.ErrConflict, "duplicate leaf"), http.StatusConflict, "conflict"},
		{"invalid input", apperrors.Wrap(apperrors.ErrInvalidInput, "missing fields"), http.StatusUnprocessableEntity, "invalid_input"},
		{"unsupported algorithm", apperrors.Wrap(apperrors.ErrUnsupported, "md5"), http.StatusBadRequest, "unsupported"},
		{"blocked by policy", apperrors.Wrap(apperrors.ErrForbidden, "blocked"), http.StatusForbidden, "forbidden"},
		{"expired key", apperrors.Wrap(apperrors.ErrExpired, "key expired"), http.StatusConflict, "key_unavailable"},
		{"revoked key", apperrors.Wrap(apperrors.ErrRevoked, "key revoked"), http.StatusConflict, "key_unavailable"},
		{"storage", apperrors.Wrap(apperrors.ErrStorage, "disk full"), http.StatusServiceUnavailable, "storage_unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := StatusFor(fmt.Errorf("context: %w", tt.err))
			assert.Equal(t, tt.statusCode, status)
			assert.Equal(t, tt.code, body.Error)
		})
	}
}

func TestHandleErrorGin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("hides internal details", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		HandleErrorGin(c, errors.New("connection string leaked"), nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection string")
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		HandleErrorGin(c, nil, nil)
		assert.Empty(t, w.Body.String())
	})

	t.Run("validation error", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		HandleValidationErrorGin(c, errors.New("record_type: cannot be blank"), nil)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "validation_error", body.Error)
	})
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{1, 2}, Paginate(items, 0, 2))
	assert.Equal(t, []int{5}, Paginate(items, 4, 2))
	assert.Equal(t, []int{}, Paginate(items, 5, 2))
}
