package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/deploy"
	"github.com/imamik/spinless/internal/job"
)

func TestWriteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", fmt.Errorf("%w: abc", job.ErrNotFound), http.StatusNotFound, "job not found: abc"},
		{"validation", apperr.Validation("namespace is required"), http.StatusBadRequest, "namespace is required"},
		{"shutdown", job.ErrShutdown, http.StatusServiceUnavailable, job.ErrShutdown.Error()},
		{"processor stopped", deploy.ErrProcessorStopped, http.StatusServiceUnavailable, "deployment processor stopped"},
		{"too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, "request body exceeds 10 bytes"},
		{"unexpected", errors.New("vault token expired"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/jobs/abc", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tt.message), rec.Body.String())
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	var req deploy.DeployRequest
	err := decodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"namespace":"dev","sha":"abc"}`)), &req)
	require.NoError(t, err)
	assert.Equal(t, "dev", req.Namespace)
	assert.Equal(t, "abc", req.SHA)

	err = decodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"namespace":`)), &req)
	assert.True(t, apperr.IsValidation(err))
}
