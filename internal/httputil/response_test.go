package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusConflict, "run already archived")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, ErrorResponse{Error: "run already archived", Status: http.StatusConflict}, decodeError(t, rec))
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"ticks": 42})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 42, resp["ticks"])
}

func TestWriteJSONOK_Unencodable(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]interface{}{"bad": func() {}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteBody(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteBody(rec, "text/csv; charset=utf-8", []byte("metric,value\nticks,3\n"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "21", rec.Header().Get("Content-Length"))
	assert.Equal(t, "metric,value\nticks,3\n", rec.Body.String())
}

type failingWriter struct {
	*httptest.ResponseRecorder
}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteBody_WriteFailure(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteBody(failingWriter{rec}, "image/png", []byte{0x89})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireGET(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	assert.True(t, RequireGET(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil)))
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		assert.False(t, RequireGET(rec, httptest.NewRequest(method, "/api/stats", nil)), method)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"), method)
		assert.Equal(t, "method not allowed", decodeError(t, rec).Error, method)
	}
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		write func(http.ResponseWriter, string)
		want  int
	}{
		{"bad request", BadRequest, http.StatusBadRequest},
		{"internal error", InternalServerError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec, tt.name)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, ErrorResponse{Error: tt.name, Status: tt.want}, decodeError(t, rec))
		})
	}
}
