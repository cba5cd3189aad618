package middle

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/paykit/infra/logger"
	"github.com/mstgnz/paykit/infra/response"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger.SetGlobalLogger(logger.NewSystemLogger(logger.SystemLoggerConfig{Output: &buf}))
	t.Cleanup(func() { logger.SetGlobalLogger(nil) })

	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedStatus int
		shouldPanic    bool
	}{
		{
			name:           "Normal request - no panic",
			handler:        okHandler,
			expectedStatus: http.StatusOK,
		},
		{
			name: "Handler panics with string",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("test panic")
			},
			expectedStatus: http.StatusInternalServerError,
			shouldPanic:    true,
		},
		{
			name: "Handler panics with nil map write",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var m map[string]int
				m["x"] = 1
			},
			expectedStatus: http.StatusInternalServerError,
			shouldPanic:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			handler := middleware.RequestID(PanicRecoveryMiddleware()(tt.handler))

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if !tt.shouldPanic {
				return
			}

			var resp response.Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, "Internal server error", resp.Message)
			assert.Equal(t, "no-cache, no-store, must-revalidate", rr.Header().Get("Cache-Control"))
			assert.Contains(t, buf.String(), "Panic recovered")
			assert.Contains(t, buf.String(), `"request_id"`)
		})
	}
}

func TestPanicRecoveryMiddleware_AbortHandler(t *testing.T) {
	handler := PanicRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))
	})
}
