package opensearch

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mstgnz/paykit/infra/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeOpenSearch answers the handful of endpoints the client uses
type fakeOpenSearch struct {
	mu       sync.Mutex
	requests []recordedRequest
	indices  map[string]bool
	search   string
	fail     bool
}

func newFakeOpenSearch(t *testing.T) (*fakeOpenSearch, *httptest.Server) {
	t.Helper()
	f := &fakeOpenSearch{indices: make(map[string]bool)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeOpenSearch) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/" {
		_, _ = io.WriteString(w, `{"version":{"distribution":"opensearch","number":"2.11.0"}}`)
		return
	}
	if f.fail {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"mapper_parsing_exception"}`)
		return
	}

	index := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0]
	switch {
	case r.Method == http.MethodHead:
		if !f.indices[index] {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut:
		f.indices[index] = true
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case strings.HasSuffix(r.URL.Path, "/_doc"):
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		_, _ = io.WriteString(w, f.search)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeOpenSearch) recorded(method, suffix string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, r := range f.requests {
		if r.Method == method && strings.HasSuffix(r.Path, suffix) {
			out = append(out, r)
		}
	}
	return out
}

func newTestClient(t *testing.T, url string, enabled bool) *Client {
	t.Helper()
	client, err := NewClient(&config.AppConfig{
		Environment:      "test",
		OpenSearchURL:    url,
		EnableOpenSearch: enabled,
	})
	require.NoError(t, err)
	return client
}
