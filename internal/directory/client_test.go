package directory_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/students-api/internal/config"
	"github.com/aanand-mishra/students-api/internal/directory"
	"github.com/aanand-mishra/students-api/internal/types"
)

// newTestServer creates a new test server with keep-alives disabled.
// This prevents flaky tests when running in parallel, as closing a server
// with keep-alives enabled can affect other tests sharing the HTTP transport.
func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)
	return server
}

func newClient(baseURL string, opts ...directory.Option) *directory.Client {
	cfg := config.Remote{
		BaseURL:        baseURL,
		ResourcePath:   "/api/usuarios",
		Timeout:        time.Second,
		ProbeTimeout:   time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
	opts = append([]directory.Option{directory.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return directory.New(cfg, opts...)
}

func TestClient_ListAll(t *testing.T) {
	t.Parallel()

	var gotPath, gotAccept, gotUA string
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAccept, gotUA = r.URL.Path, r.Header.Get("Accept"), r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"_embedded":{"userList":[
			{"id":1,"name":"Juan Pérez","email":"juan@x.com","activo":true},
			{"id":2,"name":"Ana","email":"ana@x.com","activo":false}
		]}}`))
	}))

	users := newClient(server.URL).ListAll(context.Background())

	require.Len(t, users, 2)
	assert.Equal(t, "Juan Pérez", users[0].Name)
	assert.False(t, users[1].Active)
	assert.Equal(t, "/api/usuarios/listar", gotPath)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, directory.UserAgent, gotUA)
}

func TestClient_ListAll_FailuresYieldEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "undecodable body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>maintenance</html>`))
			},
		},
		{
			name: "unknown envelope",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data":{"items":[]}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(t, tt.handler)
			users := newClient(server.URL).ListAll(context.Background())

			assert.NotNil(t, users)
			assert.Empty(t, users)
		})
	}
}

func TestClient_ListAll_UnreachableHost(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	users := newClient(url).ListAll(context.Background())
	assert.Empty(t, users)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":5,"name":"Ana","email":"ana@x.com","activo":true}`))
	}))

	user, outcome := newClient(server.URL).GetByID(context.Background(), 5)

	assert.Equal(t, directory.Found, outcome)
	assert.Equal(t, int64(5), user.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, outcome := newClient(server.URL).GetByID(context.Background(), 5)

	assert.Equal(t, directory.Unavailable, outcome)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_NotFoundIsAbsentWithoutRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var gotPath string
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNotFound)
	}))

	_, outcome := newClient(server.URL).GetByID(context.Background(), 42)

	assert.Equal(t, directory.Absent, outcome)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "/api/usuarios/encontrar/42", gotPath)
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, outcome := newClient(server.URL).GetByID(context.Background(), 1)

	assert.Equal(t, directory.Unavailable, outcome)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_AttemptTimeout(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))

	cfg := config.Remote{
		BaseURL:        server.URL,
		ResourcePath:   "/api/usuarios",
		Timeout:        20 * time.Millisecond,
		ProbeTimeout:   20 * time.Millisecond,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
	client := directory.New(cfg, directory.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	start := time.Now()
	_, outcome := client.GetByID(context.Background(), 1)

	assert.Equal(t, directory.Unavailable, outcome)
	assert.Equal(t, int32(2), calls.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_NullBodyIsAbsent(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":null,"_links":{}}`))
	}))

	_, outcome := newClient(server.URL).GetByID(context.Background(), 1)
	assert.Equal(t, directory.Absent, outcome)
}

func TestClient_GetByEmail_CaseInsensitiveFirstMatch(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":1,"email":"other@x.com","activo":true},
			{"id":2,"email":"Juan@X.com","activo":false},
			{"id":3,"email":"juan@x.com","activo":true}
		]`))
	}))

	client := newClient(server.URL)

	user, outcome := client.GetByEmail(context.Background(), "JUAN@x.COM")
	assert.Equal(t, directory.Found, outcome)
	assert.Equal(t, int64(2), user.ID)

	_, outcome = client.GetByEmail(context.Background(), "nobody@x.com")
	assert.Equal(t, directory.Absent, outcome)
}

func TestClient_Writes(t *testing.T) {
	t.Parallel()

	var method, path, contentType string
	var received types.RemoteUser
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&received)
		}
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			received.ID = 9
			_ = json.NewEncoder(w).Encode(map[string]any{"content": received, "_links": map[string]any{}})
		}
	}))

	client := newClient(server.URL)
	ctx := context.Background()
	in := types.RemoteUser{Name: "Carlos", Email: "c@x.com", Role: types.RoleStudent, Active: true}

	created, outcome := client.Create(ctx, in)
	require.Equal(t, directory.Found, outcome)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/api/usuarios/crear", path)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, int64(9), created.ID)
	assert.Equal(t, "STUDENT", received.Role)

	updated, outcome := client.Update(ctx, 9, in)
	require.Equal(t, directory.Found, outcome)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/api/usuarios/actualizar/9", path)
	assert.Equal(t, "Carlos", updated.Name)

	outcome = client.Delete(ctx, 9)
	assert.Equal(t, directory.Found, outcome)
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/api/usuarios/delete/9", path)
}

func TestClient_WritesWithoutBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "204 no content", status: http.StatusNoContent},
		{name: "200 empty body", status: http.StatusOK},
		{name: "200 whitespace only", status: http.StatusOK, body: " \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			client := newClient(server.URL)
			ctx := context.Background()
			sent := types.RemoteUser{ID: 5, Name: "Diego", Email: "diego@x.com", Role: types.RoleStudent, Active: true}

			updated, outcome := client.Update(ctx, 5, sent)
			require.Equal(t, directory.Found, outcome)
			assert.Equal(t, sent, updated)

			created, outcome := client.Create(ctx, sent)
			require.Equal(t, directory.Found, outcome)
			assert.Equal(t, sent, created)
		})
	}
}

func TestClient_WritesNotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	client := newClient(server.URL)
	ctx := context.Background()

	_, outcome := client.Update(ctx, 1, types.RemoteUser{Name: "x"})
	assert.Equal(t, directory.Absent, outcome)
	assert.Equal(t, directory.Absent, client.Delete(ctx, 1))
}

func TestClient_IsAvailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "ok", status: http.StatusOK, want: true},
		{name: "server error", status: http.StatusInternalServerError, want: false},
		{name: "not found", status: http.StatusNotFound, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`[]`))
			}))

			assert.Equal(t, tt.want, newClient(server.URL).IsAvailable(context.Background()))
			assert.Equal(t, int32(1), calls.Load(), "the probe never retries")
		})
	}
}

func TestClient_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	reg := prometheus.NewRegistry()
	client := newClient(server.URL, directory.WithMetrics(directory.NewMetrics(reg)))

	client.GetByID(context.Background(), 1)
	client.GetByID(context.Background(), 2)

	count, err := testutil.GatherAndCount(reg, "students_directory_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one series: get_by_id/absent")

	expected := `
# HELP students_directory_requests_total Calls to the external user directory by operation and outcome.
# TYPE students_directory_requests_total counter
students_directory_requests_total{operation="get_by_id",outcome="absent"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "students_directory_requests_total"))
}
