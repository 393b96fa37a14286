package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/hpungsan/voidmem/internal/config"
	"github.com/hpungsan/voidmem/internal/db"
	"github.com/hpungsan/voidmem/internal/ops"
)

func setupSession(t *testing.T) *ops.Session {
	t.Helper()
	base := t.TempDir()
	t.Setenv(config.HomeEnv, base)
	database, err := db.Init(base)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	s, err := ops.OpenSession(context.Background(), database, config.DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func setupRouter(t *testing.T) (*ops.Session, http.Handler) {
	t.Helper()
	s := setupSession(t)
	router, err := NewRouter(s, "test")
	require.NoError(t, err)
	return s, router
}

func seed(t *testing.T, s *ops.Session) {
	t.Helper()
	_, err := ops.Register(context.Background(), s, ops.RegisterInput{Chunks: []ops.ChunkInput{
		{ID: "alpha", Text: "void dynamics keeps useful memories warm"},
		{ID: "beta", Text: "territories group related memories together"},
		{ID: "gamma", Text: "telemetry watches heat and reward drift"},
	}})
	require.NoError(t, err)
}

func get(t *testing.T, h http.Handler, target string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestOverview(t *testing.T) {
	s, router := setupRouter(t)

	rec := get(t, router, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No memories registered.")

	seed(t, s)
	rec = get(t, router, "/?n=2")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, `href="/chunks/alpha"`)
	assert.Contains(t, body, "store: default")
}

func TestSecurityHeaders(t *testing.T) {
	_, router := setupRouter(t)
	rec := get(t, router, "/api/health")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestTerritoriesPage(t *testing.T) {
	s, router := setupRouter(t)
	seed(t, s)

	rec := get(t, router, "/territories")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/chunks/beta"`)
}

func TestChunkPage(t *testing.T) {
	s, router := setupRouter(t)
	seed(t, s)

	rec := get(t, router, "/chunks/gamma")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "telemetry watches heat and reward drift")

	rec = get(t, router, "/chunks/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "chunk not found: missing")
}

func TestChunkPage_JSONError(t *testing.T) {
	_, router := setupRouter(t)
	rec := get(t, router, "/chunks/missing", "Accept", "application/json")
	require.Equal(t, http.StatusNotFound, rec.Code)
	errObj := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestEventsPage(t *testing.T) {
	s, router := setupRouter(t)
	seed(t, s)

	rec := get(t, router, "/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "register")
	assert.Contains(t, rec.Body.String(), "No archived events.")

	_, err := s.Commit(context.Background())
	require.NoError(t, err)

	rec = get(t, router, "/events?type=register")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "No archived events.")
}

func TestSnapshotsPage(t *testing.T) {
	s, router := setupRouter(t)

	rec := get(t, router, "/snapshots")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No snapshots saved.")

	seed(t, s)
	out, err := s.Commit(context.Background())
	require.NoError(t, err)

	rec = get(t, router, "/snapshots")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), out.SnapshotID)
	assert.Contains(t, rec.Body.String(), `class="current"`)
}

func TestReportPage(t *testing.T) {
	_, router := setupRouter(t)

	rec := get(t, router, "/report?iterations=3")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Void Dynamics Nightly Telemetry")
	assert.Contains(t, body, "<table>")
	assert.Contains(t, body, "probed against the seed corpus")
}

func TestReportPage_TooManyIterations(t *testing.T) {
	_, router := setupRouter(t)
	rec := get(t, router, "/report?iterations=100000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI(t *testing.T) {
	s, router := setupRouter(t)
	seed(t, s)

	t.Run("health", func(t *testing.T) {
		rec := get(t, router, "/api/health")
		require.Equal(t, http.StatusOK, rec.Code)
		out := decodeBody(t, rec)
		assert.Equal(t, "ok", out["status"])
		assert.Equal(t, true, out["db"])
		assert.Equal(t, "default", out["store"])
	})

	t.Run("stats", func(t *testing.T) {
		rec := get(t, router, "/api/stats")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 3, decodeBody(t, rec)["count"])
	})

	t.Run("top", func(t *testing.T) {
		rec := get(t, router, "/api/top?n=2")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody(t, rec)["items"], 2)
	})

	t.Run("territories", func(t *testing.T) {
		rec := get(t, router, "/api/territories")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, decodeBody(t, rec)["territories"])
	})

	t.Run("chunk", func(t *testing.T) {
		rec := get(t, router, "/api/chunks/alpha")
		require.Equal(t, http.StatusOK, rec.Code)
		chunk := decodeBody(t, rec)["chunk"].(map[string]any)
		assert.Equal(t, "alpha", chunk["id"])
	})

	t.Run("chunk missing", func(t *testing.T) {
		rec := get(t, router, "/api/chunks/nope")
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decodeBody(t, rec)["error"].(map[string]any)["code"])
	})

	t.Run("events does not consume", func(t *testing.T) {
		rec := get(t, router, "/api/events?limit=2")
		require.Equal(t, http.StatusOK, rec.Code)
		out := decodeBody(t, rec)
		assert.Len(t, out["events"], 2)
		buffered, _ := s.Manager.EventBacklog()
		assert.EqualValues(t, buffered, out["buffered"])
	})

	t.Run("snapshots bad offset", func(t *testing.T) {
		rec := get(t, router, "/api/snapshots?offset=-1")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION", decodeBody(t, rec)["error"].(map[string]any)["code"])
	})

	t.Run("history", func(t *testing.T) {
		_, err := s.Commit(context.Background())
		require.NoError(t, err)
		rec := get(t, router, "/api/history?type=register&limit=2")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody(t, rec)["events"], 2)
	})

	t.Run("report", func(t *testing.T) {
		rec := get(t, router, "/api/report?iterations=2&batch_size=2")
		require.Equal(t, http.StatusOK, rec.Code)
		out := decodeBody(t, rec)
		assert.Equal(t, false, out["seeded"])
		report := out["report"].(map[string]any)
		assert.Len(t, report["samples"], 2)
	})

	t.Run("drills", func(t *testing.T) {
		_, err := ops.Drill(context.Background(), s, ops.DrillInput{OutputDir: t.TempDir()})
		require.NoError(t, err)
		rec := get(t, router, "/api/drills")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody(t, rec)["drills"], 1)
	})

	t.Run("report bad batch size", func(t *testing.T) {
		rec := get(t, router, "/api/report?batch_size=0")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStaticAssets(t *testing.T) {
	_, router := setupRouter(t)
	rec := get(t, router, "/static/style.css")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "body")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := setupSession(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, err := NewServer(s, "test", "127.0.0.1", 0)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, ln, zaptest.NewLogger(t)) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRenderMarkdown_Table(t *testing.T) {
	html := string(renderMarkdown("| a | b |\n|---|---|\n| 1 | 2 |\n"))
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>1</td>")
}

func TestNewRenderer_NilLogger(t *testing.T) {
	sub, err := fs.Sub(templateFS, "templates")
	require.NoError(t, err)
	r, err := NewRenderer(sub, "test", nil)
	require.NoError(t, err)
	assert.Len(t, r.templates, len(pages))
}
