package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/ops"
	"github.com/hpungsan/voidmem/internal/telemetry"
)

// Handlers contains HTTP route handlers for the dashboard. Every handler
// holds the session lock while it reads the manager.
type Handlers struct {
	session  *ops.Session
	renderer *Renderer
	started  time.Time
}

// HandleOverview handles GET /: stats, top chunks and the frontier.
func (h *Handlers) HandleOverview(w http.ResponseWriter, r *http.Request) {
	h.session.Lock()
	stats, err := ops.Stats(r.Context(), h.session)
	var top *ops.TopOutput
	if err == nil {
		top, err = ops.Top(r.Context(), h.session, ops.TopInput{N: parseIntParam(r, "n", ops.DefaultTopLimit)})
	}
	h.session.Unlock()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "overview", OverviewPageData{
		PageData: h.pageData("Overview", "overview"),
		Stats:    stats,
		Top:      top.Items,
		Frontier: top.Frontier,
	})
}

// HandleTerritories handles GET /territories.
func (h *Handlers) HandleTerritories(w http.ResponseWriter, r *http.Request) {
	h.session.Lock()
	out, err := ops.Territories(r.Context(), h.session)
	h.session.Unlock()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "territories", TerritoriesPageData{
		PageData:    h.pageData("Territories", "territories"),
		Territories: out.Territories,
	})
}

// HandleChunk handles GET /chunks/{id}.
func (h *Handlers) HandleChunk(w http.ResponseWriter, r *http.Request) {
	h.session.Lock()
	out, err := ops.Inspect(r.Context(), h.session, ops.InspectInput{ID: chi.URLParam(r, "id")})
	h.session.Unlock()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "chunk", ChunkPageData{
		PageData: h.pageData(out.Chunk.ID, "overview"),
		Chunk:    out,
	})
}

// HandleEvents handles GET /events: the live buffer and the archive.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("type")

	h.session.Lock()
	peek, err := ops.Peek(r.Context(), h.session, ops.PeekInput{Limit: parseIntParam(r, "limit", ops.DefaultHistoryLimit)})
	var history *ops.HistoryOutput
	if err == nil {
		history, err = ops.History(r.Context(), h.session, ops.HistoryInput{
			Type:          eventType,
			AfterSequence: parseUintParam(r, "after"),
			Limit:         parseIntParam(r, "limit", ops.DefaultHistoryLimit),
		})
	}
	h.session.Unlock()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "events", EventsPageData{
		PageData: h.pageData("Events", "events"),
		Buffered: peek,
		History:  history.Events,
		Type:     eventType,
	})
}

// HandleSnapshots handles GET /snapshots.
func (h *Handlers) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	h.session.Lock()
	out, err := ops.Snapshots(r.Context(), h.session, snapshotsInput(r))
	current := h.session.SnapshotID
	h.session.Unlock()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "snapshots", SnapshotsPageData{
		PageData:   h.pageData("Snapshots", "snapshots"),
		Items:      out.Items,
		Pagination: out.Pagination,
		Current:    current,
	})
}

// HandleReport handles GET /report: a telemetry probe rendered as markdown.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	out, err := h.telemetry(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "report", ReportPageData{
		PageData:     h.pageData("Telemetry", "report"),
		Status:       out.Report.Summary.Status,
		Seeded:       out.Seeded,
		RenderedHTML: renderMarkdown(out.Markdown),
	})
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := h.session.DB.PingContext(r.Context()) == nil
	status, label := http.StatusOK, "ok"
	if !dbOK {
		status, label = http.StatusServiceUnavailable, "degraded"
	}
	renderJSON(w, status, map[string]any{
		"status":  label,
		"version": h.renderer.version,
		"store":   h.session.Store,
		"uptime":  time.Since(h.started).Seconds(),
		"db":      dbOK,
	})
}

// HandleAPIStats handles GET /api/stats.
func (h *Handlers) HandleAPIStats(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func() (any, error) {
		return ops.Stats(r.Context(), h.session)
	})
}

// HandleAPITop handles GET /api/top?n=.
func (h *Handlers) HandleAPITop(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func() (any, error) {
		return ops.Top(r.Context(), h.session, ops.TopInput{N: parseIntParam(r, "n", ops.DefaultTopLimit)})
	})
}

// HandleAPITerritories handles GET /api/territories.
func (h *Handlers) HandleAPITerritories(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func() (any, error) {
		return ops.Territories(r.Context(), h.session)
	})
}

// HandleAPIChunk handles GET /api/chunks/{id}.
func (h *Handlers) HandleAPIChunk(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func() (any, error) {
		return ops.Inspect(r.Context(), h.session, ops.InspectInput{ID: chi.URLParam(r, "id")})
	})
}

// HandleAPIEvents handles GET /api/events?limit=: buffered events, not consumed.
func (h *Handlers) HandleAPIEvents(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func() (any, error) {
		return ops.Peek(r.Context(), h.session, ops.PeekInput{Limit: parseIntParam(r, "limit", 0)})
	})
}

// HandleAPIHistory handles GET /api/history?type=&after=&limit=.
func (h *Handlers) HandleAPIHistory(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func() (any, error) {
		return ops.History(r.Context(), h.session, ops.HistoryInput{
			Type:          r.URL.Query().Get("type"),
			AfterSequence: parseUintParam(r, "after"),
			Limit:         parseIntParam(r, "limit", ops.DefaultHistoryLimit),
		})
	})
}

// HandleAPISnapshots handles GET /api/snapshots.
func (h *Handlers) HandleAPISnapshots(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func() (any, error) {
		return ops.Snapshots(r.Context(), h.session, snapshotsInput(r))
	})
}

// HandleAPIReport handles GET /api/report.
func (h *Handlers) HandleAPIReport(w http.ResponseWriter, r *http.Request) {
	out, err := h.telemetry(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleAPIDrills handles GET /api/drills?limit=.
func (h *Handlers) HandleAPIDrills(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, func() (any, error) {
		return ops.Drills(r.Context(), h.session, ops.DrillsInput{Limit: parseIntParam(r, "limit", ops.DefaultListLimit)})
	})
}

// telemetry probes a clone of the manager. iterations and batch_size
// override the nightly probe.
func (h *Handlers) telemetry(r *http.Request) (*ops.TelemetryOutput, error) {
	probe := telemetry.DefaultProbeConfig()
	probe.Iterations = parseIntParam(r, "iterations", probe.Iterations)
	probe.BatchSize = parseIntParam(r, "batch_size", probe.BatchSize)
	if probe.Iterations > maxReportIterations {
		return nil, errors.NewValidationf("iterations must be <= %d", maxReportIterations)
	}

	h.session.Lock()
	defer h.session.Unlock()
	return ops.Telemetry(r.Context(), h.session, ops.TelemetryInput{Probe: &probe})
}

// maxReportIterations caps probe length for interactive requests.
const maxReportIterations = 500

// serveJSON runs fn under the session lock and writes its result as JSON.
func (h *Handlers) serveJSON(w http.ResponseWriter, r *http.Request, fn func() (any, error)) {
	h.session.Lock()
	out, err := fn()
	h.session.Unlock()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

func (h *Handlers) pageData(title, nav string) PageData {
	return PageData{
		Title:   title,
		Version: h.renderer.version,
		Nav:     nav,
		Store:   h.session.Store,
	}
}

func snapshotsInput(r *http.Request) ops.SnapshotsInput {
	return ops.SnapshotsInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	}
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseUintParam parses a sequence-style query parameter; bad input is 0.
func parseUintParam(r *http.Request, name string) uint64 {
	v, err := strconv.ParseUint(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
