package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/voidmem/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// ShutdownTimeout bounds graceful shutdown once the serve context ends.
const ShutdownTimeout = 5 * time.Second

// NewRouter builds the dashboard routes over a session.
func NewRouter(session *ops.Session, version string) (http.Handler, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	renderer, err := NewRenderer(templateSub, version, session.Logger)
	if err != nil {
		return nil, err
	}
	h := &Handlers{session: session, renderer: renderer, started: time.Now()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(securityHeaders)

	r.Get("/", h.HandleOverview)
	r.Get("/territories", h.HandleTerritories)
	r.Get("/chunks/{id}", h.HandleChunk)
	r.Get("/events", h.HandleEvents)
	r.Get("/snapshots", h.HandleSnapshots)
	r.Get("/report", h.HandleReport)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/stats", h.HandleAPIStats)
		r.Get("/top", h.HandleAPITop)
		r.Get("/territories", h.HandleAPITerritories)
		r.Get("/chunks/{id}", h.HandleAPIChunk)
		r.Get("/events", h.HandleAPIEvents)
		r.Get("/history", h.HandleAPIHistory)
		r.Get("/snapshots", h.HandleAPISnapshots)
		r.Get("/report", h.HandleAPIReport)
		r.Get("/drills", h.HandleAPIDrills)
	})

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticSub)))
	return r, nil
}

// NewServer creates the HTTP server for the dashboard.
func NewServer(session *ops.Session, version, bind string, port int) (*http.Server, error) {
	handler, err := NewRouter(session, version)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              net.JoinHostPort(bind, fmt.Sprint(port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run serves srv until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return Serve(ctx, srv, ln, logger)
}

// Serve is Run over an existing listener.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, logger *zap.Logger) error {
	addr := ln.Addr().String()
	logger.Info("dashboard listening", zap.String("url", "http://"+addr))
	if host, _, err := net.SplitHostPort(addr); err == nil && (host == "0.0.0.0" || strings.Contains(host, "::")) {
		logger.Warn("dashboard is bound to all interfaces and may be reachable from the network")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("dashboard shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
