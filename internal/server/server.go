// Package server serves the map project produced by enrichment runs: the
// layer manifest, each layer as GeoJSON, the exported tables, and the run
// history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/export"
	"github.com/sells-group/wildfire-cli/internal/metrics"
	"github.com/sells-group/wildfire-cli/internal/model"
	"github.com/sells-group/wildfire-cli/internal/present"
	"github.com/sells-group/wildfire-cli/internal/store"
	"github.com/sells-group/wildfire-cli/internal/workspace"
)

// Workspace is the dataset access the server needs.
type Workspace interface {
	present.FeatureSource
	List(ctx context.Context) ([]workspace.DatasetInfo, error)
}

// Config configures a Server.
type Config struct {
	Workspace Workspace
	// Runs may be nil; the run routes then answer 404.
	Runs      store.Store
	Manifest  string
	ExportDir string
	// AllowedOrigins defaults to every origin.
	AllowedOrigins []string
}

// Server is the layer HTTP server.
type Server struct {
	router *chi.Mux
	cfg    Config
	log    *zap.Logger
}

// New creates a Server and registers its routes.
func New(cfg Config) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "server")),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metricsMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/manifest", s.handleManifest)
		r.Get("/layers/{name}", s.handleLayer)
		r.Get("/datasets", s.handleDatasets)
		r.Get("/exports/{file}", s.handleExport)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	proj, err := present.LoadProject(s.cfg.Manifest)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "no map project")
			return
		}
		s.fail(w, "load manifest", err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

// handleLayer answers a layer as a GeoJSON feature collection. The name may
// be a manifest layer, whose dataset and query are used, or a dataset.
func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(chi.URLParam(r, "name"), ".geojson")
	layer := model.Layer{Name: name, Dataset: name}
	if proj, err := present.LoadProject(s.cfg.Manifest); err == nil {
		if l := proj.Layer(name); l != nil {
			layer = *l
		}
	}

	ds, err := s.layerFeatures(r.Context(), layer)
	if err != nil {
		if errors.Is(err, workspace.ErrNotFound) {
			writeError(w, http.StatusNotFound, "layer not found: "+name)
			return
		}
		s.fail(w, "load layer", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(export.FeatureCollection(ds))
}

func (s *Server) layerFeatures(ctx context.Context, l model.Layer) (*model.Dataset, error) {
	src := s.cfg.Workspace
	if l.Query == "" {
		return src.Get(ctx, l.Dataset)
	}
	fids, err := src.SelectFIDs(ctx, l.Dataset, l.Query)
	if err != nil {
		return nil, err
	}
	return src.GetFIDs(ctx, l.Dataset, fids)
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	infos, err := s.cfg.Workspace.List(r.Context())
	if err != nil {
		s.fail(w, "list datasets", err)
		return
	}
	if infos == nil {
		infos = []workspace.DatasetInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	if file == "" || file != filepath.Base(file) || strings.HasPrefix(file, ".") {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	path := filepath.Join(s.cfg.ExportDir, file)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "export not found: "+file)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		writeError(w, http.StatusNotFound, "run history disabled")
		return
	}
	filter := store.RunFilter{Status: model.RunStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	runs, err := s.cfg.Runs.ListRuns(r.Context(), filter)
	if err != nil {
		s.fail(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		writeError(w, http.StatusNotFound, "run history disabled")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.cfg.Runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found: "+id)
			return
		}
		s.fail(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) fail(w http.ResponseWriter, action string, err error) {
	s.log.Error("server: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, action+" failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// metricsMiddleware records request counts and durations by route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
