package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	log "github.com/sirupsen/logrus"

	"go-hunt-dashboard/internal/config"
	"go-hunt-dashboard/internal/connectors/analytics"
	"go-hunt-dashboard/internal/connectors/layouts"
	"go-hunt-dashboard/internal/connectors/rules"
	"go-hunt-dashboard/internal/dashboard"
	"go-hunt-dashboard/internal/timeline"
)

const requestIDHeader = "X-Request-ID"

// Server wraps an HTTP server and route handlers.
type Server struct {
	httpServer  *nethttp.Server
	ruleStore   *rules.Store
	layoutStore *layouts.Store
}

// services are the integrations handlers depend on. A nil field means the
// integration is disabled.
type services struct {
	analytics     *analytics.Client
	booter        *dashboard.Booter
	sections      *dashboard.Sections
	layouts       *layouts.Store
	rules         *rules.Store
	parseMode     timeline.ParseMode
	defaultPanels []string
}

// NewServer creates a configured HTTP server with v1 endpoints.
func NewServer(cfg config.Config) (*Server, error) {
	sections, err := dashboard.LoadSections(cfg.DashboardSectionsFile)
	if err != nil {
		return nil, err
	}

	var ruleStore *rules.Store
	if cfg.DBEnabled {
		ruleStore, err = rules.NewStore(cfg)
		if err != nil {
			return nil, err
		}
	}
	var layoutStore *layouts.Store
	if cfg.LayoutSQLitePath != "" {
		layoutStore, err = layouts.NewSQLiteStore(cfg.LayoutSQLitePath)
		if err != nil {
			_ = ruleStore.Close()
			return nil, err
		}
	}
	var client *analytics.Client
	if cfg.AnalyticsEnabled {
		client = analytics.NewClient(cfg.AnalyticsURL, cfg.AnalyticsESPath, cfg.AnalyticsFilterPath, cfg.AnalyticsTimeout)
	}

	svc := newServices(cfg, sections, client, layoutStore, ruleStore)
	httpServer := &nethttp.Server{
		Addr:         cfg.ListenAddr,
		Handler:      newHandler(svc),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{httpServer: httpServer, ruleStore: ruleStore, layoutStore: layoutStore}, nil
}

func newServices(cfg config.Config, sections *dashboard.Sections, client *analytics.Client, layoutStore *layouts.Store, ruleStore *rules.Store) services {
	svc := services{
		analytics:     client,
		sections:      sections,
		layouts:       layoutStore,
		rules:         ruleStore,
		parseMode:     timeline.Lenient,
		defaultPanels: cfg.DashboardPanels,
	}
	if cfg.TimelineStrict {
		svc.parseMode = timeline.Strict
	}
	if client.Enabled() {
		var layoutSrc dashboard.LayoutSource
		if layoutStore != nil {
			layoutSrc = layoutStore
		}
		svc.booter = dashboard.NewBooter(sections, instrumentedStats{client}, layoutSrc, cfg.DashboardBlockSize, cfg.DashboardMoreSize)
	}
	return svc
}

func newHandler(svc services) nethttp.Handler {
	mux := nethttp.NewServeMux()

	mux.Handle("GET /metrics", metricsHandler())
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(svc))

	mux.HandleFunc("GET /api/v1/timeline", timelineHandler(svc.analytics, svc.parseMode))
	mux.HandleFunc("GET /api/v1/trend", trendHandler(svc.analytics))
	mux.HandleFunc("GET /charts/timeline", timelineChartHandler(svc.analytics, svc.parseMode))
	mux.HandleFunc("GET /api/v1/filters/fields", filterFieldsHandler(svc.analytics))

	mux.HandleFunc("GET /api/v1/dashboard/panels", panelsHandler(svc.booter, svc.defaultPanels))
	mux.HandleFunc("GET /api/v1/dashboard/fields/{field}/more", moreResultsHandler(svc.booter))
	mux.HandleFunc("GET /api/v1/dashboard/layouts/macro", macroLayoutHandler(svc.layouts))
	mux.HandleFunc("PUT /api/v1/dashboard/layouts/macro", saveMacroLayoutHandler(svc.layouts))
	mux.HandleFunc("GET /api/v1/dashboard/layouts/micro/{panel}", microLayoutHandler(svc.layouts))
	mux.HandleFunc("PUT /api/v1/dashboard/layouts/micro/{panel}/{breakpoint}", saveMicroLayoutHandler(svc.layouts, svc.sections))
	mux.HandleFunc("DELETE /api/v1/dashboard/layouts", resetLayoutsHandler(svc.layouts))

	mux.HandleFunc("GET /api/v1/rules/{sid}", ruleHandler(svc.rules))
	mux.HandleFunc("GET /api/v1/status/services", servicesStatusHandler(svc.analytics, svc.rules, svc.layouts))

	return gzhttp.GzipHandler(loggingMiddleware(observabilityMiddleware(mux)))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, nethttp.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.ruleStore != nil {
		_ = s.ruleStore.Close()
	}
	if s.layoutStore != nil {
		_ = s.layoutStore.Close()
	}
	return err
}

func healthHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// readyHandler reports ready once the analytics API, the only integration
// the dashboard cannot work without, is configured.
func readyHandler(svc services) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		if !svc.analytics.Enabled() {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{
				"status": "not ready",
				"error":  errAnalyticsDisabled,
			})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"status":       "ready",
			"timeline":     svc.parseMode.String(),
			"layouts":      svc.layouts != nil,
			"rules_lookup": svc.rules != nil,
		})
	}
}

func loggingMiddleware(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		start := time.Now()
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: nethttp.StatusOK}
		next.ServeHTTP(rec, r)

		entry := log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
		})
		if rec.status >= nethttp.StatusInternalServerError {
			entry.Warn("http request failed")
			return
		}
		entry.Info("http request")
	})
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w nethttp.ResponseWriter, r *nethttp.Request, dst any) error {
	return json.NewDecoder(nethttp.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst)
}
