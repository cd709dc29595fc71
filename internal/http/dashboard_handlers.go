package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"time"

	"go-hunt-dashboard/internal/connectors/analytics"
	"go-hunt-dashboard/internal/connectors/layouts"
	"go-hunt-dashboard/internal/dashboard"
)

// instrumentedStats records every field stats call issued by panel boot.
type instrumentedStats struct {
	client *analytics.Client
}

func (s instrumentedStats) FieldStats(ctx context.Context, field string, q analytics.Query, pageSize int) ([]analytics.FieldBucket, error) {
	start := time.Now()
	out, err := s.client.FieldStats(ctx, field, q, pageSize)
	recordExternalProbe("analytics", "FieldStats", time.Since(start).Seconds(), err)
	return out, err
}

func panelsHandler(booter *dashboard.Booter, defaultPanels []string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if booter == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": errAnalyticsDisabled})
			return
		}
		q, err := parseQuery(r)
		if err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		ids := splitList(r.URL.Query().Get("panels"))
		if len(ids) == 0 {
			ids = defaultPanels
		}
		panels, err := booter.Boot(r.Context(), ids, q)
		if err != nil {
			if errors.Is(err, dashboard.ErrUnknownPanel) {
				writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, nethttp.StatusBadGateway, map[string]any{
				"error":  "failed to load dashboard panels",
				"detail": err.Error(),
			})
			return
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"from_date": q.FromDate,
				"count":     len(panels),
				"sizes":     booter.Sections().Sizes,
			},
			"data": panels,
		})
	}
}

func moreResultsHandler(booter *dashboard.Booter) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if booter == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": errAnalyticsDisabled})
			return
		}
		q, err := parseQuery(r)
		if err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		field := r.PathValue("field")
		items, err := booter.MoreResults(r.Context(), field, q)
		if err != nil {
			if errors.Is(err, dashboard.ErrUnknownField) {
				writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, nethttp.StatusBadGateway, map[string]any{
				"error":  "failed to load more results",
				"detail": err.Error(),
			})
			return
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"field": field,
				"count": len(items),
			},
			"data": items,
		})
	}
}

func macroLayoutHandler(store *layouts.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if store == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": errLayoutsDisabled})
			return
		}

		start := time.Now()
		items, err := store.Macro(r.Context())
		recordDBQuery("sqlite", "Macro", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to load macro layout"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"count": len(items)},
			"data": items,
		})
	}
}

func saveMacroLayoutHandler(store *layouts.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if store == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": errLayoutsDisabled})
			return
		}

		var items []layouts.LayoutItem
		if err := decodeJSON(w, r, &items); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid layout payload"})
			return
		}

		start := time.Now()
		err := store.SaveMacro(r.Context(), items)
		recordDBQuery("sqlite", "SaveMacro", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to save macro layout"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"count": len(items)},
			"data": items,
		})
	}
}

func microLayoutHandler(store *layouts.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if store == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": errLayoutsDisabled})
			return
		}

		panel := r.PathValue("panel")
		start := time.Now()
		byBreakpoint, err := store.Micro(r.Context(), panel)
		recordDBQuery("sqlite", "Micro", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to load micro layout"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"panel": panel},
			"data": byBreakpoint,
		})
	}
}

func saveMicroLayoutHandler(store *layouts.Store, sections *dashboard.Sections) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if store == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": errLayoutsDisabled})
			return
		}

		panel := r.PathValue("panel")
		breakpoint := r.PathValue("breakpoint")
		if _, ok := sections.Panel(panel); !ok {
			writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "unknown dashboard panel"})
			return
		}
		if !layouts.ValidBreakpoint(breakpoint) {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{
				"error": "breakpoint must be one of " + strings.Join(layouts.Breakpoints, ", "),
			})
			return
		}

		var items []layouts.LayoutItem
		if err := decodeJSON(w, r, &items); err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid layout payload"})
			return
		}

		start := time.Now()
		err := store.SaveMicro(r.Context(), panel, breakpoint, items)
		recordDBQuery("sqlite", "SaveMicro", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to save micro layout"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"panel":      panel,
				"breakpoint": breakpoint,
				"count":      len(items),
			},
			"data": items,
		})
	}
}

func resetLayoutsHandler(store *layouts.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if store == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": errLayoutsDisabled})
			return
		}

		start := time.Now()
		removed, err := store.Reset(r.Context())
		recordDBQuery("sqlite", "Reset", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to reset layouts"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"removed": removed},
		})
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
