package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"go-hunt-dashboard/internal/connectors/analytics"
	"go-hunt-dashboard/internal/timeline"
)

const (
	errAnalyticsDisabled = "analytics integration disabled (set APP_ANALYTICS_ENABLED=true)"
	errDBDisabled        = "database integration disabled (set APP_DB_ENABLED=true)"
	errLayoutsDisabled   = "layout storage disabled (set APP_LAYOUT_SQLITE_PATH)"
)

const chartTitle = "Alerts timeline"

func timelineHandler(client *analytics.Client, mode timeline.ParseMode) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !client.Enabled() {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": errAnalyticsDisabled})
			return
		}
		q, err := parseQuery(r)
		if err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		aligner, fill, err := parseFill(r)
		if err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		resp, table, err := fetchTimeline(r.Context(), client, q, mode, aligner)
		if err != nil {
			writeTimelineError(w, mode, err)
			return
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"from_date": q.FromDate,
				"interval":  resp.Interval,
				"fill":      fill,
				"mode":      mode.String(),
				"series":    len(resp.Series),
				"points":    len(table.Timestamps()),
			},
			"data": map[string]any{
				"x":       table.X,
				"columns": table.Columns,
				"summary": timeline.Summarize(table),
			},
		})
	}
}

func timelineChartHandler(client *analytics.Client, mode timeline.ParseMode) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !client.Enabled() {
			nethttp.Error(w, errAnalyticsDisabled, nethttp.StatusServiceUnavailable)
			return
		}
		q, err := parseQuery(r)
		if err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		aligner, _, err := parseFill(r)
		if err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}

		_, table, err := fetchTimeline(r.Context(), client, q, mode, aligner)
		if err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadGateway)
			return
		}

		var buf bytes.Buffer
		if err := timeline.RenderChart(&buf, table, chartTitle); err != nil {
			nethttp.Error(w, "failed to render chart", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}

func trendHandler(client *analytics.Client) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !client.Enabled() {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": errAnalyticsDisabled})
			return
		}
		q, err := parseQuery(r)
		if err != nil {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		start := time.Now()
		counts, err := client.AlertsCount(r.Context(), q)
		recordExternalProbe("analytics", "AlertsCount", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusBadGateway, map[string]any{
				"error":  "failed to fetch alerts count",
				"detail": err.Error(),
			})
			return
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"from_date": q.FromDate},
			"data": map[string]any{
				"doc_count":      counts.DocCount,
				"prev_doc_count": counts.PrevDocCount,
				"delta":          counts.DocCount - counts.PrevDocCount,
			},
		})
	}
}

func filterFieldsHandler(client *analytics.Client) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !client.Enabled() {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": errAnalyticsDisabled})
			return
		}

		start := time.Now()
		set, err := client.FilterFields(r.Context())
		recordExternalProbe("analytics", "FilterFields", time.Since(start).Seconds(), err)
		if err != nil {
			writeJSON(w, nethttp.StatusBadGateway, map[string]any{
				"error":  "failed to fetch filter fields",
				"detail": err.Error(),
			})
			return
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{
				"checksum": set.Checksum,
				"count":    len(set.Fields),
			},
			"data": set.Fields,
		})
	}
}

func fetchTimeline(ctx context.Context, client *analytics.Client, q analytics.Query, mode timeline.ParseMode, aligner timeline.Aligner) (timeline.Response, timeline.Table, error) {
	start := time.Now()
	raw, err := client.Timeline(ctx, q)
	recordExternalProbe("analytics", "Timeline", time.Since(start).Seconds(), err)
	if err != nil {
		return timeline.Response{}, timeline.Table{}, err
	}

	resp, err := timeline.ParseResponse(raw, mode)
	if err != nil {
		return timeline.Response{}, timeline.Table{}, err
	}
	table := aligner.Align(resp)
	timelinePoints.Observe(float64(len(table.Timestamps())))
	return resp, table, nil
}

func writeTimelineError(w nethttp.ResponseWriter, mode timeline.ParseMode, err error) {
	var malformed *timeline.MalformedSeriesError
	if errors.As(err, &malformed) {
		timelineRejected.WithLabelValues(mode.String()).Inc()
		writeJSON(w, nethttp.StatusBadGateway, map[string]any{
			"error":  "malformed timeline data",
			"detail": err.Error(),
			"series": malformed.Series,
		})
		return
	}
	writeJSON(w, nethttp.StatusBadGateway, map[string]any{
		"error":  "failed to fetch timeline",
		"detail": err.Error(),
	})
}

// parseQuery reads the time range and filter shared by analytics routes.
func parseQuery(r *nethttp.Request) (analytics.Query, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("from_date"))
	if raw == "" {
		return analytics.Query{}, errors.New("from_date is required")
	}
	fromDate, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || fromDate < 0 {
		return analytics.Query{}, fmt.Errorf("from_date must be epoch milliseconds, got %q", raw)
	}
	return analytics.Query{
		FromDate: fromDate,
		QFilter:  strings.TrimSpace(r.URL.Query().Get("qfilter")),
	}, nil
}

func parseFill(r *nethttp.Request) (timeline.Aligner, string, error) {
	switch fill := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("fill"))); fill {
	case "", "zero":
		return timeline.Aligner{}, "zero", nil
	case "gap":
		return timeline.WithGaps(), "gap", nil
	default:
		return timeline.Aligner{}, "", fmt.Errorf("fill must be zero or gap, got %q", fill)
	}
}
