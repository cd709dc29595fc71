package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strconv"
	"time"

	"go-hunt-dashboard/internal/connectors/analytics"
	"go-hunt-dashboard/internal/connectors/layouts"
	"go-hunt-dashboard/internal/connectors/rules"
)

func ruleHandler(store *rules.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if store == nil {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"error": errDBDisabled})
			return
		}

		sid, err := strconv.ParseInt(r.PathValue("sid"), 10, 64)
		if err != nil || sid <= 0 {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "sid must be a positive integer"})
			return
		}

		start := time.Now()
		rule, err := store.GetRule(r.Context(), sid)
		recordDBQuery("rules", "GetRule", time.Since(start).Seconds(), err)
		if err != nil {
			if errors.Is(err, rules.ErrRuleNotFound) {
				writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": err.Error()})
				return
			}
			status := nethttp.StatusInternalServerError
			if errors.Is(err, context.DeadlineExceeded) {
				status = nethttp.StatusGatewayTimeout
			}
			writeJSON(w, status, map[string]any{"error": "failed to fetch rule"})
			return
		}

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"meta": map[string]any{"sid": sid},
			"data": rule,
		})
	}
}

func servicesStatusHandler(client *analytics.Client, ruleStore *rules.Store, layoutStore *layouts.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
		defer cancel()

		writeJSON(w, nethttp.StatusOK, map[string]any{
			"generated_at": time.Now().UTC(),
			"services": map[string]any{
				"analytics": analyticsStatus(ctx, client),
				"rules_db":  rulesStatus(ctx, ruleStore),
				"layouts":   layoutsStatus(ctx, layoutStore),
			},
		})
	}
}

func analyticsStatus(ctx context.Context, client *analytics.Client) map[string]any {
	if !client.Enabled() {
		return map[string]any{"enabled": false, "ok": false, "error": "analytics integration disabled"}
	}

	start := time.Now()
	stats, err := client.Ping(ctx)
	recordExternalProbe("analytics", "Ping", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "error": err.Error()}
	}
	ok := stats.StatusCode >= 200 && stats.StatusCode < 300
	return map[string]any{"enabled": true, "ok": ok, "stats": stats}
}

func rulesStatus(ctx context.Context, store *rules.Store) map[string]any {
	if store == nil {
		return map[string]any{"enabled": false, "ok": false, "error": "database integration disabled"}
	}

	start := time.Now()
	stats, err := store.ServiceStats(ctx)
	recordDBQuery("rules", "ServiceStats", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true, "stats": stats}
}

func layoutsStatus(ctx context.Context, store *layouts.Store) map[string]any {
	if store == nil {
		return map[string]any{"enabled": false, "ok": false, "error": "layout storage disabled"}
	}

	start := time.Now()
	err := store.Ping(ctx)
	recordDBQuery("sqlite", "Ping", time.Since(start).Seconds(), err)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true}
}
