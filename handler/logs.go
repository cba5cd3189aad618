package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mstgnz/paykit/infra/opensearch"
	"github.com/mstgnz/paykit/infra/response"
	"github.com/mstgnz/paykit/infra/storage"
)

const maxHistoryLimit = 500

// WebhookHistory reads the webhook audit rows kept in the database
type WebhookHistory interface {
	RecentWebhooks(ctx context.Context, providerName string, limit int) ([]storage.WebhookRecord, error)
}

// WebhookSearch reads the webhook documents indexed in OpenSearch
type WebhookSearch interface {
	GetEventLogs(ctx context.Context, providerName, eventID string) ([]opensearch.WebhookLog, error)
	GetWebhookStats(ctx context.Context, providerName string, hours int) (map[string]any, error)
}

// LogsHandler exposes the webhook audit trail
type LogsHandler struct {
	history WebhookHistory
	search  WebhookSearch
}

// NewLogsHandler creates a new logs handler. Either source may be nil.
func NewLogsHandler(history WebhookHistory, search WebhookSearch) *LogsHandler {
	return &LogsHandler{history: history, search: search}
}

// RecentWebhooks handles GET /v1/logs/webhooks/{provider}?limit=
func (h *LogsHandler) RecentWebhooks(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		response.Error(w, http.StatusServiceUnavailable, "Webhook history not available", nil)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Error(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.history.RecentWebhooks(r.Context(), chi.URLParam(r, "provider"), limit)
	if err != nil {
		writeError(w, "Failed to read webhook history", err)
		return
	}
	response.Success(w, http.StatusOK, "Webhook history retrieved", map[string]any{
		"count":  len(records),
		"events": records,
	})
}

// EventLogs handles GET /v1/logs/webhooks/{provider}/events/{eventID}
func (h *LogsHandler) EventLogs(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		response.Error(w, http.StatusServiceUnavailable, "Webhook search not available", nil)
		return
	}

	logs, err := h.search.GetEventLogs(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, "Failed to search webhook events", err)
		return
	}
	if len(logs) == 0 {
		response.Error(w, http.StatusNotFound, "Event not found", nil)
		return
	}
	response.Success(w, http.StatusOK, "Event logs retrieved", logs)
}

// WebhookStats handles GET /v1/logs/webhooks/{provider}/stats?hours=
func (h *LogsHandler) WebhookStats(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		response.Error(w, http.StatusServiceUnavailable, "Webhook search not available", nil)
		return
	}

	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 24*30 {
			response.Error(w, http.StatusBadRequest, "hours must be between 1 and 720", nil)
			return
		}
		hours = n
	}

	stats, err := h.search.GetWebhookStats(r.Context(), chi.URLParam(r, "provider"), hours)
	if err != nil {
		writeError(w, "Failed to aggregate webhook events", err)
		return
	}
	response.Success(w, http.StatusOK, "Webhook stats retrieved", stats)
}
