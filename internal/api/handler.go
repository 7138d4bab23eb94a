// Package api exposes the detection engine over HTTP for the services that
// feed it events and the dashboard that reads its rollups.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"sentinel-ids/internal/alerting"
	"sentinel-ids/internal/detect"
	"sentinel-ids/internal/metrics"
	"sentinel-ids/internal/schema"
)

// APIError represents a structured API error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// writeJSONError writes a structured JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
		Details: details,
	}); err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// Pinger reports event-store liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler wires the engine, alerter, and metrics aggregator to HTTP routes.
type Handler struct {
	engine     *detect.Engine
	alerter    *alerting.Alerter
	aggregator *metrics.Aggregator
	store      Pinger
}

// NewHandler creates the API handler. store may be nil, in which case the
// health endpoint only reports process liveness.
func NewHandler(engine *detect.Engine, alerter *alerting.Alerter, aggregator *metrics.Aggregator, store Pinger) *Handler {
	return &Handler{
		engine:     engine,
		alerter:    alerter,
		aggregator: aggregator,
		store:      store,
	}
}

// Routes returns the configured request multiplexer.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/detect", h.handleDetect)
	mux.HandleFunc("GET /v1/score", h.handleScore)
	mux.HandleFunc("GET /v1/risk", h.handleRisk)
	mux.HandleFunc("GET /v1/metrics", h.handleMetrics)
	mux.HandleFunc("POST /v1/block", h.handleBlock)
	mux.HandleFunc("GET /v1/block", h.handleBlockStatus)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

type detectResponse struct {
	Anomalies []schema.Anomaly `json:"anomalies"`
	Count     int              `json:"count"`
}

// handleDetect evaluates one security event and returns the anomalies found.
// Detection degrades, never errors: store outages surface as an empty list.
func (h *Handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	var event schema.SecurityEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "request body is not a valid security event", err.Error())
		return
	}

	anomalies, err := h.engine.DetectAnomalies(r.Context(), &event)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_event", "security event failed validation", err.Error())
		return
	}

	if anomalies == nil {
		anomalies = []schema.Anomaly{}
	}
	writeJSON(w, http.StatusOK, detectResponse{
		Anomalies: anomalies,
		Count:     len(anomalies),
	})
}

type scoreResponse struct {
	IPAddress string          `json:"ip_address"`
	Score     int             `json:"score"`
	Severity  schema.Severity `json:"severity"`
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	ip, ok := requireIP(w, r)
	if !ok {
		return
	}

	score := h.engine.ScoreIP(r.Context(), ip)
	writeJSON(w, http.StatusOK, scoreResponse{
		IPAddress: ip,
		Score:     score,
		Severity:  detect.ScoreBand(score),
	})
}

func (h *Handler) handleRisk(w http.ResponseWriter, r *http.Request) {
	ip, ok := requireIP(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, h.engine.AssessIP(r.Context(), ip))
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := h.aggregator.Snapshot(r.Context())
	if snapshot == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "metrics_unavailable",
			"security metrics are temporarily unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type blockRequest struct {
	IPAddress     string  `json:"ip_address"`
	Reason        string  `json:"reason"`
	DurationHours float64 `json:"duration_hours"`
}

type blockResponse struct {
	IPAddress string `json:"ip_address"`
	Blocked   bool   `json:"blocked"`
}

// handleBlock records a block intent. Blocked reports whether the intent was
// durably recorded; enforcement happens elsewhere.
func (h *Handler) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "request body is not a valid block request", err.Error())
		return
	}
	if net.ParseIP(req.IPAddress) == nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_ip", "ip_address is missing or malformed", "")
		return
	}

	duration := time.Duration(req.DurationHours * float64(time.Hour))
	ok := h.alerter.BlockIP(r.Context(), req.IPAddress, req.Reason, duration)
	writeJSON(w, http.StatusOK, blockResponse{
		IPAddress: req.IPAddress,
		Blocked:   ok,
	})
}

// handleBlockStatus reports whether an unexpired block intent exists for an
// IP. Deployments without a block store always report unblocked.
func (h *Handler) handleBlockStatus(w http.ResponseWriter, r *http.Request) {
	ip, ok := requireIP(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, blockResponse{
		IPAddress: ip,
		Blocked:   h.alerter.IsBlocked(r.Context(), ip),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["event_store"] = "unreachable"
			writeJSON(w, http.StatusOK, status)
			return
		}
		status["event_store"] = "ok"
	}

	writeJSON(w, http.StatusOK, status)
}

// requireIP extracts and validates the ip query parameter.
func requireIP(w http.ResponseWriter, r *http.Request) (string, bool) {
	ip := r.URL.Query().Get("ip")
	if net.ParseIP(ip) == nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_ip", "ip query parameter is missing or malformed", "")
		return "", false
	}
	return ip, true
}
