package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/timour/ucp-merchant/checkout"
	"github.com/timour/ucp-merchant/ucperr"
)

// Headers every checkout and order endpoint requires.
var requiredHeaders = []string{"UCP-Agent", "Request-Signature", "Idempotency-Key", "Request-Id"}

var agentVersionPattern = regexp.MustCompile(`version="([^"]+)"`)

// responseRecorder captures the status code for metrics
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware wraps HTTP handlers to record Prometheus metrics
func (a *App) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Don't record metrics for /metrics endpoint itself
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		status := strconv.Itoa(recorder.statusCode)
		a.metrics.RecordHTTPRequest(r.Method, r.URL.Path, status, duration)
	})
}

// protected enforces the protocol headers and version negotiation, records
// the request in the request log, and only then invokes the handler.
func (h *handler) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, header := range requiredHeaders {
			if r.Header.Get(header) == "" {
				writeEnvelope(w, http.StatusUnprocessableEntity,
					"Missing required header: "+header, "INVALID_REQUEST")
				return
			}
		}

		if agentVersion := parseAgentVersion(r.Header.Get("UCP-Agent")); agentVersion != "" &&
			agentVersion > checkout.ServerVersion {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"code":     "VERSION_UNSUPPORTED",
				"severity": "critical",
				"message": "Version " + agentVersion + " is not supported. " +
					"This merchant implements version " + checkout.ServerVersion + ".",
			})
			return
		}

		h.logRequest(r)
		next(w, r)
	}
}

// logRequest appends the inbound request to the observational request log,
// restoring the body for the handler. Failures only warn.
func (h *handler) logRequest(r *http.Request) {
	var payload []byte
	if r.Body != nil && r.Method != http.MethodGet {
		payload, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(payload))
	}
	if err := h.transactions.LogRequest(r.Context(), r.Method, r.URL.String(), r.PathValue("id"), payload); err != nil {
		h.logger.Warn("failed to log request", slog.String("url", r.URL.String()), slog.Any("error", err))
	}
}

// parseAgentVersion extracts the version attribute of the UCP-Agent header.
func parseAgentVersion(header string) string {
	match := agentVersionPattern.FindStringSubmatch(header)
	if match == nil {
		return ""
	}
	return match[1]
}

// writeJSON serialises a success response.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeEnvelope serialises the protocol error envelope.
func writeEnvelope(w http.ResponseWriter, status int, detail, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"detail": detail,
		"code":   code,
	})
}

// writeError maps an error to the envelope. Domain errors pass through with
// their own code and status; everything else is a 500.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ue, ok := ucperr.As(err); ok {
		writeEnvelope(w, ue.Status, ue.Message, ue.Code)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeEnvelope(w, http.StatusServiceUnavailable, "Request canceled", "INTERNAL_ERROR")
		return
	}
	h.logger.Error("internal error",
		slog.String("method", r.Method),
		slog.String("url", r.URL.String()),
		slog.Any("error", err),
	)
	writeEnvelope(w, http.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR")
}
