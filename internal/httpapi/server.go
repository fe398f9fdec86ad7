package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/toolbridge/internal/bridge"
	"github.com/ent0n29/toolbridge/internal/kv"
	"github.com/ent0n29/toolbridge/internal/observability"
)

const secretHeader = "x-webhook-secret"

// Server exposes the inbound webhook surface over HTTP.
type Server struct {
	bridge    *bridge.Bridge
	store     kv.Store
	storeMode string
	metrics   *observability.Metrics
}

func New(b *bridge.Bridge, store kv.Store, storeMode string, metrics *observability.Metrics) *Server {
	return &Server{
		bridge:    b,
		store:     store,
		storeMode: storeMode,
		metrics:   metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/agent-tools", s.handleToolCall)
	r.Post("/callback", s.handleCallback)
	r.Post("/agent-conversations/api/{conversationId}/session", s.handleRegisterSession)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ready",
		"store_mode":  s.storeMode,
		"store_state": string(s.store.State()),
	})
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	var req bridge.ToolCallRequest
	if err := decodeJSON(r, &req); err != nil {
		s.metrics.ToolCalls.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.bridge.HandleToolCall(r.Context(), req, r.Header.Get(secretHeader))
	if err != nil {
		var vErr *bridge.ValidationError
		var upErr *bridge.UpstreamError
		switch {
		case errors.As(err, &vErr):
			s.metrics.ToolCalls.WithLabelValues("invalid").Inc()
			respondError(w, http.StatusBadRequest, "invalid_request", vErr.Error())
		case errors.Is(err, bridge.ErrUnauthorized):
			s.metrics.ToolCalls.WithLabelValues("unauthorized").Inc()
			respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		case errors.As(err, &upErr):
			s.metrics.ToolCalls.WithLabelValues("upstream_error").Inc()
			respondError(w, http.StatusBadGateway, "execution_failed", upErr.Error())
		default:
			s.metrics.ToolCalls.WithLabelValues("error").Inc()
			respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	s.metrics.ToolCalls.WithLabelValues("accepted").Inc()
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req bridge.CallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.metrics.Callbacks.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := s.bridge.HandleCallback(r.Context(), req); err != nil {
		var vErr *bridge.ValidationError
		if errors.As(err, &vErr) {
			s.metrics.Callbacks.WithLabelValues("invalid").Inc()
			respondError(w, http.StatusBadRequest, "invalid_request", vErr.Error())
			return
		}
		s.metrics.Callbacks.WithLabelValues("error").Inc()
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	s.metrics.Callbacks.WithLabelValues("accepted").Inc()
	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleRegisterSession(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")

	var req bridge.RegisterSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.bridge.RegisterSession(r.Context(), conversationID, req)
	if err != nil {
		var vErr *bridge.ValidationError
		if errors.As(err, &vErr) {
			respondError(w, http.StatusBadRequest, "invalid_request", vErr.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type errorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code, Timestamp: time.Now().UTC()})
}
