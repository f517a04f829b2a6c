// Package http exposes a Bot over a JSON admin API.
//
//	GET    /health
//	GET    /info
//	POST   /conversations/{id}/events     queue an event (202)
//	GET    /conversations/{id}/position
//	GET    /conversations/{id}/state
//	POST   /conversations/{id}/jump       {"flow", "node", "resetState"}
//	DELETE /conversations/{id}/flow
//	GET    /conversations/{id}/stream     SSE of dispatched messages
//	GET    /flows
//	PUT    /flows                         [{"name", "flow"}]
//	GET    /actions
//	GET    /metrics                       when WithMetrics is set
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/actions"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/queue"
	"github.com/aretw0/parley/pkg/sanitize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds request bodies. Flow sets are the largest payload.
const maxBodyBytes = 4 << 20

// Bot is the part of *parley.Bot the API drives.
type Bot interface {
	Send(ctx context.Context, conversationID string, event domain.Event) error
	Position(ctx context.Context, conversationID string) (domain.Position, error)
	State(ctx context.Context, conversationID string) (domain.State, error)
	JumpTo(ctx context.Context, conversationID, flowName, nodeName string, opts ...parley.JumpOption) error
	EndFlow(ctx context.Context, conversationID string) error
	Flows(ctx context.Context) ([]domain.Flow, error)
	SaveFlows(ctx context.Context, edits []domain.FlowEdit) error
	Actions() *actions.Registry
}

// Server holds the handlers.
type Server struct {
	bot      Bot
	streams  *StreamManager
	gatherer prometheus.Gatherer
	maxInput int
	logger   *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStreams enables the SSE endpoint. The manager must also be registered
// as an output processor of the bot.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// WithMetrics serves the gatherer's collectors on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithMaxInputSize bounds the text of posted events. Defaults to sanitize.DefaultMaxSize.
func WithMaxInputSize(n int) Option {
	return func(s *Server) {
		s.maxInput = n
	}
}

// NewHandler creates the HTTP handler for the bot.
func NewHandler(bot Bot, opts ...Option) http.Handler {
	s := &Server{bot: bot, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Route("/conversations/{id}", func(r chi.Router) {
		r.Post("/events", s.PostEvent)
		r.Get("/position", s.GetPosition)
		r.Get("/state", s.GetState)
		r.Post("/jump", s.PostJump)
		r.Delete("/flow", s.DeleteFlow)
		r.Get("/stream", s.SubscribeEvents)
	})

	r.Get("/flows", s.GetFlows)
	r.Put("/flows", s.PutFlows)
	r.Get("/actions", s.GetActions)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "parley",
		"version": parley.Version,
	})
}

// PostEvent handles POST /conversations/{id}/events.
func (s *Server) PostEvent(w http.ResponseWriter, r *http.Request) {
	var event domain.Event
	if !s.decode(w, r, &event) {
		return
	}
	if event.Type == "" {
		s.writeError(w, &domain.ValidationError{Err: errors.New("event type is required")})
		return
	}
	text, err := sanitize.Text(event.Text, s.maxInput)
	if err != nil {
		s.writeError(w, &domain.ValidationError{Err: err})
		return
	}
	event.Text = text

	if err := s.bot.Send(r.Context(), chi.URLParam(r, "id"), event); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// GetPosition handles GET /conversations/{id}/position.
func (s *Server) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := s.bot.Position(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// GetState handles GET /conversations/{id}/state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.bot.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// JumpRequest is the body of POST /conversations/{id}/jump.
type JumpRequest struct {
	Flow       string `json:"flow"`
	Node       string `json:"node,omitempty"`
	ResetState bool   `json:"resetState,omitempty"`
}

// PostJump handles POST /conversations/{id}/jump.
func (s *Server) PostJump(w http.ResponseWriter, r *http.Request) {
	var body JumpRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.Flow == "" {
		s.writeError(w, &domain.ValidationError{Err: errors.New("flow is required")})
		return
	}

	var opts []parley.JumpOption
	if body.ResetState {
		opts = append(opts, parley.WithResetState())
	}
	id := chi.URLParam(r, "id")
	if err := s.bot.JumpTo(r.Context(), id, body.Flow, body.Node, opts...); err != nil {
		s.writeError(w, err)
		return
	}

	pos, err := s.bot.Position(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// DeleteFlow handles DELETE /conversations/{id}/flow.
func (s *Server) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.EndFlow(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFlows handles GET /flows.
func (s *Server) GetFlows(w http.ResponseWriter, r *http.Request) {
	set, err := s.bot.Flows(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// PutFlows handles PUT /flows.
func (s *Server) PutFlows(w http.ResponseWriter, r *http.Request) {
	var edits []domain.FlowEdit
	if !s.decode(w, r, &edits) {
		return
	}
	if err := s.bot.SaveFlows(r.Context(), edits); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetActions handles GET /actions.
func (s *Server) GetActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Actions().Available())
}

// SubscribeEvents handles GET /conversations/{id}/stream (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	if s.streams == nil {
		http.Error(w, "Streaming not enabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	id := chi.URLParam(r, "id")
	ch, cancel := s.streams.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE client connected", "conversation", id)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "conversation", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, &domain.ValidationError{Err: fmt.Errorf("invalid request body: %w", err)})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, queue.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
