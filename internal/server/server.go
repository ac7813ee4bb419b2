package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sketchpilot-dev/sketchpilot/internal/config"
	"github.com/sketchpilot-dev/sketchpilot/internal/session"
	"github.com/sketchpilot-dev/sketchpilot/internal/transport"
	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

// Server exposes the agent over HTTP: session management, the per-room event
// stream, and the client-to-agent return path (acks, screenshots, shape
// summaries).
type Server struct {
	cfg    *config.Config
	hub    *transport.Hub
	stream *transport.A2AStream
	runner *session.Runner
	rooms  *RoomRegistry
	gather prometheus.Gatherer
	log    logr.Logger
}

func New(cfg *config.Config, hub *transport.Hub, runner *session.Runner, rooms *RoomRegistry, gather prometheus.Gatherer, log logr.Logger) *Server {
	return &Server{
		cfg:    cfg,
		hub:    hub,
		stream: transport.NewA2AStream(hub, log),
		runner: runner,
		rooms:  rooms,
		gather: gather,
		log:    log.WithName("http"),
	}
}

// HTTPServer builds the configured http.Server with all routes registered.
func (s *Server) HTTPServer() *http.Server {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/v1/rooms/{roomId}/sessions", s.handleStartSession).Methods("POST")
	router.HandleFunc("/api/v1/rooms/{roomId}/stream", s.handleStream).Methods("GET")
	router.HandleFunc("/api/v1/rooms/{roomId}/acks", s.handleAck).Methods("POST")
	router.HandleFunc("/api/v1/rooms/{roomId}/screenshots", s.handleScreenshot).Methods("POST")
	router.HandleFunc("/api/v1/rooms/{roomId}/shapes", s.handleShapes).Methods("PUT")
	router.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	return &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the room stream is long-lived.
		IdleTimeout: 60 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// StartSessionRequest is the body of POST /rooms/{roomId}/sessions.
type StartSessionRequest struct {
	Message     string           `json:"message"`
	Profile     string           `json:"profile,omitempty"`
	Viewport    *canvas.Viewport `json:"viewport,omitempty"`
	Correlation []string         `json:"correlation,omitempty"`
}

// StartSessionResponse acknowledges an accepted session.
type StartSessionResponse struct {
	SessionID string `json:"sessionId"`
	RoomID    string `json:"roomId"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	// The session outlives this request; it reports through the room stream.
	sessionID := s.runner.Start(context.WithoutCancel(r.Context()), roomID, req.Message, session.Options{
		Profile:     req.Profile,
		Viewport:    req.Viewport,
		Correlation: req.Correlation,
	})
	s.log.Info("Session accepted", "session", sessionID, "room", roomID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(StartSessionResponse{SessionID: sessionID, RoomID: roomID})
}

// handleStream serves the room's frame stream as server-sent events. Each A2A
// streaming event becomes one SSE data line.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	events := s.stream.Open(r.Context(), roomID)
	for event := range events {
		body, err := json.Marshal(event)
		if err != nil {
			s.log.Error(err, "Failed to encode stream event", "room", roomID)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", body)
		flusher.Flush()
	}
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	var ack wire.Ack
	if err := json.NewDecoder(r.Body).Decode(&ack); err != nil {
		http.Error(w, "invalid ack body", http.StatusBadRequest)
		return
	}
	s.hub.DeliverAck(ack)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	var resp wire.ScreenshotResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		http.Error(w, "invalid screenshot body", http.StatusBadRequest)
		return
	}
	s.hub.DeliverScreenshot(&resp)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShapes(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	var sum canvas.ShapeSummary
	if err := json.NewDecoder(r.Body).Decode(&sum); err != nil {
		http.Error(w, "invalid shape summary body", http.StatusBadRequest)
		return
	}
	s.rooms.Update(roomID, &sum)
	w.WriteHeader(http.StatusNoContent)
}
