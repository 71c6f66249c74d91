// Package webui serves the chat HTTP API in front of the agent service.
package webui

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"agentrunner/pkg/agent"
	"agentrunner/pkg/logx"
	"agentrunner/pkg/version"
)

//nolint:gochecknoglobals // drop-in encoding/json replacement
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxRequestBytes = 64 * 1024
	shutdownTimeout = 5 * time.Second
)

// Chatter answers chat messages. *agent.Service implements it.
type Chatter interface {
	ProcessMessage(ctx context.Context, sessionID, text string) agent.Reply
}

// ChatRequest is the POST /api/chat body.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// ChatResponse is the POST /api/chat reply. SessionID echoes the id the client
// should send next time, assigned here when the request carried none.
type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
}

// Server is the HTTP front end.
type Server struct {
	chat        Chatter
	metrics     http.Handler
	metricsPath string
	logger      *logx.Logger
}

// NewServer creates a server. metrics may be nil to disable the metrics route.
func NewServer(chat Chatter, metrics http.Handler, metricsPath string) *Server {
	return &Server{
		chat:        chat,
		metrics:     metrics,
		metricsPath: metricsPath,
		logger:      logx.NewLogger("webui"),
	}
}

// RegisterRoutes sets up HTTP routes.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil && s.metricsPath != "" {
		mux.Handle(s.metricsPath, s.metrics)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// StartServer listens on addr until ctx is done, then shuts down gracefully.
// It returns once the listener has stopped.
func (s *Server) StartServer(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting chat API on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err //nolint:wrapcheck // listener error as-is
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down chat API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	//nolint:contextcheck // parent context is cancelled; shutdown needs a fresh one
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown failed: %v", err)
		return err //nolint:wrapcheck // shutdown error as-is
	}
	return nil
}

// handleChat implements POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	reply := s.chat.ProcessMessage(r.Context(), req.SessionID, req.Message)

	s.writeJSON(w, ChatResponse{Reply: reply.Reply, SessionID: req.SessionID})
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
