package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v68/github"

	"github.com/0xsirsaif/polar/internal/worker"
)

// ServerConfig carries the webhook endpoint's dependencies.
type ServerConfig struct {
	Addr string
	// Secret is the shared webhook secret deliveries are signed with.
	Secret   string
	Enqueuer worker.Enqueuer
	Logger   *slog.Logger
}

// Server is the inbound HTTP surface: the webhook endpoint plus a health
// probe. It does no domain work itself; verified deliveries are enqueued and
// the response only reports whether the job was accepted.
type Server struct {
	cfg  ServerConfig
	http *http.Server
}

// deliveryResponse is the JSON body returned for every accepted request.
type deliveryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	JobID   string `json:"job_id,omitempty"`
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /integrations/github/webhook", s.handleDelivery)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops. Shutdown cancels in-flight
// requests gracefully when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.http.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleDelivery verifies and enqueues one webhook delivery. A bad or missing
// signature gets an empty 404, indistinguishable from the route not existing,
// so probes learn nothing about the endpoint.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, []byte(s.cfg.Secret))
	if err != nil {
		s.cfg.Logger.Warn("webhook.invalid_signature", "remote", r.RemoteAddr)
		http.NotFound(w, r)
		return
	}

	scope := r.Header.Get("X-GitHub-Event")
	if scope == "" {
		s.respond(w, deliveryResponse{Success: false, Message: "Missing event type"})
		return
	}
	action := peekAction(payload)

	if !implemented(scope, action) {
		s.respond(w, deliveryResponse{Success: false, Message: "Unsupported event"})
		return
	}

	task := taskPrefix + eventKey(scope, action)
	jobID, err := s.cfg.Enqueuer.Enqueue(r.Context(), task, scope, action, json.RawMessage(payload))
	if err != nil {
		s.cfg.Logger.Error("webhook.enqueue_failed", "task", task, "err", err)
		s.respond(w, deliveryResponse{Success: false, Message: "Failed to queue task"})
		return
	}

	s.cfg.Logger.Info("webhook.enqueued",
		"task", task,
		"job_id", jobID,
		"delivery", r.Header.Get("X-GitHub-Delivery"))
	s.respond(w, deliveryResponse{Success: true, JobID: jobID})
}

func (s *Server) respond(w http.ResponseWriter, resp deliveryResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.cfg.Logger.Error("webhook.write_response_failed", "err", err)
	}
}
