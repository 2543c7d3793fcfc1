// Package server exposes the webhook endpoint, health checks and metrics.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/olemp/code-agent/internal/config"
	"github.com/olemp/code-agent/internal/controller/webhook"
	"github.com/olemp/code-agent/internal/metrics"
	"github.com/olemp/code-agent/internal/service/queue"
	"github.com/olemp/code-agent/pkg/allowlist"
	"github.com/olemp/code-agent/pkg/logging"
)

// Enqueuer accepts jobs for asynchronous processing.
type Enqueuer interface {
	Enqueue(job queue.Job) error
}

// Server handles webhook requests.
type Server struct {
	cfg       config.Config
	allowlist allowlist.Allowlist
	queue     Enqueuer
	logger    *logging.Logger
}

// New creates a server instance.
func New(cfg config.Config, allowlist allowlist.Allowlist, queue Enqueuer, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{cfg: cfg, allowlist: allowlist, queue: queue, logger: logger}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WebhookPath, s.handleWebhook)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With("path", r.URL.Path, "remote_addr", r.RemoteAddr)
	event := r.Header.Get(webhook.HeaderEvent)
	respond := func(status int, body string) {
		metrics.WebhookDelivery(event, status)
		w.WriteHeader(status)
		if body != "" {
			_, _ = w.Write([]byte(body))
		}
	}

	if r.Method != http.MethodPost {
		log.Warn("webhook rejected: invalid method", "method", r.Method)
		respond(http.StatusMethodNotAllowed, "")
		return
	}
	if !s.allowlist.AllowsRequest(r) {
		log.Warn("webhook rejected: address not in allowlist")
		respond(http.StatusForbidden, "")
		return
	}
	raw, err := webhook.ParseRequest(r, []byte(s.cfg.WebhookSecret))
	if errors.Is(err, webhook.ErrInvalidSignature) {
		log.Warn("webhook rejected: bad signature", "error", err)
		respond(http.StatusUnauthorized, "invalid signature")
		return
	}
	if err != nil {
		log.Error("webhook parse error", "error", err)
		respond(http.StatusBadRequest, "invalid webhook payload")
		return
	}

	log = log.With(
		"delivery_id", raw.DeliveryID,
		"event", raw.Name,
		"action", raw.Action,
		"repo", raw.Repository.FullName,
	)
	if raw.Name == "ping" {
		log.Info("webhook ping")
		respond(http.StatusOK, "pong")
		return
	}
	if err := s.queue.Enqueue(queue.Job{Event: raw}); err != nil {
		log.Error("webhook enqueue failed", "error", err)
		respond(http.StatusServiceUnavailable, "")
		return
	}
	log.Info("webhook accepted")
	respond(http.StatusAccepted, "")
}
