package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/olemp/code-agent/internal/config"
	"github.com/olemp/code-agent/internal/controller/webhook"
	"github.com/olemp/code-agent/internal/service/queue"
	"github.com/olemp/code-agent/pkg/allowlist"
	"github.com/olemp/code-agent/pkg/logging"
)

type fakeQueue struct {
	jobs []queue.Job
	err  error
}

func (f *fakeQueue) Enqueue(job queue.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

const payload = `{"action":"opened","issue":{"number":3,"title":"t","body":"/claude hi"},"repository":{"full_name":"org/repo"}}`

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newRequest(method, event, body string) *http.Request {
	r := httptest.NewRequest(method, "/webhook", strings.NewReader(body))
	r.RemoteAddr = "10.0.0.5:1234"
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(webhook.HeaderEvent, event)
	r.Header.Set(webhook.HeaderDelivery, "delivery-1")
	return r
}

func newServer(t *testing.T, secret, allow string, q Enqueuer) http.Handler {
	t.Helper()
	al, err := allowlist.Parse(allow)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Config{WebhookPath: "/webhook", WebhookSecret: secret}
	return New(cfg, al, q, logging.NewWithWriter(io.Discard, false, slog.LevelDebug)).Handler()
}

func TestWebhookAccepted(t *testing.T) {
	q := &fakeQueue{}
	h := newServer(t, "s3cret", "10.0.0.0/8", q)

	r := newRequest(http.MethodPost, "issues", payload)
	r.Header.Set("X-Hub-Signature-256", sign("s3cret", payload))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(q.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(q.jobs))
	}
	ev := q.jobs[0].Event
	if ev.Name != "issues" || ev.DeliveryID != "delivery-1" || ev.Issue == nil || ev.Issue.Number != 3 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestWebhookRejections(t *testing.T) {
	tests := []struct {
		name   string
		method string
		sig    string
		allow  string
		qErr   error
		want   int
	}{
		{name: "method", method: http.MethodGet, want: http.StatusMethodNotAllowed},
		{name: "allowlist", method: http.MethodPost, sig: sign("s3cret", payload), allow: "192.168.0.0/16", want: http.StatusForbidden},
		{name: "signature", method: http.MethodPost, sig: sign("wrong", payload), want: http.StatusUnauthorized},
		{name: "queue full", method: http.MethodPost, sig: sign("s3cret", payload), qErr: queue.ErrFull, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{err: tt.qErr}
			h := newServer(t, "s3cret", tt.allow, q)
			r := newRequest(tt.method, "issues", payload)
			if tt.sig != "" {
				r.Header.Set("X-Hub-Signature-256", tt.sig)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			if len(q.jobs) != 0 {
				t.Fatalf("expected no jobs, got %d", len(q.jobs))
			}
		})
	}
}

func TestWebhookBadPayload(t *testing.T) {
	h := newServer(t, "", "", &fakeQueue{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest(http.MethodPost, "issues", "{not json"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestWebhookPing(t *testing.T) {
	q := &fakeQueue{}
	h := newServer(t, "", "", q)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest(http.MethodPost, "ping", `{"zen":"hi"}`))
	if w.Code != http.StatusOK || w.Body.String() != "pong" {
		t.Fatalf("unexpected ping response: %d %q", w.Code, w.Body.String())
	}
	if len(q.jobs) != 0 {
		t.Fatal("ping must not be queued")
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	h := newServer(t, "", "", &fakeQueue{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("unexpected healthz: %d %s", w.Code, w.Body.String())
	}

	// Trigger a delivery so the counter has a sample.
	h.ServeHTTP(httptest.NewRecorder(), newRequest(http.MethodGet, "issues", ""))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "code_agent_webhook_deliveries_total") {
		t.Fatalf("metrics missing delivery counter: %d", w.Code)
	}
}
