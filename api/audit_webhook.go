package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// webhookQueueSize is the bounded channel capacity for outbound events.
	webhookQueueSize = 1024
	webhookTimeout   = 10 * time.Second
)

// webhookEvent is the JSON payload POSTed to the collector.
type webhookEvent struct {
	Event     string            `json:"event"`
	UserID    string            `json:"user_id,omitempty"`
	Username  string            `json:"username,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Timestamp string            `json:"timestamp"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// auditWebhook forwards audit events to an external HTTP collector from a
// single background goroutine. enqueue never blocks; a full queue drops
// the event.
type auditWebhook struct {
	url         string
	headerName  string
	headerValue string
	client      *http.Client
	retryDelay  time.Duration
	logger      *slog.Logger

	events    chan webhookEvent
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// newAuditWebhook starts a dispatcher. header is "Name: value" or empty.
func newAuditWebhook(url, header string, logger *slog.Logger) *auditWebhook {
	w := &auditWebhook{
		url:        url,
		client:     &http.Client{Timeout: webhookTimeout},
		retryDelay: time.Second,
		logger:     logger.With("component", "audit_webhook"),
		events:     make(chan webhookEvent, webhookQueueSize),
	}
	if name, value, ok := strings.Cut(header, ":"); ok {
		w.headerName = strings.TrimSpace(name)
		w.headerValue = strings.TrimSpace(value)
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *auditWebhook) enqueue(evt webhookEvent) {
	select {
	case w.events <- evt:
	default:
		w.logger.Warn("queue full, dropping event", "event", evt.Event)
	}
}

// close drains queued events and stops the dispatcher. It must not race
// with enqueue.
func (w *auditWebhook) close() {
	w.closeOnce.Do(func() {
		close(w.events)
		w.wg.Wait()
	})
}

func (w *auditWebhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		w.send(context.Background(), evt)
	}
}

// send POSTs evt, retrying once on a transport error or 5xx.
func (w *auditWebhook) send(ctx context.Context, evt webhookEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		w.logger.Warn("marshal failed", "error", err)
		return
	}

	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			time.Sleep(w.retryDelay)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.logger.Warn("request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Gatekeeper-Audit-Webhook/1.0")
		if w.headerName != "" {
			req.Header.Set(w.headerName, w.headerValue)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			w.logger.Warn("request failed", "error", err, "attempt", attempt)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return
		case resp.StatusCode >= 500:
			w.logger.Warn("collector error", "status", resp.StatusCode, "attempt", attempt)
		default:
			w.logger.Warn("collector rejected event", "status", resp.StatusCode)
			return
		}
	}
}
