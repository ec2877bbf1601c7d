package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhook(url, header string) *auditWebhook {
	w := newAuditWebhook(url, header, slog.New(slog.DiscardHandler))
	w.retryDelay = time.Millisecond
	return w
}

func TestWebhook_SuccessfulDelivery(t *testing.T) {
	var received webhookEvent
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.enqueue(webhookEvent{
		Event:     "login_success",
		UserID:    "0d6f0a52-7a0e-4c1b-9d1e-6f9f8f3b2a10",
		Username:  "alice",
		ClientIP:  "127.0.0.1",
		Timestamp: "2026-01-01T00:00:00Z",
		Attrs:     map[string]string{"auth_kind": "credential"},
	})
	wh.close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "login_success", received.Event)
	assert.Equal(t, "alice", received.Username)
	assert.Equal(t, "127.0.0.1", received.ClientIP)
	assert.Equal(t, "credential", received.Attrs["auth_kind"])
}

func TestWebhook_RetryOn500(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.enqueue(webhookEvent{Event: "logout", Timestamp: "2026-01-01T00:00:00Z"})
	wh.close()

	assert.Equal(t, int32(2), attempts.Load())
}

func TestWebhook_NoRetryOn400(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.enqueue(webhookEvent{Event: "logout", Timestamp: "2026-01-01T00:00:00Z"})
	wh.close()

	assert.Equal(t, int32(1), attempts.Load())
}

func TestWebhook_HeaderAndUserAgent(t *testing.T) {
	var gotAuth, gotAgent, gotType string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		gotType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "Authorization: Bearer collector-token")
	wh.enqueue(webhookEvent{Event: "user_created", Timestamp: "2026-01-01T00:00:00Z"})
	wh.close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer collector-token", gotAuth)
	assert.Equal(t, "Gatekeeper-Audit-Webhook/1.0", gotAgent)
	assert.Equal(t, "application/json", gotType)
}

func TestWebhook_QueueFullNonBlocking(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	wh := &auditWebhook{
		url:    srv.URL,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: slog.New(slog.DiscardHandler),
		events: make(chan webhookEvent, 2),
	}
	wh.wg.Add(1)
	go wh.loop()

	done := make(chan struct{})
	go func() {
		for range 10 {
			wh.enqueue(webhookEvent{Event: "flood", Timestamp: "2026-01-01T00:00:00Z"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	close(release)
	wh.close()
}

func TestWebhook_CloseDrainsQueue(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	for range 5 {
		wh.enqueue(webhookEvent{Event: "session_revoked", Timestamp: "2026-01-01T00:00:00Z"})
	}
	wh.close()
	wh.close()

	assert.Equal(t, int32(5), count.Load())
}

func TestWebhook_PayloadOmitsEmptyIdentity(t *testing.T) {
	var body []byte
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		body, _ = io.ReadAll(r.Body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.enqueue(webhookEvent{Event: "login_failure", ClientIP: "10.0.0.1", Timestamp: "2026-06-15T12:00:00Z"})
	wh.close()

	mu.Lock()
	defer mu.Unlock()
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "login_failure", parsed["event"])
	assert.Equal(t, "10.0.0.1", parsed["client_ip"])
	assert.NotContains(t, parsed, "user_id")
	assert.NotContains(t, parsed, "username")
	assert.NotContains(t, parsed, "attrs")
}
