package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestDispatcher(urls []string, opts ...Option) *Dispatcher {
	var eps []Endpoint
	for _, u := range urls {
		eps = append(eps, Endpoint{URL: u, Secret: "s3cret"})
	}
	opts = append([]Option{WithRetryDelays()}, opts...)
	return NewDispatcher(eps, zerolog.Nop(), opts...)
}

func mustEvent(t *testing.T) Event {
	t.Helper()
	ev, err := NewEvent(EventSevereCase, "CONS_1", map[string]string{"severity_level": "severe"})
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestSignPayload(t *testing.T) {
	sig := SignPayload([]byte(`{"a":1}`), "key")
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
	if !VerifySignature([]byte(`{"a":1}`), "key", sig) {
		t.Error("expected signature to verify")
	}
	if VerifySignature([]byte(`{"a":2}`), "key", sig) {
		t.Error("expected tampered payload to fail")
	}
	if VerifySignature([]byte(`{"a":1}`), "other", sig) {
		t.Error("expected wrong secret to fail")
	}
}

func TestNewEvent(t *testing.T) {
	ev := mustEvent(t)
	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Errorf("expected id and timestamp, got %+v", ev)
	}
	if ev.Type != EventSevereCase || ev.ResourceID != "CONS_1" {
		t.Errorf("unexpected event %+v", ev)
	}
	if !strings.Contains(string(ev.Payload), "severe") {
		t.Errorf("unexpected payload %s", ev.Payload)
	}
}

func TestDispatcher_Deliver_SignsPayload(t *testing.T) {
	var gotSig, gotEvent string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotEvent = r.Header.Get("X-Webhook-Event")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := newTestDispatcher([]string{srv.URL})
	results := d.Deliver(context.Background(), mustEvent(t))
	if len(results) != 1 || results[0].Status != StatusSuccess {
		t.Fatalf("unexpected results %+v", results)
	}
	if gotEvent != EventSevereCase {
		t.Errorf("unexpected event header %q", gotEvent)
	}
	if !VerifySignature(body, "s3cret", strings.TrimPrefix(gotSig, "sha256=")) {
		t.Errorf("signature %q does not match body", gotSig)
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil || ev.ResourceID != "CONS_1" {
		t.Errorf("unexpected body %s (%v)", body, err)
	}
}

func TestDispatcher_Deliver_RetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher([]string{srv.URL}, WithRetryDelays(0, 0, 0))
	results := d.Deliver(context.Background(), mustEvent(t))
	if results[0].Status != StatusSuccess || results[0].Attempt != 3 {
		t.Fatalf("expected success on attempt 3, got %+v", results[0])
	}
	if got := len(d.Deliveries(0)); got != 3 {
		t.Errorf("expected 3 logged attempts, got %d", got)
	}
}

func TestDispatcher_Deliver_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDispatcher([]string{srv.URL}, WithRetryDelays(0))
	results := d.Deliver(context.Background(), mustEvent(t))
	if results[0].Status != StatusFailed || results[0].Attempt != 2 {
		t.Fatalf("expected failure after 2 attempts, got %+v", results[0])
	}
	if results[0].StatusCode != http.StatusInternalServerError {
		t.Errorf("unexpected status code %d", results[0].StatusCode)
	}
}

func TestDispatcher_Probe_NoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := newTestDispatcher([]string{srv.URL}, WithRetryDelays(0, 0))
	d.Probe(context.Background(), mustEvent(t))
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestDispatcher_Deliver_Unreachable(t *testing.T) {
	d := newTestDispatcher([]string{"http://127.0.0.1:1/hook"})
	results := d.Deliver(context.Background(), mustEvent(t))
	if results[0].Status != StatusFailed || results[0].Error == "" {
		t.Fatalf("expected transport failure, got %+v", results[0])
	}
}

func TestDispatcher_Publish_DropsWhenFull(t *testing.T) {
	d := newTestDispatcher(nil, WithQueueSize(1))
	if !d.Publish(mustEvent(t)) {
		t.Fatal("expected first publish to be queued")
	}
	if d.Publish(mustEvent(t)) {
		t.Error("expected second publish to be dropped")
	}
}

func TestDispatcher_Run(t *testing.T) {
	delivered := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		delivered <- struct{}{}
	}))
	defer srv.Close()

	d := newTestDispatcher([]string{srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Publish(mustEvent(t))
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDispatcher_Run_FailingEndpointDoesNotDelayOthers(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	var received int32
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	delay := 300 * time.Millisecond
	d := newTestDispatcher([]string{failing.URL, healthy.URL}, WithRetryDelays(delay, delay, delay))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := 0; i < 3; i++ {
		if !d.Publish(mustEvent(t)) {
			t.Fatal("expected event to be queued")
		}
	}

	// One retry delay is shorter than the failing endpoint's first wait, so
	// all three events must reach the healthy endpoint before any retry.
	deadline := time.Now().Add(delay)
	for atomic.LoadInt32(&received) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&received); got != 3 {
		t.Fatalf("healthy endpoint received %d/3 events within %s", got, delay)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop while retries were pending")
	}
}

func TestDispatcher_Deliver_ResultsInEndpointOrder(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	d := newTestDispatcher([]string{failing.URL, healthy.URL})
	results := d.Deliver(context.Background(), mustEvent(t))
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].URL != failing.URL || results[0].Status != StatusFailed {
		t.Errorf("unexpected first result %+v", results[0])
	}
	if results[1].URL != healthy.URL || results[1].Status != StatusSuccess {
		t.Errorf("unexpected second result %+v", results[1])
	}
}

func TestDispatcher_Deliveries_NewestFirstAndBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher([]string{srv.URL}, WithLogSize(2))
	var last Event
	for i := 0; i < 3; i++ {
		last = mustEvent(t)
		d.Deliver(context.Background(), last)
	}

	got := d.Deliveries(10)
	if len(got) != 2 {
		t.Fatalf("expected log bounded to 2, got %d", len(got))
	}
	if got[0].EventID != last.ID {
		t.Errorf("expected newest first")
	}
	if len(d.Deliveries(1)) != 1 {
		t.Error("expected limit to apply")
	}
}

func TestHandler_Test(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/test", nil), rec)
	if err := NewHandler(newTestDispatcher([]string{srv.URL})).Test(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var attempts []DeliveryAttempt
	if err := json.Unmarshal(rec.Body.Bytes(), &attempts); err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 1 || attempts[0].EventType != EventTest || attempts[0].Status != StatusSuccess {
		t.Errorf("unexpected attempts %+v", attempts)
	}
}

func TestHandler_Test_NoEndpoints(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/test", nil), httptest.NewRecorder())
	err := NewHandler(newTestDispatcher(nil)).Test(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
}

func TestHandler_ListDeliveries(t *testing.T) {
	e := echo.New()
	h := NewHandler(newTestDispatcher(nil))

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/deliveries", nil), rec)
	if err := h.ListDeliveries(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/deliveries?limit=x", nil), httptest.NewRecorder())
	if err := h.ListDeliveries(c); err == nil {
		t.Error("expected error for bad limit")
	}
}
