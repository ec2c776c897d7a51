// Package webhook delivers signed event notifications, such as severe case
// alerts, to the HTTP endpoints configured for a deployment. Payloads are
// signed with HMAC-SHA256 and failed deliveries are retried with backoff.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	// EventSevereCase is published when a consultation is classified severe.
	EventSevereCase = "consultation.severe"
	// EventTest is sent by the test endpoint.
	EventTest = "webhook.test"
)

// Endpoint is a delivery destination.
type Endpoint struct {
	URL    string
	Secret string
}

// Event is the envelope POSTed to every endpoint.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ResourceID string          `json:"resource_id"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewEvent fills in the id and timestamp.
func NewEvent(eventType, resourceID string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ResourceID: resourceID,
		Payload:    raw,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// DeliveryAttempt records one POST to one endpoint.
type DeliveryAttempt struct {
	ID           string        `json:"id"`
	EventID      string        `json:"event_id"`
	EventType    string        `json:"event_type"`
	URL          string        `json:"url"`
	StatusCode   int           `json:"status_code"`
	ResponseBody string        `json:"response_body,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	Attempt      int           `json:"attempt"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// SignPayload computes an HMAC-SHA256 signature of the payload using the given secret,
// returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the HMAC-SHA256
// of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithRetryDelays sets the wait before each retry. len(delays) is the retry count.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(d *Dispatcher) { d.retryDelays = delays }
}

// WithQueueSize bounds the number of events waiting for Run.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan Event, n) }
}

// WithMaxInFlight bounds the number of events Run delivers concurrently.
func WithMaxInFlight(n int) Option {
	return func(d *Dispatcher) { d.inflight = make(chan struct{}, n) }
}

// WithLogSize bounds the in-memory delivery log.
func WithLogSize(n int) Option {
	return func(d *Dispatcher) { d.logSize = n }
}

// Dispatcher queues events and delivers them to every endpoint.
type Dispatcher struct {
	endpoints   []Endpoint
	httpClient  *http.Client
	retryDelays []time.Duration
	queue       chan Event
	inflight    chan struct{}
	logger      zerolog.Logger

	mu      sync.Mutex
	log     []*DeliveryAttempt
	logSize int
}

func NewDispatcher(endpoints []Endpoint, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelays: []time.Duration{1 * time.Second, 30 * time.Second, 5 * time.Minute},
		queue:       make(chan Event, 256),
		inflight:    make(chan struct{}, 512),
		logger:      logger.With().Str("component", "webhook").Logger(),
		logSize:     200,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Endpoints returns the number of configured destinations.
func (d *Dispatcher) Endpoints() int { return len(d.endpoints) }

// Publish queues ev without blocking. It reports false when the queue is
// full and the event was dropped.
func (d *Dispatcher) Publish(ev Event) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		d.logger.Warn().Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("webhook queue full, event dropped")
		return false
	}
}

// Run delivers queued events until ctx is cancelled. Each event is delivered
// on its own goroutine so an endpoint waiting out its retries does not hold
// back later events. Run returns once in-flight deliveries have stopped.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.queue:
			select {
			case <-ctx.Done():
				return nil
			case d.inflight <- struct{}{}:
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-d.inflight }()
				d.Deliver(ctx, ev)
			}()
		}
	}
}

// Deliver sends ev to every endpoint concurrently, retrying failures, and
// returns the last attempt per endpoint in endpoint order.
func (d *Dispatcher) Deliver(ctx context.Context, ev Event) []*DeliveryAttempt {
	return d.deliver(ctx, ev, d.retryDelays)
}

// Probe is Deliver without retries.
func (d *Dispatcher) Probe(ctx context.Context, ev Event) []*DeliveryAttempt {
	return d.deliver(ctx, ev, nil)
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event, retries []time.Duration) []*DeliveryAttempt {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", ev.ID).Msg("marshal webhook event")
		return nil
	}

	// Endpoints are independent: a failing one retries without delaying the rest.
	results := make([]*DeliveryAttempt, len(d.endpoints))
	var wg sync.WaitGroup
	for i, ep := range d.endpoints {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.deliverWithRetry(ctx, ep, ev, payload, retries)
		}()
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, ep Endpoint, ev Event, payload []byte, retries []time.Duration) *DeliveryAttempt {
	attempt := d.deliverOnce(ctx, ep, ev, payload, 1)
	for i, delay := range retries {
		if attempt.Status == StatusSuccess {
			break
		}
		select {
		case <-ctx.Done():
			return attempt
		case <-time.After(delay):
		}
		attempt = d.deliverOnce(ctx, ep, ev, payload, i+2)
	}
	if attempt.Status != StatusSuccess {
		d.logger.Error().
			Str("event_id", ev.ID).
			Str("url", ep.URL).
			Int("attempts", attempt.Attempt).
			Str("error", attempt.Error).
			Msg("webhook delivery failed")
	}
	return attempt
}

func (d *Dispatcher) deliverOnce(ctx context.Context, ep Endpoint, ev Event, payload []byte, n int) *DeliveryAttempt {
	now := time.Now()
	attempt := &DeliveryAttempt{
		ID:        uuid.NewString(),
		EventID:   ev.ID,
		EventType: ev.Type,
		URL:       ep.URL,
		Attempt:   n,
		CreatedAt: now,
	}
	defer d.record(attempt)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		attempt.Status = StatusFailed
		attempt.Error = err.Error()
		return attempt
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(payload, ep.Secret))
	req.Header.Set("X-Webhook-Event", ev.Type)
	req.Header.Set("X-Webhook-Timestamp", now.UTC().Format(time.RFC3339))

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	attempt.Duration = time.Since(start)
	if err != nil {
		attempt.Status = StatusFailed
		attempt.Error = err.Error()
		return attempt
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode
	// Read at most 1KB of response body.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	attempt.ResponseBody = string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		attempt.Status = StatusSuccess
	} else {
		attempt.Status = StatusFailed
		attempt.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}
	return attempt
}

func (d *Dispatcher) record(a *DeliveryAttempt) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, a)
	if over := len(d.log) - d.logSize; over > 0 {
		d.log = append([]*DeliveryAttempt(nil), d.log[over:]...)
	}
}

// Deliveries returns up to limit attempts, newest first.
func (d *Dispatcher) Deliveries(limit int) []*DeliveryAttempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	if limit <= 0 || limit > len(d.log) {
		limit = len(d.log)
	}
	out := make([]*DeliveryAttempt, 0, limit)
	for i := len(d.log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, d.log[i])
	}
	return out
}
