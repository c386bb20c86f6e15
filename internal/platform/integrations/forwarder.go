// Package integrations forwards practice events to the external tools a
// clinic already runs: Airtable and Notion mirrors of the day's activity, a
// 3CX phone-system hook when a patient is called, and n8n for free-form
// automation. Payloads are HMAC-SHA256 signed and every attempt is logged.
package integrations

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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/telemetry"
)

// Well-known target names.
const (
	TargetAirtable = "airtable"
	TargetNotion   = "notion"
	Target3CX      = "threecx"
	TargetN8N      = "n8n"
)

// Event is a practice event pushed to external tools.
type Event struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	StructureID string          `json:"structure_id"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Target is one configured external destination.
type Target struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// Result summarises the outcome of forwarding an event to one target.
type Result struct {
	Target     string `json:"target"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
}

// SignPayload computes the hex-encoded HMAC-SHA256 of the payload.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the payload's HMAC under
// the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// eventMatches reports whether an event type matches a subscription pattern.
// Patterns are exact ("queue.called"), prefix wildcards ("queue.*"), or "*".
func eventMatches(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func targetMatchesEvent(t Target, eventType string) bool {
	for _, pat := range t.Events {
		if eventMatches(pat, eventType) {
			return true
		}
	}
	return false
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) ForwarderOption {
	return func(f *Forwarder) { f.httpClient = c }
}

// WithMaxAttempts sets how many times a failed delivery is tried in total.
func WithMaxAttempts(n int) ForwarderOption {
	return func(f *Forwarder) { f.maxAttempts = n }
}

// WithBackoff sets the delays between retry attempts.
func WithBackoff(delays []time.Duration) ForwarderOption {
	return func(f *Forwarder) { f.backoff = delays }
}

// Forwarder delivers events to every subscribed target with bounded retry.
type Forwarder struct {
	targets     []Target
	secret      string
	httpClient  *http.Client
	maxAttempts int
	backoff     []time.Duration
	log         DeliveryLog
	metrics     *telemetry.Metrics
	logger      zerolog.Logger
}

// NewForwarder builds a Forwarder for the configured targets. Targets with an
// empty URL are dropped.
func NewForwarder(targets []Target, secret string, log DeliveryLog, metrics *telemetry.Metrics, logger zerolog.Logger, opts ...ForwarderOption) *Forwarder {
	active := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.URL != "" {
			active = append(active, t)
		}
	}

	f := &Forwarder{
		targets:     active,
		secret:      secret,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		maxAttempts: 3,
		backoff:     []time.Duration{time.Second, 5 * time.Second},
		log:         log,
		metrics:     metrics,
		logger:      logger,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Targets returns the active targets.
func (f *Forwarder) Targets() []Target {
	out := make([]Target, len(f.targets))
	copy(out, f.targets)
	return out
}

// Forward delivers the event to every target subscribed to its type.
func (f *Forwarder) Forward(ctx context.Context, event Event) []Result {
	var results []Result
	for _, t := range f.targets {
		if !targetMatchesEvent(t, event.Type) {
			continue
		}
		delivery := f.deliverWithRetry(ctx, t, event)
		results = append(results, Result{
			Target:     t.Name,
			Success:    delivery.Status == DeliverySucceeded,
			StatusCode: delivery.StatusCode,
			Error:      delivery.Error,
		})
	}
	return results
}

// deliverWithRetry tries a delivery up to maxAttempts times, sleeping the
// configured backoff between attempts. Only the final attempt is returned;
// every attempt is logged.
func (f *Forwarder) deliverWithRetry(ctx context.Context, t Target, event Event) *Delivery {
	var delivery *Delivery
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		delivery = f.deliver(ctx, t, event, attempt)
		if delivery.Status == DeliverySucceeded {
			break
		}
		if attempt < f.maxAttempts {
			idx := attempt - 1
			if idx >= len(f.backoff) {
				idx = len(f.backoff) - 1
			}
			select {
			case <-ctx.Done():
				return delivery
			case <-time.After(f.backoff[idx]):
			}
		}
	}
	return delivery
}

// deliver signs the payload and POSTs it to the target, recording the result.
func (f *Forwarder) deliver(ctx context.Context, t Target, event Event, attempt int) *Delivery {
	payload, _ := json.Marshal(event)
	sig := SignPayload(payload, f.secret)
	now := time.Now()

	delivery := &Delivery{
		ID:        uuid.New().String(),
		Target:    t.Name,
		EventType: event.Type,
		EventID:   event.ID,
		Payload:   payload,
		Signature: sig,
		Attempt:   attempt,
		Status:    DeliveryFailed,
		CreatedAt: now,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		delivery.Error = err.Error()
		f.record(ctx, delivery)
		return delivery
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Clinicdesk-Signature", "sha256="+sig)
	req.Header.Set("X-Clinicdesk-Event", event.Type)
	req.Header.Set("X-Clinicdesk-Timestamp", now.UTC().Format(time.RFC3339))

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	delivery.Duration = time.Since(start)

	if err != nil {
		delivery.Error = err.Error()
		f.record(ctx, delivery)
		return delivery
	}
	defer resp.Body.Close()

	delivery.StatusCode = resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	delivery.ResponseBody = string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		delivery.Status = DeliverySucceeded
	} else {
		delivery.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}

	f.record(ctx, delivery)
	return delivery
}

func (f *Forwarder) record(ctx context.Context, d *Delivery) {
	if f.metrics != nil {
		outcome := "failed"
		if d.Status == DeliverySucceeded {
			outcome = "ok"
		}
		f.metrics.WebhookDeliveries.WithLabelValues(d.Target, outcome).Inc()
	}
	if f.log == nil {
		return
	}
	if err := f.log.Record(ctx, d); err != nil {
		f.logger.Warn().Err(err).Str("target", d.Target).Msg("integrations: recording delivery")
	}
}

// TestTarget sends a synthetic event to verify a target's connectivity.
func (f *Forwarder) TestTarget(ctx context.Context, name string) (*Delivery, error) {
	for _, t := range f.targets {
		if t.Name != name {
			continue
		}
		event := Event{
			ID:        uuid.New().String(),
			Type:      "integration.test",
			Payload:   json.RawMessage(`{"test":true}`),
			Timestamp: time.Now(),
		}
		return f.deliver(ctx, t, event, 1), nil
	}
	return nil, fmt.Errorf("target %s not configured", name)
}
