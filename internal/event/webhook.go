package event

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
	"github.com/vyrodovalexey/avkeyd/internal/retry"
)

// Webhook delivery headers.
const (
	// HeaderEvent carries the event type name.
	HeaderEvent = "X-Avkeyd-Event"

	// HeaderDelivery carries the unique delivery ID.
	HeaderDelivery = "X-Avkeyd-Delivery"

	// HeaderSignature carries the HMAC-SHA256 signature of the body.
	HeaderSignature = "X-Avkeyd-Signature"
)

// Webhook sink defaults.
const (
	defaultWebhookTimeout   = 10 * time.Second
	defaultWebhookRetries   = 3
	defaultWebhookBackoff   = 500 * time.Millisecond
	defaultBreakerThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
)

// WebhookConfig configures a webhook sink.
type WebhookConfig struct {
	// URL is the endpoint events are POSTed to.
	URL string

	// Secret signs the request body. Empty disables signing.
	Secret string

	// Timeout bounds a single delivery attempt.
	Timeout time.Duration

	// Template renders the request body. Empty sends the event JSON.
	Template string

	// Headers are added to every delivery.
	Headers map[string]string

	// MaxRetries bounds retry attempts per delivery.
	MaxRetries int

	// InitialBackoff is the first retry wait.
	InitialBackoff time.Duration

	// BreakerThreshold is the request count the circuit breaker samples
	// before it may trip.
	BreakerThreshold int

	// BreakerTimeout is how long an open circuit stays open.
	BreakerTimeout time.Duration

	// Logger for the sink.
	Logger observability.Logger

	// Metrics instruments deliveries. Nil disables.
	Metrics *Metrics
}

// WebhookSink POSTs events to an HTTP endpoint, signing each body and
// retrying transient failures. A circuit breaker sheds deliveries while
// the endpoint keeps failing.
type WebhookSink struct {
	url     string
	secret  []byte
	headers map[string]string
	timeout time.Duration
	client  *http.Client
	tmpl    *template.Template
	policy  *retry.Policy
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
	metrics *Metrics
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(config *WebhookConfig) (*WebhookSink, error) {
	if config == nil || config.URL == "" {
		return nil, errors.New("webhook url is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultWebhookRetries
	}

	initialBackoff := config.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = defaultWebhookBackoff
	}

	threshold := safeUint32(config.BreakerThreshold)
	if threshold == 0 {
		threshold = defaultBreakerThreshold
	}

	breakerTimeout := config.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = defaultBreakerTimeout
	}

	var tmpl *template.Template
	if config.Template != "" {
		var err error
		tmpl, err = template.New("webhook").Funcs(webhookTemplateFuncs()).Parse(config.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to parse webhook template: %w", err)
		}
	}

	s := &WebhookSink{
		url:     config.URL,
		secret:  []byte(config.Secret),
		headers: config.Headers,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		tmpl:    tmpl,
		logger:  logger,
		metrics: config.Metrics,
	}

	s.policy = retry.DefaultPolicy().
		WithMaxRetries(maxRetries).
		WithInitialBackoff(initialBackoff).
		WithRetryOn(retry.RetryableStatusCodes(), retry.RetryOnNetworkErrors())

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: threshold,
		Interval:    breakerTimeout,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("webhook circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return s, nil
}

// safeUint32 safely converts int to uint32.
func safeUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// Deliver implements Sink. One call covers the full retry budget; the
// breaker counts it as a single request.
func (s *WebhookSink) Deliver(ctx context.Context, event Event) {
	start := time.Now()

	body, err := s.payload(event)
	if err != nil {
		s.metrics.webhookDelivery("failure", start)
		s.logger.Error("failed to render webhook payload",
			observability.Error(err),
			observability.String("event_id", event.ID),
		)
		return
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		_, status, execErr := s.policy.ExecuteWithStatusCode(ctx, func() (interface{}, int, error) {
			code, sendErr := s.send(ctx, event, body)
			return nil, code, sendErr
		})
		if execErr != nil {
			return nil, execErr
		}
		if status >= http.StatusBadRequest {
			return nil, fmt.Errorf("webhook responded %d", status)
		}
		return nil, nil
	})

	switch {
	case err == nil:
		s.metrics.webhookDelivery("success", start)
		s.logger.Debug("webhook delivered",
			observability.String("event_id", event.ID),
			observability.String("type", string(event.Type)),
		)
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		s.metrics.webhookDelivery("rejected", start)
		s.logger.Warn("webhook circuit open, delivery rejected",
			observability.String("event_id", event.ID),
			observability.String("type", string(event.Type)),
		)
	default:
		s.metrics.webhookDelivery("failure", start)
		s.logger.Error("webhook delivery failed",
			observability.Error(err),
			observability.String("event_id", event.ID),
			observability.String("type", string(event.Type)),
		)
	}
}

// send performs one delivery attempt and returns the response status.
func (s *WebhookSink) send(ctx context.Context, event Event, body []byte) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(event.Type))
	req.Header.Set(HeaderDelivery, event.ID)
	if len(s.secret) > 0 {
		req.Header.Set(HeaderSignature, Sign(body, s.secret))
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// payload renders the request body for an event.
func (s *WebhookSink) payload(event Event) ([]byte, error) {
	if s.tmpl == nil {
		return json.Marshal(event)
	}

	data, err := templateData(event)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute webhook template: %w", err)
	}
	return buf.Bytes(), nil
}

// Close implements Sink.
func (s *WebhookSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Sign returns the signature header value for body: "sha256=" followed
// by the hex HMAC-SHA256 under secret. Receivers recompute it to verify
// the delivery.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// templateData exposes the event to templates as plain maps, so field
// access follows the JSON names.
func templateData(event Event) (map[string]interface{}, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// webhookTemplateFuncs returns the functions available to payload
// templates.
func webhookTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": cases.Title(language.English).String,
		"trim":  strings.TrimSpace,
		"join":  strings.Join,
		"json": func(v interface{}) string {
			b, err := json.Marshal(v)
			if err != nil {
				return ""
			}
			return string(b)
		},
	}
}
