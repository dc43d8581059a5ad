package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hooksmith/hooksmith/internal/auth"
	"github.com/hooksmith/hooksmith/internal/logging"
	"github.com/hooksmith/hooksmith/internal/tracing"
)

// Store is the persistence surface the dispatcher needs. Both operations
// must be transactional: RecordAttempt appends the attempt row and mirrors
// its status onto the parent delivery as one unit.
type Store interface {
	DeliveryForDispatch(ctx context.Context, id uuid.UUID) (EventDelivery, Webhook, error)
	RecordAttempt(ctx context.Context, deliveryID uuid.UUID, resp WebhookResponse) (Attempt, error)
}

// AttemptMetrics receives the per-attempt observation triple.
type AttemptMetrics interface {
	RecordAttempt(ctx context.Context, attrs []attribute.KeyValue, seconds float64, bodySize int)
}

// Config holds the outbound header names for request signing.
type Config struct {
	SignatureHeader string // sha256=<hex>
	TimestampHeader string // unix seconds
}

func (c Config) withDefaults() Config {
	if c.SignatureHeader == "" {
		c.SignatureHeader = "X-Hooksmith-Signature"
	}
	if c.TimestampHeader == "" {
		c.TimestampHeader = "X-Hooksmith-Timestamp"
	}
	return c
}

// Result is what one dispatch produced. The consumer interprets Outcome:
// Retry re-enters the queue with backoff, everything else finishes the
// message.
type Result struct {
	Outcome  Outcome
	Response WebhookResponse
	Attempt  Attempt
}

// Dispatcher drives one delivery attempt end to end: load state, open a
// span, send, record the metric triple and the attempt row, decide retry.
type Dispatcher struct {
	store   Store
	senders *Registry
	metrics AttemptMetrics
	logger  *logging.Logger
	cfg     Config
}

func NewDispatcher(store Store, senders *Registry, metrics AttemptMetrics, logger *logging.Logger, cfg Config) *Dispatcher {
	return &Dispatcher{
		store:   store,
		senders: senders,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg.withDefaults(),
	}
}

// Dispatch performs one attempt for the delivery. A non-nil error means the
// attempt could not be recorded (load or persistence failure) and the job
// must fail hard; every other failure mode is normalized into the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, deliveryID uuid.UUID, tel Telemetry) (Result, error) {
	del, hook, err := d.store.DeliveryForDispatch(ctx, deliveryID)
	if err != nil {
		return Result{}, fmt.Errorf("load delivery %s: %w", deliveryID, err)
	}

	spanAttrs := []attribute.KeyValue{
		attribute.String("delivery_id", del.ID.String()),
		attribute.String("webhook_id", hook.ID.String()),
		attribute.String("target_url", hook.TargetURL),
		attribute.Int("attempt", del.Attempt+1),
	}
	for _, kv := range sortedAttributes(tel.GlobalAttributes) {
		spanAttrs = append(spanAttrs, kv)
	}
	ctx, span := tracing.StartSpan(ctx, "webhook.send", spanAttrs...)
	defer span.End()

	payload := []byte(del.Payload)
	resp, permanent := d.send(ctx, hook, payload)

	d.metrics.RecordAttempt(ctx, d.attemptAttributes(hook.TargetURL, tel, resp.Status == StatusFailed), resp.Duration.Seconds(), len(payload))

	attempt, err := d.store.RecordAttempt(ctx, del.ID, resp)
	if err != nil {
		// The one failure class that must not be swallowed: losing the
		// attempt row would corrupt delivery history.
		tracing.SetSpanError(ctx, err)
		return Result{}, fmt.Errorf("record attempt for delivery %s: %w", del.ID, err)
	}

	if resp.Status == StatusFailed {
		span.SetStatus(codes.Error, "")
		outcome := OutcomeRetry
		if permanent {
			outcome = OutcomePermanentFailure
		}
		d.logger.WithContext(ctx).WithDelivery(del.ID.String()).WithWebhook(hook.ID.String()).WithFields(map[string]any{
			"attempt": attempt.Seq,
			"outcome": outcome.String(),
			"reason":  FailureReason(resp),
		}).Warn("webhook delivery attempt failed")
		return Result{Outcome: outcome, Response: resp, Attempt: attempt}, nil
	}

	span.SetStatus(codes.Ok, "")
	d.logger.WithContext(ctx).WithDelivery(del.ID.String()).WithWebhook(hook.ID.String()).WithField("attempt", attempt.Seq).Info("webhook delivered")
	return Result{Outcome: OutcomeDelivered, Response: resp, Attempt: attempt}, nil
}

// send invokes the scheme sender and normalizes failures that never reached
// the network (unknown scheme, malformed target, signing errors) into a
// FAILED response with no status code, empty content and zero duration.
// The second return reports whether the failure is permanent.
func (d *Dispatcher) send(ctx context.Context, hook Webhook, payload []byte) (WebhookResponse, bool) {
	headers, err := d.buildHeaders(ctx, hook, payload)
	if err == nil {
		var resp WebhookResponse
		resp, err = d.senders.Send(ctx, hook.TargetURL, payload, headers)
		if err == nil {
			return resp, false
		}
	}
	if !errors.Is(err, ErrUnknownScheme) {
		tracing.SetSpanError(ctx, err)
	}
	d.logger.WithContext(ctx).WithWebhook(hook.ID.String()).WithError(err).Warn("webhook send not attempted")
	return WebhookResponse{Status: StatusFailed, Duration: 0}, true
}

func (d *Dispatcher) buildHeaders(ctx context.Context, hook Webhook, payload []byte) (http.Header, error) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		h.Set("X-Trace-Id", traceID)
	}
	now := time.Now()
	switch hook.AuthMode {
	case AuthJWT:
		token, err := auth.MintToken(hook.Secret, hook.ID.String(), now)
		if err != nil {
			return nil, fmt.Errorf("mint endpoint token: %w", err)
		}
		h.Set("Authorization", "Bearer "+token)
	default:
		ts := strconv.FormatInt(now.Unix(), 10)
		h.Set(d.cfg.TimestampHeader, ts)
		h.Set(d.cfg.SignatureHeader, "sha256="+auth.SignHMAC(hook.Secret, payload, ts))
	}
	return h, nil
}

// attemptAttributes builds the shared attribute set for the metric triple:
// caller-supplied global attributes merged verbatim, with server.address
// and error.type taking precedence only for their own keys.
func (d *Dispatcher) attemptAttributes(targetURL string, tel Telemetry, failed bool) []attribute.KeyValue {
	merged := make(map[string]string, len(tel.GlobalAttributes)+2)
	for k, v := range tel.GlobalAttributes {
		merged[k] = v
	}
	merged["server.address"] = serverAddress(targetURL)
	if failed {
		merged["error.type"] = errorType
	}
	return sortedAttributes(merged)
}

func serverAddress(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func sortedAttributes(m map[string]string) []attribute.KeyValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, m[k]))
	}
	return attrs
}
