package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nsqio/go-nsq"
)

// ErrUnknownScheme is returned when no sender is registered for the target
// URL's scheme. The dispatcher treats it as a permanent delivery failure,
// not a crash.
var ErrUnknownScheme = errors.New("unknown webhook scheme")

// maxResponseBytes caps how much endpoint response body is kept for the
// attempt record.
const maxResponseBytes = 2048

// Sender performs the physical send for one transport scheme and returns a
// normalized response descriptor. Transport-level failures (network errors,
// non-2xx statuses) are reported inside the WebhookResponse, not as errors;
// an error return means the send could not even be attempted.
type Sender interface {
	Send(ctx context.Context, target *url.URL, payload []byte, headers http.Header) (WebhookResponse, error)
}

// Registry resolves a raw target URL to the sender for its scheme.
type Registry struct {
	senders map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// Register maps a URL scheme to a sender. Later registrations replace
// earlier ones.
func (r *Registry) Register(scheme string, s Sender) {
	r.senders[strings.ToLower(scheme)] = s
}

// Send parses the target URL, picks the sender for its scheme, and sends.
// Malformed targets and unregistered schemes fail with ErrUnknownScheme.
func (r *Registry) Send(ctx context.Context, rawURL string, payload []byte, headers http.Header) (WebhookResponse, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return WebhookResponse{}, fmt.Errorf("%w: malformed target %q: %v", ErrUnknownScheme, rawURL, err)
	}
	s, ok := r.senders[strings.ToLower(target.Scheme)]
	if !ok {
		return WebhookResponse{}, fmt.Errorf("%w: %q", ErrUnknownScheme, target.Scheme)
	}
	return s.Send(ctx, target, payload, headers)
}

// HTTPSender delivers payloads over http/https with a bounded timeout.
type HTTPSender struct {
	Client *http.Client
}

func NewHTTPSender(timeout time.Duration) *HTTPSender {
	return &HTTPSender{Client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, target *url.URL, payload []byte, headers http.Header) (WebhookResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return WebhookResponse{}, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, doErr := s.Client.Do(req)
	elapsed := time.Since(start)

	if doErr != nil {
		// Network-level failure, including timeouts and context
		// cancellation mid-call. Best-effort duration is kept.
		return WebhookResponse{
			Status:   StatusFailed,
			Content:  doErr.Error(),
			Duration: elapsed,
		}, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	status := StatusFailed
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		status = StatusSuccess
	}
	code := resp.StatusCode
	return WebhookResponse{
		StatusCode: &code,
		Status:     status,
		Content:    string(body),
		Duration:   elapsed,
		Headers:    resp.Header,
	}, nil
}

// nsqPublisher is the slice of nsq.Producer the queue sender needs.
type nsqPublisher interface {
	Publish(topic string, body []byte) error
}

// NSQSender delivers payloads to an NSQ topic for queue-scheme targets of
// the form nsq://nsqd-host:4150/topic. The producer connection is fixed at
// construction; the topic comes from the target URL path.
type NSQSender struct {
	producer nsqPublisher
}

func NewNSQSender(nsqdAddr string) (*NSQSender, error) {
	p, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	return &NSQSender{producer: p}, nil
}

func (s *NSQSender) Send(_ context.Context, target *url.URL, payload []byte, _ http.Header) (WebhookResponse, error) {
	topic := strings.Trim(target.Path, "/")
	if topic == "" {
		return WebhookResponse{}, fmt.Errorf("%w: nsq target %q has no topic", ErrUnknownScheme, target.String())
	}
	start := time.Now()
	if err := s.producer.Publish(topic, payload); err != nil {
		return WebhookResponse{
			Status:   StatusFailed,
			Content:  err.Error(),
			Duration: time.Since(start),
		}, nil
	}
	return WebhookResponse{
		Status:   StatusSuccess,
		Duration: time.Since(start),
	}, nil
}
