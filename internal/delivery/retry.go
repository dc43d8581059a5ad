package delivery

import "strings"

// Outcome is the dispatcher's explicit verdict for one attempt. The queue
// consumer interprets Retry by requeueing the delivery with backoff; the
// core never schedules retries itself.
type Outcome int

const (
	// OutcomeDelivered means the endpoint acknowledged the payload.
	OutcomeDelivered Outcome = iota
	// OutcomeRetry means the attempt failed for a transient reason and the
	// delivery should re-enter the queue.
	OutcomeRetry
	// OutcomePermanentFailure means the attempt failed for a configuration
	// reason (unknown scheme, malformed target) that no retry can fix. The
	// failed attempt is recorded and resolution is left to alerting.
	OutcomePermanentFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRetry:
		return "retry"
	case OutcomePermanentFailure:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// errorType is the metric classification attached to every failed attempt,
// whether the failure came from the network layer or scheme resolution.
const errorType = "request_error"

// Retriable reports whether a failed response came from a transient cause:
// a network-level failure or a non-2xx status from a reachable endpoint.
// Scheme-resolution failures never reach here; the dispatcher short-circuits
// them to OutcomePermanentFailure.
func Retriable(resp WebhookResponse) bool {
	return resp.Status == StatusFailed
}

// FailureReason buckets a failed response for the retry counter label.
func FailureReason(resp WebhookResponse) string {
	if resp.StatusCode == nil {
		content := strings.ToLower(resp.Content)
		switch {
		case strings.Contains(content, "timeout"), strings.Contains(content, "deadline exceeded"):
			return "timeout"
		case strings.Contains(content, "connection refused"):
			return "connection_refused"
		case strings.Contains(content, "no such host"), strings.Contains(content, "dns"):
			return "dns_error"
		default:
			return "network"
		}
	}
	code := *resp.StatusCode
	switch {
	case code >= 500:
		return "http_5xx"
	case code == 429:
		return "http_429"
	case code >= 400:
		return "http_4xx"
	default:
		return "other"
	}
}
