package delivery

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a delivery, mirrored onto each attempt.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// AuthMode selects how outbound HTTP requests authenticate to the endpoint.
type AuthMode string

const (
	AuthHMAC AuthMode = "hmac" // signature header over body||timestamp
	AuthJWT  AuthMode = "jwt"  // HS256 bearer token minted from the secret
)

// Webhook is a subscriber-configured target for event notifications.
type Webhook struct {
	ID        uuid.UUID
	TargetURL string
	Secret    string
	AuthMode  AuthMode
	CreatedAt time.Time
}

// EventDelivery is one obligation to notify a webhook of an event. It may
// span multiple attempts; Status mirrors the latest attempt's outcome.
type EventDelivery struct {
	ID        uuid.UUID
	WebhookID uuid.UUID
	EventType string
	Payload   string // serialized event payload, sent as-is
	Status    Status
	Attempt   int
	CreatedAt time.Time
}

// WebhookResponse is the normalized result of one send attempt. It is
// transient: the dispatcher maps it into a durable attempt row and metric
// observations, then discards it.
type WebhookResponse struct {
	StatusCode *int // nil when no HTTP exchange happened
	Status     Status
	Content    string
	Duration   time.Duration
	Headers    http.Header
}

// Attempt is the durable record of one physical send. Exactly one row is
// written per dispatch, on every path including scheme-resolution failure.
type Attempt struct {
	ID         uuid.UUID
	DeliveryID uuid.UUID
	Seq        int
	Status     Status
	StatusCode *int
	Response   string
	Duration   time.Duration
	CreatedAt  time.Time
}

// Telemetry carries caller-supplied tags merged verbatim into every metric
// and span attribute set for one dispatch. Built-in attributes win only for
// their own keys.
type Telemetry struct {
	GlobalAttributes map[string]string `json:"global_attributes,omitempty"`
}
