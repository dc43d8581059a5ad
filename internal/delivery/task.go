package delivery

// Task is the queue message that asks a worker to attempt one delivery.
// The payload itself stays in the database; the worker loads it by id so a
// requeued task never carries stale state.
type Task struct {
	DeliveryID   string            `json:"delivery_id"`
	WebhookID    string            `json:"webhook_id"`
	EventType    string            `json:"event_type"`
	Attempt      int               `json:"attempt"`
	PublishedAt  string            `json:"published_at"` // RFC3339
	Telemetry    Telemetry         `json:"telemetry,omitempty"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"` // OTel trace propagation headers
}
