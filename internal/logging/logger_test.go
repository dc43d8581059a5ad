package logging

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEntryBuilders(t *testing.T) {
	l := New("worker")

	e := l.Plain().
		WithDelivery("3e0c1b62-6f24-4ef1-9b53-8b2f0a3d7c11").
		WithWebhook("b2a5d8c0-98a7-4f41-a1cf-2d9f6f9d9e01").
		WithEventType("order.created").
		WithField("attempt", 2).
		WithError(errors.New("connection refused"))

	if e.Service != "worker" {
		t.Errorf("Service = %q, want %q", e.Service, "worker")
	}
	if e.DeliveryID != "3e0c1b62-6f24-4ef1-9b53-8b2f0a3d7c11" {
		t.Errorf("DeliveryID = %q", e.DeliveryID)
	}
	if e.WebhookID != "b2a5d8c0-98a7-4f41-a1cf-2d9f6f9d9e01" {
		t.Errorf("WebhookID = %q", e.WebhookID)
	}
	if e.EventType != "order.created" {
		t.Errorf("EventType = %q, want %q", e.EventType, "order.created")
	}
	if got := e.Fields["attempt"]; got != 2 {
		t.Errorf("Fields[attempt] = %v, want 2", got)
	}
	if got := e.Fields["error"]; got != "connection refused" {
		t.Errorf("Fields[error] = %v, want %q", got, "connection refused")
	}
}

func TestWithErrorNil(t *testing.T) {
	e := New("worker").Plain().WithError(nil)
	if _, ok := e.Fields["error"]; ok {
		t.Error("WithError(nil) set an error field")
	}
}

func TestWithFieldsMerges(t *testing.T) {
	e := New("worker").
		WithFields(map[string]any{"a": 1}).
		WithFields(map[string]any{"b": 2}).
		WithField("c", 3)

	for _, k := range []string{"a", "b", "c"} {
		if _, ok := e.Fields[k]; !ok {
			t.Errorf("Fields missing key %q", k)
		}
	}
}

func TestEntryJSONShape(t *testing.T) {
	e := &LogEntry{
		Time:       time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Level:      LevelInfo,
		Message:    "delivery dispatched",
		Service:    "worker",
		DeliveryID: "d-1",
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["level"] != "info" {
		t.Errorf("level = %v, want info", decoded["level"])
	}
	if decoded["msg"] != "delivery dispatched" {
		t.Errorf("msg = %v", decoded["msg"])
	}
	if decoded["delivery_id"] != "d-1" {
		t.Errorf("delivery_id = %v, want d-1", decoded["delivery_id"])
	}
	// Empty optional fields must not appear in the output
	for _, absent := range []string{"webhook_id", "event_type", "trace_id", "fields"} {
		if _, ok := decoded[absent]; ok {
			t.Errorf("unexpected key %q in JSON output", absent)
		}
	}
}
