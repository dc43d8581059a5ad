package delivery

import "testing"

func intPtr(i int) *int { return &i }

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name string
		resp WebhookResponse
		want string
	}{
		{
			name: "timeout in transport error",
			resp: WebhookResponse{Status: StatusFailed, Content: "Post: context deadline exceeded (Client.Timeout exceeded)"},
			want: "timeout",
		},
		{
			name: "connection refused",
			resp: WebhookResponse{Status: StatusFailed, Content: "dial tcp 127.0.0.1:9: connect: connection refused"},
			want: "connection_refused",
		},
		{
			name: "dns failure",
			resp: WebhookResponse{Status: StatusFailed, Content: "dial tcp: lookup nowhere.invalid: no such host"},
			want: "dns_error",
		},
		{
			name: "generic network failure",
			resp: WebhookResponse{Status: StatusFailed, Content: "EOF"},
			want: "network",
		},
		{
			name: "server error",
			resp: WebhookResponse{Status: StatusFailed, StatusCode: intPtr(503)},
			want: "http_5xx",
		},
		{
			name: "throttled",
			resp: WebhookResponse{Status: StatusFailed, StatusCode: intPtr(429)},
			want: "http_429",
		},
		{
			name: "client error",
			resp: WebhookResponse{Status: StatusFailed, StatusCode: intPtr(404)},
			want: "http_4xx",
		},
		{
			name: "unexpected 2xx classified as other",
			resp: WebhookResponse{Status: StatusFailed, StatusCode: intPtr(200)},
			want: "other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureReason(tt.resp); got != tt.want {
				t.Errorf("FailureReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetriable(t *testing.T) {
	if Retriable(WebhookResponse{Status: StatusSuccess}) {
		t.Error("Retriable() = true for success, want false")
	}
	if !Retriable(WebhookResponse{Status: StatusFailed}) {
		t.Error("Retriable() = false for failure, want true")
	}
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeDelivered, "delivered"},
		{OutcomeRetry, "retry"},
		{OutcomePermanentFailure, "permanent_failure"},
		{Outcome(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}
