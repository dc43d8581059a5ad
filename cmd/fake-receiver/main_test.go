package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hooksmith/hooksmith/internal/auth"
	"github.com/hooksmith/hooksmith/internal/config"
)

func newReceiver(secret string, failFirstN int) *receiver {
	return &receiver{
		cfg: config.FakeReceiver{
			EndpointSecret:       secret,
			FailFirstN:           failFirstN,
			SigningLeewaySeconds: 300,
		},
		worker: config.Worker{
			SignatureHeader: "X-Hooksmith-Signature",
			TimestampHeader: "X-Hooksmith-Timestamp",
		},
	}
}

func signedRequest(t *testing.T, secret, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	ts := fmt.Sprintf("%d", time.Now().Unix())
	req.Header.Set("X-Hooksmith-Timestamp", ts)
	req.Header.Set("X-Hooksmith-Signature", "sha256="+auth.SignHMAC(secret, []byte(body), ts))
	return req
}

func TestHandleHookSignedRequest(t *testing.T) {
	rcv := newReceiver("s3cret", 0)

	w := httptest.NewRecorder()
	rcv.handleHook(w, signedRequest(t, "s3cret", `{"a":1}`))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestHandleHookRejectsBadSignature(t *testing.T) {
	rcv := newReceiver("s3cret", 0)

	w := httptest.NewRecorder()
	rcv.handleHook(w, signedRequest(t, "wrong-secret", `{"a":1}`))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestHandleHookBearerToken(t *testing.T) {
	rcv := newReceiver("s3cret", 0)

	token, err := auth.MintToken("s3cret", "hook-1", time.Now())
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	rcv.handleHook(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestHandleHookFailFirstN(t *testing.T) {
	rcv := newReceiver("", 2)

	for i, want := range []int{
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		rcv.handleHook(w, req)
		if w.Code != want {
			t.Errorf("request %d: status = %d, want %d", i+1, w.Code, want)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	rcv := newReceiver("s3cret", 0)
	body := []byte(`{"a":1}`)
	now := fmt.Sprintf("%d", time.Now().Unix())
	stale := fmt.Sprintf("%d", time.Now().Add(-time.Hour).Unix())

	tests := []struct {
		name     string
		headers  map[string]string
		wantPass bool
	}{
		{
			name: "valid signature",
			headers: map[string]string{
				"X-Hooksmith-Timestamp": now,
				"X-Hooksmith-Signature": "sha256=" + auth.SignHMAC("s3cret", body, now),
			},
			wantPass: true,
		},
		{
			name:     "missing headers",
			headers:  map[string]string{},
			wantPass: false,
		},
		{
			name: "invalid timestamp",
			headers: map[string]string{
				"X-Hooksmith-Timestamp": "not-a-number",
				"X-Hooksmith-Signature": "sha256=deadbeef",
			},
			wantPass: false,
		},
		{
			name: "timestamp outside leeway",
			headers: map[string]string{
				"X-Hooksmith-Timestamp": stale,
				"X-Hooksmith-Signature": "sha256=" + auth.SignHMAC("s3cret", body, stale),
			},
			wantPass: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/hook", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			msg := rcv.authenticate(req, body)
			if tt.wantPass && msg != "" {
				t.Errorf("authenticate() = %q, want pass", msg)
			}
			if !tt.wantPass && msg == "" {
				t.Error("authenticate() passed, want rejection")
			}
		})
	}
}
