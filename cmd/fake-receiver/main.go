// fake-receiver is a configurable webhook endpoint for local testing: it
// can fail the first N requests, verify request signatures or bearer
// tokens, and delay responses.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hooksmith/hooksmith/internal/auth"
	"github.com/hooksmith/hooksmith/internal/config"
)

type receiver struct {
	cfg      config.FakeReceiver
	worker   config.Worker
	reqCount atomic.Int64
}

func main() {
	cfg := config.FromEnv()
	rcv := &receiver{cfg: cfg.FakeReceiver, worker: cfg.Worker}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", rcv.handleHook)

	srv := &http.Server{
		Addr:         cfg.FakeReceiver.Port,
		Handler:      mux,
		ReadTimeout:  cfg.FakeReceiver.ReadTimeout,
		WriteTimeout: cfg.FakeReceiver.WriteTimeout,
		IdleTimeout:  cfg.FakeReceiver.IdleTimeout,
	}
	log.Printf("fake-receiver listening on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

func (rcv *receiver) handleHook(w http.ResponseWriter, r *http.Request) {
	count := rcv.reqCount.Add(1)
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if rcv.cfg.ResponseDelayMS > 0 {
		time.Sleep(time.Duration(rcv.cfg.ResponseDelayMS) * time.Millisecond)
	}

	if rcv.cfg.EndpointSecret != "" {
		if msg := rcv.authenticate(r, body); msg != "" {
			log.Printf("fake-receiver rejected request: %s", msg)
			http.Error(w, "unauthorized: "+msg, http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests get a 500
	if count <= int64(rcv.cfg.FailFirstN) {
		log.Printf("FAILING (%d/%d) %s body=%s", count, rcv.cfg.FailFirstN, r.URL.Path, truncate(string(body), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK %s body=%q", r.URL.Path, truncate(string(body), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// authenticate accepts either a bearer token or an HMAC signature,
// whichever the sender used. Returns a rejection message, empty on success.
func (rcv *receiver) authenticate(r *http.Request, body []byte) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		if _, err := auth.VerifyToken(rcv.cfg.EndpointSecret, strings.TrimPrefix(authz, "Bearer ")); err != nil {
			return fmt.Sprintf("bad token: %v", err)
		}
		return ""
	}

	ts := r.Header.Get(rcv.worker.TimestampHeader)
	sig := r.Header.Get(rcv.worker.SignatureHeader)
	if ts == "" || sig == "" {
		return "missing signature headers"
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "invalid timestamp"
	}
	if abs64(time.Now().Unix()-unix) > int64(rcv.cfg.SigningLeewaySeconds) {
		return "timestamp outside leeway"
	}
	if !auth.VerifyHMAC(rcv.cfg.EndpointSecret, body, ts, strings.TrimPrefix(sig, "sha256=")) {
		return "sig mismatch"
	}
	return ""
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
