// Package webhook implements the inbound alert receiver (C6): per-source
// HMAC-SHA256 authentication, rate limiting, schema validation,
// sliding-window dedup, and server-side id/timestamp stamping, before
// handing the normalized Alert to the execution coordinator.
//
// The handler is a producer only — it never blocks on downstream
// execution.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tradecore/internal/domain"
)

// SourceConfig is one webhook source's credentials and limits.
type SourceConfig struct {
	Secret          string
	RateLimitPerMin int
}

// Config controls the receiver across all sources.
type Config struct {
	Sources    map[string]SourceConfig
	DedupTTL   time.Duration
	SweepEvery time.Duration
}

// Handler is the net/http handler for POST /webhook/{source}, grounded
// on the teacher's api.Server bare-ServeMux style of wiring handlers by
// hand rather than a router framework.
type Handler struct {
	cfg      Config
	limiters sync.Map // source -> *rate.Limiter
	dedup    *dedupWindow
	onAlert  func(domain.Alert)
	stop     chan struct{}
}

// NewHandler builds a Handler. onAlert is invoked once per accepted,
// non-duplicate alert; it must not block.
func NewHandler(cfg Config, onAlert func(domain.Alert)) *Handler {
	h := &Handler{
		cfg:     cfg,
		dedup:   newDedupWindow(cfg.DedupTTL),
		onAlert: onAlert,
		stop:    make(chan struct{}),
	}
	go h.dedup.runSweeper(h.stop, cfg.SweepEvery)
	return h
}

// Close stops the background dedup sweeper.
func (h *Handler) Close() {
	close(h.stop)
}

func (h *Handler) limiterFor(source string) *rate.Limiter {
	if existing, ok := h.limiters.Load(source); ok {
		return existing.(*rate.Limiter)
	}
	perMin := h.cfg.Sources[source].RateLimitPerMin
	if perMin <= 0 {
		perMin = 60
	}
	limiter := rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin)
	actual, _ := h.limiters.LoadOrStore(source, limiter)
	return actual.(*rate.Limiter)
}

// sourceFromPath extracts "{source}" from "/webhook/{source}".
func sourceFromPath(path string) string {
	const prefix = "/webhook/"
	if len(path) <= len(prefix) {
		return ""
	}
	return path[len(prefix):]
}

// ServeHTTP implements the seven-step receiver pipeline from spec §4.6.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	source := sourceFromPath(r.URL.Path)
	srcCfg, known := h.cfg.Sources[source]
	if !known {
		http.Error(w, "unknown source", http.StatusUnauthorized)
		return
	}

	// 1. Read raw body before any parsing.
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	// 2. Verify HMAC-SHA256 signature, constant time.
	if !verifySignature(srcCfg.Secret, body, r.Header.Get("X-Signature")) {
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}

	// 3. Rate limit per source.
	if !h.limiterFor(source).Allow() {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	// 4. Parse and validate schema.
	var raw rawAlert
	if jsonErr := json.Unmarshal(body, &raw); jsonErr != nil {
		http.Error(w, "malformed json", http.StatusBadRequest)
		return
	}
	alert, err := raw.normalize(source)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// 5. Dedup by (source, clientNonce).
	if h.dedup.checkAndMark(source, alert.ClientNonce) {
		id := alert.ClientNonce // the duplicate response need not carry a fresh id
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate", "id": id})
		return
	}

	// 6. Stamp server id/receivedAt and hand off.
	alert.ID = uuid.NewString()
	alert.ReceivedAt = time.Now().UTC()

	if h.onAlert != nil {
		h.onAlert(alert)
	} else {
		log.Printf("webhook: no alert sink configured, dropping alert %s", alert.ID)
	}

	// 7. Return 202 immediately; the receiver does not wait on execution.
	writeJSON(w, http.StatusAccepted, map[string]string{"id": alert.ID})
}

func verifySignature(secret string, body []byte, headerSig string) bool {
	if secret == "" || headerSig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	decoded, err := hex.DecodeString(headerSig)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(expected, decoded) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("webhook: failed to encode response: %v", err)
	}
}
