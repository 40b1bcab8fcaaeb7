package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/domain"
)

const testSecret = "s3cret"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestHandler(onAlert func(domain.Alert)) *Handler {
	cfg := Config{
		Sources: map[string]SourceConfig{
			"tradingview": {Secret: testSecret, RateLimitPerMin: 600},
		},
		DedupTTL:   time.Hour,
		SweepEvery: time.Hour,
	}
	return NewHandler(cfg, onAlert)
}

func postAlert(t *testing.T, h *Handler, body []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/tradingview", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set("X-Signature", sig)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAcceptsValidSignedAlert(t *testing.T) {
	var got domain.Alert
	h := newTestHandler(func(a domain.Alert) { got = a })
	defer h.Close()

	body := []byte(`{"strategyId":"s1","accountGroup":"paper_sim","symbol":"ES","side":"buy","quantity":1,"orderType":"market","clientNonce":"n1"}`)
	rec := postAlert(t, h, body, sign(body))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ES", got.Symbol)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.ReceivedAt.IsZero())
}

func TestRejectsBadSignature(t *testing.T) {
	h := newTestHandler(nil)
	defer h.Close()

	body := []byte(`{"strategyId":"s1","accountGroup":"paper_sim","symbol":"ES","side":"buy","quantity":1,"orderType":"market","clientNonce":"n1"}`)
	rec := postAlert(t, h, body, "deadbeef")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRejectsMissingSignature(t *testing.T) {
	h := newTestHandler(nil)
	defer h.Close()

	body := []byte(`{"strategyId":"s1","accountGroup":"paper_sim","symbol":"ES","side":"buy","quantity":1,"orderType":"market","clientNonce":"n1"}`)
	rec := postAlert(t, h, body, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRejectsMalformedSchema(t *testing.T) {
	h := newTestHandler(nil)
	defer h.Close()

	body := []byte(`{"strategyId":"s1","symbol":"ES","side":"sideways","quantity":1,"orderType":"market","clientNonce":"n1"}`)
	rec := postAlert(t, h, body, sign(body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateNonceReturns200(t *testing.T) {
	var calls int
	h := newTestHandler(func(a domain.Alert) { calls++ })
	defer h.Close()

	body := []byte(`{"strategyId":"s1","accountGroup":"paper_sim","symbol":"ES","side":"buy","quantity":1,"orderType":"market","clientNonce":"dup-1"}`)

	first := postAlert(t, h, body, sign(body))
	require.Equal(t, http.StatusAccepted, first.Code)

	second := postAlert(t, h, body, sign(body))
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "duplicate")
	assert.Equal(t, 1, calls)
}

func TestRateLimitReturns429(t *testing.T) {
	cfg := Config{
		Sources: map[string]SourceConfig{
			"tradingview": {Secret: testSecret, RateLimitPerMin: 1},
		},
		DedupTTL:   time.Hour,
		SweepEvery: time.Hour,
	}
	h := NewHandler(cfg, func(domain.Alert) {})
	defer h.Close()

	body := []byte(`{"strategyId":"s1","accountGroup":"paper_sim","symbol":"ES","side":"buy","quantity":1,"orderType":"market","clientNonce":"n1"}`)
	first := postAlert(t, h, body, sign(body))
	require.Equal(t, http.StatusAccepted, first.Code)

	body2 := []byte(`{"strategyId":"s1","accountGroup":"paper_sim","symbol":"ES","side":"buy","quantity":1,"orderType":"market","clientNonce":"n2"}`)
	second := postAlert(t, h, body2, sign(body2))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestUnknownSourceRejected(t *testing.T) {
	h := newTestHandler(nil)
	defer h.Close()

	req := httptest.NewRequest(http.MethodPost, "/webhook/unknown-source", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
