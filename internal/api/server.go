// Package api implements the HTTP/WebSocket transport layer: the inbound
// webhook receiver mount, the broadcast hub's stream upgrade endpoint,
// and a set of read-only status endpoints for a monitoring dashboard.
//
// Grounded on the teacher's internal/api/server.go: a bare
// http.ServeMux, a small writeJSON helper, and the same
// Start/Shutdown lifecycle around a *http.Server.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tradecore/internal/domain"
	"tradecore/internal/hub"
	"tradecore/internal/ledger"
	"tradecore/internal/webhook"
)

// RiskSnapshotProvider exposes a funded account's live rule metrics,
// keyed by account id.
type RiskSnapshotProvider interface {
	Metrics(accountID string) (domain.FundedMetrics, bool)
	Rules(accountID string) (domain.FundedAccountRules, bool)
}

// AppState exposes the running application's state for the API layer.
type AppState interface {
	IsRunning() bool
	TradingMode() string
	StrategySnapshot(strategyID string) (domain.StrategyRecord, bool)
	Risk() RiskSnapshotProvider
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP/WS front door: webhook ingestion, the live stream,
// and dashboard status endpoints.
type Server struct {
	httpServer *http.Server
	appState   AppState
	hub        *hub.Hub
	webhook    *webhook.Handler
	ledger     *ledger.Ledger
	startedAt  time.Time
}

// NewServer wires the webhook receiver, hub upgrade endpoint, and status
// routes behind a single http.Server bound to addr. ledgerStore may be
// nil (status endpoints that need it degrade gracefully).
func NewServer(addr string, appState AppState, h *hub.Hub, wh *webhook.Handler, ledgerStore *ledger.Ledger) *Server {
	s := &Server{
		appState:  appState,
		hub:       h,
		webhook:   wh,
		ledger:    ledgerStore,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/ready", s.handleReady)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/risk", s.handleRisk)
	mux.HandleFunc("/api/strategy", s.handleStrategy)
	mux.HandleFunc("/api/ledger/recent", s.handleLedgerRecent)
	mux.HandleFunc("/webhook/", s.webhook.ServeHTTP)
	mux.HandleFunc("/stream", s.handleStream)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	log.Printf("api server listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("api server: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/health — liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/ready — readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.appState.IsRunning()
	resp := map[string]interface{}{
		"ready":        ready,
		"trading_mode": s.appState.TradingMode(),
		"uptime_s":     time.Since(s.startedAt).Seconds(),
	}
	if !ready {
		resp["reason"] = "app_not_running"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	s.writeJSON(w, resp)
}

// GET /api/status — overall system status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{
		"running":      s.appState.IsRunning(),
		"trading_mode": s.appState.TradingMode(),
		"uptime_s":     time.Since(s.startedAt).Seconds(),
	}
	if s.hub != nil {
		resp["stream_clients"] = s.hub.ClientCount()
	}
	s.writeJSON(w, resp)
}

// GET /api/risk?account=ID — a funded account's live rule metrics.
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		http.Error(w, "missing account query parameter", http.StatusBadRequest)
		return
	}
	provider := s.appState.Risk()
	if provider == nil {
		http.Error(w, "risk tracking unavailable", http.StatusNotFound)
		return
	}
	metrics, ok := provider.Metrics(accountID)
	if !ok {
		http.Error(w, "unknown account", http.StatusNotFound)
		return
	}
	rules, _ := provider.Rules(accountID)
	s.writeJSON(w, map[string]interface{}{
		"account": accountID,
		"metrics": metrics,
		"rules":   rules,
	})
}

// GET /api/strategy?id=ID — a strategy's current mode and evaluation
// history.
func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	strategyID := r.URL.Query().Get("id")
	if strategyID == "" {
		http.Error(w, "missing id query parameter", http.StatusBadRequest)
		return
	}
	rec, ok := s.appState.StrategySnapshot(strategyID)
	if !ok {
		http.Error(w, "unknown strategy", http.StatusNotFound)
		return
	}
	s.writeJSON(w, rec)
}

// GET /api/ledger/recent — the 100 most recently received alerts and
// their terminal disposition.
func (s *Server) handleLedgerRecent(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, "ledger unavailable", http.StatusNotFound)
		return
	}
	entries, err := s.ledger.Recent(r.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]interface{}{"entries": entries})
}

// GET /stream — upgrades to a WebSocket connection registered with the
// broadcast hub.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "stream unavailable", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: stream upgrade failed: %v", err)
		return
	}
	s.hub.Upgrade(conn)
}
