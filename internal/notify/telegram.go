// Package notify delivers operator-facing alerts (rule violations,
// emergency flattens, failed alert placements) to a Telegram chat.
//
// Grounded on the teacher's internal/notify/telegram.go: same Bot API
// HTTP client shape (enabled-only-if-configured, form-encoded
// sendMessage call, HTML parse mode), generalized from Polymarket fill/
// drawdown events to the funded-account Violation/flatten/AlertFailed
// events this domain actually raises.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"tradecore/internal/domain"
)

// Notifier sends operational alerts to a Telegram chat via the Bot API.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing; defaults to the Telegram API
}

// NewNotifier creates a Notifier. Notifications are enabled only when
// both botToken and chatID are non-empty.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
	}
}

// Enabled reports whether the notifier is active.
func (n *Notifier) Enabled() bool { return n.enabled }

// Send posts a message to the configured Telegram chat.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.enabled {
		return nil
	}

	endpoint := n.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	}
	vals := url.Values{
		"chat_id":    {n.chatID},
		"text":       {msg},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// NotifyViolation sends a funded-account rule-breach alert. Meant to be
// wired as a risk.Manager onViolation callback (itself called
// fire-and-forget so a Telegram outage never blocks the rule engine).
func (n *Notifier) NotifyViolation(ctx context.Context, v domain.Violation) error {
	msg := fmt.Sprintf(
		"<b>Rule Violation</b>\nAccount: <code>%s</code>\nKind: %s\nLimit: %.2f\nActual: %.2f",
		v.AccountID, v.Kind, v.RuleLimit, v.ActualValue,
	)
	return n.Send(ctx, msg)
}

// NotifyEmergencyFlatten sends an emergency-flatten alert, wired as a
// risk.Manager onFlatten callback.
func (n *Notifier) NotifyEmergencyFlatten(ctx context.Context, accountID string) error {
	msg := fmt.Sprintf("<b>EMERGENCY FLATTEN</b>\nAccount: <code>%s</code>\nAll open positions are being closed.", accountID)
	return n.Send(ctx, msg)
}

// NotifyAlertFailed sends a failed-placement alert for an inbound
// signal that reached a terminal failed status, wired as an
// execution.Coordinator terminal-status hook.
func (n *Notifier) NotifyAlertFailed(ctx context.Context, alertID, reason string) error {
	msg := fmt.Sprintf("<b>Alert Failed</b>\nAlert: <code>%s</code>\nReason: %s", alertID, reason)
	return n.Send(ctx, msg)
}

// NotifyDailySummary sends a daily performance summary for one funded
// account at rollover.
func (n *Notifier) NotifyDailySummary(ctx context.Context, accountID string, pnl float64, trades int) error {
	msg := fmt.Sprintf("<b>Daily Summary</b>\nAccount: <code>%s</code>\nPnL: %.2f\nTrades: %d", accountID, pnl, trades)
	return n.Send(ctx, msg)
}

// NotifyStrategyModeChange sends an alert when a strategy's mode
// transitions (e.g. live to paper after a losing evaluation set).
func (n *Notifier) NotifyStrategyModeChange(ctx context.Context, strategyID string, from, to domain.StrategyMode) error {
	msg := fmt.Sprintf("<b>Strategy Mode Change</b>\nStrategy: <code>%s</code>\n%s &rarr; %s", strategyID, from, to)
	return n.Send(ctx, msg)
}
