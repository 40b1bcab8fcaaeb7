package config

import (
	"fmt"
	"strings"
)

// Validate checks high-impact runtime configuration constraints before
// the server binds a port or opens the ledger.
func (c Config) Validate() error {
	mode := strings.ToLower(strings.TrimSpace(c.TradingMode))
	if mode != "" && mode != "paper" && mode != "live" {
		return fmt.Errorf("trading_mode must be 'paper' or 'live', got %q", c.TradingMode)
	}
	runMode := strings.ToLower(strings.TrimSpace(c.Mode))
	if runMode != "" && runMode != "dev" && runMode != "prod" {
		return fmt.Errorf("mode must be 'dev' or 'prod', got %q", c.Mode)
	}

	if c.Paper.InitialBalance <= 0 {
		return fmt.Errorf("paper.initial_balance must be > 0, got %f", c.Paper.InitialBalance)
	}
	if c.Paper.SlippageBps < 0 {
		return fmt.Errorf("paper.slippage_bps must be >= 0, got %f", c.Paper.SlippageBps)
	}
	if c.Paper.PartialFillProbability < 0 || c.Paper.PartialFillProbability > 1 {
		return fmt.Errorf("paper.partial_fill_probability must be within [0,1], got %f", c.Paper.PartialFillProbability)
	}
	if c.Paper.TickInterval <= 0 {
		return fmt.Errorf("paper.tick_interval must be > 0, got %s", c.Paper.TickInterval)
	}

	for name, acc := range c.Accounts {
		if acc.Destination == "" {
			return fmt.Errorf("accounts.%s.destination must be set ('paper' or a sandbox name)", name)
		}
		if acc.Destination != "paper" {
			if _, ok := c.Sandbox[acc.Destination]; !ok {
				return fmt.Errorf("accounts.%s.destination %q is not a configured sandbox", name, acc.Destination)
			}
		}
		if acc.MaxDailyLoss < 0 {
			return fmt.Errorf("accounts.%s.max_daily_loss must be >= 0, got %f", name, acc.MaxDailyLoss)
		}
		if acc.TrailingDrawdown < 0 {
			return fmt.Errorf("accounts.%s.trailing_drawdown must be >= 0, got %f", name, acc.TrailingDrawdown)
		}
		if acc.MaxContracts <= 0 {
			return fmt.Errorf("accounts.%s.max_contracts must be > 0, got %f", name, acc.MaxContracts)
		}
	}

	for name, src := range c.Webhook.Sources {
		if src.Secret == "" {
			return fmt.Errorf("webhook.sources.%s.secret must be set", name)
		}
		if src.RateLimitPerMin <= 0 {
			return fmt.Errorf("webhook.sources.%s.rate_limit_per_min must be > 0, got %d", name, src.RateLimitPerMin)
		}
	}
	if c.Webhook.DedupTTL <= 0 {
		return fmt.Errorf("webhook.dedup_ttl must be > 0, got %s", c.Webhook.DedupTTL)
	}

	for name, sb := range c.Sandbox {
		if sb.BaseURL == "" {
			return fmt.Errorf("sandbox.%s.base_url must be set", name)
		}
	}

	if c.Hub.ClientBufferSize <= 0 {
		return fmt.Errorf("hub.client_buffer_size must be > 0, got %d", c.Hub.ClientBufferSize)
	}
	if c.Hub.HeartbeatInterval <= 0 {
		return fmt.Errorf("hub.heartbeat_interval must be > 0, got %s", c.Hub.HeartbeatInterval)
	}

	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path must be set")
	}

	return nil
}
