package config

import (
	"fmt"
	"strings"
)

// ApplyRolloutPhase applies a staged rollout preset to the config, the
// same staged-cutover shape the teacher used for its own paper-to-live
// promotion. Supported phases:
//   - paper:      trading_mode=paper.
//   - shadow:     trading_mode=live, mode=dev.
//   - live-small: trading_mode=live, mode=prod, every account's
//     max_contracts and max_daily_loss clamped to conservative caps.
//   - live:       trading_mode=live, mode=prod, configured values as-is.
//
// No phase changes an account's destination: where an order is routed
// is decided by the account's own configured destination.
func ApplyRolloutPhase(cfg *Config, phase string) error {
	p := strings.ToLower(strings.TrimSpace(phase))
	if p == "" {
		return nil
	}

	switch p {
	case "paper":
		cfg.TradingMode = "paper"
	case "shadow", "live-dryrun", "live-dry-run":
		cfg.TradingMode = "live"
		cfg.Mode = "dev"
	case "live-small", "small":
		cfg.TradingMode = "live"
		cfg.Mode = "prod"
		for name, acc := range cfg.Accounts {
			clampMaxFloat(&acc.MaxContracts, 1)
			clampMaxFloat(&acc.MaxDailyLoss, 200)
			cfg.Accounts[name] = acc
		}
	case "live":
		cfg.TradingMode = "live"
		cfg.Mode = "prod"
	default:
		return fmt.Errorf("unknown rollout phase %q (supported: paper|shadow|live-small|live)", phase)
	}

	return nil
}

func clampMaxFloat(v *float64, max float64) {
	if max <= 0 {
		return
	}
	if *v <= 0 || *v > max {
		*v = max
	}
}
