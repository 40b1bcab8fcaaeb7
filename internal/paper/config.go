package paper

import "time"

// Config enumerates every knob the simulator's execution model depends
// on, per account or shared across accounts depending on how the
// embedding config section sets it up.
type Config struct {
	InitialBalance                   float64       `yaml:"initial_balance"`
	BuyingPowerMultiplier            float64       `yaml:"buying_power_multiplier"`
	CommissionPerSide                float64       `yaml:"commission_per_side"`
	SlippageBps                      float64       `yaml:"slippage_bps"`
	PartialFillProbability           float64       `yaml:"partial_fill_probability"`
	RejectOnInsufficientBuyingPower  bool          `yaml:"reject_on_insufficient_buying_power"`
	MarketHoursOnly                  bool          `yaml:"market_hours_only"`
	TickInterval                     time.Duration `yaml:"tick_interval"`
	WalkBps                          float64       `yaml:"walk_bps"` // bounded random-walk step size for the simulated mid
	SpreadBps                        float64       `yaml:"spread_bps"`
}

// Default returns the simulator defaults the teacher's config used for
// its single implicit account, generalized to the full execution model.
func Default() Config {
	return Config{
		InitialBalance:                  1000,
		BuyingPowerMultiplier:           1,
		CommissionPerSide:               0,
		SlippageBps:                     10,
		PartialFillProbability:          0,
		RejectOnInsufficientBuyingPower: true,
		MarketHoursOnly:                 false,
		TickInterval:                    time.Second,
		WalkBps:                         5,
		SpreadBps:                       4,
	}
}
