package graduation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/retry"
)

// Config holds graduation thresholds, liquidity splits and timing.
type Config struct {
	// Threshold is the TotalRaised at which a token becomes READY.
	Threshold decimal.Decimal `yaml:"threshold"`

	// QuoteSplitPct and TokenSplitPct are the fractions (0..1] of raised
	// funds and issued supply handed to the liquidity pool.
	QuoteSplitPct decimal.Decimal `yaml:"quote_split_pct"`
	TokenSplitPct decimal.Decimal `yaml:"token_split_pct"`

	// CallTimeout bounds each collaborator call; Retry wraps the calls.
	CallTimeout time.Duration `yaml:"call_timeout"`
	Retry       retry.Config  `yaml:"retry"`

	// VelocityWindow is the trailing window ETA projections are computed over.
	VelocityWindow time.Duration `yaml:"velocity_window"`

	// AutoGraduate triggers graduation as soon as a token is READY,
	// from the trade path and from watchers.
	AutoGraduate bool `yaml:"auto_graduate"`

	// WatchInterval is the watcher poll period; WatchMaxInterval caps its
	// backoff after errors.
	WatchInterval    time.Duration `yaml:"watch_interval"`
	WatchMaxInterval time.Duration `yaml:"watch_max_interval"`
}

// DefaultConfig returns the default graduation configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:        decimal.NewFromInt(85),
		QuoteSplitPct:    decimal.RequireFromString("0.8"),
		TokenSplitPct:    decimal.RequireFromString("0.2"),
		CallTimeout:      5 * time.Second,
		Retry:            retry.DefaultConfig(),
		VelocityWindow:   10 * time.Minute,
		WatchInterval:    30 * time.Second,
		WatchMaxInterval: 5 * time.Minute,
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if !c.Threshold.IsPositive() {
		return fmt.Errorf("graduation threshold must be positive, got %s", c.Threshold)
	}
	one := decimal.NewFromInt(1)
	if !c.QuoteSplitPct.IsPositive() || c.QuoteSplitPct.GreaterThan(one) {
		return fmt.Errorf("quote split must be within (0, 1], got %s", c.QuoteSplitPct)
	}
	if !c.TokenSplitPct.IsPositive() || c.TokenSplitPct.GreaterThan(one) {
		return fmt.Errorf("token split must be within (0, 1], got %s", c.TokenSplitPct)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %v", c.CallTimeout)
	}
	if c.VelocityWindow <= 0 {
		return fmt.Errorf("velocity window must be positive, got %v", c.VelocityWindow)
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %v", c.WatchInterval)
	}
	if c.WatchMaxInterval < c.WatchInterval {
		return fmt.Errorf("watch max interval %v below watch interval %v", c.WatchMaxInterval, c.WatchInterval)
	}
	return nil
}
