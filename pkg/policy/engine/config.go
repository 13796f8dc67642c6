package engine

import (
	"fmt"
	"time"
)

// EngineConfig contains configuration for the policy engine.
type EngineConfig struct {
	// Budget is the advisory latency budget for one evaluation. Overruns
	// are logged and counted; evaluation is never truncated to meet it.
	// Default: 10ms.
	Budget time.Duration

	// BudgetAlertMultiplier scales the budget to the threshold that
	// raises a critical alert. A multiplier of 3 alerts at 30ms with the
	// default budget. Default: 3.
	BudgetAlertMultiplier float64

	// EnableTrace enables detailed evaluation tracing for debugging.
	// Warning: tracing allocates on the hot path.
	// Default: false.
	EnableTrace bool
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Budget:                10 * time.Millisecond,
		BudgetAlertMultiplier: 3,
		EnableTrace:           false,
	}
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	if c.Budget <= 0 {
		return fmt.Errorf("%w: budget must be positive", ErrInvalidConfig)
	}
	if c.BudgetAlertMultiplier < 1 {
		return fmt.Errorf("%w: budget alert multiplier must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// WithBudget sets the advisory latency budget.
func (c *EngineConfig) WithBudget(budget time.Duration) *EngineConfig {
	c.Budget = budget
	return c
}

// WithBudgetAlertMultiplier sets the alerting threshold multiplier.
func (c *EngineConfig) WithBudgetAlertMultiplier(m float64) *EngineConfig {
	c.BudgetAlertMultiplier = m
	return c
}

// WithTrace enables or disables evaluation tracing.
func (c *EngineConfig) WithTrace(enabled bool) *EngineConfig {
	c.EnableTrace = enabled
	return c
}
