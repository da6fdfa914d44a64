// File: internal/config/motion_config.go
// Tunable parameters for the human-motion simulation. These control the
// models that generate user-plausible input: pointer movement physics,
// scroll cadence, and idle pauses. Centralizing them here keeps the random
// calls out of the call sites and makes tests deterministic via a seeded
// generator.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// MotionConfig holds the timing policy for the motion simulator.
type MotionConfig struct {
	// Pointer movement (Fitts's law: MT = A + B*log2(1 + D/W), milliseconds).
	FittsA float64 `mapstructure:"fitts_a" yaml:"fitts_a"`
	FittsB float64 `mapstructure:"fitts_b" yaml:"fitts_b"`

	// Noise layers applied on top of the ideal pointer path.
	GaussianStrength float64 `mapstructure:"gaussian_strength" yaml:"gaussian_strength"`
	PerlinAmplitude  float64 `mapstructure:"perlin_amplitude" yaml:"perlin_amplitude"`

	// Click press-and-hold bounds.
	ClickHoldMin time.Duration `mapstructure:"click_hold_min" yaml:"click_hold_min"`
	ClickHoldMax time.Duration `mapstructure:"click_hold_max" yaml:"click_hold_max"`

	// Scrolling cadence.
	ScrollStepMin     int           `mapstructure:"scroll_step_min" yaml:"scroll_step_min"`
	ScrollStepMax     int           `mapstructure:"scroll_step_max" yaml:"scroll_step_max"`
	ScrollDelayMin    time.Duration `mapstructure:"scroll_delay_min" yaml:"scroll_delay_min"`
	ScrollDelayMax    time.Duration `mapstructure:"scroll_delay_max" yaml:"scroll_delay_max"`
	ScrollReverseProb float64       `mapstructure:"scroll_reverse_prob" yaml:"scroll_reverse_prob"`

	// Long idle breaks.
	BreakMin time.Duration `mapstructure:"break_min" yaml:"break_min"`
	BreakMax time.Duration `mapstructure:"break_max" yaml:"break_max"`
}

func setMotionDefaults(v *viper.Viper) {
	v.SetDefault("motion.fitts_a", 120.0)
	v.SetDefault("motion.fitts_b", 150.0)
	v.SetDefault("motion.gaussian_strength", 0.6)
	v.SetDefault("motion.perlin_amplitude", 2.5)
	v.SetDefault("motion.click_hold_min", "55ms")
	v.SetDefault("motion.click_hold_max", "150ms")
	v.SetDefault("motion.scroll_step_min", 4)
	v.SetDefault("motion.scroll_step_max", 9)
	v.SetDefault("motion.scroll_delay_min", "80ms")
	v.SetDefault("motion.scroll_delay_max", "350ms")
	v.SetDefault("motion.scroll_reverse_prob", 0.12)
	v.SetDefault("motion.break_min", "45s")
	v.SetDefault("motion.break_max", "150s")
}

// Validate checks the motion timing parameters.
func (m *MotionConfig) Validate() error {
	if m.FittsA < 0 || m.FittsB < 0 {
		return fmt.Errorf("fitts coefficients must not be negative")
	}
	if m.ClickHoldMin <= 0 || m.ClickHoldMax < m.ClickHoldMin {
		return fmt.Errorf("click hold bounds are inconsistent")
	}
	if m.ScrollStepMin <= 0 || m.ScrollStepMax < m.ScrollStepMin {
		return fmt.Errorf("scroll step bounds are inconsistent")
	}
	if m.ScrollDelayMin <= 0 || m.ScrollDelayMax < m.ScrollDelayMin {
		return fmt.Errorf("scroll delay bounds are inconsistent")
	}
	if m.ScrollReverseProb < 0 || m.ScrollReverseProb > 1 {
		return fmt.Errorf("scroll_reverse_prob must be within [0,1]")
	}
	if m.BreakMin <= 0 || m.BreakMax < m.BreakMin {
		return fmt.Errorf("break bounds are inconsistent")
	}
	return nil
}
