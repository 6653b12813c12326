// Package scorer computes weighted profile completeness.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-profiler/internal/model"
)

// Weights are the per-field contributions to the completeness percentage.
type Weights struct {
	Required float64 `yaml:"required" mapstructure:"required"`
	Optional float64 `yaml:"optional" mapstructure:"optional"`
}

// Threshold maps a minimum percentage (inclusive) to a status.
type Threshold struct {
	Status model.Status `yaml:"status"`
	Min    float64      `yaml:"min"`
}

// Config is the scoring policy.
type Config struct {
	Weights      Weights     `yaml:"weights"`
	Thresholds   []Threshold `yaml:"thresholds"`
	Placeholders []string    `yaml:"placeholders"`
}

// DefaultPlaceholders are values treated as absent.
var DefaultPlaceholders = []string{
	"n/a", "na", "unknown", "none", "null",
	"not available", "not specified", "not specified in sec documents",
	"-", "tbd",
}

// DefaultConfig returns the default scoring policy: required fields weigh 2,
// optional 1; Excellent >= 95, Good >= 75, Partial >= 40, otherwise Poor.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{Required: 2, Optional: 1},
		Thresholds: []Threshold{
			{Status: model.StatusExcellent, Min: 95},
			{Status: model.StatusGood, Min: 75},
			{Status: model.StatusPartial, Min: 40},
			{Status: model.StatusPoor, Min: 0},
		},
		Placeholders: append([]string(nil), DefaultPlaceholders...),
	}
}

// ValidateConfig checks that a Config is internally consistent.
func ValidateConfig(c Config) error {
	var errs []string

	if c.Weights.Required < 0 || c.Weights.Optional < 0 {
		errs = append(errs, "weights must be >= 0")
	}
	if c.Weights.Required+c.Weights.Optional <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}

	if len(c.Thresholds) == 0 {
		errs = append(errs, "at least one threshold is required")
	}
	seen := make(map[model.Status]bool, len(c.Thresholds))
	for i, th := range c.Thresholds {
		if _, ok := model.ParseStatus(string(th.Status)); !ok {
			errs = append(errs, fmt.Sprintf("threshold %d: unknown status %q", i, th.Status))
		}
		if seen[th.Status] {
			errs = append(errs, fmt.Sprintf("threshold %d: duplicate status %q", i, th.Status))
		}
		seen[th.Status] = true
		if th.Min < 0 || th.Min > 100 {
			errs = append(errs, fmt.Sprintf("threshold %d: min must be between 0 and 100", i))
		}
		if i > 0 && th.Min >= c.Thresholds[i-1].Min {
			errs = append(errs, fmt.Sprintf("threshold %d: mins must be strictly descending", i))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
