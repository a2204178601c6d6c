// Package config defines the service configuration and its defaults.
//
// Values are layered by Load: defaults from New, an optional YAML file named by
// KVN_CONFIG, then KVN_* environment variables.
package config

import (
	"github.com/iamofff/kvn-scoring-system/internal/domain/scale"
	"github.com/iamofff/kvn-scoring-system/internal/domain/scoring"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// Store selects the score backend.
	Store      string `koanf:"store" validate:"oneof=memory sqlite"`
	SQLitePath string `koanf:"sqlite_path" validate:"required_if=Store sqlite"`

	// Teams, Judges and Rounds seed the roster on first start. A roster already
	// committed to the store takes precedence.
	Teams  []string `koanf:"teams" validate:"dive,required"`
	Judges []string `koanf:"judges" validate:"dive,required"`
	Rounds []string `koanf:"rounds" validate:"dive,required"`

	// Score scale. ScoreValues, when set, replaces bounds and step.
	ScoreMin    float64   `koanf:"score_min"`
	ScoreMax    float64   `koanf:"score_max" validate:"gtefield=ScoreMin"`
	ScoreStep   float64   `koanf:"score_step" validate:"gte=0"`
	ScoreValues []float64 `koanf:"score_values"`

	// Aggregation policy.
	TrimmedMean   bool   `koanf:"trimmed_mean"`
	TrimThreshold int    `koanf:"trim_threshold" validate:"gte=0"`
	Divisor       string `koanf:"divisor" validate:"oneof=judges responders"`

	// Bearer passwords for the two roles.
	JudgePassword string `koanf:"judge_password" validate:"required"`
	AdminPassword string `koanf:"admin_password" validate:"required,nefield=JudgePassword"`

	// SubmitRate limits POST /scores per second; 0 disables limiting.
	SubmitRate  float64 `koanf:"submit_rate" validate:"gte=0"`
	SubmitBurst int     `koanf:"submit_burst" validate:"gte=0"`
}

// New returns a Config filled with defaults.
func New() *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		Addr:          ":9080",
		Store:         StoreMemory,
		SQLitePath:    "kvn.db",
		Teams:         []string{"Команда 1", "Команда 2", "Команда 3", "Команда 4"},
		Judges:        []string{"Судья 1", "Судья 2", "Судья 3", "Судья 4", "Судья 5"},
		Rounds:        []string{"Приветствие", "Разминка", "СТЭМ", "Музыкалка"},
		ScoreMin:      scale.DefaultMin,
		ScoreMax:      scale.DefaultMax,
		ScoreStep:     scale.DefaultStep,
		Divisor:       string(scoring.DivisorJudges),
		JudgePassword: "kvn",
		AdminPassword: "admin",
		SubmitRate:    50,
		SubmitBurst:   100,
	}
}

// Scale builds the score scale described by the config.
func (c *Config) Scale() scale.Scale {
	if len(c.ScoreValues) > 0 {
		return scale.New(scale.WithValues(c.ScoreValues...))
	}
	return scale.New(scale.WithBounds(c.ScoreMin, c.ScoreMax), scale.WithStep(c.ScoreStep))
}

// ScoringOptions returns the aggregator options described by the config.
func (c *Config) ScoringOptions() []scoring.Option {
	return []scoring.Option{
		scoring.WithDivisor(scoring.Divisor(c.Divisor)),
		scoring.WithTrimmedMean(c.TrimmedMean, c.TrimThreshold),
	}
}
