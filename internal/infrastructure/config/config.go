// Package config loads and validates the fraud engine's configuration
// the way the teacher's infrastructure/config package does: koanf
// layering defaults, then an optional YAML file, then environment
// overrides, into a typed struct.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/moduleforge/fraudscore/internal/domain/apperror"
)

// Config is the full set of options recognized by the engine (spec.md
// §6).
type Config struct {
	Environment          string        `koanf:"environment"`
	FraudThreshold       float64       `koanf:"fraud_threshold"`
	MLScoreWeight        float64       `koanf:"ml_score_weight"`
	GraphScoreWeight     float64       `koanf:"graph_score_weight"`
	BiometricWeight      float64       `koanf:"biometric_weight"`
	MLScoringTimeout     time.Duration `koanf:"ml_scoring_timeout"`
	GraphAnalysisTimeout time.Duration `koanf:"graph_analysis_timeout"`
	BiometricTimeout     time.Duration `koanf:"biometric_timeout"`
	GraphWindowHours     int           `koanf:"graph_window_hours"`
	MinFraudRingSize     int           `koanf:"min_fraud_ring_size"`

	Cache CacheConfig `koanf:"cache"`
}

// CacheConfig configures the History Cache's remote backing store.
type CacheConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	TTLSeconds  int           `koanf:"ttl_seconds"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// TTL returns the cache entry TTL as a time.Duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Addr returns the host:port form redis.Options expects.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaults() *Config {
	return &Config{
		Environment:          "development",
		FraudThreshold:       0.7,
		MLScoreWeight:        0.5,
		GraphScoreWeight:     0.3,
		BiometricWeight:      0.2,
		MLScoringTimeout:     150 * time.Millisecond,
		GraphAnalysisTimeout: 100 * time.Millisecond,
		BiometricTimeout:     100 * time.Millisecond,
		GraphWindowHours:     24,
		MinFraudRingSize:     3,
		Cache: CacheConfig{
			Host:        "localhost",
			Port:        6379,
			TTLSeconds:  3600,
			DialTimeout: 200 * time.Millisecond,
		},
	}
}

// Load builds a Config from defaults, an optional YAML file at path
// (skipped if empty or missing), and environment variables prefixed
// FRAUDSCORE_ (e.g. FRAUDSCORE_FRAUD_THRESHOLD). It validates the
// result before returning.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, apperror.NewConfigError("CONFIG_DEFAULTS", "failed to load default configuration").WithCause(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, apperror.NewConfigError("CONFIG_FILE", "failed to load configuration file "+path).WithCause(err)
		}
	}

	envProvider := env.Provider("FRAUDSCORE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "FRAUDSCORE_")), "_", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, apperror.NewConfigError("CONFIG_ENV", "failed to load environment overrides").WithCause(err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, apperror.NewConfigError("CONFIG_UNMARSHAL", "failed to unmarshal configuration").WithCause(err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the invariants spec.md §6/§7 declare fatal at
// startup: weights must sum to 1.0 and the threshold/weights must be
// within [0,1].
func Validate(cfg *Config) error {
	const epsilon = 1e-6

	sum := cfg.MLScoreWeight + cfg.GraphScoreWeight + cfg.BiometricWeight
	if diff := sum - 1.0; diff > epsilon || diff < -epsilon {
		return apperror.NewConfigError("WEIGHTS_NOT_NORMALIZED", "fusion weights must sum to 1.0")
	}

	for name, w := range map[string]float64{
		"ml_score_weight":    cfg.MLScoreWeight,
		"graph_score_weight": cfg.GraphScoreWeight,
		"biometric_weight":   cfg.BiometricWeight,
		"fraud_threshold":    cfg.FraudThreshold,
	} {
		if w < 0 || w > 1 {
			return apperror.NewConfigError("WEIGHT_OUT_OF_RANGE", name+" must be within [0,1]")
		}
	}

	if cfg.GraphWindowHours <= 0 {
		return apperror.NewConfigError("INVALID_WINDOW", "graph_window_hours must be positive")
	}
	if cfg.MinFraudRingSize < 2 {
		return apperror.NewConfigError("INVALID_RING_SIZE", "min_fraud_ring_size must be at least 2")
	}

	return nil
}
