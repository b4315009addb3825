package qrecover

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything a run of the harness can be tuned with.
type Config struct {
	Qubits          int           `mapstructure:"qubits"`
	Shots           int           `mapstructure:"shots"`
	BatchSize       int           `mapstructure:"batch_size"`
	BaselineShots   int           `mapstructure:"baseline_shots"`
	FillerDepth     int           `mapstructure:"filler_depth"`
	MaxOperands     int           `mapstructure:"max_operands"`
	CanonicalOffset int           `mapstructure:"canonical_offset"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Workers         int           `mapstructure:"workers"`
	Seed            uint64        `mapstructure:"seed"`
	PartialBatch    bool          `mapstructure:"partial_batch"`
	TopN            int           `mapstructure:"top_n"`
	Gates           []string      `mapstructure:"gates"`
	FillerGates     []string      `mapstructure:"filler_gates"`
	CircuitDir      string        `mapstructure:"circuit_dir"`
	Expected        string        `mapstructure:"expected"`
	Chart           string        `mapstructure:"chart"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
	Rate            RateConfig    `mapstructure:"rate"`
	Retry           RetryConfig   `mapstructure:"retry"`
}

// BreakerConfig tunes the executor circuit breaker; MaxFailures 0 disables it.
type BreakerConfig struct {
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
	HalfOpenMax  int           `mapstructure:"half_open_max"`
}

// RateConfig tunes the executor token bucket; MaxTokens 0 disables it.
type RateConfig struct {
	MaxTokens int           `mapstructure:"max_tokens"`
	Refill    time.Duration `mapstructure:"refill"`
}

// RetryConfig tunes the pause between attempts; zero retries immediately.
type RetryConfig struct {
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

// NewConfig returns the defaults: 10 qubits, the block at
// offset 3, 5000 shots in batches of 10 and filler depth 4.
func NewConfig() *Config {
	return &Config{
		Qubits:          10,
		Shots:           5000,
		BatchSize:       10,
		BaselineShots:   0,
		FillerDepth:     4,
		MaxOperands:     2,
		CanonicalOffset: 3,
		MaxAttempts:     DefaultMaxAttempts,
		Workers:         runtime.NumCPU(),
		Gates:           []string{"ghz"},
		Chart:           "obfuscation_{gate}.svg",
		Breaker: BreakerConfig{
			MaxFailures:  0,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  1,
		},
		Rate: RateConfig{
			Refill: 10 * time.Millisecond,
		},
	}
}

// setDefaults registers every default with v so files and the environment override them key by key.
func (cfg *Config) setDefaults(v *viper.Viper) {
	v.SetDefault("qubits", cfg.Qubits)
	v.SetDefault("shots", cfg.Shots)
	v.SetDefault("batch_size", cfg.BatchSize)
	v.SetDefault("baseline_shots", cfg.BaselineShots)
	v.SetDefault("filler_depth", cfg.FillerDepth)
	v.SetDefault("max_operands", cfg.MaxOperands)
	v.SetDefault("canonical_offset", cfg.CanonicalOffset)
	v.SetDefault("max_attempts", cfg.MaxAttempts)
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("seed", cfg.Seed)
	v.SetDefault("partial_batch", cfg.PartialBatch)
	v.SetDefault("top_n", cfg.TopN)
	v.SetDefault("gates", cfg.Gates)
	v.SetDefault("filler_gates", cfg.FillerGates)
	v.SetDefault("circuit_dir", cfg.CircuitDir)
	v.SetDefault("expected", cfg.Expected)
	v.SetDefault("chart", cfg.Chart)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("breaker.max_failures", cfg.Breaker.MaxFailures)
	v.SetDefault("breaker.reset_timeout", cfg.Breaker.ResetTimeout)
	v.SetDefault("breaker.half_open_max", cfg.Breaker.HalfOpenMax)
	v.SetDefault("rate.max_tokens", cfg.Rate.MaxTokens)
	v.SetDefault("rate.refill", cfg.Rate.Refill)
	v.SetDefault("retry.initial_backoff", cfg.Retry.InitialBackoff)
}

/*
RegisterFlags adds a flag for every configuration key to fs. Flag names use dashes; they
are bound to the matching viper keys by LoadConfig.
*/
func RegisterFlags(fs *pflag.FlagSet) {
	def := NewConfig()

	fs.String("config", "", "configuration file (yaml, json or toml)")
	fs.Int("qubits", def.Qubits, "total register width N")
	fs.Int("shots", def.Shots, "shot budget S of each obfuscated experiment")
	fs.Int("batch-size", def.BatchSize, "shots per trial b")
	fs.Int("baseline-shots", def.BaselineShots, "shots of the baseline run (0 uses --shots)")
	fs.Int("filler-depth", def.FillerDepth, "layers of random filler")
	fs.Int("max-operands", def.MaxOperands, "largest filler gate arity")
	fs.Int("canonical-offset", def.CanonicalOffset, "block offset of baseline and static runs")
	fs.Int("max-attempts", def.MaxAttempts, "attempts per trial K")
	fs.Int("workers", def.Workers, "concurrent trial workers")
	fs.Uint64("seed", def.Seed, "run seed (0 draws a random one)")
	fs.Bool("partial-batch", def.PartialBatch, "run the remainder of the shot budget as a final smaller trial")
	fs.Int("top-n", def.TopN, "states summed for dominant mass (0 derives it from the expected distribution)")
	fs.StringSlice("filler-gates", def.FillerGates, "gate library of the random filler")
	fs.String("circuit-dir", def.CircuitDir, "directory searched for <gate>.qasm before the catalog")
	fs.String("expected", def.Expected, "expected distribution of a .qasm gate as key=prob,...")
	fs.String("chart", def.Chart, "chart path; {gate} is replaced by the gate name, empty disables")
	fs.String("metrics-addr", def.MetricsAddr, "serve prometheus metrics on this address")
	fs.Int("breaker-max-failures", def.Breaker.MaxFailures, "consecutive executor failures that open the breaker (0 disables)")
	fs.Duration("breaker-reset-timeout", def.Breaker.ResetTimeout, "how long the breaker stays open")
	fs.Int("rate-max-tokens", def.Rate.MaxTokens, "executor call burst (0 disables rate limiting)")
	fs.Duration("rate-refill", def.Rate.Refill, "time per executor call token")
	fs.Duration("retry-initial-backoff", def.Retry.InitialBackoff, "pause before the second attempt, doubling after")
}

// flagKey maps a flag name onto its viper key.
func flagKey(name string) string {
	for _, group := range []string{"breaker", "rate", "retry"} {
		if rest, ok := strings.CutPrefix(name, group+"-"); ok {
			return group + "." + strings.ReplaceAll(rest, "-", "_")
		}
	}
	return strings.ReplaceAll(name, "-", "_")
}

/*
LoadConfig layers defaults, an optional config file, QRECOVER_* environment variables
and any flags that were set explicitly, in increasing priority.

Parameters:
  - fs: a flag set prepared with RegisterFlags, or nil
  - args: positional gate names, which replace the configured gate list when present

Returns:
  - *Config: the merged configuration
  - error: a file, decoding or validation error
*/
func LoadConfig(fs *pflag.FlagSet, args ...string) (*Config, error) {
	v := viper.New()
	cfg := NewConfig()
	cfg.setDefaults(v)

	v.SetEnvPrefix("QRECOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(flagKey(f.Name), f)
		})
		if bindErr != nil {
			return nil, bindErr
		}

		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if len(args) > 0 {
		cfg.Gates = args
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no experiment could run with.
func (cfg *Config) Validate() error {
	var errs []error
	check := func(ok bool, field string, format string, args ...any) {
		if !ok {
			errs = append(errs, &ConfigError{Field: field, Err: fmt.Errorf(format, args...)})
		}
	}

	check(cfg.Qubits >= 1, "qubits", "must be at least 1, got %d", cfg.Qubits)
	check(cfg.Shots >= 1, "shots", "must be at least 1, got %d", cfg.Shots)
	check(cfg.BatchSize >= 1, "batch_size", "must be at least 1, got %d", cfg.BatchSize)
	check(cfg.BaselineShots >= 0, "baseline_shots", "must not be negative, got %d", cfg.BaselineShots)
	check(cfg.FillerDepth >= 1, "filler_depth", "must be at least 1, got %d", cfg.FillerDepth)
	check(cfg.MaxAttempts >= 1, "max_attempts", "must be at least 1, got %d", cfg.MaxAttempts)
	check(cfg.TopN >= 0, "top_n", "must not be negative, got %d", cfg.TopN)
	check(len(cfg.Gates) > 0, "gates", "no gate named")

	return errors.Join(errs...)
}

/*
Experiment builds the experiment of one gate block in the given mode from the
configuration. Baseline runs use BaselineShots when it is set.
*/
func (cfg *Config) Experiment(name string, block *GateBlock, mode Mode) Experiment {
	shots := cfg.Shots
	if mode == Baseline && cfg.BaselineShots > 0 {
		shots = cfg.BaselineShots
	}

	return Experiment{
		Name:            name,
		Qubits:          cfg.Qubits,
		Block:           block,
		Shots:           shots,
		BatchSize:       cfg.BatchSize,
		FillerDepth:     cfg.FillerDepth,
		Mode:            mode,
		CanonicalOffset: cfg.CanonicalOffset,
		MaxAttempts:     cfg.MaxAttempts,
		Workers:         cfg.Workers,
		Seed:            cfg.Seed,
		PartialBatch:    cfg.PartialBatch,
	}
}

/*
Runner assembles the executor stack the configuration describes: exec, throttled by a
token bucket when Rate.MaxTokens is set, guarded by a breaker when Breaker.MaxFailures
is set, with the random filler and backoff configured.
*/
func (cfg *Config) Runner(exec Executor, metrics *Metrics) (*Runner, error) {
	filler, err := NewRandomFiller(cfg.MaxOperands, cfg.FillerGates...)
	if err != nil {
		return nil, &ConfigError{Field: "filler_gates", Err: err}
	}

	if cfg.Rate.MaxTokens > 0 {
		exec = Throttled(exec, NewRateLimiter(cfg.Rate.MaxTokens, cfg.Rate.Refill))
	}

	var breaker *CircuitBreaker
	if cfg.Breaker.MaxFailures > 0 {
		breaker = NewCircuitBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.ResetTimeout, cfg.Breaker.HalfOpenMax)
	}

	var backoff RetryStrategy = NoBackoff{}
	if cfg.Retry.InitialBackoff > 0 {
		backoff = &ExponentialBackoff{Initial: cfg.Retry.InitialBackoff}
	}

	if metrics == nil {
		metrics = NewMetrics()
	}

	return &Runner{
		Executor: exec,
		Filler:   filler,
		Metrics:  metrics,
		Breaker:  breaker,
		Backoff:  backoff,
	}, nil
}

// ChartPath returns the chart file for gate, or "" when charts are disabled.
func (cfg *Config) ChartPath(gate string) string {
	if cfg.Chart == "" {
		return ""
	}
	return strings.ReplaceAll(cfg.Chart, "{gate}", gate)
}
