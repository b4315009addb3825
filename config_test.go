package qrecover

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/pflag"
)

func newFlagSet(args ...string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		panic(err)
	}
	return fs
}

func TestLoadConfig(t *testing.T) {
	Convey("Given no flags, file or environment", t, func() {
		cfg, err := LoadConfig(newFlagSet())

		Convey("The defaults of the harness apply", func() {
			So(err, ShouldBeNil)
			So(cfg.Qubits, ShouldEqual, 10)
			So(cfg.Shots, ShouldEqual, 5000)
			So(cfg.BatchSize, ShouldEqual, 10)
			So(cfg.FillerDepth, ShouldEqual, 4)
			So(cfg.CanonicalOffset, ShouldEqual, 3)
			So(cfg.MaxAttempts, ShouldEqual, DefaultMaxAttempts)
			So(cfg.Gates, ShouldResemble, []string{"ghz"})
			So(cfg.Breaker.ResetTimeout, ShouldEqual, 30*time.Second)
			So(cfg.Rate.Refill, ShouldEqual, 10*time.Millisecond)
		})
	})

	Convey("Given flags and positional gates", t, func() {
		fs := newFlagSet("--shots=200", "--batch-size=20", "--seed=42", "--breaker-max-failures=3", "--retry-initial-backoff=5ms", "wstate", "qft")
		cfg, err := LoadConfig(fs, fs.Args()...)

		So(err, ShouldBeNil)
		So(cfg.Shots, ShouldEqual, 200)
		So(cfg.BatchSize, ShouldEqual, 20)
		So(cfg.Seed, ShouldEqual, uint64(42))
		So(cfg.Breaker.MaxFailures, ShouldEqual, 3)
		So(cfg.Retry.InitialBackoff, ShouldEqual, 5*time.Millisecond)
		So(cfg.Gates, ShouldResemble, []string{"wstate", "qft"})
	})

	Convey("Given a config file", t, func() {
		path := filepath.Join(t.TempDir(), "qrecover.yaml")
		yaml := `shots: 1000
filler_depth: 2
gates: [ghz, grover]
breaker:
  max_failures: 5
  reset_timeout: 1s
`
		So(os.WriteFile(path, []byte(yaml), 0o644), ShouldBeNil)

		cfg, err := LoadConfig(newFlagSet("--config="+path, "--filler-depth=6"))

		So(err, ShouldBeNil)
		So(cfg.Shots, ShouldEqual, 1000)
		So(cfg.FillerDepth, ShouldEqual, 6)
		So(cfg.Gates, ShouldResemble, []string{"ghz", "grover"})
		So(cfg.Breaker.MaxFailures, ShouldEqual, 5)
		So(cfg.Breaker.ResetTimeout, ShouldEqual, time.Second)

		Convey("A missing file is an error", func() {
			_, err := LoadConfig(newFlagSet("--config=" + filepath.Join(t.TempDir(), "gone.yaml")))
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given invalid settings", t, func() {
		cfg, err := LoadConfig(newFlagSet("--shots=0", "--max-attempts=0"))

		So(cfg, ShouldBeNil)
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)

		var cfgErr *ConfigError
		So(errors.As(err, &cfgErr), ShouldBeTrue)
		So(cfgErr.Field, ShouldEqual, "shots")
		So(err.Error(), ShouldContainSubstring, "max_attempts")
	})
}

func TestLoadConfigEnvironment(t *testing.T) {
	Convey("Given the environment", t, func() {
		t.Setenv("QRECOVER_QUBITS", "7")
		t.Setenv("QRECOVER_RATE_MAX_TOKENS", "4")

		Convey("It overrides defaults", func() {
			cfg, err := LoadConfig(newFlagSet())

			So(err, ShouldBeNil)
			So(cfg.Qubits, ShouldEqual, 7)
			So(cfg.Rate.MaxTokens, ShouldEqual, 4)
		})

		Convey("Explicit flags win over it", func() {
			cfg, err := LoadConfig(newFlagSet("--qubits=12"))

			So(err, ShouldBeNil)
			So(cfg.Qubits, ShouldEqual, 12)
		})
	})
}

func TestFlagKey(t *testing.T) {
	Convey("Flag names map onto viper keys", t, func() {
		So(flagKey("batch-size"), ShouldEqual, "batch_size")
		So(flagKey("breaker-max-failures"), ShouldEqual, "breaker.max_failures")
		So(flagKey("rate-refill"), ShouldEqual, "rate.refill")
		So(flagKey("retry-initial-backoff"), ShouldEqual, "retry.initial_backoff")
		So(flagKey("seed"), ShouldEqual, "seed")
	})
}

func TestConfigBuilders(t *testing.T) {
	Convey("Given a configuration", t, func() {
		cfg := NewConfig()
		cfg.BaselineShots = 300
		block := ghzBlock()

		Convey("Baseline experiments use the baseline shot count", func() {
			exp := cfg.Experiment("ghz", block, Baseline)
			So(exp.Shots, ShouldEqual, 300)
			So(exp.Validate(), ShouldBeNil)

			exp = cfg.Experiment("ghz", block, Dynamic)
			So(exp.Shots, ShouldEqual, 5000)
			So(exp.Mode, ShouldEqual, Dynamic)
			So(exp.CanonicalOffset, ShouldEqual, 3)
		})

		Convey("The runner wraps the executor as configured", func() {
			exec := &echoExecutor{}

			runner, err := cfg.Runner(exec, nil)
			So(err, ShouldBeNil)
			So(runner.Executor, ShouldEqual, exec)
			So(runner.Breaker, ShouldBeNil)
			So(runner.Metrics, ShouldNotBeNil)

			cfg.Rate.MaxTokens = 2
			cfg.Breaker.MaxFailures = 1
			cfg.Retry.InitialBackoff = time.Millisecond

			runner, err = cfg.Runner(exec, nil)
			So(err, ShouldBeNil)
			So(runner.Executor, ShouldNotEqual, exec)
			So(runner.Breaker, ShouldNotBeNil)
			So(runner.Backoff, ShouldHaveSameTypeAs, &ExponentialBackoff{})
		})

		Convey("A filler library without single-qubit gates is rejected", func() {
			cfg.FillerGates = []string{"cx"}

			_, err := cfg.Runner(&echoExecutor{}, nil)
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Chart paths carry the gate name", func() {
			So(cfg.ChartPath("ghz"), ShouldEqual, "obfuscation_ghz.svg")

			cfg.Chart = ""
			So(cfg.ChartPath("ghz"), ShouldEqual, "")
		})
	})
}
