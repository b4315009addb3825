package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/theapemachine/errnie"
	"github.com/theapemachine/qrecover"
)

const usage = `qrecover runs gate blocks inside random obfuscating circuits and measures how
much of their output distribution survives recovery.

usage: qrecover [flags] [gate...]

gates are catalog names (%s) or .qasm files.

`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is the whole command; it returns the process exit code so deferred cleanup always runs.
func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("qrecover", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	qrecover.RegisterFlags(fs)
	dumpQASM := fs.Bool("dump-qasm", false, "print the baseline circuit of each gate as OpenQASM before running")
	list := fs.Bool("list", false, "list the built-in gates and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, usage, qrecover.CatalogNames())
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *list {
		for _, name := range qrecover.CatalogNames() {
			entry, err := qrecover.Lookup(name)
			if err != nil {
				return fail(stderr, err)
			}
			fmt.Fprintf(stdout, "%-8s %d qubits  %s\n", name, entry.Block.Width(), entry.Description)
		}
		return 0
	}

	cfg, err := qrecover.LoadConfig(fs, fs.Args()...)
	if err != nil {
		return fail(stderr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	metrics := qrecover.NewMetrics()
	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, cfg.MetricsAddr, metrics)
	}

	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}
	errnie.Info("run seed %d", cfg.Seed)

	runner, err := cfg.Runner(qrecover.NewStateVector(cfg.Seed), metrics)
	if err != nil {
		return fail(stderr, err)
	}

	for _, gate := range cfg.Gates {
		if err := runGate(ctx, stdout, cfg, runner, gate, *dumpQASM); err != nil {
			return fail(stderr, err)
		}
	}

	errnie.Info("run metrics %v", metrics.ExportMetrics())
	return 0
}

// runGate runs the baseline, static and dynamic experiments of one gate and reports them.
func runGate(
	ctx context.Context, w io.Writer, cfg *qrecover.Config, runner *qrecover.Runner, gate string, dump bool,
) error {
	entry, err := qrecover.ResolveGate(gate, cfg.CircuitDir, cfg.Expected)
	if err != nil {
		return err
	}

	if dump {
		qc, err := qrecover.Compose(cfg.Qubits, entry.Block, cfg.CanonicalOffset, true)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, qc.QASM())
	}

	results := make(map[qrecover.Mode]*qrecover.Result)
	for _, mode := range []qrecover.Mode{qrecover.Baseline, qrecover.Static, qrecover.Dynamic} {
		result, err := runner.Run(ctx, cfg.Experiment(entry.Name, entry.Block, mode))
		if err != nil {
			return fmt.Errorf("%s %s: %w", entry.Name, mode, err)
		}
		results[mode] = result
	}

	blocks := []struct {
		title string
		dist  qrecover.Distribution
	}{
		{"Baseline Counts", results[qrecover.Baseline].Raw},
		{"Static Obfuscation Recovered Counts", results[qrecover.Static].Recovered},
		{"Dynamic Obfuscation Recovered Counts", results[qrecover.Dynamic].Recovered},
	}
	for _, block := range blocks {
		if err := qrecover.WriteCounts(w, block.title, block.dist); err != nil {
			return err
		}
	}

	analysis, err := qrecover.Analyze(qrecover.AnalysisInput{
		Name:            entry.Name,
		Layout:          results[qrecover.Baseline].Layout,
		CanonicalOffset: cfg.CanonicalOffset,
		Expected:        entry.Expected,
		Baseline:        results[qrecover.Baseline],
		Static:          results[qrecover.Static],
		Dynamic:         results[qrecover.Dynamic],
		TopN:            cfg.TopN,
	})
	if err != nil {
		return err
	}

	if err := qrecover.WriteSummary(w, analysis); err != nil {
		return err
	}

	if path := cfg.ChartPath(entry.Name); path != "" {
		if err := qrecover.WriteChart(path, analysis); err != nil {
			return err
		}
		fmt.Fprintf(w, "chart written to %s\n", path)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, metrics *qrecover.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		errnie.Info("serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errnie.Warn("metrics server: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
}

// fail prints err with a hint for the error classes a user can act on and returns exit code 1.
func fail(w io.Writer, err error) int {
	fmt.Fprintf(w, "qrecover: %v\n", err)

	var (
		trialErr  *qrecover.TrialError
		configErr *qrecover.ConfigError
	)
	switch {
	case errors.As(err, &trialErr):
		fmt.Fprintf(w,
			"hint: trial %d at offset %d failed %d times; raise --max-attempts or narrow --filler-gates\n",
			trialErr.Trial, trialErr.Offset, trialErr.Attempts,
		)
	case errors.As(err, &configErr):
		fmt.Fprintf(w, "hint: check --%s\n", strings.ReplaceAll(configErr.Field, "_", "-"))
	case errors.Is(err, qrecover.ErrUnknownGate):
		fmt.Fprintln(w, "hint: run qrecover --list for the built-in gates")
	case errors.Is(err, qrecover.ErrBreakerOpen):
		fmt.Fprintln(w, "hint: the executor kept failing; see --breaker-max-failures")
	}

	return 1
}
