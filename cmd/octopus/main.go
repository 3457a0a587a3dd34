// Command octopus decides observable-state equivalence between two
// packet parsers by symbolic bisimulation (spec.md).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jortvanleenen/octopus"
)

const version = "0.1.0"

type cliFlags struct {
	json                     bool
	naive                    bool
	disableLeaps             bool
	output                   string
	failOnMismatch           bool
	stat                     bool
	solvers                  string
	solversGlobalOptions     string
	fallbackToNaiveOnUnknown bool
	verbosity                int
}

func main() {
	flags := &cliFlags{}
	root := &cobra.Command{
		Use:     "octopus FILE1 FILE2",
		Short:   "Decide observable-state equivalence of two packet parsers",
		Version: version,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags, args[0], args[1])
		},
		SilenceUsage: true,
	}
	root.Flags().BoolVarP(&flags.json, "json", "j", false, "inputs are IR JSON (skip compiler invocation)")
	root.Flags().BoolVarP(&flags.naive, "naive", "n", false, "use the naive bisimulation engine only")
	root.Flags().BoolVarP(&flags.disableLeaps, "disable_leaps", "L", false, "disable the leaps optimisation")
	root.Flags().StringVarP(&flags.output, "output", "o", "", "write certificate/counterexample to FILE instead of stdout")
	root.Flags().BoolVarP(&flags.failOnMismatch, "fail-on-mismatch", "f", false, "exit 1 on non-equivalence")
	root.Flags().BoolVarP(&flags.stat, "stat", "S", false, "print wall-time and peak memory to stderr")
	root.Flags().StringVarP(&flags.solvers, "solvers", "s", "z3", "comma-separated solver portfolio, e.g. \"z3,stub\"")
	root.Flags().StringVar(&flags.solversGlobalOptions, "solvers-global-options", "", "JSON object of defaults applied to each solver")
	root.Flags().BoolVar(&flags.fallbackToNaiveOnUnknown, "fallback-to-naive-on-unknown", false, "rerun with the naive engine if a solver query is unknown during the leaps run")
	root.Flags().CountVarP(&flags.verbosity, "verbose", "v", "increase verbosity (-v/-vv/-vvv)")

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func run(flags *cliFlags, file1, file2 string) error {
	log := newLogger(flags.verbosity)
	start := time.Now()

	p1, err := octopus.LoadFile(file1, flags.json)
	if err != nil {
		return err
	}
	p2, err := octopus.LoadFile(file2, flags.json)
	if err != nil {
		return err
	}

	sess, err := openSession(flags, log)
	if err != nil {
		return err
	}
	defer sess.Close()

	cfg := octopus.NewConfig()
	cfg.SetBool("engine.naive", flags.naive)
	cfg.SetBool("engine.disable_leaps", flags.disableLeaps)
	cfg.SetBool("engine.fallback_to_naive_on_unknown", flags.fallbackToNaiveOnUnknown)

	engine := octopus.NewEngine(p1, p2, sess, cfg, log)

	var rel *octopus.Relation
	var cex *octopus.Counterexample
	if cfg.GetBool("engine.naive") {
		rel, cex, err = engine.RunNaive(context.Background())
	} else {
		rel, cex, err = engine.RunLeaps(context.Background())
	}
	if err != nil {
		return err
	}

	out := os.Stdout
	if flags.output != "" {
		f, ferr := os.Create(flags.output)
		if ferr != nil {
			return octopus.NewInputError("creating %s: %s", flags.output, ferr)
		}
		defer f.Close()
		out = f
	}

	if flags.stat {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		fmt.Fprintf(os.Stderr, "time: %s, peak memory: %d bytes\n", time.Since(start), mem.Sys)
	}

	if cex != nil {
		fmt.Fprintln(out, cex.String())
		if flags.failOnMismatch {
			os.Exit(1)
		}
		return nil
	}

	fmt.Fprintln(out, rel.String())
	return nil
}

func openSession(flags *cliFlags, log *logrus.Entry) (*octopus.Session, error) {
	specs, err := parseSolverSpec(flags.solvers)
	if err != nil {
		return nil, err
	}
	global := octopus.SolverOptions{TimeoutMs: 10_000, Incremental: true, GenerateModels: true}
	if flags.solversGlobalOptions != "" {
		if err := json.Unmarshal([]byte(flags.solversGlobalOptions), &global); err != nil {
			return nil, octopus.NewInputError("parsing --solvers-global-options: %s", err)
		}
	}
	return octopus.Open(specs, global, log)
}

func parseSolverSpec(spec string) ([]octopus.SolverOptions, error) {
	var out []octopus.SolverOptions
	name := ""
	for _, r := range spec + "," {
		if r == ',' {
			if name != "" {
				out = append(out, octopus.SolverOptions{Name: name})
			}
			name = ""
			continue
		}
		name += string(r)
	}
	if len(out) == 0 {
		return nil, octopus.NewInputError("empty solver spec")
	}
	return out, nil
}

func newLogger(verbosity int) *logrus.Entry {
	l := logrus.New()
	switch {
	case verbosity >= 3:
		l.SetLevel(logrus.TraceLevel)
	case verbosity == 2:
		l.SetLevel(logrus.DebugLevel)
	case verbosity == 1:
		l.SetLevel(logrus.InfoLevel)
	default:
		l.SetLevel(logrus.WarnLevel)
	}
	return logrus.NewEntry(l)
}

func exitCodeFor(err error) int {
	return octopus.ExitCode(err)
}
