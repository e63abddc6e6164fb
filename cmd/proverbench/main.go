// Command proverbench runs a batch of provers against a set of problems
// through the Executor, optionally under an Arbiter lock, and reports
// per-problem agreement with each problem's expected classification (spec
// §4.3, §6 "CLI exit codes").
package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sb-labs/coreclaim/internal/executor"
	"github.com/sb-labs/coreclaim/internal/orchestrator"
	"github.com/sb-labs/coreclaim/internal/telemetry"
	"github.com/sb-labs/coreclaim/pkg/config"
	"github.com/sb-labs/coreclaim/pkg/protocol"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRunCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return exitCode
}

// exitCode carries the batch outcome out of RunE, since cobra's Execute
// only reports an error/non-error verdict, not the three-way exit code
// spec §6 requires (0 success, 1 disagreement, 2 argument/parse error).
var exitCode int

func newRunCmd() *cobra.Command {
	var (
		cfgPath       string
		proverNames   []string
		timeoutS      float64
		memoryMB      int
		parallelism   int
		withLock      bool
		port          int
		snapshotDir   string
		meta          string
	)

	cmd := &cobra.Command{
		Use:   "proverbench [problem files...]",
		Short: "Benchmark provers against a set of problem files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				exitCode = 2
				return err
			}
			if !cmd.Flags().Changed("j") {
				parallelism = cfg.Parallelism
			}
			if !cmd.Flags().Changed("port") {
				port = cfg.Port
			}

			provers, err := resolveProvers(cfg, proverNames)
			if err != nil {
				exitCode = 2
				return err
			}

			log, err := zap.NewProduction()
			if err != nil {
				exitCode = 2
				return err
			}
			defer log.Sync()
			sl := log.Sugar()

			tp, err := telemetry.New(cmd.Context(), cfg.OTelEndpoint, "proverbench")
			if err != nil {
				exitCode = 2
				return err
			}
			defer tp.Shutdown(context.Background())

			cache, err := executor.NewCache(cfg.CacheDir, cfg.CacheTTL, sl)
			if err != nil {
				exitCode = 2
				return err
			}

			var exec *executor.Executor
			if cfg.Sandbox == "docker" {
				exec, err = executor.NewDocker(parallelism, cache, sl)
			} else {
				exec = executor.New(parallelism, cache, sl)
			}
			if err != nil {
				exitCode = 2
				return err
			}

			store, err := orchestrator.NewStore(snapshotDir)
			if err != nil {
				exitCode = 2
				return err
			}

			orch := orchestrator.New(exec, store, sl)

			batch := orchestrator.Batch{
				Provers:       provers,
				ProblemPaths:  args,
				TimeoutS:      timeoutS,
				MemoryMB:      memoryMB,
				Parallelism:   parallelism,
				WithLock:      withLock,
				Port:          port,
				DaemonArgv:    []string{"coreclaimd", "serve", "--port", fmt.Sprint(port)},
				DefaultExpect: cfg.DefaultExpect,
				Meta:          meta,
			}

			var mu sync.Mutex
			disagreements := 0
			snap, err := orch.Run(context.Background(), batch, func(res protocol.Result) {
				mu.Lock()
				defer mu.Unlock()
				status := "ok"
				if !res.Agrees() {
					disagreements++
					status = "DISAGREE"
				}
				fmt.Printf("[%s] %s / %s -> %s (expected %s)\n", status, res.Prover.Name, res.Problem.Path, res.Classification, res.Problem.Expected)
			})
			if err != nil {
				exitCode = 2
				return err
			}

			fmt.Printf("snapshot %s: %d event(s), %d disagreement(s)\n", snap.UUID, len(snap.Events), disagreements)
			if disagreements > 0 {
				exitCode = 1
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a TOML config file")
	cmd.Flags().StringSliceVar(&proverNames, "prover", nil, "prover name(s) from the config file (default: all configured provers)")
	cmd.Flags().Float64Var(&timeoutS, "timeout", 60, "per-run timeout in seconds")
	cmd.Flags().IntVar(&memoryMB, "memory", 2048, "per-run memory limit in MB")
	cmd.Flags().IntVar(&parallelism, "j", 1, "bounded parallelism")
	cmd.Flags().BoolVar(&withLock, "with-lock", false, "acquire an arbiter lock for the whole batch")
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "arbiter port (with --with-lock)")
	cmd.Flags().StringVar(&snapshotDir, "snapshot-dir", "snapshots", "directory snapshots are written to")
	cmd.Flags().StringVar(&meta, "meta", "", "free-form note stored with the snapshot")
	return cmd
}

func resolveProvers(cfg *config.Config, names []string) ([]protocol.Prover, error) {
	if len(names) == 0 {
		return cfg.Provers, nil
	}
	provers := make([]protocol.Prover, 0, len(names))
	for _, n := range names {
		p, ok := cfg.ProverByName(n)
		if !ok {
			return nil, fmt.Errorf("proverbench: unknown prover %q", n)
		}
		provers = append(provers, p)
	}
	return provers, nil
}
