// Command coreclaimd is the Arbiter daemon and its client-side CLI: serve
// runs the daemon itself; status and acquire are thin clients against a
// (possibly auto-spawned) daemon (spec §4.1, §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sb-labs/coreclaim/internal/arbiter"
	"github.com/sb-labs/coreclaim/internal/metrics"
	"github.com/sb-labs/coreclaim/internal/telemetry"
	"github.com/sb-labs/coreclaim/pkg/client"
	"github.com/sb-labs/coreclaim/pkg/config"
	"github.com/sb-labs/coreclaim/pkg/protocol"
)

var (
	cfgPath  string
	port     int
	maxCores int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coreclaimd",
		Short: "Cluster-local core arbitration daemon and client",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a TOML config file")
	root.PersistentFlags().IntVar(&port, "port", config.DefaultPort, "arbiter TCP port")

	root.AddCommand(newServeCmd(), newStatusCmd(), newAcquireCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the arbiter daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&maxCores, "max-cores", 0, "override the configured core pool size (0 = use config/host default)")
	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("coreclaimd: %w", err)
	}
	if port != config.DefaultPort {
		cfg.Port = port
	}
	if maxCores > 0 {
		cfg.MaxCores = maxCores
	}

	log, err := newLogger(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("coreclaimd: %w", err)
	}
	defer log.Sync()

	if err := daemonize(cfg.LogFile); err != nil {
		log.Warnw("daemonize: continuing in foreground", "err", err)
	}

	tp, err := telemetry.New(ctx, cfg.OTelEndpoint, "coreclaimd")
	if err != nil {
		return fmt.Errorf("coreclaimd: telemetry: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warnw("telemetry shutdown", "err", err)
		}
	}()

	met := metrics.New()
	sch := arbiter.NewScheduler(cfg.MaxCores, log, met)
	srv := arbiter.NewServer(cfg.Port, sch, log, met)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go serveMetrics(cfg.Port+1, met, log)

	return srv.Start(ctx)
}

// serveMetrics exposes met on the arbiter's port+1, a private registry per
// spec of this daemon's own process, never prometheus' global DefaultRegisterer.
func serveMetrics(port int, met *metrics.Registry, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(met.Registerer(), promhttp.HandlerOpts{}))
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warnw("metrics server stopped", "addr", addr, "err", err)
	}
}

// daemonize changes the working directory to a scratch location (spec §4.1
// spawning). For the standard streams it only reassigns the os.Stdin
// variable (and, with no log file, os.Stdout and os.Stderr) to the null
// device; file descriptors 0-2 themselves are not closed or redirected.
// When the daemon was auto-spawned, the detach/fork itself already happened
// in pkg/client before this process was exec'd.
func daemonize(logFile string) error {
	scratch := os.TempDir()
	if err := os.Chdir(scratch); err != nil {
		return fmt.Errorf("chdir %s: %w", scratch, err)
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	os.Stdin = devNull
	if logFile == "" {
		os.Stdout = devNull
		os.Stderr = devNull
	}
	return nil
}

func newLogger(logFile string) (*zap.SugaredLogger, error) {
	if logFile == "" {
		l, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		return l.Sugar(), nil
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{logFile}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the arbiter's current running/waiting queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := client.Dial(cmd.Context(), port, nil)
			if err != nil {
				return err
			}
			defer sess.Close()
			ans, err := sess.Status()
			if err != nil {
				return err
			}
			printStatus(ans)
			return nil
		},
	}
}

func printStatus(ans protocol.StatusAnswer) {
	fmt.Printf("max_cores: %d\n", ans.MaxCores)
	fmt.Println("running:")
	for _, j := range ans.Running {
		fmt.Printf("  id=%d cores=%d priority=%d pid=%d started=%s\n", j.ID, j.Job.Cores, j.Job.Priority, j.Job.PID, j.StartTime.Format("15:04:05"))
	}
	fmt.Println("waiting:")
	for _, j := range ans.Waiting {
		fmt.Printf("  id=%d cores=%d priority=%d pid=%d\n", j.ID, j.Job.Cores, j.Job.Priority, j.Job.PID)
	}
}

func newAcquireCmd() *cobra.Command {
	var cores, priority int
	var tag string
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Hold cores on the arbiter until interrupted, auto-spawning a daemon if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			argv := []string{os.Args[0], "serve", "--port", fmt.Sprint(port)}
			sess, err := client.Dial(cmd.Context(), port, argv)
			if err != nil {
				return err
			}
			defer sess.End()

			req := protocol.JobRequest{Cores: cores, Priority: priority, PID: os.Getpid(), Tag: tag}
			if err := sess.Acquire(req); err != nil {
				return err
			}
			defer sess.Release()

			fmt.Printf("holding %d core(s); press ctrl-c to release\n", cores)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().IntVar(&cores, "cores", 0, "cores to request (0 = exclusive, all cores)")
	cmd.Flags().IntVar(&priority, "priority", 0, "request priority")
	cmd.Flags().StringVar(&tag, "tag", "", "free-form label shown in status")
	return cmd
}
