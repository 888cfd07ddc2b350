package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/duelr"
	"github.com/loykin/duelr/internal/logger"
	"github.com/loykin/duelr/internal/metrics"
	"github.com/loykin/duelr/internal/series"
	"github.com/loykin/duelr/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys maps run command flags to config keys.
var flagKeys = map[string]string{
	"games":             "games",
	"move-timeout":      "move_timeout",
	"time-limit":        "time_limit",
	"startup-grace":     "startup_grace",
	"ready-timeout":     "ready_timeout",
	"poll-interval":     "poll_interval",
	"max-poll-failures": "max_poll_failures",
	"verbose":           "verbose",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"log-dir":           "log.dir",
	"metrics":           "metrics.enabled",
	"metrics-listen":    "metrics.listen",
	"history":           "history.enabled",
	"history-dsn":       "history.dsn",
	"server":            "server.enabled",
	"server-listen":     "server.listen",
}

func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	runFlags := &RunFlags{}
	v := duelr.NewViper()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch both engines and play the series",
		Long: `Launch both engines, wait for them to come up, play the configured number
of games alternating colors and stop both engines afterwards.

Engine 1 is usually a fixed artifact and engine 2 the highest versioned
chess-engine-X.Y.Z.jar in a build directory.

Examples:
  duelr run --engine1=/opt/engines/chess-engine-2.9.0.jar --engine2-dir=target
  duelr run --config=duelr.toml --games=20 --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSeries(ctx, v, globalFlags.ConfigPath, runFlags, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&runFlags.Engine1, "engine1", "", "artifact of engine 1")
	f.StringVar(&runFlags.Engine1Dir, "engine1-dir", "", "directory to pick the newest engine 1 artifact from")
	f.StringVar(&runFlags.Engine2, "engine2", "", "artifact of engine 2")
	f.StringVar(&runFlags.Engine2Dir, "engine2-dir", "", "directory to pick the newest engine 2 artifact from")
	f.StringVar(&runFlags.RunID, "run-id", "", "identifier recorded with history events (default: random uuid)")
	f.Int("games", 100, "number of games to play")
	f.Duration("move-timeout", 3*time.Second, "maximum time an engine may go without a new move")
	f.Int("time-limit", 200, "time limit forwarded to the engines")
	f.Duration("startup-grace", 10*time.Second, "wait after launch before probing the engines")
	f.Duration("ready-timeout", 0, "keep probing this long after the grace period")
	f.Duration("poll-interval", 0, "minimum spacing between polling rounds")
	f.Int("max-poll-failures", 10, "consecutive lastMove failures tolerated per engine")
	f.Bool("verbose", false, "keep engine stdout/stderr")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "text", "log format (text, json)")
	f.String("log-dir", "", "directory for rotated engine output when verbose")
	f.Bool("metrics", false, "serve prometheus metrics")
	f.String("metrics-listen", ":9090", "metrics listen address")
	f.Bool("history", false, "record games to the history sink")
	f.String("history-dsn", "sqlite://duelr-history.db", "history sink DSN")
	f.Bool("server", false, "serve the status API")
	f.String("server-listen", "127.0.0.1:8090", "status API listen address")
	for name, key := range flagKeys {
		_ = v.BindPFlag(key, f.Lookup(name))
	}
	return cmd
}

// runSeries loads the configuration, starts the optional side services and
// runs the series. Interruption is not an error.
func runSeries(ctx context.Context, v *viper.Viper, configPath string, flags *RunFlags, out, errOut io.Writer) error {
	c, err := duelr.LoadConfig(v, configPath)
	if err != nil {
		return err
	}
	applyEngineFlags(c, flags)

	log := logger.New(c.Log.Logger(), errOut)
	slog.SetDefault(log)

	opts := duelr.Options{Output: out, Logger: log, Progress: duelr.NewProgress()}
	if flags != nil {
		opts.RunID = flags.RunID
	}

	var sampler *metrics.EngineSampler
	if c.Metrics.Enabled {
		if err := duelr.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register metrics", "err", err)
		}
		sampler = metrics.NewEngineSampler(0)
		if err := sampler.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register engine sampler", "err", err)
		}
		srv, err := serveMetrics(c.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("metrics listen %s: %w", c.Metrics.Listen, err)
		}
		defer func() { _ = srv.Close() }()
		log.Info("serving metrics", "addr", srv.Addr)
	}

	if c.History.Enabled {
		sink, err := duelr.NewHistorySink(c.History.DSN)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		if cl, ok := sink.(io.Closer); ok {
			defer func() { _ = cl.Close() }()
		}
		opts.Sink = sink
	}

	engines := &lateEngines{}
	if c.Server.Enabled {
		srv, err := server.NewServer(c.Server.Listen, server.NewRouter(opts.Progress, engines, ""))
		if err != nil {
			return fmt.Errorf("status api listen %s: %w", c.Server.Listen, err)
		}
		defer func() { _ = srv.Close() }()
		log.Info("serving status api", "addr", srv.Addr)
	}

	opts.OnLaunch = func(e duelr.Engines) {
		engines.set(e)
		if sampler != nil {
			sampler.Start(ctx, e.PIDs)
		}
	}
	res, err := duelr.Run(ctx, c, opts)
	if sampler != nil {
		sampler.Stop()
	}
	series.Report(out, res)
	if duelr.Fatal(err) {
		return err
	}
	if err != nil {
		log.Info("series interrupted", "completed", res.Completed)
	}
	return nil
}

func applyEngineFlags(c *duelr.Config, f *RunFlags) {
	if f == nil {
		return
	}
	refs := [2][2]string{{f.Engine1, f.Engine1Dir}, {f.Engine2, f.Engine2Dir}}
	for i, r := range refs {
		switch {
		case r[0] != "":
			c.SetEngine(i, r[0], false)
		case r[1] != "":
			c.SetEngine(i, r[1], true)
		}
	}
}

func serveMetrics(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", duelr.MetricsHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	ln, err := listen(addr)
	if err != nil {
		return nil, err
	}
	srv.Addr = ln.Addr().String()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server stopped", "err", err)
		}
	}()
	return srv, nil
}
