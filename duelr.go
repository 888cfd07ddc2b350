// Package duelr plays a series of games between two HTTP-controlled chess
// engines: it launches both engine processes, relays moves between them,
// referees every game and tears the processes down when the series ends.
package duelr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	cfg "github.com/loykin/duelr/internal/config"
	"github.com/loykin/duelr/internal/history"
	"github.com/loykin/duelr/internal/history/factory"
	"github.com/loykin/duelr/internal/manager"
	"github.com/loykin/duelr/internal/metrics"
	"github.com/loykin/duelr/internal/process"
	"github.com/loykin/duelr/internal/series"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type EngineConfig = cfg.EngineConfig

type Result = series.Result

type Tally = series.Tally

type Progress = series.Progress

type EngineStatus = manager.Status

type HistorySink = history.Sink

var (
	ErrInvalidConfig = cfg.ErrInvalid
	ErrNotReady      = manager.ErrNotReady
	ErrControl       = series.ErrControl
	ErrInterrupted   = series.ErrInterrupted
)

// Engines is the view of the launched engine processes handed to
// Options.OnLaunch.
type Engines interface {
	Statuses() []manager.Status
	PIDs() map[string]int32
}

// Options customise a Run. The zero value prints to stdout and logs through
// slog.Default.
type Options struct {
	Output   io.Writer
	Logger   *slog.Logger
	Sink     history.Sink
	Progress *series.Progress
	RunID    string
	// OnLaunch is called once both engines passed the readiness gate.
	OnLaunch func(Engines)
}

// NewViper returns a viper instance with duelr's defaults and DUELR_* binding.
func NewViper() *viper.Viper { return cfg.New() }

// LoadConfig reads the optional config file at path on top of v.
func LoadConfig(v *viper.Viper, path string) (*Config, error) { return cfg.Load(v, path) }

// NewHistorySink builds a sink from a DSN such as sqlite://file.db.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewProgress returns a progress publisher for the status API.
func NewProgress() *Progress { return series.NewProgress() }

// RegisterMetrics registers duelr collectors on r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// MetricsHandler serves the registered collectors.
func MetricsHandler() http.Handler { return metrics.Handler() }

// Run resolves the engines in c, launches them, plays the series and stops
// both processes on every exit path. The Result holds the games completed so
// far even when err is non-nil.
func Run(ctx context.Context, c *Config, opts Options) (Result, error) {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	engines, err := c.Resolve()
	if err != nil {
		return Result{}, err
	}
	specs := make([]manager.EngineSpec, len(engines))
	for i, e := range engines {
		specs[i] = manager.EngineSpec{
			Name:    e.Name,
			BaseURL: e.BaseURL,
			Process: process.Spec{
				Name:    e.Name,
				Argv:    e.Argv,
				WorkDir: e.WorkDir,
				Env:     e.Env,
				Verbose: c.Verbose,
				Log:     c.Log.Logger(),
			},
		}
		opts.Logger.Info("engine resolved", "engine", e.Name, "artifact", e.Artifact, "url", e.BaseURL)
	}

	mgr, err := manager.Launch(ctx, specs, manager.Options{
		StartupGrace:   c.StartupGrace,
		ReadyTimeout:   c.ReadyTimeout,
		RequestTimeout: c.RequestTimeout,
		StopWait:       c.StopWait,
		Logger:         opts.Logger,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %w", series.ErrInterrupted, err)
		}
		return Result{}, err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			opts.Logger.Warn("engine teardown reported errors", "err", err)
		}
		_, _ = fmt.Fprintln(opts.Output, "Chess engines terminated.")
	}()
	if opts.OnLaunch != nil {
		opts.OnLaunch(mgr)
	}

	launched := mgr.Engines()
	sopts := []series.Option{
		series.WithOutput(opts.Output),
		series.WithLogger(opts.Logger),
		series.WithProgress(opts.Progress),
		series.WithRunID(opts.RunID),
	}
	if opts.Sink != nil {
		sopts = append(sopts, series.WithSink(opts.Sink))
	}
	ctrl := series.New(series.Config{
		Games:           c.Games,
		TimeLimit:       c.TimeLimit,
		MoveTimeout:     c.MoveTimeout,
		PollInterval:    c.PollInterval,
		MaxPollFailures: c.MaxPollFailures,
	},
		series.Participant{Name: launched[0].Name, Engine: launched[0].Client},
		series.Participant{Name: launched[1].Name, Engine: launched[1].Client},
		sopts...,
	)
	return ctrl.Run(ctx)
}

// Fatal reports whether err from Run should fail the process. Interruption
// is a normal way to end a series.
func Fatal(err error) bool {
	return err != nil && !errors.Is(err, series.ErrInterrupted)
}
