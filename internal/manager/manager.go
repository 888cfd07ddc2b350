// Package manager owns the two engine processes of a run: it launches them,
// gates the series on their liveness and tears them down exactly once.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/duelr/internal/engine"
	"github.com/loykin/duelr/internal/metrics"
	"github.com/loykin/duelr/internal/process"
	"golang.org/x/sync/errgroup"
)

// ErrNotReady means an engine never answered its liveness probe or exited
// before it did.
var ErrNotReady = errors.New("engine not ready")

const (
	defaultProbeInterval = 500 * time.Millisecond
	defaultStopWait      = 5 * time.Second
	exitPollInterval     = 50 * time.Millisecond
)

// EngineSpec describes one engine to launch.
type EngineSpec struct {
	Name    string
	BaseURL string
	Process process.Spec
}

// Options control readiness gating and teardown.
type Options struct {
	StartupGrace   time.Duration // fixed wait after launch before probing
	ReadyTimeout   time.Duration // keep probing this long after the grace; 0 probes once
	ProbeInterval  time.Duration
	RequestTimeout time.Duration
	StopWait       time.Duration // SIGTERM grace before SIGKILL
	Logger         *slog.Logger
}

// Engine is a launched engine: its process and a client for its control
// surface.
type Engine struct {
	Name   string
	Client *engine.Client
	proc   *process.Process
}

// Status is a point-in-time view of a managed engine.
type Status struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
}

func (e *Engine) PID() int    { return e.proc.PID() }
func (e *Engine) Alive() bool { return e.proc.Alive() }

func (e *Engine) Status() Status {
	st := e.proc.Snapshot()
	return Status{
		Name:      e.Name,
		URL:       e.Client.BaseURL(),
		PID:       st.PID,
		Running:   e.proc.Alive(),
		StartedAt: st.StartedAt,
	}
}

// Manager owns the launched engines. Close must be called on every exit path;
// it is safe to call more than once.
type Manager struct {
	engines []*Engine
	opts    Options
	logger  *slog.Logger

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
	stopWatch context.CancelFunc
	watchWG   sync.WaitGroup
}

// Launch starts every engine in order and waits until all of them are ready.
// On failure everything already started is stopped before returning.
func Launch(ctx context.Context, specs []EngineSpec, opts Options) (*Manager, error) {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeInterval
	}
	if opts.StopWait <= 0 {
		opts.StopWait = defaultStopWait
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Manager{opts: opts, logger: opts.Logger, stopWatch: func() {}}

	for _, s := range specs {
		ps := s.Process
		ps.Name = s.Name
		p := process.New(ps)
		if err := p.Start(); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("launch engine %s: %w", s.Name, err)
		}
		e := &Engine{
			Name: s.Name,
			Client: engine.New(engine.Config{
				BaseURL: s.BaseURL,
				Timeout: opts.RequestTimeout,
				Logger:  opts.Logger,
			}),
			proc: p,
		}
		m.engines = append(m.engines, e)
		m.logger.Info("engine launched", "engine", s.Name, "pid", p.PID(), "url", s.BaseURL, "cmd", ps.String())
	}

	if err := m.awaitReady(ctx); err != nil {
		_ = m.Close()
		return nil, err
	}
	m.watch()
	return m, nil
}

// Engines returns the managed engines in launch order.
func (m *Manager) Engines() []*Engine { return m.engines }

// Statuses returns the status of every engine.
func (m *Manager) Statuses() []Status {
	out := make([]Status, 0, len(m.engines))
	for _, e := range m.engines {
		out = append(out, e.Status())
	}
	return out
}

// PIDs maps engine names to the pids of live engine processes.
func (m *Manager) PIDs() map[string]int32 {
	out := make(map[string]int32, len(m.engines))
	for _, e := range m.engines {
		if e.Alive() {
			out[e.Name] = int32(e.PID())
		}
	}
	return out
}

// Close terminates all engines in parallel and waits for them to exit. Only
// the first call does work; later calls return the same error.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.closing.Store(true)
		m.stopWatch()
		var g errgroup.Group
		errs := make([]error, len(m.engines))
		for i, e := range m.engines {
			g.Go(func() error {
				if err := e.proc.Stop(m.opts.StopWait); err != nil {
					errs[i] = fmt.Errorf("engine %s: %w", e.Name, err)
				}
				metrics.SetEngineReady(e.Name, false)
				m.logger.Info("engine stopped", "engine", e.Name, "pid", e.PID())
				return nil
			})
		}
		_ = g.Wait()
		m.watchWG.Wait()
		m.closeErr = errors.Join(errs...)
	})
	return m.closeErr
}

// awaitReady waits the startup grace and then probes all engines in
// parallel. An engine process that exits during the gate fails it at once.
func (m *Manager) awaitReady(ctx context.Context) error {
	if err := m.sleep(ctx, m.opts.StartupGrace); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range m.engines {
		g.Go(func() error { return m.probe(gctx, e) })
	}
	return g.Wait()
}

func (m *Manager) probe(ctx context.Context, e *Engine) error {
	deadline := time.Now().Add(m.opts.ReadyTimeout)
	for {
		if !e.Alive() {
			return fmt.Errorf("%w: %s exited during startup", ErrNotReady, e.Name)
		}
		if e.Client.IsRunning(ctx) {
			metrics.SetEngineReady(e.Name, true)
			m.logger.Info("engine ready", "engine", e.Name, "url", e.Client.BaseURL())
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s is not running", ErrNotReady, e.Client.BaseURL())
		}
		m.logger.Debug("engine not ready yet", "engine", e.Name)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.proc.Exited():
		case <-time.After(m.opts.ProbeInterval):
		}
	}
}

// sleep waits d, returning early when ctx is done or an engine exits.
func (m *Manager) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	tick := time.NewTicker(exitPollInterval)
	defer tick.Stop()
	for {
		for _, e := range m.engines {
			if !e.Alive() {
				return fmt.Errorf("%w: %s exited during startup", ErrNotReady, e.Name)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-tick.C:
		}
	}
}

// watch reports engines that die while the series runs.
func (m *Manager) watch() {
	ctx, cancel := context.WithCancel(context.Background())
	m.stopWatch = cancel
	for _, e := range m.engines {
		m.watchWG.Add(1)
		go func() {
			defer m.watchWG.Done()
			select {
			case <-ctx.Done():
			case <-e.proc.Exited():
				if m.closing.Load() {
					return
				}
				metrics.SetEngineReady(e.Name, false)
				m.logger.Warn("engine exited unexpectedly", "engine", e.Name, "err", e.proc.Snapshot().ExitErr)
			}
		}()
	}
}
