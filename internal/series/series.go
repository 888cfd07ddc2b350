// Package series runs a fixed number of games between two engines,
// alternating colors and keeping an identity-keyed tally.
package series

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/duelr/internal/engine"
	"github.com/loykin/duelr/internal/game"
	"github.com/loykin/duelr/internal/history"
	"github.com/loykin/duelr/internal/metrics"
)

var (
	// ErrControl is a time-limit, autoplay or reset call the engine did not
	// acknowledge. It aborts the series.
	ErrControl = errors.New("engine control call failed")
	// ErrInterrupted reports a series cut short by cancellation.
	ErrInterrupted = errors.New("series interrupted")
)

const sinkTimeout = 5 * time.Second

// Engine is the control surface the controller drives.
type Engine interface {
	game.Engine
	SetTimeLimit(ctx context.Context, limit int) bool
	StartAutoplay(ctx context.Context, color engine.Color) bool
	ResetBoard(ctx context.Context) bool
}

// Participant is an engine with its identity.
type Participant struct {
	Name   string
	Engine Engine
}

// Config holds the per-run parameters.
type Config struct {
	Games           int
	TimeLimit       int
	MoveTimeout     time.Duration
	PollInterval    time.Duration
	MaxPollFailures int
}

// Result is what a run produced. Games holds every game that was played to a
// terminal state, including an uncredited communication failure.
type Result struct {
	RunID     string
	Completed int
	Tally     Tally
	Games     []game.Result
}

// Controller drives the series. It is single-threaded: Run must not be called
// concurrently.
type Controller struct {
	cfg      Config
	players  [2]Participant
	out      io.Writer
	logger   *slog.Logger
	sink     history.Sink
	progress *Progress
	runID    string
	now      func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithOutput sets where the per-game report lines go (default stdout).
func WithOutput(w io.Writer) Option { return func(c *Controller) { c.out = w } }

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithSink sends every finished game and the series summary to s.
func WithSink(s history.Sink) Option { return func(c *Controller) { c.sink = s } }

// WithProgress publishes progress to p.
func WithProgress(p *Progress) Option { return func(c *Controller) { c.progress = p } }

// WithRunID fixes the run id; without it New generates a UUID.
func WithRunID(id string) Option { return func(c *Controller) { c.runID = id } }

// WithClock replaces time.Now for the move timers.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// New returns a controller for a series of cfg.Games games between engine1
// and engine2. Engine 1 plays White in odd games.
func New(cfg Config, engine1, engine2 Participant, opts ...Option) *Controller {
	c := &Controller{
		cfg:     cfg,
		players: [2]Participant{engine1, engine2},
		out:     os.Stdout,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	return c
}

// RunID identifies this run in history events and the status API.
func (c *Controller) RunID() string { return c.runID }

// Run plays games 1..N. It stops early on a control failure (ErrControl), a
// communication failure (game.ErrCommFailure) or cancellation
// (ErrInterrupted); the returned Result is valid in every case and holds the
// tally of the games completed so far.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	names := [2]string{c.players[0].Name, c.players[1].Name}
	res := Result{RunID: c.runID, Tally: NewTally(names[0], names[1])}
	log := c.logger.With("run", c.runID)

	c.progress.update(func(s *Snapshot) {
		s.RunID = c.runID
		s.Games = c.cfg.Games
		s.Tally = res.Tally
		s.Phase = PhasePlaying
	})
	c.publishTally(res.Tally)

	err := c.loop(ctx, &res, log)

	phase, reason := PhaseFinished, "completed"
	switch {
	case errors.Is(err, ErrInterrupted):
		phase, reason = PhaseInterrupted, "interrupted"
		log.Warn("series interrupted", "completed", res.Completed)
	case err != nil:
		phase, reason = PhaseAborted, "aborted"
		log.Error("series aborted", "completed", res.Completed, "err", err)
	default:
		log.Info("series finished", "completed", res.Completed)
	}
	c.progress.update(func(s *Snapshot) {
		s.Phase = phase
		if err != nil {
			s.Error = err.Error()
		}
	})
	c.emit(ctx, history.Event{Type: history.EventSeries, Reason: reason}, res.Tally)
	return res, err
}

func (c *Controller) loop(ctx context.Context, res *Result, log *slog.Logger) error {
	for n := 1; n <= c.cfg.Games; n++ {
		if ctx.Err() != nil {
			c.printf("Game interrupted.\n")
			return ErrInterrupted
		}
		colors := game.ColorsFor(n)
		c.printf("Starting game %d\n", n)
		log.Info("starting game", "game", n,
			"white", c.players[indexOf(colors, engine.White)].Name,
			"black", c.players[indexOf(colors, engine.Black)].Name)
		c.progress.update(func(s *Snapshot) {
			s.Game = n
			s.Colors = map[string]engine.Color{c.players[0].Name: colors[0], c.players[1].Name: colors[1]}
		})

		if err := c.configure(ctx, n, colors); err != nil {
			return err
		}

		gr, err := game.Play(ctx, game.Setup{
			Number:          n,
			Players:         [2]game.Player{{Name: c.players[0].Name, Engine: c.players[0].Engine}, {Name: c.players[1].Name, Engine: c.players[1].Engine}},
			MoveTimeout:     c.cfg.MoveTimeout,
			PollInterval:    c.cfg.PollInterval,
			MaxPollFailures: c.cfg.MaxPollFailures,
			Logger:          c.logger,
			Now:             c.now,
		})
		if gr.Reason == game.Interrupted {
			// the game in progress is dropped without credit and without reset
			c.printf("Game interrupted.\n")
			return fmt.Errorf("%w during game %d: %v", ErrInterrupted, n, err)
		}
		res.Games = append(res.Games, gr)
		if err != nil {
			metrics.ObserveGame(gr.Reason.String(), gr.Outcome.String(), gr.Duration.Seconds())
			c.emitGame(ctx, gr, res.Tally)
			return fmt.Errorf("game %d: %w", n, err)
		}

		c.credit(res, gr)
		c.emitGame(ctx, gr, res.Tally)

		if !c.players[0].Engine.ResetBoard(ctx) || !c.players[1].Engine.ResetBoard(ctx) {
			if ctx.Err() != nil {
				return ErrInterrupted
			}
			c.printf("Failed to reset boards after game %d\n", n)
			return fmt.Errorf("%w: reset boards after game %d", ErrControl, n)
		}
	}
	return nil
}

// configure sets the time limit and starts autoplay on both engines, engine 1
// first, stopping at the first unacknowledged call.
func (c *Controller) configure(ctx context.Context, n int, colors [2]engine.Color) error {
	for _, p := range c.players {
		if !p.Engine.SetTimeLimit(ctx, c.cfg.TimeLimit) {
			if ctx.Err() != nil {
				return ErrInterrupted
			}
			c.printf("Failed to set time limits for game %d\n", n)
			return fmt.Errorf("%w: set time limit on %s for game %d", ErrControl, p.Name, n)
		}
	}
	for i, p := range c.players {
		if !p.Engine.StartAutoplay(ctx, colors[i]) {
			if ctx.Err() != nil {
				return ErrInterrupted
			}
			c.printf("Failed to start autoplay for game %d\n", n)
			return fmt.Errorf("%w: start autoplay on %s for game %d", ErrControl, p.Name, n)
		}
	}
	return nil
}

// credit converts the game result into identity credit and prints the report.
func (c *Controller) credit(res *Result, gr game.Result) {
	if gr.Reason == game.TimeForfeit {
		c.printf("%s failed to make a move in time.\n", c.players[gr.Forfeiter].Name)
	}
	if gr.Winner >= 0 {
		if err := res.Tally.CreditEngine(gr.Winner); err != nil {
			c.logger.Error("credit game", "game", gr.Number, "err", err)
		}
	} else {
		res.Tally.Draw()
	}
	res.Completed++
	c.printf("%s\n", res.Tally)

	metrics.ObserveGame(gr.Reason.String(), gr.Outcome.String(), gr.Duration.Seconds())
	c.publishTally(res.Tally)
	c.progress.update(func(s *Snapshot) {
		s.Tally = res.Tally
		s.LastResult = fmt.Sprintf("game %d: %s (%s)", gr.Number, gr.Outcome, gr.Reason)
	})
}

func (c *Controller) publishTally(t Tally) {
	metrics.SetTally(t.Engines[0], t.Wins[0])
	metrics.SetTally(t.Engines[1], t.Wins[1])
	metrics.SetTally("draw", t.Draws)
}

func (c *Controller) emitGame(ctx context.Context, gr game.Result, t Tally) {
	e := history.Event{
		Type:       history.EventGame,
		Game:       gr.Number,
		White:      c.players[indexOf(gr.Colors, engine.White)].Name,
		Black:      c.players[indexOf(gr.Colors, engine.Black)].Name,
		Reason:     gr.Reason.String(),
		Result:     gr.Outcome.String(),
		DurationMS: gr.Duration.Milliseconds(),
	}
	if gr.Winner >= 0 {
		e.Winner = c.players[gr.Winner].Name
	}
	c.emit(ctx, e, t)
}

// emit fills in the run fields and sends e to the sink. Sink errors are
// logged and otherwise ignored.
func (c *Controller) emit(ctx context.Context, e history.Event, t Tally) {
	if c.sink == nil {
		return
	}
	e.OccurredAt = time.Now().UTC()
	e.RunID = c.runID
	e.Engine1, e.Engine2 = t.Engines[0], t.Engines[1]
	e.Engine1Wins, e.Engine2Wins, e.Draws = t.Wins[0], t.Wins[1], t.Draws

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := c.sink.Send(sctx, e); err != nil {
		c.logger.Warn("history sink send failed", "type", e.Type, "game", e.Game, "err", err)
	}
}

func (c *Controller) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func indexOf(colors [2]engine.Color, want engine.Color) int {
	if colors[0] == want {
		return 0
	}
	return 1
}

// Report writes the final tally and match statistics.
func Report(w io.Writer, r Result) {
	st := r.Tally.Stats()
	_, _ = fmt.Fprintf(w, "Final: %s (%d games)\n", r.Tally, r.Completed)
	if r.Completed == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "Score: %d - %d - %d  [%.3f] %d\n",
		r.Tally.Wins[0], r.Tally.Wins[1], r.Tally.Draws, st.Score, r.Completed)
	_, _ = fmt.Fprintf(w, "Elo difference: %.1f, LOS: %.1f %%\n", st.EloDiff, st.LOS*100)
}
