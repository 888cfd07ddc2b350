package series

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/duelr/internal/engine"
	"github.com/loykin/duelr/internal/enginetest"
	"github.com/loykin/duelr/internal/game"
	"github.com/loykin/duelr/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (r *recordingSink) Send(_ context.Context, e history.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Events() []history.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]history.Event(nil), r.events...)
}

func client(f *enginetest.Engine) *engine.Client {
	return engine.New(engine.Config{BaseURL: f.URL(), Timeout: 2 * time.Second})
}

func config(games int) Config {
	return Config{Games: games, TimeLimit: 200, MoveTimeout: time.Minute, MaxPollFailures: 3}
}

func autoplayPaths(f *enginetest.Engine) []string {
	var out []string
	for _, c := range f.Calls() {
		if c.Route == "/chess/autoplay/:color" {
			out = append(out, c.Path)
		}
	}
	return out
}

func TestSeriesEndToEnd(t *testing.T) {
	f1, f2 := enginetest.New(t), enginetest.New(t)
	f1.Script(
		enginetest.MoveReply("e2e4", engine.StatePlay),
		enginetest.MoveReply("e2e4", engine.StatePlay),
		enginetest.MoveReply("e2e4", engine.StatePlay),
		enginetest.MoveReply("d1h5", engine.StateWhiteWon),
	)
	f2.Script(
		enginetest.Absent,
		enginetest.MoveReply("e7e5", engine.StatePlay),
		enginetest.MoveReply("e7e5", engine.StatePlay),
		enginetest.MoveReply("e7e5", engine.StatePlay),
		// game 2, engine 2 is White
		enginetest.MoveReply("e2e4", engine.StateDraw),
	)

	var out bytes.Buffer
	sink := &recordingSink{}
	progress := NewProgress()
	c := New(config(2),
		Participant{Name: "engine1", Engine: client(f1)},
		Participant{Name: "engine2", Engine: client(f2)},
		WithOutput(&out), WithSink(sink), WithProgress(progress), WithRunID("run-e2e"),
	)

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Completed)
	assert.Equal(t, [2]int{1, 0}, res.Tally.Wins)
	assert.Equal(t, 1, res.Tally.Draws)
	assert.Equal(t, res.Completed, res.Tally.Completed())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"Starting game 1",
		"engine1 wins: 1, engine2 wins: 0, Draws: 0",
		"Starting game 2",
		"engine1 wins: 1, engine2 wins: 0, Draws: 1",
	}, lines)

	assert.Equal(t, []string{"/chess/autoplay/WHITE", "/chess/autoplay/BLACK"}, autoplayPaths(f1))
	assert.Equal(t, []string{"/chess/autoplay/BLACK", "/chess/autoplay/WHITE"}, autoplayPaths(f2))
	assert.Equal(t, 200, f1.TimeLimit())
	assert.Equal(t, 2, f1.Resets())
	assert.Equal(t, 2, f2.Resets())
	assert.Equal(t, []engine.Move{{From: "e7", To: "e5"}, {From: "e2", To: "e4"}}, f1.Submitted())

	events := sink.Events()
	require.Len(t, events, 3)
	assert.Equal(t, history.EventGame, events[0].Type)
	assert.Equal(t, "run-e2e", events[0].RunID)
	assert.Equal(t, "engine1", events[0].White)
	assert.Equal(t, "engine1", events[0].Winner)
	assert.Equal(t, "white", events[0].Result)
	assert.Equal(t, 1, events[0].Engine1Wins)
	assert.Equal(t, "engine2", events[1].White)
	assert.Equal(t, "draw", events[1].Result)
	assert.Equal(t, "", events[1].Winner)
	assert.Equal(t, history.EventSeries, events[2].Type)
	assert.Equal(t, "completed", events[2].Reason)
	assert.Equal(t, 1, events[2].Draws)

	snap := progress.Snapshot()
	assert.Equal(t, PhaseFinished, snap.Phase)
	assert.Equal(t, 2, snap.Game)
	assert.Equal(t, "run-e2e", snap.RunID)
	assert.Equal(t, engine.Black, snap.Colors["engine1"])
	assert.Equal(t, res.Tally, snap.Tally)
}

func TestSeriesAlternatesColorsAndCountsEveryGame(t *testing.T) {
	f1, f2 := enginetest.New(t), enginetest.New(t)
	// engine 1 answers every game with an immediate draw; reset clears the
	// echoed move so each game needs a fresh reply
	for i := 0; i < 5; i++ {
		f1.Script(enginetest.MoveReply("a2a3", engine.StateDraw))
	}
	var out bytes.Buffer
	c := New(config(5),
		Participant{Name: "a", Engine: client(f1)},
		Participant{Name: "b", Engine: client(f2)},
		WithOutput(&out))

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Completed)
	assert.Equal(t, 5, res.Tally.Draws)
	assert.Len(t, res.Games, 5)
	for i, g := range res.Games {
		n := i + 1
		assert.Equal(t, n, g.Number)
		assert.Equal(t, n%2 == 1, g.Colors[0] == engine.White, "game %d", n)
	}
	assert.Equal(t, []string{
		"/chess/autoplay/WHITE", "/chess/autoplay/BLACK", "/chess/autoplay/WHITE",
		"/chess/autoplay/BLACK", "/chess/autoplay/WHITE",
	}, autoplayPaths(f1))
}

func TestSeriesTimeLimitFailureAborts(t *testing.T) {
	f1, f2 := enginetest.New(t), enginetest.New(t)
	f2.FailOn(http.MethodPatch, "/chess/autoplay/timelimit/:seconds", http.StatusInternalServerError)
	var out bytes.Buffer
	sink := &recordingSink{}
	c := New(config(3),
		Participant{Name: "a", Engine: client(f1)},
		Participant{Name: "b", Engine: client(f2)},
		WithOutput(&out), WithSink(sink))

	res, err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrControl)
	assert.Contains(t, err.Error(), "game 1")
	assert.Equal(t, 0, res.Completed)
	assert.Contains(t, out.String(), "Failed to set time limits for game 1")
	assert.Empty(t, autoplayPaths(f1))
	assert.Zero(t, f1.Count(http.MethodGet, "/chess/autoplay/lastMove"))

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "aborted", events[0].Reason)
}

func TestSeriesAutoplayFailureInSecondGame(t *testing.T) {
	f1, f2 := enginetest.New(t), enginetest.New(t)
	f1.Script(enginetest.MoveReply("e2e4", engine.StateWhiteWon))
	progress := NewProgress()
	var out bytes.Buffer
	c := New(config(3),
		Participant{Name: "a", Engine: client(f1)},
		Participant{Name: "b", Engine: &failingAutoplay{Client: client(f2), failOn: engine.White}},
		WithOutput(&out), WithProgress(progress))

	res, err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrControl)
	assert.Contains(t, err.Error(), "game 2")
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Tally.WinsOf("a"))
	assert.Contains(t, out.String(), "Failed to start autoplay for game 2")

	snap := progress.Snapshot()
	assert.Equal(t, PhaseAborted, snap.Phase)
	assert.NotEmpty(t, snap.Error)
}

type failingAutoplay struct {
	*engine.Client
	failOn engine.Color
}

func (f *failingAutoplay) StartAutoplay(ctx context.Context, c engine.Color) bool {
	if c == f.failOn {
		return false
	}
	return f.Client.StartAutoplay(ctx, c)
}

func TestSeriesResetFailureAbortsAfterCrediting(t *testing.T) {
	f1, f2 := enginetest.New(t), enginetest.New(t)
	f1.Script(enginetest.MoveReply("e2e4", engine.StateWhiteWon))
	f2.FailOn(http.MethodPut, "/chess/reset", http.StatusServiceUnavailable)
	var out bytes.Buffer
	c := New(config(3),
		Participant{Name: "a", Engine: client(f1)},
		Participant{Name: "b", Engine: client(f2)},
		WithOutput(&out))

	res, err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrControl)
	assert.Equal(t, 1, res.Completed)
	assert.Contains(t, out.String(), "a wins: 1, b wins: 0, Draws: 0")
	assert.Contains(t, out.String(), "Failed to reset boards after game 1")
	assert.Equal(t, 1, f1.Resets())
}

// unreachableMoves accepts control calls but every relayed move fails in
// transport.
type unreachableMoves struct {
	*engine.Client
}

func (u *unreachableMoves) SubmitMove(context.Context, string, string) (engine.MoveAck, error) {
	return engine.MoveAck{}, errors.New("dial tcp: connection refused")
}

func TestSeriesCommFailureIsNotCredited(t *testing.T) {
	f1, f2 := enginetest.New(t), enginetest.New(t)
	f1.Script(enginetest.MoveReply("e2e4", engine.StatePlay))
	sink := &recordingSink{}
	var out bytes.Buffer
	c := New(config(3),
		Participant{Name: "a", Engine: client(f1)},
		Participant{Name: "b", Engine: &unreachableMoves{Client: client(f2)}},
		WithOutput(&out), WithSink(sink))

	res, err := c.Run(context.Background())
	assert.ErrorIs(t, err, game.ErrCommFailure)
	assert.Equal(t, 0, res.Completed)
	assert.Equal(t, 0, res.Tally.Completed())
	require.Len(t, res.Games, 1)
	assert.Equal(t, game.CommFailure, res.Games[0].Reason)
	assert.Zero(t, f1.Resets())

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "COMM_FAILURE", events[0].Reason)
	assert.Equal(t, "", events[0].Winner)
	assert.Equal(t, "aborted", events[1].Reason)
}

func TestSeriesRejectedMovesDoNotAbort(t *testing.T) {
	f1, f2 := enginetest.New(t), enginetest.New(t)
	f1.Script(
		enginetest.MoveReply("e2e4", engine.StatePlay),
		enginetest.MoveReply("d1h5", engine.StateWhiteWon),
	)
	f2.FailOn(http.MethodPatch, "/chess/figure/move/:from/:to", http.StatusInternalServerError)
	var out bytes.Buffer
	c := New(config(1),
		Participant{Name: "a", Engine: client(f1)},
		Participant{Name: "b", Engine: client(f2)},
		WithOutput(&out))

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, game.NormalEnd, res.Games[0].Reason)
	assert.Contains(t, out.String(), "a wins: 1, b wins: 0, Draws: 0")
	assert.Equal(t, 2, f2.Count(http.MethodPatch, "/chess/figure/move/:from/:to"))
}

func TestSeriesSameNamedEnginesCreditedByPosition(t *testing.T) {
	f1, f2 := enginetest.New(t), enginetest.New(t)
	f1.Script(enginetest.MoveReply("e2e4", engine.StatePlay))
	f2.Script(
		enginetest.Absent,
		enginetest.MoveReply("e7e5", engine.StateBlackWon),
	)
	var out bytes.Buffer
	c := New(config(1),
		Participant{Name: "stockfish", Engine: client(f1)},
		Participant{Name: "stockfish", Engine: client(f2)},
		WithOutput(&out))

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [2]int{0, 1}, res.Tally.Wins)
	assert.Equal(t, 1, res.Games[0].Winner)
	assert.Contains(t, out.String(), "stockfish wins: 0, stockfish wins: 1, Draws: 0")
}

// clockEngine is an in-process engine whose polls advance a shared clock.
type clockEngine struct {
	mu      sync.Mutex
	moves   []engine.Move
	polls   int
	resets  int
	advance func()
}

func (e *clockEngine) LastMove(context.Context) (engine.Move, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.polls++
	if e.advance != nil {
		e.advance()
	}
	if len(e.moves) == 0 {
		return engine.Move{}, false, nil
	}
	m := e.moves[0]
	if len(e.moves) > 1 {
		e.moves = e.moves[1:]
	}
	return m, true, nil
}

func (e *clockEngine) SubmitMove(context.Context, string, string) (engine.MoveAck, error) {
	return engine.MoveAck{State: engine.StatePlay}, nil
}

func (e *clockEngine) SetTimeLimit(context.Context, int) bool           { return true }
func (e *clockEngine) StartAutoplay(context.Context, engine.Color) bool { return true }
func (e *clockEngine) ResetBoard(context.Context) bool {
	e.mu.Lock()
	e.resets++
	e.mu.Unlock()
	return true
}

func TestSeriesTimeForfeitCreditsOpponentByIdentity(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	tick := func() {
		mu.Lock()
		now = now.Add(time.Second)
		mu.Unlock()
	}
	var moves []engine.Move
	for _, sq := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		moves = append(moves, engine.Move{From: sq + "2", To: sq + "3", State: engine.StatePlay})
	}
	fast := &clockEngine{moves: moves, advance: tick}
	slow := &clockEngine{}

	var out bytes.Buffer
	cfg := config(2)
	cfg.Games = 1
	cfg.MoveTimeout = 3 * time.Second
	c := New(cfg,
		Participant{Name: "fast", Engine: fast},
		Participant{Name: "slow", Engine: slow},
		WithOutput(&out), WithClock(clock))

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Tally.WinsOf("fast"))
	assert.Equal(t, 0, res.Tally.WinsOf("slow"))
	assert.Equal(t, game.TimeForfeit, res.Games[0].Reason)
	assert.Contains(t, out.String(), "slow failed to make a move in time.\nfast wins: 1, slow wins: 0, Draws: 0\n")
	assert.Equal(t, 1, fast.resets)
}

func TestSeriesInterruptedMidGameDropsGame(t *testing.T) {
	f1, f2 := enginetest.New(t), enginetest.New(t)
	f1.Script(enginetest.MoveReply("e2e4", engine.StateWhiteWon))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &recordingSink{}
	progress := NewProgress()
	var out bytes.Buffer
	inner := client(f2)
	e2 := &cancelOnAutoplay{Client: inner, color: engine.White, cancel: cancel}
	c := New(config(5),
		Participant{Name: "a", Engine: client(f1)},
		Participant{Name: "b", Engine: e2},
		WithOutput(&out), WithSink(sink), WithProgress(progress))

	res, err := c.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Tally.WinsOf("a"))
	assert.Len(t, res.Games, 1)
	assert.Contains(t, out.String(), "Game interrupted.")
	assert.Equal(t, 1, f1.Resets(), "no reset after the interrupted game")
	assert.Equal(t, PhaseInterrupted, progress.Snapshot().Phase)

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "interrupted", events[1].Reason)
	assert.Equal(t, 1, events[1].Engine1Wins)
}

// cancelOnAutoplay cancels the run right after autoplay starts with color.
type cancelOnAutoplay struct {
	*engine.Client
	color  engine.Color
	cancel context.CancelFunc
}

func (c *cancelOnAutoplay) StartAutoplay(ctx context.Context, color engine.Color) bool {
	ok := c.Client.StartAutoplay(ctx, color)
	if color == c.color {
		c.cancel()
	}
	return ok
}

func TestSeriesCancelledBeforeStart(t *testing.T) {
	f1, f2 := enginetest.New(t), enginetest.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	c := New(config(3),
		Participant{Name: "a", Engine: client(f1)},
		Participant{Name: "b", Engine: client(f2)},
		WithOutput(&out))

	res, err := c.Run(ctx)
	assert.True(t, errors.Is(err, ErrInterrupted))
	assert.Equal(t, 0, res.Completed)
	assert.Empty(t, f1.Calls())
	assert.Empty(t, f2.Calls())
	assert.NotEmpty(t, c.RunID())
	assert.Equal(t, c.RunID(), res.RunID)
}

func TestSeriesOptionsApplyLoggerAndRunID(t *testing.T) {
	f1, f2 := enginetest.New(t), enginetest.New(t)
	f1.Script(enginetest.MoveReply("e2e4", engine.StateDraw))
	var logs bytes.Buffer
	c := New(config(1),
		Participant{Name: "a", Engine: client(f1)},
		Participant{Name: "b", Engine: client(f2)},
		WithOutput(&bytes.Buffer{}),
		WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
		WithRunID("fixed-run"),
	)
	assert.Equal(t, "fixed-run", c.RunID())

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed-run", res.RunID)
	assert.Contains(t, logs.String(), `"run":"fixed-run"`)
	assert.Contains(t, logs.String(), `"msg":"series finished"`)
}
