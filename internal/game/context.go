package game

import (
	"fmt"
	"time"

	"github.com/loykin/duelr/internal/engine"
)

// Reason is the state of a game in the referee state machine.
type Reason int

const (
	Running Reason = iota
	NormalEnd
	TimeForfeit
	CommFailure
	Interrupted
)

func (r Reason) String() string {
	switch r {
	case Running:
		return "RUNNING"
	case NormalEnd:
		return "NORMAL_END"
	case TimeForfeit:
		return "TIME_FORFEIT"
	case CommFailure:
		return "COMM_FAILURE"
	case Interrupted:
		return "INTERRUPTED"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Context is the per-game state: colors, the last move observed from each
// engine and when it was observed. Index 0 is engine 1, index 1 engine 2.
// It is owned by a single game loop.
type Context struct {
	Number     int
	Colors     [2]engine.Color
	LastMove   [2]engine.Move
	LastMoveAt [2]time.Time
	Terminated bool
	Reason     Reason

	pollFailures   [2]int
	submitFailures [2]int         // consecutive failed submits to engine i
	pending        [2]engine.Move // move from engine i still owed to its opponent
}

// ColorsFor returns the color assignment for game number n (1-based):
// engine 1 is White on odd games and Black on even ones.
func ColorsFor(n int) [2]engine.Color {
	if n%2 == 1 {
		return [2]engine.Color{engine.White, engine.Black}
	}
	return [2]engine.Color{engine.Black, engine.White}
}

// NewContext returns a fresh game context: no recorded moves and both timers
// started at now.
func NewContext(number int, now time.Time) *Context {
	return &Context{
		Number:     number,
		Colors:     ColorsFor(number),
		LastMoveAt: [2]time.Time{now, now},
	}
}

// Observe records a polled move for engine i. It reports whether the move
// differs from the one previously recorded; only then is the engine's timer
// restarted.
func (g *Context) Observe(i int, m engine.Move, now time.Time) bool {
	if m == g.LastMove[i] {
		return false
	}
	g.LastMove[i] = m
	g.LastMoveAt[i] = now
	return true
}

// Echoes reports whether m, polled from engine i, is the opponent's last
// move played back: an engine's lastMove includes moves imposed on it.
func (g *Context) Echoes(i int, m engine.Move) bool {
	o := g.LastMove[1-i]
	return o.Complete() && m.From == o.From && m.To == o.To
}

// TimedOut returns the index of the first engine (engine 1 checked first)
// whose last new move is older than timeout, or -1.
func (g *Context) TimedOut(now time.Time, timeout time.Duration) int {
	for i := range g.LastMoveAt {
		if now.Sub(g.LastMoveAt[i]) > timeout {
			return i
		}
	}
	return -1
}

// Outcome returns the terminal result self-reported by the engines, engine 1
// taking precedence, or engine.ResultNone while the game goes on.
func (g *Context) Outcome() engine.Result {
	for _, m := range g.LastMove {
		if r := m.State.Result(); r != engine.ResultNone {
			return r
		}
	}
	return engine.ResultNone
}

// WinnerOf maps a color-relative result to the index of the engine credited
// with the win, or -1 for a draw or no result.
func (g *Context) WinnerOf(r engine.Result) int {
	var c engine.Color
	switch r {
	case engine.ResultWhiteWon:
		c = engine.White
	case engine.ResultBlackWon:
		c = engine.Black
	default:
		return -1
	}
	if g.Colors[0] == c {
		return 0
	}
	return 1
}

// forfeitResult is the color-relative result of engine i losing on time.
func (g *Context) forfeitResult(i int) engine.Result {
	if g.Colors[i] == engine.White {
		return engine.ResultBlackWon
	}
	return engine.ResultWhiteWon
}

func (g *Context) end(r Reason) {
	g.Terminated = true
	g.Reason = r
}
