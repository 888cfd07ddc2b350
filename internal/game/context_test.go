package game

import (
	"testing"
	"time"

	"github.com/loykin/duelr/internal/engine"
	"github.com/stretchr/testify/assert"
)

func TestColorsAlternate(t *testing.T) {
	for n := 1; n <= 6; n++ {
		c := ColorsFor(n)
		assert.NotEqual(t, c[0], c[1])
		assert.Equal(t, n%2 == 1, c[0] == engine.White, "game %d", n)
	}
}

func TestNewContextIsClean(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewContext(2, now)
	assert.Equal(t, [2]engine.Color{engine.Black, engine.White}, g.Colors)
	assert.Equal(t, [2]engine.Move{}, g.LastMove)
	assert.Equal(t, [2]time.Time{now, now}, g.LastMoveAt)
	assert.False(t, g.Terminated)
	assert.Equal(t, Running, g.Reason)
}

func TestObserveOnlyResetsTimerOnChange(t *testing.T) {
	t0 := time.Unix(0, 0)
	g := NewContext(1, t0)
	e2e4 := engine.Move{From: "e2", To: "e4", State: engine.StatePlay}

	assert.False(t, g.Observe(0, engine.Move{}, t0.Add(time.Second)), "absent equals initial state")
	assert.Equal(t, t0, g.LastMoveAt[0])

	assert.True(t, g.Observe(0, e2e4, t0.Add(2*time.Second)))
	assert.Equal(t, t0.Add(2*time.Second), g.LastMoveAt[0])

	assert.False(t, g.Observe(0, e2e4, t0.Add(3*time.Second)))
	assert.Equal(t, t0.Add(2*time.Second), g.LastMoveAt[0])
	assert.Equal(t, t0, g.LastMoveAt[1], "opponent timer untouched")

	// same squares with a new state tag is a new observation
	assert.True(t, g.Observe(0, engine.Move{From: "e2", To: "e4", State: engine.StateWhiteWon}, t0.Add(4*time.Second)))
}

func TestTimedOutChecksEngineOneFirst(t *testing.T) {
	t0 := time.Unix(0, 0)
	g := NewContext(1, t0)
	assert.Equal(t, -1, g.TimedOut(t0.Add(3*time.Second), 3*time.Second), "timeout is strict")
	assert.Equal(t, 0, g.TimedOut(t0.Add(4*time.Second), 3*time.Second))

	g.LastMoveAt[0] = t0.Add(2 * time.Second)
	assert.Equal(t, 1, g.TimedOut(t0.Add(4*time.Second), 3*time.Second))
}

func TestOutcomeAndWinner(t *testing.T) {
	g := NewContext(1, time.Now())
	assert.Equal(t, engine.ResultNone, g.Outcome())

	g.LastMove[1] = engine.Move{From: "d8", To: "h4", State: engine.StateBlackWon}
	assert.Equal(t, engine.ResultBlackWon, g.Outcome())
	assert.Equal(t, 1, g.WinnerOf(engine.ResultBlackWon))

	g.LastMove[0] = engine.Move{From: "e1", To: "e2", State: engine.StateDraw}
	assert.Equal(t, engine.ResultDraw, g.Outcome(), "engine 1 takes precedence")
	assert.Equal(t, -1, g.WinnerOf(engine.ResultDraw))

	even := NewContext(2, time.Now())
	assert.Equal(t, 1, even.WinnerOf(engine.ResultWhiteWon))
	assert.Equal(t, 0, even.WinnerOf(engine.ResultBlackWon))
	assert.Equal(t, engine.ResultBlackWon, even.forfeitResult(1))
	assert.Equal(t, engine.ResultWhiteWon, even.forfeitResult(0))
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "TIME_FORFEIT", TimeForfeit.String())
	assert.Equal(t, "COMM_FAILURE", CommFailure.String())
	assert.Equal(t, "Reason(42)", Reason(42).String())
}

func TestEchoesMatchesOpponentsLastMove(t *testing.T) {
	g := NewContext(1, time.Unix(0, 0))
	e2e4 := engine.Move{From: "e2", To: "e4", State: engine.StatePlay}
	assert.False(t, g.Echoes(1, e2e4), "nothing observed yet")

	g.Observe(0, e2e4, time.Unix(1, 0))
	assert.True(t, g.Echoes(1, engine.Move{From: "e2", To: "e4", State: engine.StateWhiteWon}), "state is ignored")
	assert.False(t, g.Echoes(1, engine.Move{From: "e7", To: "e5"}))
	assert.False(t, g.Echoes(0, e2e4), "engine 2 has not moved")
}
