// Package enginetest provides a scripted in-process engine that serves the
// engine HTTP control surface for tests.
package enginetest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/loykin/duelr/internal/engine"
)

// Reply is one scripted answer to GET /chess/autoplay/lastMove.
// A zero Status means 200.
type Reply struct {
	Status int
	Move   engine.Move
}

// Absent is a lastMove reply without a move.
var Absent = Reply{Status: http.StatusNotFound}

// MoveReply builds a 200 reply for from+to with the given state.
func MoveReply(fromTo string, state engine.State) Reply {
	return Reply{Move: engine.Move{From: fromTo[:2], To: fromTo[2:], State: state}}
}

// Call is one request observed by the fake engine.
type Call struct {
	Method string
	Route  string
	Path   string
}

// Engine is a fake engine. lastMove answers are consumed from a queue; once
// the queue is drained the last served answer is repeated, as a real engine
// keeps echoing its last move.
type Engine struct {
	mu        sync.Mutex
	srv       *httptest.Server
	queue     []Reply
	current   Reply
	calls     []Call
	failures  map[string]int
	timeLimit int
	color     engine.Color
	submitted []engine.Move
	resets    int
}

// New starts a fake engine and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Engine {
	t.Helper()
	f := &Engine{current: Absent, failures: make(map[string]int)}
	f.srv = httptest.NewServer(f.handler())
	t.Cleanup(f.srv.Close)
	return f
}

// URL returns the engine's base address.
func (f *Engine) URL() string { return f.srv.URL }

// Close stops serving; subsequent requests fail at the transport level.
func (f *Engine) Close() { f.srv.Close() }

// Script appends lastMove answers to the queue.
func (f *Engine) Script(replies ...Reply) {
	f.mu.Lock()
	f.queue = append(f.queue, replies...)
	f.mu.Unlock()
}

// FailOn makes every request matching method and route answer with status.
// route is the echo route pattern, e.g. "/chess/reset".
func (f *Engine) FailOn(method, route string, status int) {
	f.mu.Lock()
	f.failures[method+" "+route] = status
	f.mu.Unlock()
}

// Calls returns a copy of the observed requests.
func (f *Engine) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many requests hit method+route.
func (f *Engine) Count(method, route string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && c.Route == route {
			n++
		}
	}
	return n
}

// Submitted returns the moves imposed on this engine.
func (f *Engine) Submitted() []engine.Move {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Move(nil), f.submitted...)
}

// Color returns the color from the last autoplay request.
func (f *Engine) Color() engine.Color {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.color
}

// TimeLimit returns the last configured time limit.
func (f *Engine) TimeLimit() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeLimit
}

// Resets returns the number of board resets.
func (f *Engine) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func (f *Engine) handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(f.record)

	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.PATCH("/chess/autoplay/timelimit/:seconds", f.handleTimeLimit)
	e.PATCH("/chess/autoplay/:color", f.handleAutoplay)
	e.GET("/chess/autoplay/lastMove", f.handleLastMove)
	e.PATCH("/chess/figure/move/:from/:to", f.handleMove)
	e.PUT("/chess/reset", f.handleReset)
	return e
}

func (f *Engine) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		f.mu.Lock()
		f.calls = append(f.calls, Call{Method: req.Method, Route: c.Path(), Path: req.URL.Path})
		status, fail := f.failures[req.Method+" "+c.Path()]
		f.mu.Unlock()
		if fail {
			return c.NoContent(status)
		}
		return next(c)
	}
}

func (f *Engine) handleTimeLimit(c echo.Context) error {
	n, err := strconv.Atoi(c.Param("seconds"))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	f.mu.Lock()
	f.timeLimit = n
	f.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

func (f *Engine) handleAutoplay(c echo.Context) error {
	f.mu.Lock()
	f.color = engine.Color(c.Param("color"))
	f.mu.Unlock()
	return c.NoContent(http.StatusOK)
}

func (f *Engine) handleLastMove(c echo.Context) error {
	f.mu.Lock()
	if len(f.queue) > 0 {
		f.current = f.queue[0]
		f.queue = f.queue[1:]
	}
	r := f.current
	f.mu.Unlock()
	if r.Status != 0 && r.Status != http.StatusOK {
		return c.NoContent(r.Status)
	}
	return c.JSON(http.StatusOK, r.Move)
}

func (f *Engine) handleMove(c echo.Context) error {
	f.mu.Lock()
	f.submitted = append(f.submitted, engine.Move{From: c.Param("from"), To: c.Param("to")})
	f.mu.Unlock()
	return c.JSON(http.StatusOK, engine.MoveAck{State: engine.StatePlay, Score: &engine.Score{}})
}

func (f *Engine) handleReset(c echo.Context) error {
	f.mu.Lock()
	f.resets++
	f.current = Absent
	f.mu.Unlock()
	return c.NoContent(http.StatusOK)
}
