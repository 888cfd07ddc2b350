// Package game referees a single game between two autoplaying engines: it
// relays each engine's new moves to its opponent, enforces the per-engine
// move timeout and detects the self-reported end of the game.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/duelr/internal/engine"
	"github.com/loykin/duelr/internal/metrics"
	"golang.org/x/time/rate"
)

// ErrCommFailure ends a game that could not be refereed because an engine
// stopped answering.
var ErrCommFailure = errors.New("engine communication failure")

// Engine is the part of the engine control surface a game needs.
type Engine interface {
	LastMove(ctx context.Context) (engine.Move, bool, error)
	SubmitMove(ctx context.Context, from, to string) (engine.MoveAck, error)
}

// Player is one side of a game.
type Player struct {
	Name   string
	Engine Engine
}

// Setup parameterizes one game.
type Setup struct {
	Number          int // 1-based game number, decides colors
	Players         [2]Player
	MoveTimeout     time.Duration
	PollInterval    time.Duration // minimum spacing between ticks, 0 = unpaced
	MaxPollFailures int           // consecutive lastMove or submit transport errors tolerated per engine
	Logger          *slog.Logger
	Now             func() time.Time
}

// Result describes how a game ended.
type Result struct {
	Number    int
	Colors    [2]engine.Color
	Reason    Reason
	Outcome   engine.Result // color-relative
	Winner    int           // 0 or 1, -1 for a draw or no result
	Forfeiter int           // engine that lost on time, -1 otherwise
	Relayed   [2]int        // moves relayed from each engine
	Duration  time.Duration
}

// Play runs the poll loop until the game reaches a terminal state. Each tick
// polls engine 1 then engine 2, relaying new complete moves to the opponent,
// then checks timers and finally the reported outcome.
//
// A cancelled ctx ends the game with reason Interrupted and ctx's error.
// A communication failure returns reason CommFailure and an error wrapping
// ErrCommFailure.
func Play(ctx context.Context, s Setup) (Result, error) {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("game", s.Number)

	start := now()
	g := NewContext(s.Number, start)
	res := Result{Number: s.Number, Colors: g.Colors, Winner: -1, Forfeiter: -1}

	var limiter *rate.Limiter
	if s.PollInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(s.PollInterval), 1)
	}

	finish := func(r Reason) (Result, error) {
		g.end(r)
		res.Reason = r
		res.Duration = now().Sub(start)
		return res, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			r, _ := finish(Interrupted)
			return r, err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				r, _ := finish(Interrupted)
				return r, ctx.Err()
			}
		}

		for i := range s.Players {
			relayed, err := relay(ctx, s, g, i, now, log)
			if err != nil {
				if ctx.Err() != nil {
					r, _ := finish(Interrupted)
					return r, ctx.Err()
				}
				r, _ := finish(CommFailure)
				return r, err
			}
			if relayed {
				res.Relayed[i]++
			}
		}

		if i := g.TimedOut(now(), s.MoveTimeout); i >= 0 {
			res.Forfeiter = i
			res.Outcome = g.forfeitResult(i)
			res.Winner = 1 - i
			metrics.IncForfeit(s.Players[i].Name)
			log.Info("time forfeit", "engine", s.Players[i].Name, "color", g.Colors[i])
			return finish(TimeForfeit)
		}

		if out := g.Outcome(); out != engine.ResultNone {
			res.Outcome = out
			res.Winner = g.WinnerOf(out)
			log.Info("game over", "result", out.String())
			return finish(NormalEnd)
		}
	}
}

// relay polls engine i and forwards a new complete move to its opponent.
// A transport error on the poll counts as no observation; after more than
// MaxPollFailures in a row it becomes a communication failure. Submits share
// that budget: a move that could not be delivered is retried on the next
// tick. A move the opponent answers with a non-200 status is dropped, as is
// a move that merely echoes the opponent's own last move.
func relay(ctx context.Context, s Setup, g *Context, i int, now func() time.Time, log *slog.Logger) (bool, error) {
	p, opp := s.Players[i], s.Players[1-i]

	m, ok, err := p.Engine.LastMove(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		g.pollFailures[i]++
		metrics.IncPollFailure(p.Name)
		log.Debug("lastMove poll failed", "engine", p.Name, "consecutive", g.pollFailures[i], "err", err)
		if g.pollFailures[i] > s.MaxPollFailures {
			return false, fmt.Errorf("%w: %s: %d consecutive poll failures: %v", ErrCommFailure, p.Name, g.pollFailures[i], err)
		}
		return false, nil
	}
	g.pollFailures[i] = 0
	if !ok {
		m = engine.Move{}
	}

	if g.Observe(i, m, now()) && m.Complete() {
		if g.Echoes(i, m) {
			log.Debug("echo not relayed", "engine", p.Name, "move", m.String())
			g.pending[i] = engine.Move{}
			return false, nil
		}
		g.pending[i] = m
	}
	if !g.pending[i].Complete() {
		return false, nil
	}
	m = g.pending[i]

	_, err = opp.Engine.SubmitMove(ctx, m.From, m.To)
	switch {
	case err == nil:
		g.pending[i] = engine.Move{}
		g.submitFailures[1-i] = 0
	case errors.Is(err, engine.ErrRejected):
		g.pending[i] = engine.Move{}
		g.submitFailures[1-i] = 0
		metrics.IncRejected(opp.Name)
		log.Debug("move rejected", "from", p.Name, "to", opp.Name, "move", m.String(), "err", err)
		return false, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		g.submitFailures[1-i]++
		log.Debug("relay failed", "from", p.Name, "to", opp.Name, "move", m.String(), "consecutive", g.submitFailures[1-i], "err", err)
		if g.submitFailures[1-i] > s.MaxPollFailures {
			return false, fmt.Errorf("%w: relay %s from %s to %s: %d consecutive failures: %v",
				ErrCommFailure, m, p.Name, opp.Name, g.submitFailures[1-i], err)
		}
		return false, nil
	}
	metrics.IncRelayed(p.Name)
	log.Debug("relayed", "from", p.Name, "to", opp.Name, "move", m.String(), "state", m.State)
	return true, nil
}
