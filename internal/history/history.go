package history

import (
	"context"
	"time"
)

// EventType defines the kind of result event.
type EventType string

const (
	// EventGame is emitted once per finished game (credited or not).
	EventGame EventType = "game"
	// EventSeries is emitted once when the series ends.
	EventSeries EventType = "series"
)

// Event is one result record exported to external systems. Game-level fields
// are empty for series events; the tally fields always carry the running
// tally after the event.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	RunID      string    `json:"run_id"`
	Game       int       `json:"game"`
	White      string    `json:"white,omitempty"`
	Black      string    `json:"black,omitempty"`
	Reason     string    `json:"reason"`
	Result     string    `json:"result,omitempty"` // white, black, draw or none
	Winner     string    `json:"winner,omitempty"`
	DurationMS int64     `json:"duration_ms"`

	Engine1     string `json:"engine1"`
	Engine2     string `json:"engine2"`
	Engine1Wins int    `json:"engine1_wins"`
	Engine2Wins int    `json:"engine2_wins"`
	Draws       int    `json:"draws"`
}

// Sink is a destination for history events (databases, search indexes).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Columns is the column order shared by the SQL sinks.
var Columns = []string{
	"occurred_at", "type", "run_id", "game", "white", "black", "reason",
	"result", "winner", "duration_ms", "engine1", "engine2",
	"engine1_wins", "engine2_wins", "draws",
}

// Values returns e's values in Columns order.
func (e Event) Values() []any {
	return []any{
		e.OccurredAt.UTC(), string(e.Type), e.RunID, e.Game, e.White, e.Black, e.Reason,
		e.Result, e.Winner, e.DurationMS, e.Engine1, e.Engine2,
		e.Engine1Wins, e.Engine2Wins, e.Draws,
	}
}

// Multi fans an event out to several sinks. It sends to all of them and
// returns the first error.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
