package engine

import "strings"

// Color is the side an engine plays in autoplay mode.
type Color string

const (
	White Color = "WHITE"
	Black Color = "BLACK"
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// State is the game-state tag an engine attaches to its last move.
type State string

const (
	StatePlay         State = "PLAY"
	StatePlayOpening  State = "PLAY_OPENING"
	StateWhiteInCheck State = "WHITE_IN_CHECK"
	StateBlackInCheck State = "BLACK_IN_CHECK"
	StateWhiteWon     State = "WHITE_WON"
	StateBlackWon     State = "BLACK_WON"
	StateDraw         State = "DRAW"
)

// Result is a color-relative game result reported by an engine.
type Result int

const (
	ResultNone Result = iota
	ResultWhiteWon
	ResultBlackWon
	ResultDraw
)

func (r Result) String() string {
	switch r {
	case ResultWhiteWon:
		return "white"
	case ResultBlackWon:
		return "black"
	case ResultDraw:
		return "draw"
	default:
		return "none"
	}
}

// Result maps a terminal state tag to a Result. Non-terminal and unknown
// tags map to ResultNone.
func (s State) Result() Result {
	switch State(strings.ToUpper(string(s))) {
	case StateWhiteWon:
		return ResultWhiteWon
	case StateBlackWon:
		return ResultBlackWon
	case StateDraw:
		return ResultDraw
	default:
		return ResultNone
	}
}

// Move is the last move an engine reports. It is a comparable value:
// two observations are the same move iff they are ==.
type Move struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	State State  `json:"currentState,omitempty"`
}

// Complete reports whether the move carries both squares and can be relayed.
func (m Move) Complete() bool { return m.From != "" && m.To != "" }

func (m Move) String() string {
	if !m.Complete() {
		return "-"
	}
	return m.From + m.To
}

// Score mirrors the engine's material score.
type Score struct {
	WhiteScore int `json:"whiteScore"`
	BlackScore int `json:"blackScore"`
}

// MoveAck is the engine's answer to an imposed move.
type MoveAck struct {
	State State  `json:"state"`
	Score *Score `json:"score,omitempty"`
}
