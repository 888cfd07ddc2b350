package series

import (
	"fmt"
	"math"
)

// Tally counts wins per engine identity and draws. Engines[i] is the identity
// credited through Wins[i]; the order never changes with colors.
type Tally struct {
	Engines [2]string `json:"engines"`
	Wins    [2]int    `json:"wins"`
	Draws   int       `json:"draws"`
}

func NewTally(engine1, engine2 string) Tally {
	return Tally{Engines: [2]string{engine1, engine2}}
}

// Credit adds a win for the named engine.
func (t *Tally) Credit(name string) error {
	for i, n := range t.Engines {
		if n == name {
			t.Wins[i]++
			return nil
		}
	}
	return fmt.Errorf("engine %q is not part of this series", name)
}

// CreditEngine adds a win for engine i (0 for engine 1, 1 for engine 2).
// Crediting by position keeps two engines that share a name apart.
func (t *Tally) CreditEngine(i int) error {
	if i < 0 || i >= len(t.Wins) {
		return fmt.Errorf("engine index %d out of range", i)
	}
	t.Wins[i]++
	return nil
}

// Draw adds a draw.
func (t *Tally) Draw() { t.Draws++ }

// WinsOf returns the wins credited to the named engine, engine 1 first when
// both share the name.
func (t Tally) WinsOf(name string) int {
	for i, n := range t.Engines {
		if n == name {
			return t.Wins[i]
		}
	}
	return 0
}

// Completed is the number of credited games.
func (t Tally) Completed() int { return t.Wins[0] + t.Wins[1] + t.Draws }

func (t Tally) String() string {
	return fmt.Sprintf("%s wins: %d, %s wins: %d, Draws: %d",
		t.Engines[0], t.Wins[0], t.Engines[1], t.Wins[1], t.Draws)
}

// Stats are match statistics from engine 1's point of view.
type Stats struct {
	Score   float64 // points per game, draws count half
	EloDiff float64
	LOS     float64 // likelihood of superiority, 0..1
}

// Stats computes score fraction, Elo difference and LOS for engine 1.
// See https://www.chessprogramming.org/Match_Statistics.
func (t Tally) Stats() Stats {
	wins, losses, draws := t.Wins[0], t.Wins[1], t.Draws
	games := wins + losses + draws
	if games == 0 {
		return Stats{LOS: 0.5}
	}
	score := (float64(wins) + 0.5*float64(draws)) / float64(games)
	var elo float64
	switch score {
	case 0:
		elo = math.Inf(-1)
	case 1:
		elo = math.Inf(1)
	default:
		elo = -math.Log(1/score-1) * 400 / math.Ln10
	}
	los := 0.5
	if wins+losses > 0 {
		los = 0.5 + 0.5*math.Erf(float64(wins-losses)/math.Sqrt(2*float64(wins+losses)))
	}
	return Stats{Score: score, EloDiff: elo, LOS: los}
}
