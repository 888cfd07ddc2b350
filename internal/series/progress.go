package series

import (
	"sync"
	"time"

	"github.com/loykin/duelr/internal/engine"
)

// Phase is the coarse state of a run.
type Phase string

const (
	PhaseStarting    Phase = "starting"
	PhasePlaying     Phase = "playing"
	PhaseFinished    Phase = "finished"
	PhaseAborted     Phase = "aborted"
	PhaseInterrupted Phase = "interrupted"
)

// Snapshot is a copy of the series progress for observers.
type Snapshot struct {
	RunID      string                  `json:"run_id"`
	Phase      Phase                   `json:"phase"`
	Game       int                     `json:"game"`
	Games      int                     `json:"games"`
	Colors     map[string]engine.Color `json:"colors,omitempty"`
	Tally      Tally                   `json:"tally"`
	LastResult string                  `json:"last_result,omitempty"`
	Error      string                  `json:"error,omitempty"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// Progress publishes the controller's state to concurrent readers such as the
// status API. The controller is the only writer.
type Progress struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewProgress() *Progress {
	return &Progress{snap: Snapshot{Phase: PhaseStarting, UpdatedAt: time.Now()}}
}

// Snapshot returns a copy of the current progress.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.snap
	if p.snap.Colors != nil {
		s.Colors = make(map[string]engine.Color, len(p.snap.Colors))
		for k, v := range p.snap.Colors {
			s.Colors[k] = v
		}
	}
	return s
}

func (p *Progress) update(fn func(*Snapshot)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	fn(&p.snap)
	p.snap.UpdatedAt = time.Now()
	p.mu.Unlock()
}
