package client

import "time"

// Tally is the running score of a series.
type Tally struct {
	Engines [2]string `json:"engines"`
	Wins    [2]int    `json:"wins"`
	Draws   int       `json:"draws"`
}

// EngineStatus describes one managed engine process.
type EngineStatus struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
}

// StatusResponse is the body returned by GET /status.
type StatusResponse struct {
	RunID      string            `json:"run_id"`
	Phase      string            `json:"phase"`
	Game       int               `json:"game"`
	Games      int               `json:"games"`
	Colors     map[string]string `json:"colors,omitempty"`
	Tally      Tally             `json:"tally"`
	LastResult string            `json:"last_result,omitempty"`
	Error      string            `json:"error,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Engines    []EngineStatus    `json:"engines"`
}

// Finished reports whether the run reached a terminal phase.
func (s StatusResponse) Finished() bool {
	switch s.Phase {
	case "finished", "aborted", "interrupted":
		return true
	}
	return false
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
