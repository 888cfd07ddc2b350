package main

import (
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/loykin/duelr"
	"github.com/loykin/duelr/internal/manager"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func listen(addr string) (net.Listener, error) { return net.Listen("tcp", addr) }

// lateEngines lets the status API start before the engines are launched.
type lateEngines struct {
	mu sync.Mutex
	e  duelr.Engines
}

func (l *lateEngines) set(e duelr.Engines) {
	l.mu.Lock()
	l.e = e
	l.mu.Unlock()
}

func (l *lateEngines) Statuses() []manager.Status {
	l.mu.Lock()
	e := l.e
	l.mu.Unlock()
	if e == nil {
		return []manager.Status{}
	}
	return e.Statuses()
}
