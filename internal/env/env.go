// Package env composes the environment engine processes are started with.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Env is a layered environment. Later layers override earlier ones:
// the OS environment (optional), env files, global pairs and finally the
// per-engine pairs given to Merge.
type Env struct {
	vars map[string]string
}

// New returns an empty environment, seeded from the OS when useOS is true.
func New(useOS bool) *Env {
	e := &Env{vars: make(map[string]string)}
	if useOS {
		e.Set(os.Environ())
	}
	return e
}

// Set applies KEY=VALUE pairs. Entries without '=' or with an empty key are
// ignored.
func (e *Env) Set(pairs []string) *Env {
	for _, kv := range pairs {
		if k, v, ok := split(kv); ok {
			e.vars[k] = v
		}
	}
	return e
}

// LoadFile applies a .env file: KEY=VALUE lines, '#' comments and blank
// lines are skipped.
func (e *Env) LoadFile(path string) error {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := split(line); ok {
			e.vars[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return nil
}

// Merge returns the environment with perEngine applied on top, in sorted
// KEY=VALUE form. $VAR and ${VAR} references are expanded once against the
// composed set; unknown references expand to "".
func (e *Env) Merge(perEngine []string) []string {
	m := make(map[string]string, len(e.vars)+len(perEngine))
	for k, v := range e.vars {
		m[k] = v
	}
	for _, kv := range perEngine {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+os.Expand(v, func(name string) string { return m[name] }))
	}
	sort.Strings(out)
	return out
}

// Len is the number of variables before per-engine overrides.
func (e *Env) Len() int { return len(e.vars) }

func split(kv string) (string, string, bool) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok || k == "" {
		return "", "", false
	}
	return k, v, true
}
