package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/loykin/duelr/internal/logger"
)

// Spec describes one engine process.
type Spec struct {
	Name    string        `json:"name"`     // engine identity, also used for log file names
	Argv    []string      `json:"argv"`     // program followed by its arguments; no shell is involved
	WorkDir string        `json:"work_dir"` // optional working dir
	Env     []string      `json:"env"`      // optional extra env appended to the parent's
	Verbose bool          `json:"verbose"`  // keep engine stdout/stderr instead of discarding it
	Log     logger.Config `json:"log"`      // when Verbose and Log.Dir is set, output is rotated into files
}

// Validate checks that the spec can be started.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("process name is required")
	}
	if len(s.Argv) == 0 || strings.TrimSpace(s.Argv[0]) == "" {
		return fmt.Errorf("process %s: empty command", s.Name)
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the spec's argv.
func (s Spec) BuildCommand() *exec.Cmd {
	// ok: argv comes from the operator's configuration
	// #nosec G204
	cmd := exec.Command(s.Argv[0], s.Argv[1:]...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = append(cmd.Environ(), s.Env...)
	}
	configureSysProcAttr(cmd)
	return cmd
}

// String renders the argv for logs.
func (s Spec) String() string { return strings.Join(s.Argv, " ") }
