package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ErrNotStarted is returned by operations that need a started process.
var ErrNotStarted = errors.New("process not started")

// Process owns one child process. A single goroutine waits on the child;
// everybody else observes the exit through Exited.
type Process struct {
	spec      Spec
	mu        sync.Mutex
	cmd       *exec.Cmd
	status    Status
	stopping  bool // set by Stop; the resulting exit is not reported as an error
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	waitDone  chan struct{} // closed when cmd.Wait returns
}

func New(spec Spec) *Process {
	return &Process{spec: spec, status: Status{Name: spec.Name}}
}

// Spec returns the spec the process was created with.
func (r *Process) Spec() Spec { return r.spec }

// ConfigureCmd builds the *exec.Cmd and wires stdio. Engine output is
// discarded unless the spec is verbose; verbose output goes to rotating log
// files when a log dir is configured, otherwise to our own stdout/stderr.
func (r *Process) ConfigureCmd() (*exec.Cmd, error) {
	if err := r.spec.Validate(); err != nil {
		return nil, err
	}
	cmd := r.spec.BuildCommand()
	if !r.spec.Verbose {
		null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.outCloser = null
		r.mu.Unlock()
		cmd.Stdout = null
		cmd.Stderr = null
		return cmd, nil
	}
	if r.spec.Log.Dir == "" {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd, nil
	}
	if err := os.MkdirAll(r.spec.Log.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	outW, errW, err := r.spec.Log.Writers(r.spec.Name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.outCloser, r.errCloser = outW, errW
	r.mu.Unlock()
	cmd.Stdout = outW
	cmd.Stderr = errW
	return cmd, nil
}

// Start launches the process and the goroutine that reaps it.
func (r *Process) Start() error {
	r.mu.Lock()
	started := r.cmd != nil
	r.mu.Unlock()
	if started {
		return fmt.Errorf("process %s already started", r.spec.Name)
	}
	cmd, err := r.ConfigureCmd()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		r.closeWriters()
		return fmt.Errorf("start %s: %w", r.spec.Name, err)
	}
	done := make(chan struct{})
	r.mu.Lock()
	r.cmd = cmd
	r.waitDone = done
	r.status.Running = true
	r.status.PID = cmd.Process.Pid
	r.status.StartedAt = time.Now()
	r.mu.Unlock()

	go func() {
		err := cmd.Wait()
		r.markExited(err)
		r.closeWriters()
		close(done)
	}()
	return nil
}

// Exited returns a channel closed once the process has been reaped.
// It returns nil before Start.
func (r *Process) Exited() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waitDone
}

// Alive reports whether the process was started and has not exited yet.
func (r *Process) Alive() bool {
	done := r.Exited()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// PID returns the child's pid, or 0 before Start.
func (r *Process) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.PID
}

// Snapshot returns a copy of the current status.
func (r *Process) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Stop sends SIGTERM to the process group, waits up to wait for the exit and
// escalates to SIGKILL. It returns only after the process has been reaped.
// Stopping an exited process is a no-op. The returned error is the exit error
// of a process that died before Stop asked it to.
func (r *Process) Stop(wait time.Duration) error {
	r.mu.Lock()
	cmd, done := r.cmd, r.waitDone
	if cmd == nil {
		r.mu.Unlock()
		return nil
	}
	select {
	case <-done:
		err := r.status.ExitErr
		r.mu.Unlock()
		return err
	default:
	}
	r.stopping = true
	r.mu.Unlock()

	_ = terminate(cmd)
	select {
	case <-done:
	case <-time.After(wait):
		_ = kill(cmd)
		<-done
	}
	return nil
}

func (r *Process) markExited(err error) {
	r.mu.Lock()
	r.status.Running = false
	r.status.StoppedAt = time.Now()
	if !r.stopping {
		r.status.ExitErr = err
	}
	r.mu.Unlock()
}

func (r *Process) closeWriters() {
	r.mu.Lock()
	if r.outCloser != nil {
		_ = r.outCloser.Close()
		r.outCloser = nil
	}
	if r.errCloser != nil {
		_ = r.errCloser.Close()
		r.errCloser = nil
	}
	r.mu.Unlock()
}
