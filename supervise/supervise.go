// Package supervise spawns and controls the ledger server child process.
//
// The child runs in its own process group, so terminal signals aimed at the
// launcher never reach it implicitly; shutdown signals are sent to the child
// explicitly and deliberately instead.
package supervise

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// childTTL overrides the server's own idle timeout. Lifecycle decisions
// belong to the launcher, so the child's TTL is pushed far out of the way.
const childTTL = 30 * 24 * time.Hour

// Spec describes how to start the server process.
type Spec struct {
	// BinaryPath is the server binary. Existence is not checked here; the
	// OS exec failure is the source of truth.
	BinaryPath string
	// PortFile is where the server writes its chosen admin port.
	PortFile string
	// ConfigPort pins the admin port; 0 lets the server choose.
	ConfigPort uint16
	// BindAddr is the IP the server binds to; empty for the server default.
	BindAddr string
	// StdoutFile and StderrFile redirect the server's streams when set;
	// otherwise the streams are inherited.
	StdoutFile string
	StderrFile string
	// Verbose leaves the server's log level alone. When false the server is
	// told to log errors only, independent of stream redirection.
	Verbose bool
}

func (s *Spec) args() []string {
	args := []string{
		"--ttl", strconv.Itoa(int(childTTL.Seconds())),
		"--port-file", s.PortFile,
	}
	if s.ConfigPort != 0 {
		args = append(args, "--port", strconv.Itoa(int(s.ConfigPort)))
	}
	if s.BindAddr != "" {
		args = append(args, "--ip-addr", s.BindAddr)
	}
	if !s.Verbose {
		args = append(args, "--log-levels", "error")
	}
	return args
}

// ExitResult is how the child left the process table.
type ExitResult struct {
	Code int
	Err  error
}

// Child is a handle to the spawned server process.
type Child struct {
	log   *zap.SugaredLogger
	cmd   *exec.Cmd
	done  chan struct{}
	res   ExitResult
	files []*os.File
}

// Start spawns the server described by spec in a new process group.
func Start(log *zap.SugaredLogger, spec Spec) (*Child, error) {
	cmd := exec.Command(spec.BinaryPath, spec.args()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	c := &Child{
		log:  log.Named("supervisor"),
		cmd:  cmd,
		done: make(chan struct{}),
	}

	cmd.Stdout = os.Stdout
	if spec.StdoutFile != "" {
		f, err := os.Create(spec.StdoutFile)
		if err != nil {
			return nil, fmt.Errorf("creating stdout file: %w", err)
		}
		c.files = append(c.files, f)
		cmd.Stdout = f
	}
	cmd.Stderr = os.Stderr
	if spec.StderrFile != "" {
		f, err := os.Create(spec.StderrFile)
		if err != nil {
			c.closeFiles()
			return nil, fmt.Errorf("creating stderr file: %w", err)
		}
		c.files = append(c.files, f)
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		c.closeFiles()
		return nil, fmt.Errorf("spawning server process: %w", err)
	}
	c.log.Debugw("spawned server process", "pid", cmd.Process.Pid, "args", spec.args())

	// wait on the process and latch the result
	go func() {
		err := cmd.Wait()
		c.closeFiles()
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				c.res.Code = exitErr.ExitCode()
			} else {
				c.res.Code = -1
				c.res.Err = err
			}
		}
		close(c.done)
	}()

	return c, nil
}

func (c *Child) closeFiles() {
	for _, f := range c.files {
		f.Close()
	}
	c.files = nil
}

// PID returns the child's process identifier.
func (c *Child) PID() int {
	return c.cmd.Process.Pid
}

// Exited is closed once the child has left the process table. Any number of
// waiters may select on it.
func (c *Child) Exited() <-chan struct{} {
	return c.done
}

// Result reports how the child exited. Only valid after Exited is closed.
func (c *Child) Result() ExitResult {
	return c.res
}

// Alive reports whether the child is still present in the process table.
func (c *Child) Alive() bool {
	proc, err := os.FindProcess(c.PID())
	if err != nil {
		return false
	}
	// signal 0 probes existence without delivering anything
	return proc.Signal(syscall.Signal(0)) == nil
}

// Interrupt asks the child to shut down gracefully. A child that has already
// left the process table is not signaled.
func (c *Child) Interrupt() error {
	if !c.Alive() {
		c.log.Debugw("server process already gone, not interrupting", "pid", c.PID())
		return nil
	}
	if err := c.cmd.Process.Signal(syscall.SIGINT); err != nil {
		return fmt.Errorf("interrupting server process %d: %w", c.PID(), err)
	}
	return nil
}

// Kill forcefully terminates the child. Best effort; the launcher is exiting
// regardless.
func (c *Child) Kill() error {
	return c.cmd.Process.Kill()
}
