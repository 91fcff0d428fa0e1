// Package proc launches a language server as a child process wired to a
// pair of pipes and tears it down with terminate, then kill after a grace
// period.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// DefaultStopGrace is how long Stop waits after SIGTERM before killing.
const DefaultStopGrace = 5 * time.Second

// ErrKilled is returned by Stop when the process ignored SIGTERM and had to
// be killed.
var ErrKilled = errors.New("process killed after grace period")

// Command describes the process to start.
type Command struct {
	Path string
	Args []string
	// Env is appended to the parent's environment.
	Env []string
	Dir string
	// Stderr receives the child's stderr. Defaults to os.Stderr.
	Stderr io.Writer
}

// Process is a running child. Stdin and Stdout are the parent's ends of the
// child's standard streams.
type Process struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser

	cmd *exec.Cmd
	log *slog.Logger

	done    chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

// Start launches c. The context only bounds startup; use Stop to end the
// process.
func Start(ctx context.Context, c Command, log *slog.Logger) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	path, err := exec.LookPath(c.Path)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.Path, err)
	}

	// Plain os.Pipe pairs: exec.Cmd's own pipes are closed by Wait, which
	// would race with a reader still draining stdout.
	childIn, parentIn, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	parentOut, childOut, err := os.Pipe()
	if err != nil {
		_ = childIn.Close()
		_ = parentIn.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	cmd := exec.Command(path, c.Args...)
	cmd.Stdin = childIn
	cmd.Stdout = childOut
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{childIn, parentIn, parentOut, childOut} {
			_ = f.Close()
		}
		return nil, fmt.Errorf("start %s: %w", c.Path, err)
	}
	_ = childIn.Close()
	_ = childOut.Close()

	p := &Process{
		Stdin:  parentIn,
		Stdout: parentOut,
		cmd:    cmd,
		log:    log.With(slog.Int("pid", cmd.Process.Pid)),
		done:   make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	p.log.DebugContext(ctx, "proc.start", slog.String("path", path), slog.Any("args", c.Args))
	return p, nil
}

// Pid returns the child's process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the process exits and returns its exit status.
func (p *Process) Wait() error {
	<-p.done
	return p.waitErr
}

// Stop closes the child's stdin, asks it to terminate and kills it if it is
// still running after grace. A non-positive grace selects DefaultStopGrace.
// Stop returns ErrKilled when the kill was needed and is safe to call more
// than once.
func (p *Process) Stop(grace time.Duration) error {
	p.stopOnce.Do(func() {
		p.stopErr = p.stop(grace)
	})
	return p.stopErr
}

func (p *Process) stop(grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	_ = p.Stdin.Close()
	defer func() {
		_ = p.Stdout.Close()
	}()

	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		p.log.Debug("proc.terminate.err", slog.String("err", err.Error()))
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		p.log.Debug("proc.terminated")
		return nil
	case <-timer.C:
	}

	p.log.Warn("proc.kill", slog.Duration("grace", grace))
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill: %w", err)
	}
	<-p.done
	return ErrKilled
}
