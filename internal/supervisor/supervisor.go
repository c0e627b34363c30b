// Package supervisor runs the game process, relays its output line by line
// and releases the single-instance guard once the process is gone.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
)

// DefaultGrace is how long Stop waits after the polite signal before
// killing the process group.
const DefaultGrace = 5 * time.Second

// pipeDrainDelay bounds how long output is still relayed after the game
// itself has exited. Children that inherited the pipes cannot hold the
// guard past it.
const pipeDrainDelay = 2 * time.Second

// Spec describes the process to start.
type Spec struct {
	Path string
	Args []string
	Dir  string
	Env  []string

	// Sink receives every relayed output line and the closing message. It
	// is called from more than one goroutine.
	Sink func(string)

	// Guard is released by the exit waiter. It must already be held.
	Guard *Guard
}

// Handle owns a started process, its two output readers and its exit
// waiter.
type Handle struct {
	cmd   *exec.Cmd
	sink  func(string)
	guard *Guard

	stdout *io.PipeWriter
	stderr *io.PipeWriter

	done     chan struct{}
	err      error
	exitCode int
}

// Start launches spec.Path with spec.Args. Standard input is closed and
// stdout and stderr each get their own pipe. Cancelling ctx kills the
// whole process group. Output still arriving pipeDrainDelay after the
// process exits is dropped. On error no process exists and the guard is
// left to the caller.
func Start(ctx context.Context, spec Spec) (*Handle, error) {
	if spec.Path == "" {
		return nil, errors.New("supervisor: executable path is required")
	}
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = nil
	cmd.WaitDelay = pipeDrainDelay
	configureCommand(cmd)

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return nil, fmt.Errorf("supervisor: start %s: %w", spec.Path, err)
	}

	h := &Handle{
		cmd:      cmd,
		sink:     spec.Sink,
		guard:    spec.Guard,
		stdout:   stdoutW,
		stderr:   stderrW,
		done:     make(chan struct{}),
		exitCode: -1,
	}
	var readers sync.WaitGroup
	readers.Add(2)
	go h.relay(stdoutR, &readers)
	go h.relay(stderrR, &readers)
	go h.waitExit(&readers)
	return h, nil
}

func (h *Handle) emit(line string) {
	if h.sink != nil {
		h.sink(line)
	}
}

// relay forwards each non-empty line of r, stripped of terminal escape
// sequences, until EOF.
func (h *Handle) relay(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	reader := bufio.NewReader(r)
	for {
		chunk, err := reader.ReadString('\n')
		if line := strings.TrimRight(ansi.Strip(chunk), "\r\n"); strings.TrimSpace(line) != "" {
			h.emit(line)
		}
		if err != nil {
			return
		}
	}
}

// waitExit reaps the process, then closes the relay pipes and lets both
// readers drain before releasing the guard. Wait itself gives up on the
// output after pipeDrainDelay, so a grandchild holding stdout open does
// not keep the game marked as running.
func (h *Handle) waitExit(readers *sync.WaitGroup) {
	err := h.cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		err = nil
	}
	h.err = err
	h.stdout.Close()
	h.stderr.Close()
	readers.Wait()
	if state := h.cmd.ProcessState; state != nil {
		h.exitCode = state.ExitCode()
	}
	if h.guard != nil {
		h.guard.Release()
	}
	h.emit("[Launch] Game closed.")
	if h.exitCode != 0 {
		h.emit(fmt.Sprintf("[Warn] Game exited with code %d.", h.exitCode))
	}
	close(h.done)
}

// Done is closed once the process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until Done and returns the process exit error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// PID returns the operating system process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// ExitCode is valid after Done; -1 means the process was killed by a
// signal or never reported a status.
func (h *Handle) ExitCode() int {
	<-h.done
	return h.exitCode
}

// Stop asks the process group to terminate and kills it if it is still
// running after grace. It returns once the process has exited.
func (h *Handle) Stop(grace time.Duration) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	if err := terminate(h.cmd); err != nil {
		_ = kill(h.cmd)
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.done:
	case <-timer.C:
		if err := kill(h.cmd); err != nil {
			return fmt.Errorf("supervisor: kill %d: %w", h.PID(), err)
		}
		<-h.done
	}
	return nil
}
