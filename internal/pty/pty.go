// Package pty spawns external assistant processes attached to a
// pseudo-terminal. Agent CLIs only render their interactive prompt when
// they believe a real terminal is on the other end, so every session
// process runs under a PTY.
package pty

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// StartOptions configures a new PTY-backed process.
type StartOptions struct {
	// Command is the executable to run.
	Command string

	// Args are passed to the command.
	Args []string

	// Env is the process environment. If nil, the parent environment is
	// inherited.
	Env []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Rows and Cols set the initial terminal size. Zero values default
	// to 24x80.
	Rows, Cols uint16
}

// Process is a running command attached to a PTY master.
// Read returns the process output; Write feeds its input.
type Process struct {
	tty *os.File
	cmd *exec.Cmd
}

// Start launches the command under a new PTY.
func Start(opts StartOptions) (*Process, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("pty: command is required")
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Cols == 0 {
		opts.Cols = 80
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	tty, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols})
	if err != nil {
		return nil, fmt.Errorf("pty: failed to start %s: %w", opts.Command, err)
	}

	return &Process{tty: tty, cmd: cmd}, nil
}

// Read reads process output from the PTY master.
func (p *Process) Read(b []byte) (int, error) {
	return p.tty.Read(b)
}

// Write writes input to the process.
func (p *Process) Write(b []byte) (int, error) {
	return p.tty.Write(b)
}

// Close closes the PTY master. The process itself is not signalled.
func (p *Process) Close() error {
	return p.tty.Close()
}

// Kill terminates the process.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Wait blocks until the process exits and returns its exit code.
// A process killed by a signal reports -1.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// PID returns the process id, or 0 if the process never started.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// SplitCommand splits a command line into command and arguments,
// honoring single and double quotes.
func SplitCommand(cmdline string) []string {
	var parts []string
	var current []rune
	inQuote := false
	quoteChar := rune(0)

	for _, r := range cmdline {
		switch {
		case r == '"' || r == '\'':
			if inQuote {
				if r == quoteChar {
					inQuote = false
					quoteChar = 0
				} else {
					current = append(current, r)
				}
			} else {
				inQuote = true
				quoteChar = r
			}
		case r == ' ' || r == '\t':
			if inQuote {
				current = append(current, r)
			} else if len(current) > 0 {
				parts = append(parts, string(current))
				current = nil
			}
		default:
			current = append(current, r)
		}
	}

	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return parts
}
