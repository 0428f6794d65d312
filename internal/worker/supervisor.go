package worker

import (
	"bufio"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"resym/internal/core/errors"
	"resym/internal/shared/observability"
)

const (
	baseBackoff = 1 * time.Second
	maxBackoff  = 30 * time.Second
)

// Session is one live collaborator process. Stdin and Stdout carry the
// line-delimited protocol; Kill tears the process down.
type Session struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Kill   func()
	Wait   func() error
}

// processSource abstracts process startup so the transport can be exercised
// against an in-memory peer in tests.
type processSource interface {
	Start() (*Session, error)
}

// Supervisor owns the collaborator subprocess lifecycle: spawn, restart
// with capped exponential backoff, and a consecutive-failure cap after
// which the collaborator is reported unavailable rather than respawned.
type Supervisor struct {
	command     []string
	maxRestarts int

	mu       sync.Mutex
	failures int
	gaveUp   bool
}

func NewSupervisor(command []string, maxRestarts int) *Supervisor {
	return &Supervisor{command: command, maxRestarts: maxRestarts}
}

func (s *Supervisor) Start() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gaveUp {
		return nil, errors.New(errors.CodeInternal, "collaborator unavailable")
	}
	if s.failures > 0 {
		backoff := baseBackoff << (s.failures - 1)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		time.Sleep(backoff)
	}

	sess, err := s.spawn()
	if err != nil {
		s.failures++
		if s.failures > s.maxRestarts {
			s.gaveUp = true
			slog.Error("collaborator failed to initialize, giving up",
				"command", s.command[0], "failures", s.failures)
			return nil, errors.Wrap(err, errors.CodeInternal, "collaborator unavailable")
		}
		return nil, errors.Wrap(err, errors.CodeTransport, "collaborator start failed")
	}

	s.failures = 0
	return sess, nil
}

// NoteRestart counts a supervised restart triggered by a transport failure.
func (s *Supervisor) NoteRestart() {
	observability.WorkerRestartsTotal.Inc()
}

func (s *Supervisor) spawn() (*Session, error) {
	cmd := exec.Command(s.command[0], s.command[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	// The worker logs to stderr; forward it line by line.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Debug("worker stderr", "line", scanner.Text())
		}
	}()

	slog.Info("collaborator started", "command", s.command[0], "pid", cmd.Process.Pid)

	return &Session{
		Stdin:  stdin,
		Stdout: stdout,
		Kill: func() {
			_ = stdin.Close()
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		},
		Wait: cmd.Wait,
	}, nil
}
