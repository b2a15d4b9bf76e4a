// Package process manages the lifetime of a single MCP server child
// process: spawning it, framing JSON-RPC over its stdio pipes, correlating
// responses to in-flight requests, and shutting it down.
package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jakewatkins/mcphost/internal/config"
	"github.com/jakewatkins/mcphost/internal/hosterrors"
	"github.com/jakewatkins/mcphost/internal/protocol"
)

// State mirrors the server lifecycle from spec.md §3/§4.3.
type State string

const (
	StateStarting    State = "starting"
	StateReady       State = "ready"
	StateUnavailable State = "unavailable"
	StateShutdown    State = "shutdown"
)

const shutdownGrace = 10 * time.Second

// NotificationHandler is invoked for every server-initiated message that
// carries no id (spec.md §6's register_notification_handler).
type NotificationHandler func(serverName string, msg *protocol.Message)

// Process supervises one running MCP server: its OS process, stdio pipes,
// and the request/response correlation table built on top of them.
// Grounded on original_source's ServerProcess (mcp_host/server.py) and the
// pending-channel pattern from the Prism stdio client.
type Process struct {
	Name string

	mu    sync.RWMutex
	state State

	cfg *config.ServerConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *zap.Logger

	pendingMu sync.Mutex
	pending   map[string]chan *protocol.Message

	notifyMu sync.RWMutex
	notify   NotificationHandler

	doneCh chan struct{}
}

// New constructs a Process bound to cfg but does not start it.
func New(name string, cfg *config.ServerConfig, logger *zap.Logger) *Process {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Process{
		Name:    name,
		cfg:     cfg,
		state:   StateShutdown,
		logger:  logger.Named("process").With(zap.String("server", name)),
		pending: make(map[string]chan *protocol.Message),
		doneCh:  make(chan struct{}),
	}
}

// State returns the process's current lifecycle state.
func (p *Process) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// MarkReady transitions the process to Ready once the initialize
// handshake has completed successfully.
func (p *Process) MarkReady() {
	p.setState(StateReady)
}

// MarkUnavailable transitions the process to Unavailable, e.g. after a
// sustained timeout or a transport-level failure.
func (p *Process) MarkUnavailable() {
	p.setState(StateUnavailable)
}

// Start spawns the child process and begins reading its stdout/stderr.
// It does not perform the MCP initialize handshake; callers drive that
// over SendRequest once Start returns.
func (p *Process) Start() error {
	p.setState(StateStarting)

	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	cmd.Env = mergeEnv(os.Environ(), p.cfg.Env)
	if p.cfg.WorkingDir != "" {
		cmd.Dir = p.cfg.WorkingDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &hosterrors.StartupError{ServerName: p.Name, Message: fmt.Sprintf("failed to open stdin pipe: %v", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &hosterrors.StartupError{ServerName: p.Name, Message: fmt.Sprintf("failed to open stdout pipe: %v", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &hosterrors.StartupError{ServerName: p.Name, Message: fmt.Sprintf("failed to open stderr pipe: %v", err)}
	}

	if err := cmd.Start(); err != nil {
		if os.IsNotExist(err) {
			return &hosterrors.StartupError{ServerName: p.Name, Message: fmt.Sprintf("command not found: %s", p.cfg.Command)}
		}
		return &hosterrors.StartupError{ServerName: p.Name, Message: fmt.Sprintf("failed to start process: %v", err)}
	}

	p.cmd = cmd
	p.stdin = stdin
	p.logger.Info("server process started", zap.Int("pid", cmd.Process.Pid))

	go p.readLoop(stdout)
	go p.readStderr(stderr)

	return nil
}

func mergeEnv(base []string, overrides map[string]string) []string {
	merged := append([]string(nil), base...)
	for k, v := range overrides {
		merged = append(merged, k+"="+v)
	}
	return merged
}

func (p *Process) readLoop(stdout io.Reader) {
	defer close(p.doneCh)

	reader := protocol.NewLineReader(stdout)
	for {
		line, err := reader.ReadLine()
		if err != nil {
			if err != io.EOF {
				p.logger.Error("stdout read error", zap.Error(err))
			} else {
				p.logger.Warn("server stdout closed")
			}
			p.failPending()
			return
		}
		if len(line) == 0 {
			continue
		}

		msg, err := protocol.Decode(line)
		if err != nil {
			p.logger.Error("protocol error from server", zap.Error(err))
			continue
		}
		p.handleMessage(msg)
	}
}

func (p *Process) readStderr(stderr io.Reader) {
	reader := protocol.NewLineReader(stderr)
	for {
		line, err := reader.ReadLine()
		if err != nil {
			return
		}
		text := strings.TrimSpace(string(line))
		if text != "" {
			p.logger.Error("server stderr", zap.String("line", text))
		}
	}
}

func (p *Process) handleMessage(msg *protocol.Message) {
	if msg.ID != "" && msg.Method == "" {
		p.pendingMu.Lock()
		ch, ok := p.pending[msg.ID]
		if ok {
			delete(p.pending, msg.ID)
		}
		p.pendingMu.Unlock()

		if ok {
			ch <- msg
			close(ch)
		} else {
			p.logger.Warn("response for unknown request id", zap.String("id", msg.ID))
		}
		return
	}

	if !msg.IsNotification() {
		return
	}

	p.notifyMu.RLock()
	handler := p.notify
	p.notifyMu.RUnlock()
	if handler != nil {
		handler(p.Name, msg)
	}
}

func (p *Process) failPending() {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
}

// SetNotificationHandler installs the callback invoked for every
// id-less message received from this server.
func (p *Process) SetNotificationHandler(h NotificationHandler) {
	p.notifyMu.Lock()
	p.notify = h
	p.notifyMu.Unlock()
}

// Send writes msg to the child's stdin without waiting for a response;
// used for notifications such as `notifications/initialized`.
func (p *Process) Send(msg *protocol.Message) error {
	p.mu.RLock()
	stdin := p.stdin
	p.mu.RUnlock()
	if stdin == nil {
		return &hosterrors.UnavailableError{ServerName: p.Name, Message: fmt.Sprintf("server %q process is not running", p.Name)}
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if _, err := stdin.Write(data); err != nil {
		return &hosterrors.UnavailableError{ServerName: p.Name, Message: fmt.Sprintf("failed to write to server %q: %v", p.Name, err)}
	}
	return nil
}

// SendRequest sends msg (which must carry an id) and blocks until a
// matching response arrives, ctx is done, or timeout elapses.
func (p *Process) SendRequest(ctx context.Context, msg *protocol.Message, timeout time.Duration) (*protocol.Message, error) {
	if msg.ID == "" {
		return nil, &hosterrors.ProtocolError{Message: "request message must have an id"}
	}

	respCh := make(chan *protocol.Message, 1)
	p.pendingMu.Lock()
	p.pending[msg.ID] = respCh
	p.pendingMu.Unlock()

	if err := p.Send(msg); err != nil {
		p.pendingMu.Lock()
		delete(p.pending, msg.ID)
		p.pendingMu.Unlock()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, &hosterrors.UnavailableError{ServerName: p.Name, Message: fmt.Sprintf("server %q closed its connection", p.Name)}
		}
		return resp, nil
	case <-timer.C:
		p.pendingMu.Lock()
		delete(p.pending, msg.ID)
		p.pendingMu.Unlock()
		return nil, &hosterrors.TimeoutError{ServerName: p.Name, Operation: msg.Method, Timeout: timeout}
	case <-ctx.Done():
		p.pendingMu.Lock()
		delete(p.pending, msg.ID)
		p.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

// PID returns the child process's OS process id, or 0 if it has not
// started.
func (p *Process) PID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// IsAlive reports whether the OS process is still running.
func (p *Process) IsAlive() bool {
	p.mu.RLock()
	cmd := p.cmd
	p.mu.RUnlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	return cmd.ProcessState == nil
}

// Shutdown closes stdin to signal the server to exit, waits up to the
// grace period, then force-kills the process. Idempotent.
func (p *Process) Shutdown() error {
	if p.State() == StateShutdown {
		return nil
	}
	p.setState(StateShutdown)
	p.logger.Info("shutting down server")

	p.mu.RLock()
	cmd := p.cmd
	stdin := p.stdin
	p.mu.RUnlock()

	if cmd == nil {
		return nil
	}
	if stdin != nil {
		stdin.Close()
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case <-waitCh:
		p.logger.Info("server terminated gracefully")
	case <-time.After(shutdownGrace):
		p.logger.Warn("server did not terminate, forcing kill")
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				p.logger.Error("failed to kill server process", zap.Error(err))
			}
		}
		<-waitCh
	}

	p.failPending()
	return nil
}
