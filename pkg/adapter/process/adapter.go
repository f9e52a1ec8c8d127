// Package process hosts each terminal as a long-lived child process that
// speaks line-delimited JSON on stdin/stdout.
package process

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"termpool/pkg/config"
	"termpool/pkg/interfaces"
	"termpool/pkg/logger"
)

const maxLineSize = 16 * 1024 * 1024

// Adapter launches cfg.Command once per terminal
type Adapter struct {
	command string
	args    []string
	workDir string
	env     []string

	mu    sync.Mutex
	procs map[string]*child
	next  int
}

// NewAdapter creates a process adapter from configuration
func NewAdapter(cfg config.AdapterConfig) (*Adapter, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("adapter.command is required for the process adapter")
	}
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	return &Adapter{
		command: cfg.Command,
		args:    cfg.Args,
		workDir: cfg.WorkDir,
		env:     env,
		procs:   make(map[string]*child),
	}, nil
}

// child one running hosted process
type child struct {
	ref  string
	cmd  *exec.Cmd
	done chan struct{}

	writeMu sync.Mutex
	enc     *json.Encoder
	stdin   io.WriteCloser

	pingSeq int64
	mu      sync.Mutex
	waiters map[int64]chan struct{}
	results chan *interfaces.ExecutionResult
}

func (a *Adapter) start(ref string) (*child, error) {
	cmd := exec.Command(a.command, a.args...)
	cmd.Dir = a.workDir
	cmd.Env = a.env
	cmd.Env = append(cmd.Env, "TERMPOOL_TERMINAL_REF="+ref)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	c := &child{
		ref:     ref,
		cmd:     cmd,
		done:    make(chan struct{}),
		enc:     json.NewEncoder(stdin),
		stdin:   stdin,
		waiters: make(map[int64]chan struct{}),
		results: make(chan *interfaces.ExecutionResult, 1),
	}

	go c.read(stdout)
	logger.Infof("terminal process %s started, pid=%d", ref, cmd.Process.Pid)
	return c, nil
}

// read dispatches messages until stdout closes, then reaps the process
func (c *child) read(stdout io.Reader) {
	defer func() {
		_ = c.cmd.Wait()
		close(c.done)
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			logger.Debugf("terminal process %s: ignoring non-protocol line: %s", c.ref, scanner.Text())
			continue
		}
		switch msg.Type {
		case msgPong:
			c.mu.Lock()
			if w, ok := c.waiters[msg.ID]; ok {
				close(w)
				delete(c.waiters, msg.ID)
			}
			c.mu.Unlock()
		case msgResult:
			select {
			case c.results <- msg.Result:
			default:
				logger.Warnf("terminal process %s: unsolicited result dropped", c.ref)
			}
		case msgLog:
			logger.Debugf("terminal process %s: %s", c.ref, msg.Text)
		}
	}
}

func (c *child) write(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return fmt.Errorf("process %s exited", c.ref)
	default:
	}
	if err := c.enc.Encode(msg); err != nil {
		return fmt.Errorf("failed to write to process %s: %w", c.ref, err)
	}
	return nil
}

func (c *child) stop() error {
	_ = c.stdin.Close()
	err := killGroup(c.cmd)
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("process %s did not exit after kill", c.ref)
	}
	return err
}

func (a *Adapter) lookup(h *interfaces.TerminalHandle) (*child, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.procs[h.Ref]
	if !ok {
		return nil, fmt.Errorf("process %s not found", h.Ref)
	}
	return c, nil
}

func (a *Adapter) Launch(ctx context.Context) (*interfaces.TerminalHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.next++
	ref := fmt.Sprintf("proc-%d", a.next)
	a.mu.Unlock()

	c, err := a.start(ref)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.procs[ref] = c
	a.mu.Unlock()
	return &interfaces.TerminalHandle{Ref: ref, StartedAt: time.Now()}, nil
}

func (a *Adapter) Probe(ctx context.Context, h *interfaces.TerminalHandle) bool {
	c, err := a.lookup(h)
	if err != nil {
		return false
	}

	id := atomic.AddInt64(&c.pingSeq, 1)
	w := make(chan struct{})
	c.mu.Lock()
	c.waiters[id] = w
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
	}()

	if err := c.write(&Message{Type: msgPing, ID: id}); err != nil {
		return false
	}
	select {
	case <-w:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (a *Adapter) Send(_ context.Context, h *interfaces.TerminalHandle, sig interfaces.Signal) error {
	c, err := a.lookup(h)
	if err != nil {
		return err
	}
	if sig == interfaces.SignalInterrupt {
		if err := interruptGroup(c.cmd); err != nil {
			return fmt.Errorf("failed to interrupt process %s: %w", h.Ref, err)
		}
	}
	return c.write(&Message{Type: msgSignal, Signal: sig})
}

func (a *Adapter) Restart(ctx context.Context, h *interfaces.TerminalHandle) error {
	c, err := a.lookup(h)
	if err != nil {
		return err
	}
	if err := c.stop(); err != nil {
		logger.WarnCtx(ctx, "restart %s: %v", h.Ref, err)
	}

	fresh, err := a.start(h.Ref)
	if err != nil {
		a.mu.Lock()
		delete(a.procs, h.Ref)
		a.mu.Unlock()
		return err
	}
	a.mu.Lock()
	a.procs[h.Ref] = fresh
	a.mu.Unlock()
	h.StartedAt = time.Now()
	return nil
}

func (a *Adapter) Kill(_ context.Context, h *interfaces.TerminalHandle) error {
	a.mu.Lock()
	c, ok := a.procs[h.Ref]
	delete(a.procs, h.Ref)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return c.stop()
}

func (a *Adapter) Run(ctx context.Context, h *interfaces.TerminalHandle, req *interfaces.ExecutionRequest) (*interfaces.ExecutionResult, error) {
	c, err := a.lookup(h)
	if err != nil {
		return nil, err
	}

	// drop a stale result left behind by an abandoned run
	select {
	case <-c.results:
	default:
	}

	if err := c.write(&Message{Type: msgRun, Request: req}); err != nil {
		return &interfaces.ExecutionResult{Event: interfaces.ExecutionTerminalFault, Error: err.Error()}, nil
	}

	select {
	case res := <-c.results:
		if res == nil {
			return &interfaces.ExecutionResult{Event: interfaces.ExecutionFailed, Error: "empty result"}, nil
		}
		return res, nil
	case <-c.done:
		return &interfaces.ExecutionResult{
			Event: interfaces.ExecutionTerminalFault,
			Error: fmt.Sprintf("process %s exited during run", h.Ref),
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// KillAll terminates every hosted process, used on shutdown
func (a *Adapter) KillAll() {
	a.mu.Lock()
	procs := a.procs
	a.procs = make(map[string]*child)
	a.mu.Unlock()

	for ref, c := range procs {
		if err := c.stop(); err != nil {
			logger.Warnf("failed to stop process %s: %v", ref, err)
		}
	}
}
