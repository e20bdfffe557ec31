package child

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpgateway/internal/capture"
	"mcpgateway/internal/config"
	"mcpgateway/internal/mcptransport"
	"mcpgateway/internal/metrics"
	"mcpgateway/internal/types"
)

// spawnIfNeeded establishes the process (stdio) or is a no-op (http, and
// tests injecting a sessionOpener); the session itself is opened lazily by
// ensureSession on first use in both of those no-op cases.
func (s *Supervisor) spawnIfNeeded() error {
	if s.sessionOpener != nil || s.cfg.Transport == config.TransportHTTP {
		return nil
	}
	return s.spawnStdioProcess(s.baseCtx)
}

// spawnStdioProcess starts the child's process, wiring stderr into the
// capture ring before the process starts (mcp.CommandTransport takes
// ownership of stdin/stdout for protocol framing, so stdout is not
// separately capturable as text — see DESIGN.md). The process itself is
// tied to the supervisor's own long-lived baseCtx so a short per-attempt
// handshakeCtx expiring does not kill it out from under a later retry; only
// the handshake (mcp.NewClient.Connect) is bounded by handshakeCtx.
func (s *Supervisor) spawnStdioProcess(handshakeCtx context.Context) error {
	cmd, err := mcptransport.NewStdioCommand(s.baseCtx, s.cfg.Command, s.cfg.Args, s.cfg.Env)
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	sess, err := mcptransport.ConnectStdio(handshakeCtx, cmd)
	if err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return err
	}

	s.mu.Lock()
	s.proc = cmd
	s.pid = cmd.Process.Pid
	s.session = sess
	s.sessionOpenedAt = time.Now()
	s.startedAt = time.Now()
	s.mu.Unlock()

	go capture.Drain(stderr, s.stderrBuf, func(ts time.Time) {
		s.mu.Lock()
		s.lastOutputRenewal = ts
		s.mu.Unlock()
	})
	return nil
}

// ensureSession returns the live session, opening or refreshing it if it is
// absent, forced, or past sessionTTL (spec.md §4.3 "session refresh rule").
// For stdio children the session is tied 1:1 to its process, so refreshing
// it means tearing down and respawning the process.
func (s *Supervisor) ensureSession(ctx context.Context, force bool) (mcptransport.SessionHandle, error) {
	s.mu.RLock()
	sess := s.session
	age := time.Since(s.sessionOpenedAt)
	s.mu.RUnlock()
	if sess != nil && !force && age < sessionTTL {
		return sess, nil
	}

	// Concurrent callers (a health probe and an inbound call_tool, or two
	// racing call_tool dispatches) can all observe a stale/absent session at
	// once; singleflight collapses them onto one refresh instead of
	// respawning the same stdio process twice (grounded on the teacher's
	// internal/client/mcp.go requestGroup singleflight.Group).
	v, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return s.refreshSession(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(mcptransport.SessionHandle), nil
}

func (s *Supervisor) refreshSession(ctx context.Context) (mcptransport.SessionHandle, error) {
	if s.sessionOpener != nil {
		newSess, err := s.sessionOpener(ctx)
		if err != nil {
			return nil, err
		}
		s.closeSession()
		s.mu.Lock()
		s.session = newSess
		s.sessionOpenedAt = time.Now()
		s.mu.Unlock()
		return newSess, nil
	}

	if s.cfg.Transport == config.TransportHTTP {
		newSess, err := mcptransport.OpenHTTP(ctx, s.cfg.URL)
		if err != nil {
			return nil, err
		}
		s.closeSession()
		s.mu.Lock()
		s.session = newSess
		s.sessionOpenedAt = time.Now()
		s.mu.Unlock()
		return newSess, nil
	}

	s.closeSession()
	s.teardownProcess()
	if err := s.spawnStdioProcess(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	newSess := s.session
	s.mu.RUnlock()
	return newSess, nil
}

// listToolsWith ensures a session (forcing a fresh one when force is set;
// the readiness gate and the health probe both pass false) and lists its tools. Errors are
// tagged as types.RetryableError: everything reaching this path is a
// readiness-probe or health-probe failure, the class of error this system's
// backoff/two-strike recovery is built to absorb, as opposed to the spawn/
// config errors in doStart that go straight to sticky errored untagged.
func (s *Supervisor) listToolsWith(ctx context.Context, force bool) (*mcp.ListToolsResult, error) {
	sess, err := s.ensureSession(ctx, force)
	if err != nil {
		return nil, types.NewRetryableError(err)
	}
	start := time.Now()
	res, err := sess.ListTools(ctx, mcptransport.RPCTimeout)
	metrics.RPCDuration.WithLabelValues("list_tools").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, types.NewRetryableError(err)
	}
	return res, nil
}

func (s *Supervisor) closeSession() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
}

// teardownProcess terminates the process gracefully (SIGTERM, stopGrace
// wait) and falls back to SIGKILL. A no-op for http children or a stdio
// child with no running process.
func (s *Supervisor) teardownProcess() {
	s.mu.Lock()
	cmd := s.proc
	s.proc = nil
	s.pid = 0
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitErr:
	case <-time.After(stopGrace):
		_ = cmd.Process.Kill()
		<-waitErr
	}
}

// ListTools lists the running child's tools. Returns an error if the child
// is not currently running.
func (s *Supervisor) ListTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	if s.getState() != StateRunning {
		return nil, fmt.Errorf("child %q is not running", s.cfg.Name)
	}
	return s.listToolsWith(ctx, false)
}

// CallTool dispatches name to the running child.
func (s *Supervisor) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if s.getState() != StateRunning {
		metrics.ToolCalls.WithLabelValues(s.cfg.Name, name, "not_found").Inc()
		return nil, fmt.Errorf("child %q is not running", s.cfg.Name)
	}
	sess, err := s.ensureSession(ctx, false)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(s.cfg.Name, name, "error").Inc()
		return nil, err
	}
	start := time.Now()
	res, err := sess.CallTool(ctx, name, args)
	metrics.RPCDuration.WithLabelValues("call_tool").Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ToolCalls.WithLabelValues(s.cfg.Name, name, status).Inc()
	return res, err
}

// GetToolsInfo reports the live tool and estimated-token count, used to
// enrich the /status response (spec.md §4.3 get_tools_info).
func (s *Supervisor) GetToolsInfo(ctx context.Context) ToolsInfo {
	res, err := s.ListTools(ctx)
	if err != nil {
		return ToolsInfo{ToolsError: err.Error()}
	}
	raw, _ := json.Marshal(res.Tools)
	return ToolsInfo{
		ToolCount:  len(res.Tools),
		TokenCount: s.tokenCounter.Count(string(raw)),
	}
}

// Info returns a point-in-time snapshot safe for JSON serialization.
func (s *Supervisor) Info() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uptime *float64
	if s.state == StateRunning && !s.startedAt.IsZero() {
		u := time.Since(s.startedAt).Seconds()
		uptime = &u
	}
	var renewal *time.Time
	if !s.lastOutputRenewal.IsZero() {
		t := s.lastOutputRenewal
		renewal = &t
	}

	return Snapshot{
		State:             s.state,
		PID:               s.pid,
		Transport:         s.cfg.Transport,
		Retries:           s.retries,
		UptimeSeconds:     uptime,
		Healthy:           s.healthy,
		Restarts:          s.restartCount,
		LastError:         s.lastErr,
		Stdout:            s.stdoutBuf.Last(capture.Tail),
		Stderr:            s.stderrBuf.Last(capture.Tail),
		LastOutputRenewal: renewal,
	}
}
