// Package child supervises exactly one configured MCP server: spawning it
// (stdio) or dialing it (streamable-HTTP), gating readiness, monitoring
// health, and driving the retry/backoff cycle when it misbehaves. Each
// Supervisor owns a single command channel drained by one goroutine so that
// start/stop/retry transitions are never applied concurrently to the same
// child (grounded on fractalic_mcp_manager.py's Child class and the
// single-worker-loop idiom in the teacher's internal/webhook/worker.go).
package child

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mcpgateway/internal/capture"
	"mcpgateway/internal/config"
	"mcpgateway/internal/mcptransport"
	"mcpgateway/internal/metrics"
)

const (
	sessionTTL            = 3600 * time.Second
	maxRetries            = 5
	backoffBase           = 2
	defaultHealthInterval = 45 * time.Second
	defaultBackoffUnit    = time.Second
	readinessTimeout      = 10 * time.Second
	stopGrace             = 5 * time.Second
)

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdExit
	cmdHealthFailRetry
	cmdHealthFailSticky
)

// Supervisor owns the lifecycle of one configured child server.
type Supervisor struct {
	cfg          config.ChildConfig
	tokenCounter TokenCounter

	cmdCh  chan cmdKind
	doneCh chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu              sync.RWMutex
	state           State
	healthy         bool
	retries         int
	restartCount    int
	healthFailures  int
	session         mcptransport.SessionHandle
	sessionOpenedAt time.Time
	proc            *exec.Cmd
	pid             int
	startedAt       time.Time
	lastErr         string

	stdoutBuf         *capture.Buffer
	stderrBuf         *capture.Buffer
	lastOutputRenewal time.Time

	healthCancel   context.CancelFunc
	healthDone     chan struct{}
	healthInterval time.Duration
	backoffUnit    time.Duration

	// sessionOpener overrides session creation for tests, bypassing real
	// stdio/HTTP dialing entirely. Production code leaves this nil. Set via
	// WithSessionFactory.
	sessionOpener func(ctx context.Context) (mcptransport.SessionHandle, error)

	refreshGroup singleflight.Group
}

// Option configures a Supervisor at construction.
type Option func(*Supervisor)

// WithSessionFactory replaces real stdio/HTTP session dialing with f. It
// exists for child- and fleet-lifecycle tests, which use it to simulate
// probe successes and failures deterministically without spawning a process
// or dialing HTTP (grounded on the teacher's client.SetTransportFactory
// test seam in internal/client/mcp_lifecycle_test.go).
func WithSessionFactory(f func(ctx context.Context) (mcptransport.SessionHandle, error)) Option {
	return func(s *Supervisor) { s.sessionOpener = f }
}

// WithHealthInterval overrides the health-probe cadence. It exists for
// tests; production callers should not need it.
func WithHealthInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.healthInterval = d }
}

// WithBackoffUnit overrides the backoff base unit (production: one second,
// so retry N waits backoffBase^N seconds). It exists for tests so the
// backoff path can be exercised without real wall-clock delays.
func WithBackoffUnit(d time.Duration) Option {
	return func(s *Supervisor) { s.backoffUnit = d }
}

// New builds a Supervisor for cfg and starts its lifecycle goroutine. The
// child itself is not started; call Start to enqueue that.
func New(cfg config.ChildConfig, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:            cfg,
		tokenCounter:   DefaultTokenCounter,
		cmdCh:          make(chan cmdKind, 1),
		doneCh:         make(chan struct{}),
		baseCtx:        ctx,
		baseCancel:     cancel,
		state:          StateStopped,
		stdoutBuf:      &capture.Buffer{},
		stderrBuf:      &capture.Buffer{},
		healthInterval: defaultHealthInterval,
		backoffUnit:    defaultBackoffUnit,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop()
	return s
}

// Name returns the configured child name.
func (s *Supervisor) Name() string { return s.cfg.Name }

func (s *Supervisor) loop() {
	for cmd := range s.cmdCh {
		switch cmd {
		case cmdStart:
			s.doStart()
		case cmdStop:
			s.doStop()
		case cmdExit:
			s.doStop()
			close(s.doneCh)
			return
		case cmdHealthFailRetry:
			s.retryBackoff()
		case cmdHealthFailSticky:
			s.healthSticky()
		}
	}
}

// Start enqueues a start command. It does not block for the child to become
// ready; callers observe readiness via Info. A start already pending or in
// flight coalesces with this one.
func (s *Supervisor) Start() {
	select {
	case s.cmdCh <- cmdStart:
	default:
	}
}

// Stop enqueues a stop command, coalescing with any pending stop.
func (s *Supervisor) Stop() {
	select {
	case s.cmdCh <- cmdStop:
	default:
	}
}

// Shutdown enqueues an exit command and blocks until the lifecycle goroutine
// has torn the child down and returned. Only the fleet, at process shutdown,
// calls this.
func (s *Supervisor) Shutdown() {
	s.cmdCh <- cmdExit
	<-s.doneCh
	s.baseCancel()
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	metrics.ChildStateTransitions.WithLabelValues(s.cfg.Name, string(st)).Inc()
}

func (s *Supervisor) getState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// doStart runs the full start sequence: honor STARTUP_DELAY, spawn or dial,
// gate on readiness for up to RetryCount attempts, and on success start the
// health monitor. A readiness-gate exhaustion is always a sticky errored
// transition — it never consults the retry/backoff cap.
func (s *Supervisor) doStart() {
	if s.getState() == StateRunning {
		return
	}

	s.setState(StateStarting)
	slog.Info("starting child", "child", s.cfg.Name)

	if delayMS := s.cfg.StartupDelayMS(); delayMS > 0 {
		select {
		case <-time.After(time.Duration(delayMS) * time.Millisecond):
		case <-s.baseCtx.Done():
			return
		}
	}

	if err := s.spawnIfNeeded(); err != nil {
		s.fail(fmt.Sprintf("spawn failed: %v", err))
		return
	}

	retryCount := s.cfg.RetryCount()
	retryDelay := time.Duration(s.cfg.RetryDelayMS()) * time.Millisecond

	var lastErr error
	ready := false
	for attempt := 1; attempt <= retryCount; attempt++ {
		ctx, cancel := context.WithTimeout(s.baseCtx, readinessTimeout)
		_, err := s.listToolsWith(ctx, false)
		cancel()
		if err == nil {
			ready = true
			break
		}
		lastErr = err
		slog.Warn("readiness probe failed", "child", s.cfg.Name, "attempt", attempt, "error", err)
		if attempt < retryCount {
			select {
			case <-time.After(retryDelay):
			case <-s.baseCtx.Done():
				return
			}
		}
	}

	if !ready {
		s.closeSession()
		s.teardownProcess()
		s.fail(fmt.Sprintf("Failed to get tools after %d attempts: %v", retryCount, lastErr))
		return
	}

	s.mu.Lock()
	s.retries = 0
	s.healthy = true
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.setState(StateRunning)
	s.startHealthLoop()
}

// fail transitions the child to errored, recording lastErr. Reached only
// from the lifecycle goroutine.
func (s *Supervisor) fail(reason string) {
	s.mu.Lock()
	s.lastErr = reason
	s.mu.Unlock()
	slog.Error("child entered errored state", "child", s.cfg.Name, "reason", reason)
	s.setState(StateErrored)
}

// doStop is idempotent: cancel the health task and await it, close the
// session, terminate the process with a grace period before a hard kill, and
// transition to stopped.
func (s *Supervisor) doStop() {
	if s.getState() == StateStopped {
		return
	}
	s.setState(StateStopping)
	slog.Info("stopping child", "child", s.cfg.Name)

	s.stopHealthLoop()
	s.closeSession()
	s.teardownProcess()

	s.mu.Lock()
	s.healthy = false
	s.mu.Unlock()
	s.setState(StateStopped)
}

// retryBackoff is the single-health-failure recovery path: close the
// session, kill the process, and either give up (sticky errored, retry cap
// exhausted) or sleep an exponential backoff and re-enter the start
// sequence (fractalic_mcp_manager.py's _schedule_retry).
func (s *Supervisor) retryBackoff() {
	s.stopHealthLoop()
	s.closeSession()
	s.teardownProcess()

	s.mu.Lock()
	retries := s.retries
	s.mu.Unlock()

	if retries >= maxRetries {
		s.fail(fmt.Sprintf("exceeded max retries (%d)", maxRetries))
		return
	}

	s.mu.Lock()
	s.retries++
	s.restartCount++
	next := s.retries
	s.mu.Unlock()
	metrics.RestartsTotal.WithLabelValues(s.cfg.Name).Inc()
	s.setState(StateRetrying)

	backoff := s.backoffUnit
	for i := 0; i < next; i++ {
		backoff *= backoffBase
	}
	slog.Warn("backing off before restart", "child", s.cfg.Name, "retries", next, "delay", backoff)
	select {
	case <-time.After(backoff):
	case <-s.baseCtx.Done():
		return
	}

	s.doStart()
}

// healthSticky is the two-strike recovery path: no backoff, no retry cap
// check, straight to sticky errored.
func (s *Supervisor) healthSticky() {
	s.stopHealthLoop()
	s.closeSession()
	s.teardownProcess()
	s.fail("failed two consecutive health probes")
}
