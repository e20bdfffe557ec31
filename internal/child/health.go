package child

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mcpgateway/internal/mcptransport"
	"mcpgateway/internal/metrics"
	"mcpgateway/internal/types"
)

// isRetryableError reports whether err is the class of error this
// supervisor's backoff/two-strike recovery is meant to absorb: one
// explicitly tagged by types.RetryableError (every readiness/health probe
// failure, see listToolsWith), or a context timeout/cancellation. Grounded
// on the teacher's webhook/parser.go isRetryableError, which draws the same
// distinction to decide whether to keep retrying an LLM call.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var retryErr *types.RetryableError
	if errors.As(err, &retryErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// startHealthLoop launches the health monitor goroutine for a newly-running
// child. Called only from the lifecycle goroutine, so healthCancel/healthDone
// are not concurrently mutated here.
func (s *Supervisor) startHealthLoop() {
	ctx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})
	s.mu.Lock()
	s.healthCancel = cancel
	s.healthDone = done
	s.mu.Unlock()
	go s.healthLoop(ctx, done)
}

// stopHealthLoop cancels the health goroutine (if any) and waits for it to
// exit, satisfying the invariant that no health probe runs concurrently with
// a stop/retry cleanup of the same child.
func (s *Supervisor) stopHealthLoop() {
	s.mu.Lock()
	cancel := s.healthCancel
	done := s.healthDone
	s.healthCancel = nil
	s.healthDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// healthLoop probes list_tools every healthInterval. A single failure hands
// off to the retry/backoff path; two consecutive failures hand off to the
// sticky-errored path. Either way the loop hands off by enqueuing a command
// on the shared command channel — so the actual state mutation happens back
// on the lifecycle goroutine, never here — and then exits itself.
func (s *Supervisor) healthLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.probeOnce(ctx) {
				return
			}
		}
	}
}

// probeOnce runs a single health probe. It returns true if the loop should
// keep going, false if a failure outcome was handed off and the loop must
// stop (the lifecycle goroutine now owns recovery).
func (s *Supervisor) probeOnce(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, mcptransport.HealthTimeout)
	defer cancel()

	start := time.Now()
	_, err := s.listToolsWith(probeCtx, false)
	metrics.RPCDuration.WithLabelValues("health_probe").Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.HealthProbes.WithLabelValues(s.cfg.Name, "success").Inc()
		s.mu.Lock()
		s.healthFailures = 0
		s.healthy = true
		s.mu.Unlock()
		return true
	}

	metrics.HealthProbes.WithLabelValues(s.cfg.Name, "failure").Inc()
	s.mu.Lock()
	s.healthFailures++
	strikes := s.healthFailures
	s.healthy = false
	s.mu.Unlock()
	retryable := isRetryableError(err)
	slog.Warn("health probe failed", "child", s.cfg.Name, "strikes", strikes, "retryable", retryable, "error", err)

	// Two strikes always goes sticky; a non-retryable error (one that isn't
	// even the tagged probe-failure class) skips straight there too, since
	// there is no reason to wait out a second strike for it.
	if strikes >= 2 || !retryable {
		s.cmdCh <- cmdHealthFailSticky
	} else {
		s.cmdCh <- cmdHealthFailRetry
	}
	return false
}
