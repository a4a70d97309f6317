package hedgews

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rnrnstar2/ArbitrageAssistant/internal/backoff"
	"github.com/rnrnstar2/ArbitrageAssistant/internal/stats"
)

// reconnector owns the single backoff timer behind every recovery
// cycle. Scheduling while a cycle is already pending is a no-op, so
// coalesced failures (a close racing a heartbeat timeout) consume one
// attempt, not several.
type reconnector struct {
	policy backoff.Policy
	state  *stateVar
	stats  *stats.Registry
	logger *slog.Logger
	redial func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func newReconnector(policy backoff.Policy, state *stateVar, reg *stats.Registry, logger *slog.Logger, redial func()) *reconnector {
	return &reconnector{
		policy: policy,
		state:  state,
		stats:  reg,
		logger: logger,
		redial: redial,
	}
}

// schedule arms one recovery cycle, or parks the client in the failed
// state when the attempt budget is spent. Callers must not hold the
// client mutex.
func (r *reconnector) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped || r.timer != nil {
		return
	}

	attempts := r.stats.Attempts()
	if r.policy.Exhausted(attempts) {
		r.state.Store(StateFailed)
		r.stats.SetLastError(ErrRetryExhausted.Error())
		r.logger.Error("reconnect attempts exhausted",
			"attempts", attempts,
			"max_attempts", r.policy.MaxAttempts)
		return
	}

	delay := r.policy.Delay(attempts)
	r.stats.SetAttempts(attempts + 1)
	r.state.Store(StateReconnecting)

	r.gen++
	gen := r.gen
	r.logger.Info("scheduling reconnect",
		"attempt", attempts+1,
		"max_attempts", r.policy.MaxAttempts,
		"delay", delay)
	r.timer = time.AfterFunc(delay, func() { r.fire(gen) })
}

func (r *reconnector) fire(gen uint64) {
	r.mu.Lock()
	if r.stopped || gen != r.gen || r.timer == nil {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.mu.Unlock()

	r.redial()
}

// reset drops any pending cycle and re-enables scheduling. Called on
// every fresh explicit connect.
func (r *reconnector) reset() {
	r.mu.Lock()
	r.cancelLocked()
	r.stopped = false
	r.mu.Unlock()
}

// cancel drops any pending cycle without touching the stopped flag.
func (r *reconnector) cancel() {
	r.mu.Lock()
	r.cancelLocked()
	r.mu.Unlock()
}

// disable drops any pending cycle and rejects future scheduling until
// the next reset. Called on disconnect so no timer outlives the client.
func (r *reconnector) disable() {
	r.mu.Lock()
	r.cancelLocked()
	r.stopped = true
	r.mu.Unlock()
}

func (r *reconnector) cancelLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
}
