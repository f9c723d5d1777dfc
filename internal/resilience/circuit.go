package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned by Allow while the breaker is rejecting calls.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// Breaker is a minimal circuit breaker for metered APIs. After threshold
// consecutive transient failures it rejects calls for resetTimeout, then
// lets one probe through; a successful probe closes it again.
//
// Callers gate with Allow and report outcomes with Record:
//
//	if err := cb.Allow(); err != nil { return err }
//	res, err := call()
//	cb.Record(err)
//
// A SerpAPI account that has burned its monthly quota fails every search
// identically; the breaker keeps a 40-source run from retrying each one.
type Breaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewBreaker returns a Breaker named for logging. threshold <= 0 defaults
// to 5 consecutive failures; resetTimeout <= 0 defaults to 30s.
func NewBreaker(name string, threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		nowFunc:      time.Now,
	}
}

// Allow reports whether a call may proceed. It returns ErrCircuitOpen while
// the breaker is open and not yet due for a probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return nil
	}
	if b.probing {
		return ErrCircuitOpen
	}
	if b.nowFunc().Sub(b.openedAt) < b.resetTimeout {
		return ErrCircuitOpen
	}
	// Half-open: admit a single probe.
	b.probing = true
	zap.L().Info("circuit half-open, probing", zap.String("breaker", b.name))
	return nil
}

// Record feeds a call outcome back into the breaker. Non-transient errors
// do not count toward the threshold; a bad request is the caller's fault,
// not the service's.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.failures >= b.threshold {
			zap.L().Info("circuit closed", zap.String("breaker", b.name))
		}
		b.failures = 0
		b.probing = false
		return
	}
	if !IsTransient(err) {
		return
	}

	b.failures++
	b.probing = false
	if b.failures == b.threshold {
		b.openedAt = b.nowFunc()
		zap.L().Warn("circuit opened",
			zap.String("breaker", b.name),
			zap.Int("consecutive_failures", b.failures),
		)
	} else if b.failures > b.threshold {
		// Failed probe restarts the reset clock.
		b.openedAt = b.nowFunc()
	}
}
