package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Breaker tracks consecutive failures of one upstream and rejects calls
// while the circuit is open. Failures must land within a sliding window to
// count toward the threshold; the circuit closes again after the cooldown.
type Breaker struct {
	mu          sync.Mutex
	service     string
	failures    int
	lastFailure time.Time
	openUntil   time.Time

	threshold int           // consecutive failures to trip
	window    time.Duration // failures must occur within this window
	cooldown  time.Duration // how long the circuit stays open

	nowFunc func() time.Time
}

// NewBreaker creates a circuit breaker for the named service.
func NewBreaker(service string, threshold int, window, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if window <= 0 {
		window = 30 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Breaker{
		service:   service,
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		nowFunc:   time.Now,
	}
}

// Open reports whether the circuit is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nowFunc().Before(b.openUntil)
}

// RecordFailure counts a failure and trips the circuit at the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	if now.Sub(b.lastFailure) > b.window {
		b.failures = 0
	}
	b.failures++
	b.lastFailure = now

	if b.failures >= b.threshold {
		b.openUntil = now.Add(b.cooldown)
		zap.L().Warn("circuit breaker opened",
			zap.String("service", b.service),
			zap.Int("failures", b.failures),
			zap.Duration("cooldown", b.cooldown),
		)
	}
}

// RecordSuccess resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}
