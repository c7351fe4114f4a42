package request

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// ProviderBackoff spaces out requests to a synthesis host after failures.
// Failures are counted per host across requests: a host that keeps failing is
// retried ever more slowly, and each success walks the count back by one.
type ProviderBackoff struct {
	mu        sync.RWMutex
	hosts     map[string]*backoffState
	baseDelay time.Duration
	maxDelay  time.Duration
}

type backoffState struct {
	failures    int
	nextAllowed time.Time
}

// NewProviderBackoff creates a new backoff manager.
func NewProviderBackoff(baseDelay, maxDelay time.Duration) *ProviderBackoff {
	return &ProviderBackoff{
		hosts:     make(map[string]*backoffState),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}
}

// Wait blocks until provider may be called again or ctx ends.
func (b *ProviderBackoff) Wait(ctx context.Context, provider string) error {
	_, next := b.State(provider)

	d := time.Until(next)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordFailure pushes the next allowed call for provider further out.
func (b *ProviderBackoff) RecordFailure(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.hosts[provider]
	if s == nil {
		s = &backoffState{}
		b.hosts[provider] = s
	}
	s.failures++
	s.nextAllowed = time.Now().Add(b.delay(s.failures))
}

// RecordSuccess forgives one failure. The delay is lifted once none remain.
func (b *ProviderBackoff) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.hosts[provider]
	if s == nil {
		return
	}
	s.failures = max(s.failures-1, 0)
	if s.failures == 0 {
		delete(b.hosts, provider)
	}
}

// delay is baseDelay doubled per failure after the first, capped at maxDelay,
// plus up to 10% jitter.
func (b *ProviderBackoff) delay(failures int) time.Duration {
	d := b.maxDelay
	if shift := failures - 1; shift < 32 {
		if exp := b.baseDelay << shift; exp > 0 && exp < b.maxDelay {
			d = exp
		}
	}
	return d + time.Duration(rand.Float64()*0.1*float64(d))
}

// State reports the failure count and the earliest time of the next call.
func (b *ProviderBackoff) State(provider string) (failures int, nextAllowed time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if s := b.hosts[provider]; s != nil {
		return s.failures, s.nextAllowed
	}
	return 0, time.Time{}
}
