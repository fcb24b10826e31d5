package ratelimit

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/linkguard/internal/linking/common/clock"
	"github.com/haukened/linkguard/internal/linking/domain"
)

// Limiter gates user-initiated rechecks: one acquisition per identity per TTL.
// Entries expire by age, independent of removal; the LRU bound caps memory
// when many distinct users issue commands.
type Limiter struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clock.Clock
	seen  *lru.Cache[string, time.Time]
}

// newLRU is replaceable in tests.
var newLRU = func(size int) (*lru.Cache[string, time.Time], error) {
	return lru.New[string, time.Time](size)
}

// New creates a Limiter with the given TTL and maximum number of tracked identities.
func New(ttl time.Duration, size int, clk clock.Clock) (*Limiter, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("rate limit ttl must be positive, got %v", ttl)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	cache, err := newLRU(size)
	if err != nil {
		return nil, fmt.Errorf("create rate limit cache: %w", err)
	}
	return &Limiter{ttl: ttl, clock: clk, seen: cache}, nil
}

// TryAcquire returns false if the identity acquired within the last TTL,
// otherwise records now and returns true.
func (l *Limiter) TryAcquire(user domain.UserIdentity) bool {
	now := l.clock.Now()
	key := user.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.seen.Peek(key); ok && now.Sub(last) < l.ttl {
		return false
	}
	l.seen.Add(key, now)
	return true
}

// Len returns the number of tracked identities, expired ones included.
func (l *Limiter) Len() int { return l.seen.Len() }
