package statuscache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/linkguard/internal/linking/common/clock"
	"github.com/haukened/linkguard/internal/linking/domain"
)

type entry struct {
	check     domain.LinkCheck
	expiresAt time.Time
}

// statusCache is an LRU of recent link checks with a fixed TTL. Only
// definitive answers are stored; UNKNOWN is never cached.
type statusCache struct {
	lru   *lru.Cache[string, entry]
	ttl   time.Duration
	clock clock.Clock
}

// New returns a statusCache holding up to size entries for ttl each.
func New(size int, ttl time.Duration, clk clock.Clock) (*statusCache, error) {
	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &statusCache{lru: cache, ttl: ttl, clock: clk}, nil
}

// Get returns a cached check if present and not expired. Expired entries are evicted.
func (c *statusCache) Get(user domain.UserIdentity) (domain.LinkCheck, bool) {
	key := user.Key()
	if e, found := c.lru.Get(key); found {
		if c.clock.Now().Before(e.expiresAt) {
			return e.check, true
		}
		c.lru.Remove(key)
	}
	return domain.LinkCheck{}, false
}

// Put stores a definitive check.
func (c *statusCache) Put(user domain.UserIdentity, check domain.LinkCheck) {
	if check.Status == domain.LinkUnknown {
		return
	}
	c.lru.Add(user.Key(), entry{check: check, expiresAt: c.clock.Now().Add(c.ttl)})
}

// Delete drops the entry for the user.
func (c *statusCache) Delete(user domain.UserIdentity) {
	c.lru.Remove(user.Key())
}

// Len returns the number of entries, expired ones included.
func (c *statusCache) Len() int {
	return c.lru.Len()
}
