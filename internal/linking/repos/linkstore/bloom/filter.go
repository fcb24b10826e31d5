// Package bloom holds the probabilistic set of linked players. A negative
// answer is definitive: a player the filter has never seen is not linked.
package bloom

import (
	"math"
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
)

// Filter wraps bits-and-blooms BloomFilter with a RWMutex.
// MightContain may run concurrently with Add.
type Filter struct {
	mu sync.RWMutex
	bf *bitsbloom.BloomFilter
}

// New constructs a Filter sized for capacity entries at the target
// false-positive rate.
func New(capacity uint64, fpRate float64) *Filter {
	m, k := size(capacity, fpRate)
	return &Filter{bf: bitsbloom.New(uint(m), uint(k))}
}

// Add records a linked player.
func (f *Filter) Add(id uuid.UUID) {
	f.mu.Lock()
	f.bf.Add(id[:])
	f.mu.Unlock()
}

// MightContain returns false only when the player was never added.
func (f *Filter) MightContain(id uuid.UUID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(id[:])
}

// size computes filter parameters from capacity (n) and target FP rate (p):
//
//	m = - (n * ln p) / (ln 2)^2
//	k = (m / n) * ln 2
//
// Results are clamped to at least 1.
func size(n uint64, p float64) (uint64, uint8) {
	if n == 0 {
		n = 1
	}
	if !(p > 0 && p < 1) {
		p = 0.01
	}
	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	if m == 0 {
		m = 1
	}
	k := uint8(math.Max(1, math.Round((float64(m)/float64(n))*ln2)))
	return m, k
}
