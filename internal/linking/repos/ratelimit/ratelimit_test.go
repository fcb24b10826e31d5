package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/linkguard/internal/linking/common/clock"
	"github.com/haukened/linkguard/internal/linking/domain"
)

func user(name string) domain.UserIdentity {
	return domain.UserIdentity{ID: uuid.New(), Name: name}
}

func TestTryAcquire_TTL(t *testing.T) {
	clk := &clock.MockClock{CurrentTime: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)}
	l, err := New(5*time.Second, 16, clk)
	require.NoError(t, err)
	u := user("Steve")

	assert.True(t, l.TryAcquire(u), "first acquire")
	assert.False(t, l.TryAcquire(u), "second acquire within TTL")

	clk.Advance(4999 * time.Millisecond)
	assert.False(t, l.TryAcquire(u), "just before TTL")

	clk.Advance(time.Millisecond)
	assert.True(t, l.TryAcquire(u), "at TTL")
	assert.False(t, l.TryAcquire(u), "window restarts after acquire")
}

func TestTryAcquire_PerIdentity(t *testing.T) {
	clk := &clock.MockClock{CurrentTime: time.Now()}
	l, err := New(time.Minute, 16, clk)
	require.NoError(t, err)

	a, b := user("a"), user("b")
	assert.True(t, l.TryAcquire(a))
	assert.True(t, l.TryAcquire(b))
	assert.False(t, l.TryAcquire(a))
	assert.Equal(t, 2, l.Len())
}

func TestTryAcquire_Concurrent(t *testing.T) {
	l, err := New(time.Minute, 16, nil)
	require.NoError(t, err)
	u := user("Steve")

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire(u) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), granted.Load(), "exactly one concurrent acquire wins")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(0, 16, nil)
	assert.Error(t, err)

	_, err = New(time.Second, 0, nil)
	assert.Error(t, err, "lru rejects non-positive size")

	orig := newLRU
	t.Cleanup(func() { newLRU = orig })
	newLRU = func(int) (*lru.Cache[string, time.Time], error) { return nil, errors.New("boom") }
	_, err = New(time.Second, 1, nil)
	assert.Error(t, err)
}
