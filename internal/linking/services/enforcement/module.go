package enforcement

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrModuleUnavailable is returned when the link query module did not come up
// within the configured wait.
var ErrModuleUnavailable = errors.New("link query module unavailable")

// Slot is a ModuleProvider filled once the module has started.
type Slot struct {
	v atomic.Pointer[slotValue]
}

type slotValue struct{ client LinkQueryClient }

// Set publishes the module. A nil client empties the slot.
func (s *Slot) Set(c LinkQueryClient) {
	if c == nil {
		s.v.Store(nil)
		return
	}
	s.v.Store(&slotValue{client: c})
}

// Module returns the published module, if any.
func (s *Slot) Module() (LinkQueryClient, bool) {
	v := s.v.Load()
	if v == nil {
		return nil, false
	}
	return v.client, true
}

// WaitForModule polls p every interval until it yields a module, timeout
// elapses or ctx ends. A zero timeout checks once.
func WaitForModule(ctx context.Context, p ModuleProvider, timeout, interval time.Duration) (LinkQueryClient, error) {
	if c, ok := p.Module(); ok {
		return c, nil
	}
	if timeout <= 0 {
		return nil, ErrModuleUnavailable
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if c, ok := p.Module(); ok {
				return c, nil
			}
		case <-deadline.C:
			if c, ok := p.Module(); ok {
				return c, nil
			}
			return nil, fmt.Errorf("%w after %s", ErrModuleUnavailable, timeout)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrModuleUnavailable, ctx.Err())
		}
	}
}
