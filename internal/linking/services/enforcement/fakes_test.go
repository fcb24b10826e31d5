package enforcement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/haukened/linkguard/internal/linking/common/clock"
	"github.com/haukened/linkguard/internal/linking/common/future"
	"github.com/haukened/linkguard/internal/linking/domain"
	"github.com/haukened/linkguard/internal/linking/repos/frozenset"
	"github.com/haukened/linkguard/internal/linking/repos/ratelimit"
)

const (
	testPrompt      = "Link with code {{.Code}}"
	testUnavailable = "Discord unavailable, please try again later"
	testCode        = "123456"
)

// fakeClient answers from a table. Unknown players are unlinked. With hold
// set, futures stay pending until release; with never set, they never resolve.
type fakeClient struct {
	mu      sync.Mutex
	checks  map[uuid.UUID]domain.LinkCheck
	errs    map[uuid.UUID]error
	hold    bool
	never   bool
	pending []func()
	calls   []bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{checks: map[uuid.UUID]domain.LinkCheck{}, errs: map[uuid.UUID]error{}}
}

func (c *fakeClient) QueryLinkStatus(_ context.Context, u domain.UserIdentity, fresh bool) *future.Future[domain.LinkCheck] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fresh)

	check, ok := c.checks[u.ID]
	if !ok {
		check = domain.LinkCheck{Status: domain.LinkUnlinked, Code: testCode}
	}
	err := c.errs[u.ID]
	if err != nil {
		check = domain.UnknownCheck()
	}
	if c.never {
		f, _ := future.New[domain.LinkCheck]()
		return f
	}
	if c.hold {
		f, resolve := future.New[domain.LinkCheck]()
		c.pending = append(c.pending, func() { resolve(check, err) })
		return f
	}
	return future.Resolved(check, err)
}

func (c *fakeClient) setLinked(id uuid.UUID, linked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if linked {
		c.checks[id] = domain.LinkCheck{Status: domain.LinkLinked}
		return
	}
	delete(c.checks, id)
}

func (c *fakeClient) setErr(id uuid.UUID, err error) {
	c.mu.Lock()
	c.errs[id] = err
	c.mu.Unlock()
}

func (c *fakeClient) setHold(hold bool) {
	c.mu.Lock()
	c.hold = hold
	c.mu.Unlock()
}

// release resolves every pending future, in order, on the calling goroutine.
func (c *fakeClient) release() {
	c.mu.Lock()
	ps := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, p := range ps {
		p()
	}
}

func (c *fakeClient) queries() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.calls...)
}

// policyBox is a swappable PolicySource.
type policyBox struct {
	mu sync.Mutex
	p  domain.Policy
}

func (b *policyBox) Policy() domain.Policy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.p
}

func (b *policyBox) set(p domain.Policy) {
	b.mu.Lock()
	b.p = p
	b.mu.Unlock()
}

func mustPolicy(t *testing.T, enabled bool, action domain.Action, kick domain.Stage) domain.Policy {
	t.Helper()
	p, err := domain.NewPolicy(enabled, action, kick, testPrompt, testUnavailable, "")
	require.NoError(t, err)
	return p
}

var preLoginLow = domain.Stage{Phase: domain.PhasePreLogin, Priority: domain.PriorityLow}

// stubPlayers is a PlayerDirectory that records what it is asked to do.
type stubPlayers struct {
	mu       sync.Mutex
	online   map[uuid.UUID]domain.UserIdentity
	messages map[uuid.UUID][]string
	kicks    map[uuid.UUID]string
}

func newStubPlayers(users ...domain.UserIdentity) *stubPlayers {
	s := &stubPlayers{
		online:   map[uuid.UUID]domain.UserIdentity{},
		messages: map[uuid.UUID][]string{},
		kicks:    map[uuid.UUID]string{},
	}
	for _, u := range users {
		s.online[u.ID] = u
	}
	return s
}

func (s *stubPlayers) Player(id uuid.UUID) (domain.UserIdentity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.online[id]
	return u, ok
}

func (s *stubPlayers) Kick(id uuid.UUID, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.online[id]; !ok {
		return false
	}
	delete(s.online, id)
	s.kicks[id] = reason
	return true
}

func (s *stubPlayers) SendMessage(to domain.UserIdentity, text string) {
	s.mu.Lock()
	s.messages[to.ID] = append(s.messages[to.ID], text)
	s.mu.Unlock()
}

func (s *stubPlayers) got(id uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages[id]...)
}

// unit bundles an Engine wired to stubs for handler-level tests.
type unit struct {
	engine   *Engine
	client   *fakeClient
	sessions *frozenset.Registry
	players  *stubPlayers
	policy   *policyBox
	clock    *clock.MockClock
}

func newUnit(t *testing.T, action domain.Action, users ...domain.UserIdentity) *unit {
	t.Helper()
	u := &unit{
		client:   newFakeClient(),
		sessions: frozenset.New(),
		players:  newStubPlayers(users...),
		policy:   &policyBox{p: mustPolicy(t, true, action, preLoginLow)},
		clock:    &clock.MockClock{CurrentTime: time.Unix(1_700_000_000, 0)},
	}
	limiter, err := ratelimit.New(5*time.Second, 64, u.clock)
	require.NoError(t, err)
	slot := &Slot{}
	slot.Set(u.client)
	u.engine, err = NewEngine(Options{
		Policy:       u.policy,
		Module:       slot,
		Sessions:     u.sessions,
		Limiter:      limiter,
		Players:      u.players,
		QueryTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(u.engine.Shutdown)
	return u
}

// frozen begins a session for user and freezes it.
func (u *unit) frozen(t *testing.T, user domain.UserIdentity) frozenset.Session {
	t.Helper()
	s := u.sessions.Begin(user)
	require.True(t, u.sessions.Freeze(s, "link first"))
	return s
}

func ident(name string) domain.UserIdentity {
	return domain.UserIdentity{ID: uuid.New(), Name: name}
}
