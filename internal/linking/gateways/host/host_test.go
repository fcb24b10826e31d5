package host

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/linkguard/internal/linking/domain"
)

type recordingSink struct {
	mu       sync.Mutex
	messages map[uuid.UUID][]string
	kicks    map[uuid.UUID]string
}

func newSink() *recordingSink {
	return &recordingSink{messages: map[uuid.UUID][]string{}, kicks: map[uuid.UUID]string{}}
}

func (r *recordingSink) Deliver(to domain.UserIdentity, text string) {
	r.mu.Lock()
	r.messages[to.ID] = append(r.messages[to.ID], text)
	r.mu.Unlock()
}

func (r *recordingSink) Disconnected(who domain.UserIdentity, reason string) {
	r.mu.Lock()
	r.kicks[who.ID] = reason
	r.mu.Unlock()
}

func (r *recordingSink) got(id uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages[id]...)
}

func ident(name string) domain.UserIdentity {
	return domain.UserIdentity{ID: uuid.New(), Name: name}
}

var spawn = domain.Location{World: "world", Pos: mgl64.Vec3{0.5, 64, 0.5}}

func TestServer_StagesIsPipelineCopy(t *testing.T) {
	s := New(Options{})
	st := s.Stages()
	require.Equal(t, domain.PipelineStages(), st)
	st[0] = domain.Stage{}
	assert.Equal(t, domain.PipelineStages(), s.Stages())
}

func TestServer_SubscribeUnknownStage(t *testing.T) {
	s := New(Options{})
	err := s.Subscribe(domain.Stage{Phase: domain.Phase(99)}, func(context.Context, *domain.ConnectionAttempt, domain.Stage) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestServer_ConnectDispatchOrder(t *testing.T) {
	s := New(Options{})
	var seen []domain.Stage
	for _, st := range s.Stages() {
		require.NoError(t, s.Subscribe(st, func(_ context.Context, a *domain.ConnectionAttempt, stage domain.Stage) error {
			assert.Equal(t, stage.Phase, a.Phase)
			seen = append(seen, stage)
			return nil
		}))
	}

	u := ident("alice")
	attempt, err := s.Connect(context.Background(), u, spawn)
	require.NoError(t, err)
	assert.True(t, attempt.Allowed())
	assert.Equal(t, domain.PipelineStages(), seen)

	got, ok := s.Player(u.ID)
	require.True(t, ok)
	assert.Equal(t, u, got)
}

func TestServer_ConnectInvalidIdentity(t *testing.T) {
	s := New(Options{})
	_, err := s.Connect(context.Background(), domain.UserIdentity{}, spawn)
	assert.ErrorIs(t, err, ErrInvalidPlayer)
}

func TestServer_DenialStopsAfterPhase(t *testing.T) {
	s := New(Options{})
	deny := domain.Stage{Phase: domain.PhasePreLogin, Priority: domain.PriorityLow}
	monitor := domain.Stage{Phase: domain.PhasePreLogin, Priority: domain.PriorityMonitor}
	login := domain.Stage{Phase: domain.PhaseLogin, Priority: domain.PriorityLowest}

	require.NoError(t, s.Subscribe(deny, func(_ context.Context, a *domain.ConnectionAttempt, _ domain.Stage) error {
		a.Deny("nope")
		return nil
	}))
	monitorSaw := false
	require.NoError(t, s.Subscribe(monitor, func(_ context.Context, a *domain.ConnectionAttempt, _ domain.Stage) error {
		monitorSaw = !a.Allowed()
		return nil
	}))
	loginRan := false
	require.NoError(t, s.Subscribe(login, func(context.Context, *domain.ConnectionAttempt, domain.Stage) error {
		loginRan = true
		return nil
	}))

	u := ident("bob")
	attempt, err := s.Connect(context.Background(), u, spawn)
	require.NoError(t, err)
	reason, denied := attempt.Denied()
	assert.True(t, denied)
	assert.Equal(t, "nope", reason)
	assert.True(t, monitorSaw, "MONITOR observes the denial")
	assert.False(t, loginRan)
	_, online := s.Player(u.ID)
	assert.False(t, online)
}

func TestServer_JoinDenialKicks(t *testing.T) {
	sink := newSink()
	s := New(Options{Sink: sink})
	var quit []domain.UserIdentity
	s.OnDisconnect(func(u domain.UserIdentity) { quit = append(quit, u) })
	require.NoError(t, s.Subscribe(domain.Stage{Phase: domain.PhaseJoin, Priority: domain.PriorityHigh},
		func(_ context.Context, a *domain.ConnectionAttempt, _ domain.Stage) error {
			a.Deny("link first")
			return nil
		}))

	u := ident("carol")
	attempt, err := s.Connect(context.Background(), u, spawn)
	require.NoError(t, err)
	assert.False(t, attempt.Allowed())
	_, online := s.Player(u.ID)
	assert.False(t, online)
	assert.Equal(t, "link first", sink.kicks[u.ID])
	assert.Equal(t, []domain.UserIdentity{u}, quit)
}

func TestServer_HandlerErrorSurfaces(t *testing.T) {
	s := New(Options{})
	boom := errors.New("player gone")
	require.NoError(t, s.Subscribe(domain.Stage{Phase: domain.PhaseJoin, Priority: domain.PriorityMonitor},
		func(context.Context, *domain.ConnectionAttempt, domain.Stage) error { return boom }))

	_, err := s.Connect(context.Background(), ident("dave"), spawn)
	assert.ErrorIs(t, err, boom)
}

func TestServer_ReconnectDisplacesEarlierSession(t *testing.T) {
	sink := newSink()
	s := New(Options{Sink: sink})
	var order []string
	s.OnDisconnect(func(domain.UserIdentity) { order = append(order, "quit") })
	require.NoError(t, s.Subscribe(domain.Stage{Phase: domain.PhasePreLogin, Priority: domain.PriorityMonitor},
		func(context.Context, *domain.ConnectionAttempt, domain.Stage) error {
			order = append(order, "prelogin")
			return nil
		}))

	u := ident("erin")
	_, err := s.Connect(context.Background(), u, spawn)
	require.NoError(t, err)
	_, err = s.Connect(context.Background(), u, spawn)
	require.NoError(t, err)

	assert.Equal(t, []string{"prelogin", "quit", "prelogin"}, order)
	assert.Equal(t, ReplacedReason, sink.kicks[u.ID])
	_, online := s.Player(u.ID)
	assert.True(t, online)
}

func TestServer_Move(t *testing.T) {
	s := New(Options{})
	u := ident("frank")
	_, err := s.Connect(context.Background(), u, spawn)
	require.NoError(t, err)

	dest := domain.Location{World: "world", Pos: mgl64.Vec3{3, 64, 3}}
	loc, err := s.Move(u, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, loc)

	snapped := domain.Location{World: "world", Pos: mgl64.Vec3{9, 9, 9}}
	var from []domain.Location
	s.OnMove(func(ev *domain.MoveEvent) {
		from = append(from, ev.From)
		ev.SetTo(snapped)
	})
	loc, err = s.Move(u, spawn)
	require.NoError(t, err)
	assert.Equal(t, snapped, loc)
	assert.Equal(t, []domain.Location{dest}, from)

	s.OnMove(func(ev *domain.MoveEvent) { ev.Cancelled = true })
	loc, err = s.Move(u, spawn)
	require.NoError(t, err)
	assert.Equal(t, snapped, loc, "cancelled move keeps the player in place")
	got, _ := s.Location(u.ID)
	assert.Equal(t, snapped, got)
	assert.Equal(t, []domain.Location{dest, snapped}, from)

	_, err = s.Move(ident("ghost"), spawn)
	assert.ErrorIs(t, err, ErrNotOnline)
}

func TestServer_Chat(t *testing.T) {
	sink := newSink()
	s := New(Options{Sink: sink})
	a, b := ident("gina"), ident("hank")
	for _, u := range []domain.UserIdentity{a, b} {
		_, err := s.Connect(context.Background(), u, spawn)
		require.NoError(t, err)
	}

	to, err := s.Chat(a, "hi")
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.UserIdentity{a, b}, to)
	assert.Equal(t, []string{"<gina> hi"}, sink.got(b.ID))

	s.OnChat(func(ev *domain.ChatEvent) {
		ev.RemoveRecipients(func(r domain.UserIdentity) bool { return r == b })
	})
	to, err = s.Chat(a, "again")
	require.NoError(t, err)
	assert.Equal(t, []domain.UserIdentity{a}, to)
	assert.Len(t, sink.got(b.ID), 1)

	s.OnChat(func(ev *domain.ChatEvent) { ev.Cancelled = true })
	to, err = s.Chat(a, "muted")
	require.NoError(t, err)
	assert.Empty(t, to)

	_, err = s.Chat(ident("ghost"), "x")
	assert.ErrorIs(t, err, ErrNotOnline)
}

func TestServer_CommandAndMessages(t *testing.T) {
	sink := newSink()
	s := New(Options{Sink: sink})
	u := ident("ivy")
	_, err := s.Connect(context.Background(), u, spawn)
	require.NoError(t, err)

	cancelled, err := s.Command(u, "/help")
	require.NoError(t, err)
	assert.False(t, cancelled)

	var lines []string
	s.OnCommand(func(ev *domain.CommandEvent) {
		lines = append(lines, ev.Command())
		ev.Cancelled = true
	})
	cancelled, err = s.Command(u, "/link")
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, []string{"link"}, lines)

	s.SendMessage(u, "hello")
	s.SendMessage(ident("offline"), "dropped")
	assert.Equal(t, []string{"hello"}, sink.got(u.ID))

	_, err = s.Command(ident("ghost"), "/x")
	assert.ErrorIs(t, err, ErrNotOnline)
}

func TestServer_QuitAndKick(t *testing.T) {
	s := New(Options{})
	u := ident("jack")
	_, err := s.Connect(context.Background(), u, spawn)
	require.NoError(t, err)
	assert.Len(t, s.Online(), 1)

	assert.True(t, s.Kick(u.ID, "bye"))
	assert.False(t, s.Kick(u.ID, "bye"), "second kick finds nobody")
	assert.Empty(t, s.Online())
	s.Quit(u)
}
