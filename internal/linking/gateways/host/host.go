// Package host is an in-process game host. It owns the online player table,
// runs every connection through the ordered stage pipeline and dispatches
// in-game events to subscribed handlers. Subscribers only see domain types.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map"

	"github.com/haukened/linkguard/internal/linking/common/log"
	"github.com/haukened/linkguard/internal/linking/domain"
)

var (
	// ErrNotOnline is returned for events of a player with no session.
	ErrNotOnline = errors.New("player is not online")
	// ErrUnknownStage is returned when subscribing to a stage outside the pipeline.
	ErrUnknownStage = errors.New("stage is not part of the connection pipeline")
	// ErrInvalidPlayer is returned when a connecting identity fails validation.
	ErrInvalidPlayer = errors.New("invalid player identity")
)

// ReplacedReason is sent to a player whose session is taken over by a new login.
const ReplacedReason = "You logged in from another location"

// ConnectionHandler observes or vetoes a connection attempt at one stage.
type ConnectionHandler = func(ctx context.Context, attempt *domain.ConnectionAttempt, stage domain.Stage) error

// Sink receives everything the host shows to players.
type Sink interface {
	Deliver(to domain.UserIdentity, text string)
	Disconnected(who domain.UserIdentity, reason string)
}

// Options configures a Server.
type Options struct {
	Sink   Sink
	Logger log.Logger
}

type player struct {
	id domain.UserIdentity

	mu  sync.Mutex
	loc domain.Location
}

func (p *player) location() domain.Location {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loc
}

// Server is the host. Connect, Move, Chat, Command and Quit are safe for
// concurrent use, but events of a single player are expected in order.
type Server struct {
	sink   Sink
	logger log.Logger

	mu      sync.RWMutex
	stages  []domain.Stage
	conn    map[domain.Stage][]ConnectionHandler
	move    []func(*domain.MoveEvent)
	chat    []func(*domain.ChatEvent)
	command []func(*domain.CommandEvent)
	quit    []func(domain.UserIdentity)

	players cmap.ConcurrentMap // user key -> *player
}

// New returns a Server with an empty subscriber list.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Sink == nil {
		opts.Sink = discardSink{}
	}
	return &Server{
		sink:    opts.Sink,
		logger:  opts.Logger,
		stages:  domain.PipelineStages(),
		conn:    make(map[domain.Stage][]ConnectionHandler),
		players: cmap.New(),
	}
}

// Stages returns the pipeline in dispatch order: phases AsyncPreLogin, Login,
// Join and within each phase priorities LOWEST to MONITOR.
func (s *Server) Stages() []domain.Stage {
	out := make([]domain.Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// Subscribe registers h for a stage. Handlers at the same stage run in
// registration order.
func (s *Server) Subscribe(stage domain.Stage, h ConnectionHandler) error {
	if !s.known(stage) {
		return fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	s.mu.Lock()
	s.conn[stage] = append(s.conn[stage], h)
	s.mu.Unlock()
	return nil
}

func (s *Server) known(stage domain.Stage) bool {
	for _, st := range s.stages {
		if st == stage {
			return true
		}
	}
	return false
}

// OnMove subscribes h to movement. Handlers may rewrite or cancel the move.
func (s *Server) OnMove(h func(*domain.MoveEvent)) {
	s.mu.Lock()
	s.move = append(s.move, h)
	s.mu.Unlock()
}

// OnChat subscribes h to chat. Handlers may cancel or trim recipients.
func (s *Server) OnChat(h func(*domain.ChatEvent)) {
	s.mu.Lock()
	s.chat = append(s.chat, h)
	s.mu.Unlock()
}

// OnCommand subscribes h to player commands. Handlers may cancel them.
func (s *Server) OnCommand(h func(*domain.CommandEvent)) {
	s.mu.Lock()
	s.command = append(s.command, h)
	s.mu.Unlock()
}

// OnDisconnect subscribes h to quits and kicks.
func (s *Server) OnDisconnect(h func(domain.UserIdentity)) {
	s.mu.Lock()
	s.quit = append(s.quit, h)
	s.mu.Unlock()
}

func (s *Server) handlers(stage domain.Stage) []ConnectionHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ConnectionHandler(nil), s.conn[stage]...)
}

// Connect runs user through the pipeline and, if no stage refuses it, puts
// the player online at spawn. A refusal before Join stops the pipeline after
// the refusing phase completes so MONITOR handlers still observe it. A refusal
// at Join kicks the freshly joined player once the phase completes.
// The returned attempt carries the outcome; an error means a handler failed.
func (s *Server) Connect(ctx context.Context, user domain.UserIdentity, spawn domain.Location) (*domain.ConnectionAttempt, error) {
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlayer, err)
	}
	// an earlier session ends before the new one starts its pipeline
	if _, ok := s.online(user); ok {
		s.Kick(user.ID, ReplacedReason)
	}
	attempt := domain.NewConnectionAttempt(user)

	for _, phase := range domain.Phases() {
		attempt.Phase = phase
		if phase == domain.PhaseJoin {
			s.players.Set(user.Key(), &player{id: user, loc: spawn})
		}
		for _, stage := range s.stages {
			if stage.Phase != phase {
				continue
			}
			for _, h := range s.handlers(stage) {
				if err := h(ctx, attempt, stage); err != nil {
					s.logger.Error(map[string]any{
						"player": user.String(),
						"stage":  stage.String(),
						"error":  err,
					}, "Connection handler failed")
					return attempt, fmt.Errorf("%s handler: %w", stage, err)
				}
			}
		}
		if reason, denied := attempt.Denied(); denied {
			s.logger.Info(map[string]any{
				"player": user.String(),
				"phase":  phase.String(),
				"reason": reason,
			}, "Connection refused")
			if phase == domain.PhaseJoin {
				s.Kick(user.ID, reason)
			}
			return attempt, nil
		}
	}

	s.logger.Info(map[string]any{"player": user.String()}, "Player joined")
	return attempt, nil
}

func (s *Server) online(user domain.UserIdentity) (*player, bool) {
	v, ok := s.players.Get(user.Key())
	if !ok {
		return nil, false
	}
	return v.(*player), true
}

// Move asks to move the player to dest and returns where the player ended up.
func (s *Server) Move(user domain.UserIdentity, dest domain.Location) (domain.Location, error) {
	p, ok := s.online(user)
	if !ok {
		return domain.Location{}, ErrNotOnline
	}
	ev := &domain.MoveEvent{Player: p.id, From: p.location(), To: dest}

	s.mu.RLock()
	hs := append([]func(*domain.MoveEvent){}, s.move...)
	s.mu.RUnlock()
	for _, h := range hs {
		if ev.Cancelled {
			break
		}
		h(ev)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !ev.Cancelled {
		p.loc = ev.To
	}
	return p.loc, nil
}

// Chat broadcasts msg from user to every online player that survives the
// handlers and returns the recipients it was delivered to.
func (s *Server) Chat(user domain.UserIdentity, msg string) ([]domain.UserIdentity, error) {
	p, ok := s.online(user)
	if !ok {
		return nil, ErrNotOnline
	}
	ev := &domain.ChatEvent{Sender: p.id, Message: msg, Recipients: s.Online()}

	s.mu.RLock()
	hs := append([]func(*domain.ChatEvent){}, s.chat...)
	s.mu.RUnlock()
	for _, h := range hs {
		if ev.Cancelled {
			break
		}
		h(ev)
	}
	if ev.Cancelled {
		return nil, nil
	}

	line := fmt.Sprintf("<%s> %s", p.id.Name, ev.Message)
	for _, r := range ev.Recipients {
		s.sink.Deliver(r, line)
	}
	return ev.Recipients, nil
}

// Command dispatches a command line typed by user. It reports whether a
// handler cancelled it.
func (s *Server) Command(user domain.UserIdentity, line string) (bool, error) {
	p, ok := s.online(user)
	if !ok {
		return false, ErrNotOnline
	}
	ev := &domain.CommandEvent{Sender: p.id, Line: line}

	s.mu.RLock()
	hs := append([]func(*domain.CommandEvent){}, s.command...)
	s.mu.RUnlock()
	for _, h := range hs {
		if ev.Cancelled {
			break
		}
		h(ev)
	}
	return ev.Cancelled, nil
}

// Quit disconnects the player. Quitting an offline player is a no-op.
func (s *Server) Quit(user domain.UserIdentity) {
	s.disconnect(user.ID, "")
}

// Kick disconnects the player with reason. It reports whether the player was online.
func (s *Server) Kick(id uuid.UUID, reason string) bool {
	return s.disconnect(id, reason)
}

func (s *Server) disconnect(id uuid.UUID, reason string) bool {
	v, ok := s.players.Pop(id.String())
	if !ok {
		return false
	}
	p := v.(*player)
	s.sink.Disconnected(p.id, reason)

	s.mu.RLock()
	hs := append([]func(domain.UserIdentity){}, s.quit...)
	s.mu.RUnlock()
	for _, h := range hs {
		h(p.id)
	}
	s.logger.Info(map[string]any{"player": p.id.String(), "reason": reason}, "Player disconnected")
	return true
}

// Player resolves an online player by ID.
func (s *Server) Player(id uuid.UUID) (domain.UserIdentity, bool) {
	v, ok := s.players.Get(id.String())
	if !ok {
		return domain.UserIdentity{}, false
	}
	return v.(*player).id, true
}

// Location returns the player's current location.
func (s *Server) Location(id uuid.UUID) (domain.Location, bool) {
	v, ok := s.players.Get(id.String())
	if !ok {
		return domain.Location{}, false
	}
	return v.(*player).location(), true
}

// SendMessage shows text to the player if online.
func (s *Server) SendMessage(to domain.UserIdentity, text string) {
	if _, ok := s.online(to); !ok {
		return
	}
	s.sink.Deliver(to, text)
}

// Online returns a snapshot of online players.
func (s *Server) Online() []domain.UserIdentity {
	out := make([]domain.UserIdentity, 0, s.players.Count())
	for item := range s.players.IterBuffered() {
		out = append(out, item.Val.(*player).id)
	}
	return out
}

type discardSink struct{}

func (discardSink) Deliver(domain.UserIdentity, string)      {}
func (discardSink) Disconnected(domain.UserIdentity, string) {}
