package enforcement

import (
	"context"

	"github.com/google/uuid"

	"github.com/haukened/linkguard/internal/linking/common/future"
	"github.com/haukened/linkguard/internal/linking/domain"
	"github.com/haukened/linkguard/internal/linking/repos/frozenset"
)

// LinkQueryClient answers link-status queries. The returned future is
// resolved on the client's own goroutine.
type LinkQueryClient interface {
	QueryLinkStatus(ctx context.Context, user domain.UserIdentity, forceFresh bool) *future.Future[domain.LinkCheck]
}

// ModuleProvider exposes the link query module once it has started.
type ModuleProvider interface {
	Module() (LinkQueryClient, bool)
}

// PolicySource returns the active policy snapshot.
type PolicySource interface {
	Policy() domain.Policy
}

// PlayerDirectory resolves, messages and disconnects online players.
type PlayerDirectory interface {
	Player(id uuid.UUID) (domain.UserIdentity, bool)
	Kick(id uuid.UUID, reason string) bool
	SendMessage(to domain.UserIdentity, text string)
}

// SessionStore tracks sessions and the FrozenSet.
type SessionStore interface {
	Begin(user domain.UserIdentity) frozenset.Session
	Lookup(user domain.UserIdentity) (frozenset.Session, bool)
	Valid(s frozenset.Session) bool
	End(user domain.UserIdentity)
	Freeze(s frozenset.Session, reason domain.BlockReason) bool
	Unfreeze(s frozenset.Session) bool
	Reason(user domain.UserIdentity) (domain.BlockReason, bool)
	IsFrozen(user domain.UserIdentity) bool
	ThawAll() int
}

// RateLimiter gates user-triggered rechecks.
type RateLimiter interface {
	TryAcquire(user domain.UserIdentity) bool
}

// PhaseSource is the host's connection pipeline. Stages lists every stage
// in dispatch order.
type PhaseSource interface {
	Stages() []domain.Stage
	Subscribe(stage domain.Stage, h func(ctx context.Context, attempt *domain.ConnectionAttempt, stage domain.Stage) error) error
}

// EventSource delivers in-game events for joined players.
type EventSource interface {
	OnMove(h func(*domain.MoveEvent))
	OnChat(h func(*domain.ChatEvent))
	OnCommand(h func(*domain.CommandEvent))
	OnDisconnect(h func(domain.UserIdentity))
}
