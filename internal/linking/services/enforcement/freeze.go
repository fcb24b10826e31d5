package enforcement

import (
	"context"
	"fmt"

	"github.com/haukened/linkguard/internal/linking/domain"
)

// OnPreLoginMonitor opens the user's session once pre-login has let them
// through and, under FREEZE, records the block reason in the FrozenSet.
func (e *Engine) OnPreLoginMonitor(ctx context.Context, attempt *domain.ConnectionAttempt, _ domain.Stage) error {
	if !attempt.Allowed() || e.closed.Load() {
		return nil
	}
	sess := e.sessions.Begin(attempt.User)

	p := e.policy.Policy()
	if !p.Freezes() {
		return nil
	}
	reason, blocked := e.decide(ctx, p, attempt.User, false)
	if blocked && e.sessions.Freeze(sess, reason) {
		e.logger.Info(map[string]any{"player": attempt.User.String()}, "Player frozen until linked")
	}
	return nil
}

// OnLoginMonitor drops the session of a user refused at login by anyone.
func (e *Engine) OnLoginMonitor(_ context.Context, attempt *domain.ConnectionAttempt, _ domain.Stage) error {
	if attempt.Allowed() {
		return nil
	}
	e.sessions.End(attempt.User)
	return nil
}

// OnJoinMonitor shows a frozen player why they are frozen. A frozen player
// the host cannot resolve is an invariant violation.
func (e *Engine) OnJoinMonitor(_ context.Context, attempt *domain.ConnectionAttempt, _ domain.Stage) error {
	reason, frozen := e.freezeReason(attempt.User)
	if !frozen {
		return nil
	}
	player, ok := e.players.Player(attempt.User.ID)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrPlayerUnavailable, attempt.User)
		e.logger.Error(map[string]any{"player": attempt.User.String(), "error": err}, "Frozen player missing after join")
		return err
	}
	e.players.SendMessage(player, reason.String())
	return nil
}

// OnMove keeps a frozen player in their block column. Rising inside the
// column is allowed; any other move is reverted to the centre of the
// origin block and the reason is repeated.
func (e *Engine) OnMove(ev *domain.MoveEvent) {
	reason, frozen := e.freezeReason(ev.Player)
	if !frozen {
		return
	}
	if ev.From.SameColumn(ev.To) && ev.To.BlockY() >= ev.From.BlockY() {
		return
	}
	ev.SetTo(ev.From.BlockCentre())
	e.players.SendMessage(ev.Player, reason.String())
}

// OnChat silences frozen senders and hides chat from frozen recipients.
func (e *Engine) OnChat(ev *domain.ChatEvent) {
	reason, frozen := e.freezeReason(ev.Sender)
	if !frozen {
		ev.RemoveRecipients(e.isFrozen)
		return
	}
	ev.Cancelled = true
	e.players.SendMessage(ev.Sender, reason.String())
}

// OnCommand blocks every command of a frozen player. Check commands are
// rate limited and start a recheck.
func (e *Engine) OnCommand(ev *domain.CommandEvent) {
	if !e.isFrozen(ev.Sender) {
		return
	}
	ev.Cancelled = true
	if !e.isCheckCommand(ev.Command()) {
		return
	}
	if !e.limiter.TryAcquire(ev.Sender) {
		e.players.SendMessage(ev.Sender, e.rateLimited)
		return
	}
	e.players.SendMessage(ev.Sender, e.checking)
	e.Recheck(e.ctx, ev.Sender)
}

// freezeReason returns the user's freeze reason while the active policy
// freezes. An entry left over from a FREEZE policy that is no longer active
// is released on sight.
func (e *Engine) freezeReason(user domain.UserIdentity) (domain.BlockReason, bool) {
	reason, frozen := e.sessions.Reason(user)
	if !frozen {
		return "", false
	}
	if e.policy.Policy().Freezes() {
		return reason, true
	}
	if sess, ok := e.sessions.Lookup(user); ok && e.sessions.Unfreeze(sess) {
		e.logger.Info(map[string]any{"player": user.String()}, "Player released, freeze no longer configured")
	}
	return "", false
}

func (e *Engine) isFrozen(user domain.UserIdentity) bool {
	_, frozen := e.freezeReason(user)
	return frozen
}

// PolicyChanged empties the FrozenSet when the new policy no longer freezes.
func (e *Engine) PolicyChanged(p domain.Policy) {
	if p.Freezes() {
		return
	}
	if n := e.sessions.ThawAll(); n > 0 {
		e.logger.Info(map[string]any{"released": n, "action": p.Action.String(), "enabled": p.Enabled}, "Frozen players released after policy change")
	}
}

// OnDisconnect forgets the user.
func (e *Engine) OnDisconnect(user domain.UserIdentity) {
	e.sessions.End(user)
}
