package enforcement

import (
	"context"

	"github.com/google/uuid"

	"github.com/haukened/linkguard/internal/linking/domain"
	"github.com/haukened/linkguard/internal/linking/repos/frozenset"
)

// Recheck re-evaluates an online user without blocking. The outcome is
// applied when the query completes, on the query client's goroutine, and
// only if the session that was current at call time is still current.
// It reports whether a query was started.
func (e *Engine) Recheck(ctx context.Context, user domain.UserIdentity) bool {
	sess, ok := e.sessions.Lookup(user)
	if !ok {
		return false
	}
	client, ok := e.module.Module()
	if !ok {
		e.logger.Warn(map[string]any{"player": user.String()}, "Recheck skipped, link query module not ready")
		return false
	}
	client.QueryLinkStatus(ctx, user, false).Then(func(check domain.LinkCheck, err error) {
		e.applyRecheck(sess, check, err)
	})
	return true
}

// RecheckID rechecks the online player with the given ID.
func (e *Engine) RecheckID(ctx context.Context, id uuid.UUID) bool {
	user, ok := e.players.Player(id)
	if !ok {
		return false
	}
	return e.Recheck(ctx, user)
}

func (e *Engine) applyRecheck(sess frozenset.Session, check domain.LinkCheck, err error) {
	fields := map[string]any{"player": sess.User.String()}
	if err != nil || check.Status == domain.LinkUnknown {
		fields["error"] = err
		e.logger.Debug(fields, "Recheck inconclusive, keeping current state")
		return
	}
	if !e.sessions.Valid(sess) {
		e.logger.Debug(fields, "Recheck finished after disconnect")
		return
	}

	p := e.policy.Policy()
	reason, blocked := domain.Decide(p, sess.User, check)
	switch {
	case !blocked:
		if e.sessions.Unfreeze(sess) {
			e.logger.Info(fields, "Player linked, freeze lifted")
		}
	case p.Action == domain.ActionKick:
		if e.players.Kick(sess.User.ID, reason.String()) {
			e.logger.Info(fields, "Player kicked, not linked")
		}
	case p.Action == domain.ActionFreeze:
		if e.sessions.Freeze(sess, reason) {
			e.players.SendMessage(sess.User, reason.String())
		}
	default:
		e.sessions.Unfreeze(sess)
	}
}
