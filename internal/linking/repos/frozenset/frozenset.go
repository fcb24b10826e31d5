// Package frozenset tracks active sessions and the frozen users among them.
package frozenset

import (
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map"

	"github.com/haukened/linkguard/internal/linking/domain"
)

// Session identifies one connection of a user. A reconnect gets a new token,
// so late callbacks bound to an old session cannot touch the new one.
type Session struct {
	User  domain.UserIdentity
	Token uint64
}

// Registry holds the session table and the FrozenSet. Both are sharded
// concurrent maps; no external locking is needed.
type Registry struct {
	sessions cmap.ConcurrentMap // user key -> uint64 token
	frozen   cmap.ConcurrentMap // user key -> entry
	next     atomic.Uint64
}

// entry is a FrozenSet value tagged with the session that wrote it.
type entry struct {
	token  uint64
	reason domain.BlockReason
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sessions: cmap.New(), frozen: cmap.New()}
}

// Begin starts a new session for the user, replacing any previous one.
// A leftover freeze from an earlier session is dropped.
func (r *Registry) Begin(user domain.UserIdentity) Session {
	s := Session{User: user, Token: r.next.Add(1)}
	r.frozen.Remove(user.Key())
	r.sessions.Set(user.Key(), s.Token)
	return s
}

// Lookup returns the user's current session, if any.
func (r *Registry) Lookup(user domain.UserIdentity) (Session, bool) {
	v, ok := r.sessions.Get(user.Key())
	if !ok {
		return Session{}, false
	}
	return Session{User: user, Token: v.(uint64)}, true
}

// Valid reports whether s is still the user's current session.
func (r *Registry) Valid(s Session) bool {
	v, ok := r.sessions.Get(s.User.Key())
	return ok && v.(uint64) == s.Token
}

// End removes the session and any freeze unconditionally.
func (r *Registry) End(user domain.UserIdentity) {
	r.sessions.Remove(user.Key())
	r.frozen.Remove(user.Key())
}

// Freeze records the reason for s. It returns false, leaving no entry behind,
// when s is no longer current. The write happens first and is undone if the
// session ended concurrently, so End can never be outrun.
func (r *Registry) Freeze(s Session, reason domain.BlockReason) bool {
	if !r.Valid(s) {
		return false
	}
	r.frozen.Upsert(s.User.Key(), entry{token: s.Token, reason: reason}, keepNewest)
	if r.Valid(s) {
		return true
	}
	r.removeOwned(s)
	return false
}

// Unfreeze clears the freeze for s. It is a no-op for a stale session.
func (r *Registry) Unfreeze(s Session) bool {
	if !r.Valid(s) {
		return false
	}
	return r.removeOwned(s)
}

// ThawAll empties the FrozenSet and returns how many entries it removed.
// Sessions stay open. An entry rewritten while the sweep runs is kept.
func (r *Registry) ThawAll() int {
	n := 0
	for item := range r.frozen.IterBuffered() {
		seen := item.Val.(entry)
		if r.frozen.RemoveCb(item.Key, func(_ string, v interface{}, exists bool) bool {
			return exists && v.(entry) == seen
		}) {
			n++
		}
	}
	return n
}

// keepNewest never lets an older session overwrite a newer session's entry.
func keepNewest(exists bool, inMap, next interface{}) interface{} {
	if exists && inMap.(entry).token > next.(entry).token {
		return inMap
	}
	return next
}

// removeOwned deletes the entry only if s wrote it.
func (r *Registry) removeOwned(s Session) bool {
	return r.frozen.RemoveCb(s.User.Key(), func(_ string, v interface{}, exists bool) bool {
		return exists && v.(entry).token == s.Token
	})
}

// Reason returns the freeze reason for the user.
func (r *Registry) Reason(user domain.UserIdentity) (domain.BlockReason, bool) {
	v, ok := r.frozen.Get(user.Key())
	if !ok {
		return "", false
	}
	return v.(entry).reason, true
}

// IsFrozen reports whether the user is in the FrozenSet.
func (r *Registry) IsFrozen(user domain.UserIdentity) bool {
	return r.frozen.Has(user.Key())
}

// FrozenCount returns the size of the FrozenSet.
func (r *Registry) FrozenCount() int { return r.frozen.Count() }

// SessionCount returns the number of active sessions.
func (r *Registry) SessionCount() int { return r.sessions.Count() }
