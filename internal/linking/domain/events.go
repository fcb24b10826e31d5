package domain

import "strings"

// ConnectionAttempt carries one user through the connection pipeline.
// Handlers may veto it; a veto at Join disconnects the joined player.
// An attempt is handled by a single goroutine at a time.
type ConnectionAttempt struct {
	User  UserIdentity
	Phase Phase

	denied bool
	reason string
}

// NewConnectionAttempt returns an allowed attempt for the user.
func NewConnectionAttempt(user UserIdentity) *ConnectionAttempt {
	return &ConnectionAttempt{User: user, Phase: PhasePreLogin}
}

// Deny refuses the connection with the given message.
func (a *ConnectionAttempt) Deny(reason string) {
	a.denied = true
	a.reason = reason
}

// Denied returns the denial message and whether the attempt was refused.
func (a *ConnectionAttempt) Denied() (string, bool) {
	return a.reason, a.denied
}

// Allowed reports whether no handler has refused the attempt so far.
func (a *ConnectionAttempt) Allowed() bool { return !a.denied }

// MoveEvent is a movement request for an online player.
type MoveEvent struct {
	Player UserIdentity
	From   Location
	To     Location

	Cancelled bool
}

// SetTo replaces the destination of the move.
func (e *MoveEvent) SetTo(l Location) { e.To = l }

// ChatEvent is a chat message about to be delivered to Recipients.
type ChatEvent struct {
	Sender     UserIdentity
	Message    string
	Recipients []UserIdentity

	Cancelled bool
}

// RemoveRecipients drops every recipient for which drop returns true.
func (e *ChatEvent) RemoveRecipients(drop func(UserIdentity) bool) {
	kept := e.Recipients[:0]
	for _, r := range e.Recipients {
		if !drop(r) {
			kept = append(kept, r)
		}
	}
	e.Recipients = kept
}

// CommandEvent is a command line typed by a player.
type CommandEvent struct {
	Sender UserIdentity
	Line   string

	Cancelled bool
}

// Command returns the line without the leading slash and surrounding spaces.
func (e *CommandEvent) Command() string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(e.Line), "/"))
}
