package domain

import (
	"fmt"
	"strings"
)

// Action is the process-wide enforcement policy for unlinked users.
type Action uint8

const (
	// ActionNone disables both kick and freeze.
	ActionNone Action = iota
	// ActionKick refuses the connection at the configured stage.
	ActionKick
	// ActionFreeze admits the user but blocks movement, chat and commands.
	ActionFreeze
)

// String returns a stable string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "NONE"
	case ActionKick:
		return "KICK"
	case ActionFreeze:
		return "FREEZE"
	default:
		return fmt.Sprintf("Action(%d)", a)
	}
}

// ParseAction converts a string into an Action.
// Accepts: "none", "kick", "freeze" (case-insensitive).
func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE":
		return ActionNone, nil
	case "KICK":
		return ActionKick, nil
	case "FREEZE":
		return ActionFreeze, nil
	default:
		return 0, fmt.Errorf("unsupported Action: %q", s)
	}
}
