package domain

import "fmt"

// LinkStatus is the outcome of a single link-status query.
type LinkStatus uint8

const (
	// LinkUnknown means the backend could not answer (failure, timeout, not ready).
	LinkUnknown LinkStatus = iota
	// LinkLinked means the account is linked to a Discord account.
	LinkLinked
	// LinkUnlinked means the backend answered and no link exists.
	LinkUnlinked
)

// String returns a stable string representation of the status.
func (s LinkStatus) String() string {
	switch s {
	case LinkUnknown:
		return "UNKNOWN"
	case LinkLinked:
		return "LINKED"
	case LinkUnlinked:
		return "UNLINKED"
	default:
		return fmt.Sprintf("LinkStatus(%d)", s)
	}
}

// LinkCheck is what a link query resolves to.
// Code is only meaningful for LinkUnlinked and may be empty.
type LinkCheck struct {
	Status LinkStatus
	Code   string
}

// UnknownCheck returns a check for an unreachable backend.
func UnknownCheck() LinkCheck { return LinkCheck{Status: LinkUnknown} }
