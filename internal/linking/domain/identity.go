package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UserIdentity identifies a connecting or playing user.
// Captured once per event and never mutated afterwards.
type UserIdentity struct {
	ID   uuid.UUID // stable account identifier
	Name string    // display name at the time of capture
}

// NewUserIdentity validates and constructs a UserIdentity.
func NewUserIdentity(id uuid.UUID, name string) (UserIdentity, error) {
	u := UserIdentity{ID: id, Name: strings.TrimSpace(name)}
	if err := u.Validate(); err != nil {
		return UserIdentity{}, err
	}
	return u, nil
}

// Validate checks that the identity carries a usable ID and name.
func (u UserIdentity) Validate() error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("identity id must not be nil")
	}
	if u.Name == "" {
		return fmt.Errorf("identity name must not be empty")
	}
	return nil
}

// Key returns the string form of the ID, used as map key by the repos.
func (u UserIdentity) Key() string { return u.ID.String() }

// String renders the identity for logs.
func (u UserIdentity) String() string {
	return fmt.Sprintf("%s (%s)", u.Name, u.ID)
}
