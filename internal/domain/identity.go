package domain

import (
	"time"

	"github.com/google/uuid"
)

type GuestIdentity struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      *string   `json:"name,omitempty" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type InternalIdentity struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	ProjectOwner bool   `json:"project_owner"`
}

// Actor is whoever is writing feedback or a decision. Guests carry the capability
// the access gate issued for the current request.
type Actor struct {
	Ref        string
	Guest      bool
	Capability *Capability
}

func InternalActor(id InternalIdentity) Actor {
	return Actor{Ref: id.UserID}
}

func GuestActor(g GuestIdentity, cap Capability) Actor {
	return Actor{Ref: g.ID.String(), Guest: true, Capability: &cap}
}
