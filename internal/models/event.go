package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is an invitation event. OwnerID is the account that owns it; every guest
// operation outside the public RSVP form is scoped by it.
type Event struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"ownerId"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	EventDate time.Time `json:"eventDate"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"createdAt"`
}
