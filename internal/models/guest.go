package models

import (
	"time"

	"github.com/google/uuid"
)

// RSVPStatus is the attendance answer recorded for a guest.
type RSVPStatus string

const (
	RSVPPending   RSVPStatus = "pending"
	RSVPConfirmed RSVPStatus = "confirmed"
	RSVPDeclined  RSVPStatus = "declined"
)

// Valid reports whether s is one of the known statuses.
func (s RSVPStatus) Valid() bool {
	switch s {
	case RSVPPending, RSVPConfirmed, RSVPDeclined:
		return true
	}
	return false
}

// Guest is one invited or attending party. Pax is the number of people the entry
// stands for. CheckedInAt is set iff the guest has been admitted, and only a
// confirmed guest can be admitted.
type Guest struct {
	ID          uuid.UUID  `json:"id"`
	EventID     uuid.UUID  `json:"eventId"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone"`
	Pax         int        `json:"pax"`
	Status      RSVPStatus `json:"status"`
	CheckedInAt *time.Time `json:"checkInTime,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// CheckedIn reports whether the guest has been admitted.
func (g *Guest) CheckedIn() bool {
	return g.CheckedInAt != nil
}

// CanCheckIn reports whether the guest may be admitted right now.
func (g *Guest) CanCheckIn() bool {
	return g.Status == RSVPConfirmed && !g.CheckedIn()
}

// Summary is the attendance aggregate over a set of guests.
type Summary struct {
	Total        int `json:"total"`
	Confirmed    int `json:"confirmed"`
	Pending      int `json:"pending"`
	Declined     int `json:"declined"`
	CheckedIn    int `json:"checkedIn"`
	TotalPax     int `json:"totalPax"`
	CheckedInPax int `json:"checkedInPax"`
}

// Add folds one guest into the summary.
func (s *Summary) Add(g Guest) {
	s.Total++
	s.TotalPax += g.Pax
	switch g.Status {
	case RSVPConfirmed:
		s.Confirmed++
	case RSVPPending:
		s.Pending++
	case RSVPDeclined:
		s.Declined++
	}
	if g.CheckedIn() {
		s.CheckedIn++
		s.CheckedInPax += g.Pax
	}
}
