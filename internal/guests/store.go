// Package guests persists events and their guest lists. Every mutation that matters
// for admission is a single conditional statement, so concurrent callers on any number
// of server instances are serialized by the database rather than by this process.
package guests

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aura-invite/backend/internal/credential"
	"github.com/aura-invite/backend/internal/models"
)

var (
	// ErrNotFound means the event or guest does not exist or belongs to another owner.
	ErrNotFound = errors.New("not found")
	// ErrIneligible means the guest's RSVP status does not allow the change.
	ErrIneligible = errors.New("guest is not eligible")
	// ErrAlreadyCheckedIn means another caller admitted the guest first.
	ErrAlreadyCheckedIn = errors.New("guest already checked in")
	// ErrCodeCollision means the new guest id shares its code with a guest of the same event.
	ErrCodeCollision = errors.New("check-in code already used in event")
	// ErrSlugTaken means another event already uses the public slug.
	ErrSlugTaken = errors.New("event slug already taken")
	// ErrAmbiguousCode means a code matches guests of several events of the owner.
	ErrAmbiguousCode = errors.New("check-in code matches several events")
	// ErrInvalidInput is returned for values the schema would reject.
	ErrInvalidInput = errors.New("invalid input")
)

// AlreadyCheckedInError carries the original admission time. It matches ErrAlreadyCheckedIn.
type AlreadyCheckedInError struct {
	CheckedInAt time.Time
}

func (e *AlreadyCheckedInError) Error() string {
	return ErrAlreadyCheckedIn.Error() + " at " + e.CheckedInAt.UTC().Format(time.RFC3339)
}

// Is reports whether target is ErrAlreadyCheckedIn.
func (e *AlreadyCheckedInError) Is(target error) bool {
	return target == ErrAlreadyCheckedIn
}

// Store is the guest store used by the intake, check-in and summary services.
type Store interface {
	CreateEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, ownerID, eventID uuid.UUID) (*models.Event, error)
	// GetPublishedEvent resolves a public slug or event id.
	GetPublishedEvent(ctx context.Context, slugOrID string) (*models.Event, error)
	ListEventsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Event, error)

	CreateGuest(ctx context.Context, g *models.Guest) error
	// GetGuest looks a guest up by id alone, for holders of the id itself.
	GetGuest(ctx context.Context, guestID uuid.UUID) (*models.Guest, error)
	GetGuestForOwner(ctx context.Context, ownerID, guestID uuid.UUID) (*models.Guest, error)
	ListGuestsByOwner(ctx context.Context, ownerID uuid.UUID, eventID *uuid.UUID) ([]models.Guest, error)
	ResolveCode(ctx context.Context, ownerID uuid.UUID, key credential.Key, eventID *uuid.UUID) (uuid.UUID, error)
	UpdateGuest(ctx context.Context, ownerID uuid.UUID, g *models.Guest) error
	DeleteGuest(ctx context.Context, ownerID, guestID uuid.UUID) error

	// MarkCheckedIn admits a confirmed guest exactly once and returns the stored time.
	MarkCheckedIn(ctx context.Context, ownerID, guestID uuid.UUID, at time.Time) (time.Time, error)
	// UndoCheckIn is the administrative override of an admission.
	UndoCheckIn(ctx context.Context, ownerID, guestID uuid.UUID) error

	Summarize(ctx context.Context, ownerID uuid.UUID, eventID *uuid.UUID) (models.Summary, error)
}

// codeIndexName is the unique index that keeps check-in codes distinct per event.
const codeIndexName = "guests_event_code_idx"

// maxCheckInAttempts bounds the retries of an admission that raced an undo.
const maxCheckInAttempts = 3

// errCheckInRaced is returned when every admission attempt raced an undo.
var errCheckInRaced = errors.New("check-in raced with an administrative undo")

// classifyFailedCheckIn explains why the conditional admission touched no row. A nil
// result means the guest is admissible again (an undo landed in between) and the
// update should be retried.
func classifyFailedCheckIn(g *models.Guest) error {
	switch {
	case g.CheckedInAt != nil:
		return &AlreadyCheckedInError{CheckedInAt: *g.CheckedInAt}
	case g.Status != models.RSVPConfirmed:
		return ErrIneligible
	}
	return nil
}

func validateGuest(g *models.Guest) error {
	if g.ID == uuid.Nil || g.Name == "" || g.Phone == "" || !g.Status.Valid() {
		return ErrInvalidInput
	}
	if g.Pax < 0 || (g.Status != models.RSVPDeclined && g.Pax < 1) {
		return ErrInvalidInput
	}
	return nil
}

func validateNewGuest(g *models.Guest) error {
	if g.EventID == uuid.Nil {
		return ErrInvalidInput
	}
	return validateGuest(g)
}
