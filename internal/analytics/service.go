// Package analytics computes attendance counts from the current guest rows.
package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aura-invite/backend/internal/guests"
	"github.com/aura-invite/backend/internal/models"
)

var (
	// ErrNotFound means the scoped event does not belong to the owner.
	ErrNotFound = errors.New("event not found")
	// ErrUnavailable means the guest store could not be read.
	ErrUnavailable = errors.New("summary temporarily unavailable")
)

// Scope selects the guests a summary covers.
type Scope struct {
	eventID *uuid.UUID
}

// AllEvents covers every event of the owner.
func AllEvents() Scope { return Scope{} }

// ForEvent covers a single event.
func ForEvent(id uuid.UUID) Scope { return Scope{eventID: &id} }

// EventID returns the scoped event, or false for AllEvents.
func (s Scope) EventID() (uuid.UUID, bool) {
	if s.eventID == nil {
		return uuid.Nil, false
	}
	return *s.eventID, true
}

// ParseScope accepts "", "all" or an event id.
func ParseScope(v string) (Scope, error) {
	if v == "" || v == "all" {
		return AllEvents(), nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return Scope{}, fmt.Errorf("invalid event scope %q", v)
	}
	return ForEvent(id), nil
}

// Service reads summaries straight from the guest store on every call.
type Service struct {
	store guests.Store
}

// NewService creates a summary service.
func NewService(store guests.Store) *Service {
	return &Service{store: store}
}

// Summarize aggregates the owner's guests in scope.
func (s *Service) Summarize(ctx context.Context, ownerID uuid.UUID, scope Scope) (models.Summary, error) {
	if id, ok := scope.EventID(); ok {
		if _, err := s.store.GetEvent(ctx, ownerID, id); err != nil {
			if errors.Is(err, guests.ErrNotFound) {
				return models.Summary{}, ErrNotFound
			}
			return models.Summary{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	sum, err := s.store.Summarize(ctx, ownerID, scope.eventID)
	if err != nil {
		return models.Summary{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return sum, nil
}
