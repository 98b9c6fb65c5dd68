// Package checkin admits guests at the venue. Admission is decided by one conditional
// write in the guest store; this package only classifies and reports the result.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-invite/backend/internal/analytics"
	"github.com/aura-invite/backend/internal/credential"
	"github.com/aura-invite/backend/internal/guests"
	"github.com/aura-invite/backend/internal/models"
	"github.com/aura-invite/backend/internal/realtime"
	"github.com/aura-invite/backend/pkg/metrics"
)

// ErrUnavailable means the guest store failed. The attempt may or may not have been
// recorded; callers re-query by guest id before retrying.
var ErrUnavailable = errors.New("check-in temporarily unavailable")

// ErrNotFound is returned by Lookup, Undo and the admin operations for guests the owner
// cannot see.
var ErrNotFound = errors.New("guest not found")

// Outcome is the result of one check-in attempt.
type Outcome string

const (
	OutcomeAdmitted         Outcome = "admitted"
	OutcomeAlreadyCheckedIn Outcome = "already_checked_in"
	OutcomeUnknownCode      Outcome = "unknown_code"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeIneligible       Outcome = "ineligible"
)

// Result describes a check-in attempt. CheckedInAt is the stored admission time for
// admitted and already_checked_in; Guest is set whenever the guest was visible.
type Result struct {
	Outcome     Outcome
	GuestID     uuid.UUID
	CheckedInAt *time.Time
	Guest       *models.Guest
}

// Publisher pushes events to check-in stations.
type Publisher interface {
	Publish(eventID uuid.UUID, event string, payload interface{})
}

// Service runs check-ins for an owner's guests.
type Service struct {
	store   guests.Store
	codec   *credential.Codec
	summary *analytics.Service
	feed    Publisher
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a check-in service.
func NewService(store guests.Store, codec *credential.Codec, summary *analytics.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		codec:   codec,
		summary: summary,
		logger:  logger,
		now:     time.Now,
	}
}

// SetPublisher enables station notifications.
func (s *Service) SetPublisher(feed Publisher) { s.feed = feed }

// SetMetrics enables check-in counters.
func (s *Service) SetMetrics(m *metrics.Collector) { s.metrics = m }

// Codec returns the codec used for scanned codes.
func (s *Service) Codec() *credential.Codec { return s.codec }

// CheckIn admits guestID on behalf of ownerID. Every expected race and rejection is an
// Outcome; only storage failures are errors.
func (s *Service) CheckIn(ctx context.Context, ownerID, guestID uuid.UUID) (Result, error) {
	start := s.now()
	res, err := s.checkIn(ctx, ownerID, guestID)
	if err == nil {
		s.metrics.ObserveCheckIn(string(res.Outcome), time.Since(start))
	}
	return res, err
}

// CheckInByCode decodes a scanned code and admits the guest it names. eventID narrows
// the lookup when the owner runs several events.
func (s *Service) CheckInByCode(ctx context.Context, ownerID uuid.UUID, code string, eventID *uuid.UUID) (Result, error) {
	start := s.now()
	key, err := s.codec.Decode(code)
	if err != nil {
		s.metrics.ObserveCheckIn(string(OutcomeUnknownCode), time.Since(start))
		return Result{Outcome: OutcomeUnknownCode}, nil
	}
	guestID, err := s.store.ResolveCode(ctx, ownerID, key, eventID)
	switch {
	case err == nil:
	case errors.Is(err, guests.ErrNotFound), errors.Is(err, guests.ErrAmbiguousCode):
		s.metrics.ObserveCheckIn(string(OutcomeUnknownCode), time.Since(start))
		return Result{Outcome: OutcomeUnknownCode}, nil
	default:
		s.logger.Error("resolve code", zap.String("owner_id", ownerID.String()), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	res, err := s.checkIn(ctx, ownerID, guestID)
	if err == nil {
		s.metrics.ObserveCheckIn(string(res.Outcome), time.Since(start))
	}
	return res, err
}

func (s *Service) checkIn(ctx context.Context, ownerID, guestID uuid.UUID) (Result, error) {
	res := Result{GuestID: guestID}
	at, err := s.store.MarkCheckedIn(ctx, ownerID, guestID, s.now().UTC())

	var already *guests.AlreadyCheckedInError
	switch {
	case err == nil:
		res.Outcome = OutcomeAdmitted
		res.CheckedInAt = &at
	case errors.As(err, &already):
		res.Outcome = OutcomeAlreadyCheckedIn
		original := already.CheckedInAt
		res.CheckedInAt = &original
	case errors.Is(err, guests.ErrIneligible):
		res.Outcome = OutcomeIneligible
	case errors.Is(err, guests.ErrNotFound):
		res.Outcome = OutcomeNotFound
		return res, nil
	default:
		s.logger.Error("mark checked in", zap.String("guest_id", guestID.String()), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// The admission is already decided; a failed read only loses display details.
	g, err := s.store.GetGuestForOwner(ctx, ownerID, guestID)
	if err != nil {
		s.logger.Warn("reload guest after check-in", zap.String("guest_id", guestID.String()), zap.Error(err))
	} else {
		res.Guest = g
	}

	if res.Outcome == OutcomeAdmitted && res.Guest != nil {
		s.announce(ctx, ownerID, res.Guest, realtime.EventGuestCheckedIn)
	}
	return res, nil
}

// Lookup returns the current state of a guest, e.g. after a check-in call timed out.
func (s *Service) Lookup(ctx context.Context, ownerID, guestID uuid.UUID) (*models.Guest, error) {
	g, err := s.store.GetGuestForOwner(ctx, ownerID, guestID)
	if err != nil {
		return nil, s.mapStoreErr(err, "lookup guest", guestID)
	}
	return g, nil
}

// Undo clears an admission. It is an administrative override, not part of admission.
func (s *Service) Undo(ctx context.Context, ownerID, guestID uuid.UUID) (*models.Guest, error) {
	if err := s.store.UndoCheckIn(ctx, ownerID, guestID); err != nil {
		return nil, s.mapStoreErr(err, "undo check-in", guestID)
	}
	g, err := s.store.GetGuestForOwner(ctx, ownerID, guestID)
	if err != nil {
		return nil, s.mapStoreErr(err, "reload guest after undo", guestID)
	}
	s.logger.Info("check-in undone", zap.String("owner_id", ownerID.String()), zap.String("guest_id", guestID.String()))
	s.announce(ctx, ownerID, g, realtime.EventCheckInUndone)
	return g, nil
}

// announce pushes a guest change and the event's fresh summary to its stations.
func (s *Service) announce(ctx context.Context, ownerID uuid.UUID, g *models.Guest, event string) {
	if s.feed == nil {
		return
	}
	payload := map[string]interface{}{
		"guest": s.View(*g, nil),
	}
	if s.summary != nil {
		if sum, err := s.summary.Summarize(ctx, ownerID, analytics.ForEvent(g.EventID)); err == nil {
			payload["summary"] = sum
		}
	}
	s.feed.Publish(g.EventID, event, payload)
}

func (s *Service) mapStoreErr(err error, op string, guestID uuid.UUID) error {
	if errors.Is(err, guests.ErrNotFound) {
		return ErrNotFound
	}
	s.logger.Error(op, zap.String("guest_id", guestID.String()), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// GuestView is the guest shape served to stations.
type GuestView struct {
	ID          uuid.UUID         `json:"id"`
	EventID     uuid.UUID         `json:"eventId"`
	Name        string            `json:"name"`
	Phone       string            `json:"phone"`
	Pax         int               `json:"pax"`
	Status      models.RSVPStatus `json:"status"`
	CheckedIn   bool              `json:"checkedIn"`
	CheckInTime *time.Time        `json:"checkInTime"`
	Event       string            `json:"event,omitempty"`
	QRCode      string            `json:"qrCode"`
}

// View renders g for stations. titles maps event ids to titles and may be nil.
func (s *Service) View(g models.Guest, titles map[uuid.UUID]string) GuestView {
	return GuestView{
		ID:          g.ID,
		EventID:     g.EventID,
		Name:        g.Name,
		Phone:       g.Phone,
		Pax:         g.Pax,
		Status:      g.Status,
		CheckedIn:   g.CheckedIn(),
		CheckInTime: g.CheckedInAt,
		Event:       titles[g.EventID],
		QRCode:      s.codec.Encode(g.ID),
	}
}
