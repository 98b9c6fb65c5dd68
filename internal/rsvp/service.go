// Package rsvp turns public RSVP submissions into guest rows.
package rsvp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-invite/backend/internal/credential"
	"github.com/aura-invite/backend/internal/guests"
	"github.com/aura-invite/backend/internal/models"
	"github.com/aura-invite/backend/internal/realtime"
	"github.com/aura-invite/backend/pkg/metrics"
	"github.com/aura-invite/backend/pkg/queue"
)

var (
	// ErrInvalid wraps every rejected field. The message is safe to show the visitor.
	ErrInvalid = errors.New("invalid rsvp")
	// ErrNotFound means the event does not exist or is not published.
	ErrNotFound = errors.New("event not found")
	// ErrUnavailable means the guest could not be stored. Retrying creates a new guest.
	ErrUnavailable = errors.New("rsvp temporarily unavailable")
)

// Attending answers.
const (
	AttendingYes = "yes"
	AttendingNo  = "no"
)

// Limits on visitor-supplied fields, in characters after trimming.
const (
	MaxNameLength  = 200
	MaxPhoneLength = 32
)

// maxIDAttempts bounds id regeneration when a new id's code is taken in the event.
const maxIDAttempts = 5

// Submission is one RSVP form post. Pax is optional and defaults to 1.
type Submission struct {
	EventSlugOrID string
	Name          string
	Phone         string
	Pax           *int
	Attending     string
}

// Receipt describes the guest created for a submission.
type Receipt struct {
	GuestID uuid.UUID         `json:"guestId"`
	EventID uuid.UUID         `json:"eventId"`
	QRCode  string            `json:"qrCode"`
	Status  models.RSVPStatus `json:"status"`
	Pax     int               `json:"pax"`
}

// JobEnqueuer schedules QR card rendering.
type JobEnqueuer interface {
	EnqueueQRRender(ctx context.Context, payload queue.QRRenderPayload) error
}

// Publisher pushes events to check-in stations.
type Publisher interface {
	Publish(eventID uuid.UUID, event string, payload interface{})
}

// Service validates submissions and records guests.
type Service struct {
	store   guests.Store
	codec   *credential.Codec
	maxPax  int
	jobs    JobEnqueuer
	feed    Publisher
	metrics *metrics.Collector
	logger  *zap.Logger
	newID   func() uuid.UUID
}

// NewService creates an RSVP service. maxPax <= 0 means no upper bound.
func NewService(store guests.Store, codec *credential.Codec, maxPax int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		codec:  codec,
		maxPax: maxPax,
		logger: logger,
		newID:  uuid.New,
	}
}

// SetJobs enables QR card pre-rendering.
func (s *Service) SetJobs(jobs JobEnqueuer) { s.jobs = jobs }

// SetPublisher enables station notifications.
func (s *Service) SetPublisher(feed Publisher) { s.feed = feed }

// SetMetrics enables submission counters.
func (s *Service) SetMetrics(m *metrics.Collector) { s.metrics = m }

// Submit creates a new guest for every accepted submission, including repeats from the
// same visitor.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	g, err := s.normalize(sub)
	if err != nil {
		return nil, err
	}

	event, err := s.store.GetPublishedEvent(ctx, sub.EventSlugOrID)
	if err != nil {
		if errors.Is(err, guests.ErrNotFound) {
			return nil, ErrNotFound
		}
		s.logger.Error("resolve event", zap.String("event", sub.EventSlugOrID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	g.EventID = event.ID

	if err := s.insert(ctx, g); err != nil {
		return nil, err
	}

	receipt := &Receipt{
		GuestID: g.ID,
		EventID: g.EventID,
		QRCode:  s.codec.Encode(g.ID),
		Status:  g.Status,
		Pax:     g.Pax,
	}
	s.afterInsert(ctx, g, receipt)
	return receipt, nil
}

func (s *Service) insert(ctx context.Context, g *models.Guest) error {
	for attempt := 1; ; attempt++ {
		g.ID = s.newID()
		err := s.store.CreateGuest(ctx, g)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, guests.ErrCodeCollision) && attempt < maxIDAttempts:
			s.logger.Info("guest code collision, regenerating id", zap.String("event_id", g.EventID.String()), zap.Int("attempt", attempt))
		case errors.Is(err, guests.ErrInvalidInput):
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		default:
			s.logger.Error("create guest", zap.String("event_id", g.EventID.String()), zap.Error(err))
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
}

// afterInsert runs the best-effort side effects of an accepted RSVP.
func (s *Service) afterInsert(ctx context.Context, g *models.Guest, r *Receipt) {
	s.metrics.ObserveRSVP(g.Status == models.RSVPConfirmed)
	if s.jobs != nil {
		payload := queue.QRRenderPayload{GuestID: g.ID, EventID: g.EventID, Code: r.QRCode}
		if err := s.jobs.EnqueueQRRender(ctx, payload); err != nil {
			s.logger.Warn("enqueue qr render", zap.String("guest_id", g.ID.String()), zap.Error(err))
		}
	}
	if s.feed != nil {
		s.feed.Publish(g.EventID, realtime.EventRSVPReceived, map[string]interface{}{
			"guestId":    g.ID,
			"name":       g.Name,
			"pax":        g.Pax,
			"status":     g.Status,
			"receivedAt": time.Now().UTC(),
		})
	}
}

// normalize applies the intake rules to a submission.
func (s *Service) normalize(sub Submission) (*models.Guest, error) {
	if strings.TrimSpace(sub.EventSlugOrID) == "" {
		return nil, fmt.Errorf("%w: event is required", ErrInvalid)
	}
	name := strings.TrimSpace(sub.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: name must be at most %d characters", ErrInvalid, MaxNameLength)
	}
	phone := normalizePhone(sub.Phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone is required", ErrInvalid)
	}
	if utf8.RuneCountInString(phone) > MaxPhoneLength {
		return nil, fmt.Errorf("%w: phone must be at most %d characters", ErrInvalid, MaxPhoneLength)
	}

	g := &models.Guest{Name: name, Phone: phone}
	switch strings.ToLower(strings.TrimSpace(sub.Attending)) {
	case AttendingYes:
		pax := 1
		if sub.Pax != nil && *sub.Pax > 1 {
			pax = *sub.Pax
		}
		if s.maxPax > 0 && pax > s.maxPax {
			return nil, fmt.Errorf("%w: pax must be at most %d", ErrInvalid, s.maxPax)
		}
		g.Status = models.RSVPConfirmed
		g.Pax = pax
	case AttendingNo:
		g.Status = models.RSVPDeclined
		g.Pax = 0
	default:
		return nil, fmt.Errorf("%w: attending must be %q or %q", ErrInvalid, AttendingYes, AttendingNo)
	}
	return g, nil
}

// normalizePhone drops all whitespace.
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, phone)
}
