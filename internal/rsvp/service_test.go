package rsvp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-invite/backend/internal/credential"
	"github.com/aura-invite/backend/internal/guests"
	"github.com/aura-invite/backend/internal/guests/gueststest"
	"github.com/aura-invite/backend/internal/models"
	"github.com/aura-invite/backend/internal/realtime"
	"github.com/aura-invite/backend/pkg/queue"
)

type recordingJobs struct {
	mu   sync.Mutex
	jobs []queue.QRRenderPayload
	err  error
}

func (r *recordingJobs) EnqueueQRRender(_ context.Context, p queue.QRRenderPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, p)
	return r.err
}

type recordingFeed struct {
	events []string
}

func (r *recordingFeed) Publish(_ uuid.UUID, event string, _ interface{}) {
	r.events = append(r.events, event)
}

func intPtr(n int) *int { return &n }

func newService(t *testing.T) (*Service, guests.Store, uuid.UUID) {
	t.Helper()
	store := gueststest.NewStore(t)
	owner := uuid.New()
	gueststest.Event(t, store, owner, "ahmad-alia")
	codec, err := credential.NewCodec("")
	require.NoError(t, err)
	return NewService(store, codec, 50, nil), store, owner
}

func TestSubmit_AttendingYes(t *testing.T) {
	svc, store, owner := newService(t)
	jobs := &recordingJobs{}
	feed := &recordingFeed{}
	svc.SetJobs(jobs)
	svc.SetPublisher(feed)

	r, err := svc.Submit(context.Background(), Submission{
		EventSlugOrID: "ahmad-alia",
		Name:          "Ahmad",
		Phone:         "+60123456789",
		Pax:           intPtr(4),
		Attending:     "yes",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RSVPConfirmed, r.Status)
	assert.Equal(t, 4, r.Pax)

	g, err := store.GetGuestForOwner(context.Background(), owner, r.GuestID)
	require.NoError(t, err)
	assert.Equal(t, models.RSVPConfirmed, g.Status)
	assert.Equal(t, 4, g.Pax)
	assert.False(t, g.CheckedIn())

	key, err := svc.codec.Decode(r.QRCode)
	require.NoError(t, err)
	resolved, err := store.ResolveCode(context.Background(), owner, key, nil)
	require.NoError(t, err)
	assert.Equal(t, r.GuestID, resolved)

	require.Len(t, jobs.jobs, 1)
	assert.Equal(t, r.QRCode, jobs.jobs[0].Code)
	assert.Equal(t, []string{realtime.EventRSVPReceived}, feed.events)
}

func TestSubmit_AttendingNoForcesZeroPax(t *testing.T) {
	svc, _, _ := newService(t)
	r, err := svc.Submit(context.Background(), Submission{
		EventSlugOrID: "ahmad-alia",
		Name:          "Siti",
		Phone:         "+60 12-345 6789",
		Pax:           intPtr(3),
		Attending:     "no",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RSVPDeclined, r.Status)
	assert.Equal(t, 0, r.Pax)
}

func TestSubmit_PaxDefaultsAndClamps(t *testing.T) {
	svc, _, _ := newService(t)
	for _, pax := range []*int{nil, intPtr(0), intPtr(-2)} {
		r, err := svc.Submit(context.Background(), Submission{EventSlugOrID: "ahmad-alia", Name: "A", Phone: "1", Pax: pax, Attending: "YES"})
		require.NoError(t, err)
		assert.Equal(t, 1, r.Pax)
	}
	_, err := svc.Submit(context.Background(), Submission{EventSlugOrID: "ahmad-alia", Name: "A", Phone: "1", Pax: intPtr(51), Attending: "yes"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSubmit_IsNotIdempotent(t *testing.T) {
	svc, store, owner := newService(t)
	sub := Submission{EventSlugOrID: "ahmad-alia", Name: "Ahmad", Phone: "+60123456789", Attending: "yes"}
	a, err := svc.Submit(context.Background(), sub)
	require.NoError(t, err)
	b, err := svc.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.NotEqual(t, a.GuestID, b.GuestID)

	list, err := store.ListGuestsByOwner(context.Background(), owner, nil)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSubmit_Rejects(t *testing.T) {
	svc, store, owner := newService(t)
	hidden := &models.Event{OwnerID: owner, Slug: "draft", Title: "Draft"}
	require.NoError(t, store.CreateEvent(context.Background(), hidden))

	cases := []struct {
		name string
		sub  Submission
		want error
	}{
		{"blank name", Submission{EventSlugOrID: "ahmad-alia", Name: "  ", Phone: "1", Attending: "yes"}, ErrInvalid},
		{"blank phone", Submission{EventSlugOrID: "ahmad-alia", Name: "A", Phone: " \t", Attending: "yes"}, ErrInvalid},
		{"bad attending", Submission{EventSlugOrID: "ahmad-alia", Name: "A", Phone: "1", Attending: "maybe"}, ErrInvalid},
		{"no event", Submission{Name: "A", Phone: "1", Attending: "yes"}, ErrInvalid},
		{"name too long", Submission{EventSlugOrID: "ahmad-alia", Name: strings.Repeat("é", MaxNameLength+1), Phone: "1", Attending: "yes"}, ErrInvalid},
		{"phone too long", Submission{EventSlugOrID: "ahmad-alia", Name: "A", Phone: strings.Repeat("9", MaxPhoneLength+1), Attending: "yes"}, ErrInvalid},
		{"unknown event", Submission{EventSlugOrID: "nope", Name: "A", Phone: "1", Attending: "yes"}, ErrNotFound},
		{"unpublished event", Submission{EventSlugOrID: "draft", Name: "A", Phone: "1", Attending: "yes"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tc.sub)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSubmit_AcceptsFieldsAtLengthLimit(t *testing.T) {
	svc, store, _ := newService(t)
	name := strings.Repeat("é", MaxNameLength)
	phone := "+" + strings.Repeat("6", MaxPhoneLength-1)

	rec, err := svc.Submit(context.Background(), Submission{EventSlugOrID: "ahmad-alia", Name: name, Phone: phone, Attending: "yes"})
	require.NoError(t, err)
	g, err := store.GetGuest(context.Background(), rec.GuestID)
	require.NoError(t, err)
	assert.Equal(t, name, g.Name)
	assert.Equal(t, phone, g.Phone)
}

func TestSubmit_RegeneratesCollidingID(t *testing.T) {
	svc, store, _ := newService(t)
	taken := uuid.MustParse("3f2a9c1e-0000-4000-8000-000000000001")
	ev, err := store.GetPublishedEvent(context.Background(), "ahmad-alia")
	require.NoError(t, err)
	require.NoError(t, store.CreateGuest(context.Background(), &models.Guest{
		ID: taken, EventID: ev.ID, Name: "First", Phone: "1", Pax: 1, Status: models.RSVPConfirmed,
	}))

	fresh := uuid.MustParse("7b1d0c44-0000-4000-8000-000000000002")
	ids := []uuid.UUID{uuid.MustParse("3f2a9c1e-ffff-4000-8000-000000000009"), fresh}
	svc.newID = func() uuid.UUID {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	r, err := svc.Submit(context.Background(), Submission{EventSlugOrID: "ahmad-alia", Name: "Second", Phone: "2", Attending: "yes"})
	require.NoError(t, err)
	assert.Equal(t, fresh, r.GuestID)

	svc.newID = func() uuid.UUID { return uuid.MustParse("3f2a9c1e-eeee-4000-8000-000000000003") }
	_, err = svc.Submit(context.Background(), Submission{EventSlugOrID: "ahmad-alia", Name: "Third", Phone: "3", Attending: "yes"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSubmit_EnqueueFailureDoesNotFailRSVP(t *testing.T) {
	svc, _, _ := newService(t)
	svc.SetJobs(&recordingJobs{err: errors.New("redis down")})
	_, err := svc.Submit(context.Background(), Submission{EventSlugOrID: "ahmad-alia", Name: "A", Phone: "1", Attending: "yes"})
	assert.NoError(t, err)
}
