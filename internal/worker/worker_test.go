package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-invite/backend/internal/credential"
	"github.com/aura-invite/backend/internal/guests"
	"github.com/aura-invite/backend/internal/models"
	"github.com/aura-invite/backend/pkg/qrcode"
	"github.com/aura-invite/backend/pkg/queue"
)

type fakeGuests map[uuid.UUID]*models.Guest

func (f fakeGuests) GetGuest(_ context.Context, id uuid.UUID) (*models.Guest, error) {
	if g, ok := f[id]; ok {
		return g, nil
	}
	return nil, guests.ErrNotFound
}

type fakeUploader struct {
	mu    sync.Mutex
	fail  int
	calls int
	keys  []string
	sizes []int
}

func (f *fakeUploader) Upload(_ context.Context, key, contentType string, body io.Reader, n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return errors.New("s3 unavailable")
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(b)) != n || contentType != qrcode.ContentType {
		return errors.New("bad upload")
	}
	f.keys = append(f.keys, key)
	f.sizes = append(f.sizes, len(b))
	return nil
}

// memQueue mirrors the Redis queue: Retry re-enqueues until MaxRetries then dead-letters.
type memQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	dlq  []*queue.Job
}

func (q *memQueue) Dequeue(ctx context.Context, _ time.Duration) (*queue.Job, error) {
	q.mu.Lock()
	if len(q.jobs) == 0 {
		q.mu.Unlock()
		time.Sleep(time.Millisecond)
		return nil, ctx.Err()
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.mu.Unlock()
	return j, nil
}

func (q *memQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	if job.Attempt >= queue.MaxRetries {
		q.dlq = append(q.dlq, job)
		return nil
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func renderJob(t *testing.T, g *models.Guest, code string) *queue.Job {
	t.Helper()
	body, err := json.Marshal(queue.QRRenderPayload{GuestID: g.ID, EventID: g.EventID, Code: code})
	require.NoError(t, err)
	return &queue.Job{ID: uuid.NewString(), Type: queue.JobTypeQRRender, Payload: body}
}

func newProcessor(t *testing.T, store fakeGuests, up *fakeUploader, q JobSource) *QRCardProcessor {
	t.Helper()
	codec, err := credential.NewCodec("")
	require.NoError(t, err)
	renderer, err := qrcode.NewRenderer(128)
	require.NoError(t, err)
	p := NewQRCardProcessor(store, codec, renderer, up, q, nil)
	p.backoff = time.Millisecond
	return p
}

func TestProcess_UploadsCard(t *testing.T) {
	g := &models.Guest{ID: uuid.MustParse("3f2a9c1e-0000-4000-8000-000000000001"), EventID: uuid.MustParse("00000000-0000-4000-8000-0000000000e1")}
	up := &fakeUploader{}
	p := newProcessor(t, fakeGuests{g.ID: g}, up, &memQueue{})

	require.NoError(t, p.Process(context.Background(), renderJob(t, g, "RSVP-3F2A9C1E")))
	require.Len(t, up.keys, 1)
	assert.Equal(t, "qrcards/"+g.EventID.String()+"/RSVP-3F2A9C1E.png", up.keys[0])
	assert.Greater(t, up.sizes[0], 0)
}

func TestProcess_SkipsDeletedGuest(t *testing.T) {
	up := &fakeUploader{}
	p := newProcessor(t, fakeGuests{}, up, &memQueue{})
	g := &models.Guest{ID: uuid.New(), EventID: uuid.New()}
	require.NoError(t, p.Process(context.Background(), renderJob(t, g, "")))
	assert.Zero(t, up.calls)

	assert.Error(t, p.Process(context.Background(), &queue.Job{Type: "other"}))
}

func TestRun_RetriesThenDeadLetters(t *testing.T) {
	ok := &models.Guest{ID: uuid.New(), EventID: uuid.New()}
	doomed := &models.Guest{ID: uuid.New(), EventID: uuid.New()}
	up := &fakeUploader{fail: 1}
	q := &memQueue{}
	q.jobs = []*queue.Job{renderJob(t, ok, ""), renderJob(t, doomed, "")}
	store := fakeGuests{ok.ID: ok}
	p := newProcessor(t, store, up, q)
	p.guests = failingFor{fakeGuests: store, id: doomed.ID}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.dlq) == 1 && len(q.jobs) == 0
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, queue.MaxRetries, q.dlq[0].Attempt)
	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Len(t, up.keys, 1)
}

// failingFor returns a storage error for one guest.
type failingFor struct {
	fakeGuests
	id uuid.UUID
}

func (f failingFor) GetGuest(ctx context.Context, id uuid.UUID) (*models.Guest, error) {
	if id == f.id {
		return nil, errors.New("db down")
	}
	return f.fakeGuests.GetGuest(ctx, id)
}
