package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeQRRender(t *testing.T) {
	job := &Job{Type: JobTypeQRRender, Payload: []byte(`{"guestId":"3f2a9c1e-0000-4000-8000-000000000000","eventId":"00000000-0000-4000-8000-000000000001","code":"RSVP-3F2A9C1E"}`)}
	p, err := DecodeQRRender(job)
	require.NoError(t, err)
	assert.Equal(t, "RSVP-3F2A9C1E", p.Code)
	assert.Equal(t, uuid.MustParse("3f2a9c1e-0000-4000-8000-000000000000"), p.GuestID)

	_, err = DecodeQRRender(&Job{Type: "other"})
	assert.Error(t, err)
}

func TestQueue_RetryThenDLQ(t *testing.T) {
	addr := os.Getenv("AURA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AURA_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() {
		rdb.Del(ctx, QueueQRCards, QueueDLQ)
		_ = rdb.Close()
	})
	require.NoError(t, rdb.Del(ctx, QueueQRCards, QueueDLQ).Err())

	q := NewQueue(rdb, nil)
	payload := QRRenderPayload{GuestID: uuid.New(), EventID: uuid.New(), Code: "RSVP-ABCDEF12"}
	require.NoError(t, q.EnqueueQRRender(ctx, payload))

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	got, err := DecodeQRRender(job)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	for i := 1; i < MaxRetries; i++ {
		require.NoError(t, q.Retry(ctx, job))
		job, err = q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, i, job.Attempt)
	}
	require.NoError(t, q.Retry(ctx, job))
	n, err := rdb.LLen(ctx, QueueDLQ).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job, err = q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}
