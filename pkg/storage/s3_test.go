package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQRKey(t *testing.T) {
	assert.Equal(t, "qrcards/evt-1/RSVP-3F2A9C1E.png", QRKey("evt-1", "rsvp-3f2a9c1e"))
	assert.Equal(t, "qrcards/evt-1/RSVP-3F2A9C1E.png", QRKey("evt-1", "../RSVP-3F2A9C1E"))
}

func TestPresignExpire(t *testing.T) {
	assert.Equal(t, 15*time.Minute, (&S3{}).PresignExpire())
	assert.Equal(t, 5*time.Minute, (&S3{cfg: S3Config{PresignExpireMinutes: 5}}).PresignExpire())
}
