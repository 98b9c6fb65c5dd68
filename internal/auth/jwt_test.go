package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-invite/backend/internal/models"
)

func TestJWTService_OwnerRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	owner := uuid.New()

	tok, err := svc.Generate(owner)
	require.NoError(t, err)

	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, owner, claims.UserID)
	assert.Equal(t, models.RoleOwner, claims.Role)
}

func TestJWTService_StationToken(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	owner := uuid.New()

	tok, exp, err := svc.GenerateStation(owner, "door-1", 2*time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), exp, time.Minute)

	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, owner, claims.UserID)
	assert.Equal(t, models.RoleStaff, claims.Role)
	assert.Equal(t, "door-1", claims.Station)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	owner := uuid.New()

	tok, err := svc.Generate(owner)
	require.NoError(t, err)

	_, err = NewJWTService("other-secret", 1).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewJWTService("test-secret", 1)
	expired.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	old, err := expired.Generate(owner)
	require.NoError(t, err)
	_, err = svc.Validate(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
