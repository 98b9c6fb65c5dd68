// Package gueststest provides a throwaway SQLite guest store and fixtures for tests.
package gueststest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aura-invite/backend/internal/guests"
	"github.com/aura-invite/backend/internal/models"
	"github.com/aura-invite/backend/pkg/database"
)

// NewStore opens a migrated SQLite store under t.TempDir().
func NewStore(t testing.TB) *guests.SQLiteRepository {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "guests.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return guests.NewSQLiteRepository(db)
}

// Event creates a published event for owner.
func Event(t testing.TB, s guests.Store, owner uuid.UUID, slug string) *models.Event {
	t.Helper()
	e := &models.Event{
		OwnerID:   owner,
		Slug:      slug,
		Title:     "Majlis " + slug,
		EventDate: time.Date(2026, 12, 12, 11, 0, 0, 0, time.UTC),
		Published: true,
	}
	require.NoError(t, s.CreateEvent(context.Background(), e))
	return e
}

// Guest creates a guest of eventID.
func Guest(t testing.TB, s guests.Store, eventID uuid.UUID, name string, status models.RSVPStatus, pax int) *models.Guest {
	t.Helper()
	g := &models.Guest{
		ID:      uuid.New(),
		EventID: eventID,
		Name:    name,
		Phone:   "+60123456789",
		Pax:     pax,
		Status:  status,
	}
	require.NoError(t, s.CreateGuest(context.Background(), g))
	return g
}
