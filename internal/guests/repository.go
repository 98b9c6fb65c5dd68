package guests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-invite/backend/internal/credential"
	"github.com/aura-invite/backend/internal/models"
)

const (
	pgUniqueViolation = "23505"
	pgCodeIndex       = codeIndexName
	pgSlugConstraint  = "events_slug_key"

	pgGuestColumns = `g.id, g.event_id, g.name, g.phone, g.pax, g.status, g.checked_in_at, g.created_at`
	pgEventColumns = `id, user_id, slug, title, event_date, published, created_at`
	pgOwnedEvents  = `SELECT id FROM events WHERE user_id = `
)

// PostgresRepository is the PostgreSQL guest store.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a guest store over a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreateEvent inserts an event. A zero ID is replaced by a fresh one.
func (r *PostgresRepository) CreateEvent(ctx context.Context, e *models.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	const q = `INSERT INTO events (id, user_id, slug, title, event_date, published)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q, e.ID, e.OwnerID, e.Slug, e.Title, e.EventDate.UTC(), e.Published).
		Scan(&e.CreatedAt)
	if isPgUnique(err, pgSlugConstraint) {
		return ErrSlugTaken
	}
	return err
}

// GetEvent returns an event owned by ownerID.
func (r *PostgresRepository) GetEvent(ctx context.Context, ownerID, eventID uuid.UUID) (*models.Event, error) {
	q := `SELECT ` + pgEventColumns + ` FROM events WHERE id = $1 AND user_id = $2`
	return scanPgEvent(r.pool.QueryRow(ctx, q, eventID, ownerID))
}

// GetPublishedEvent returns a published event by slug or id.
func (r *PostgresRepository) GetPublishedEvent(ctx context.Context, slugOrID string) (*models.Event, error) {
	slugOrID = normalizeSlug(slugOrID)
	q := `SELECT ` + pgEventColumns + ` FROM events WHERE published AND (slug = $1 OR id::text = $1)`
	return scanPgEvent(r.pool.QueryRow(ctx, q, slugOrID))
}

// ListEventsByOwner returns the owner's events, newest first.
func (r *PostgresRepository) ListEventsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pgEventColumns+` FROM events WHERE user_id = $1 ORDER BY event_date DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Slug, &e.Title, &e.EventDate, &e.Published, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// CreateGuest inserts a guest row. The caller supplies the id.
func (r *PostgresRepository) CreateGuest(ctx context.Context, g *models.Guest) error {
	if err := validateNewGuest(g); err != nil {
		return err
	}
	const q = `INSERT INTO guests (id, event_id, name, phone, pax, status, checked_in, checked_in_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, NULL)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q, g.ID, g.EventID, g.Name, g.Phone, g.Pax, string(g.Status)).Scan(&g.CreatedAt)
	if err != nil {
		if isPgUnique(err, pgCodeIndex) {
			return ErrCodeCollision
		}
		return err
	}
	g.CheckedInAt = nil
	return nil
}

// GetGuest returns a guest by id regardless of owner.
func (r *PostgresRepository) GetGuest(ctx context.Context, guestID uuid.UUID) (*models.Guest, error) {
	q := `SELECT ` + pgGuestColumns + ` FROM guests g WHERE g.id = $1`
	var g models.Guest
	err := r.pool.QueryRow(ctx, q, guestID).Scan(&g.ID, &g.EventID, &g.Name, &g.Phone, &g.Pax, &g.Status, &g.CheckedInAt, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// GetGuestForOwner returns a guest whose event belongs to ownerID.
func (r *PostgresRepository) GetGuestForOwner(ctx context.Context, ownerID, guestID uuid.UUID) (*models.Guest, error) {
	q := `SELECT ` + pgGuestColumns + ` FROM guests g JOIN events e ON e.id = g.event_id
		WHERE g.id = $1 AND e.user_id = $2`
	var g models.Guest
	err := r.pool.QueryRow(ctx, q, guestID, ownerID).Scan(&g.ID, &g.EventID, &g.Name, &g.Phone, &g.Pax, &g.Status, &g.CheckedInAt, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// ListGuestsByOwner returns the owner's guests, optionally for one event, newest first.
func (r *PostgresRepository) ListGuestsByOwner(ctx context.Context, ownerID uuid.UUID, eventID *uuid.UUID) ([]models.Guest, error) {
	q := `SELECT ` + pgGuestColumns + ` FROM guests g JOIN events e ON e.id = g.event_id
		WHERE e.user_id = $1 AND ($2::uuid IS NULL OR g.event_id = $2)
		ORDER BY g.created_at DESC`
	rows, err := r.pool.Query(ctx, q, ownerID, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Guest
	for rows.Next() {
		var g models.Guest
		if err := rows.Scan(&g.ID, &g.EventID, &g.Name, &g.Phone, &g.Pax, &g.Status, &g.CheckedInAt, &g.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

// ResolveCode maps a decoded check-in code to the owner's guest id.
func (r *PostgresRepository) ResolveCode(ctx context.Context, ownerID uuid.UUID, key credential.Key, eventID *uuid.UUID) (uuid.UUID, error) {
	const q = `SELECT g.id FROM guests g JOIN events e ON e.id = g.event_id
		WHERE e.user_id = $1 AND left(g.id::text, 8) = $2 AND ($3::uuid IS NULL OR g.event_id = $3)
		LIMIT 2`
	rows, err := r.pool.Query(ctx, q, ownerID, key.String(), eventID)
	if err != nil {
		return uuid.Nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return uuid.Nil, err
	}
	return pickResolved(ids)
}

// UpdateGuest applies an administrative edit. A checked-in guest must stay confirmed.
func (r *PostgresRepository) UpdateGuest(ctx context.Context, ownerID uuid.UUID, g *models.Guest) error {
	if err := validateGuest(g); err != nil {
		return err
	}
	q := `UPDATE guests SET name = $1, phone = $2, pax = $3, status = $4
		WHERE id = $5 AND event_id IN (` + pgOwnedEvents + `$6)
		  AND (NOT checked_in OR $4 = 'confirmed')
		RETURNING event_id, checked_in_at, created_at`
	err := r.pool.QueryRow(ctx, q, g.Name, g.Phone, g.Pax, string(g.Status), g.ID, ownerID).
		Scan(&g.EventID, &g.CheckedInAt, &g.CreatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if _, getErr := r.GetGuestForOwner(ctx, ownerID, g.ID); getErr != nil {
		return getErr
	}
	return ErrIneligible
}

// DeleteGuest removes a guest of the owner.
func (r *PostgresRepository) DeleteGuest(ctx context.Context, ownerID, guestID uuid.UUID) error {
	q := `DELETE FROM guests WHERE id = $1 AND event_id IN (` + pgOwnedEvents + `$2)`
	tag, err := r.pool.Exec(ctx, q, guestID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCheckedIn flips checked_in with one conditional UPDATE. Under concurrent calls
// for the same guest Postgres re-evaluates the WHERE clause after the row lock is
// released, so exactly one caller gets a row back.
func (r *PostgresRepository) MarkCheckedIn(ctx context.Context, ownerID, guestID uuid.UUID, at time.Time) (time.Time, error) {
	q := `UPDATE guests SET checked_in = TRUE, checked_in_at = $1
		WHERE id = $2 AND checked_in = FALSE AND status = 'confirmed'
		  AND event_id IN (` + pgOwnedEvents + `$3)
		RETURNING checked_in_at`
	for attempt := 0; attempt < maxCheckInAttempts; attempt++ {
		var stored time.Time
		err := r.pool.QueryRow(ctx, q, at.UTC(), guestID, ownerID).Scan(&stored)
		if err == nil {
			return stored.UTC(), nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, err
		}
		g, err := r.GetGuestForOwner(ctx, ownerID, guestID)
		if err != nil {
			return time.Time{}, err
		}
		if err := classifyFailedCheckIn(g); err != nil {
			return time.Time{}, err
		}
	}
	return time.Time{}, errCheckInRaced
}

// UndoCheckIn clears an admission.
func (r *PostgresRepository) UndoCheckIn(ctx context.Context, ownerID, guestID uuid.UUID) error {
	q := `UPDATE guests SET checked_in = FALSE, checked_in_at = NULL
		WHERE id = $1 AND event_id IN (` + pgOwnedEvents + `$2)`
	tag, err := r.pool.Exec(ctx, q, guestID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Summarize aggregates the owner's guest rows in one query.
func (r *PostgresRepository) Summarize(ctx context.Context, ownerID uuid.UUID, eventID *uuid.UUID) (models.Summary, error) {
	const q = `SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN g.status = 'confirmed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN g.status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN g.status = 'declined' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN g.checked_in THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(g.pax), 0),
			COALESCE(SUM(CASE WHEN g.checked_in THEN g.pax ELSE 0 END), 0)
		FROM guests g JOIN events e ON e.id = g.event_id
		WHERE e.user_id = $1 AND ($2::uuid IS NULL OR g.event_id = $2)`
	var s models.Summary
	err := r.pool.QueryRow(ctx, q, ownerID, eventID).
		Scan(&s.Total, &s.Confirmed, &s.Pending, &s.Declined, &s.CheckedIn, &s.TotalPax, &s.CheckedInPax)
	if err != nil {
		return models.Summary{}, fmt.Errorf("summarize guests: %w", err)
	}
	return s, nil
}

func scanPgEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Slug, &e.Title, &e.EventDate, &e.Published, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func pickResolved(ids []uuid.UUID) (uuid.UUID, error) {
	switch len(ids) {
	case 0:
		return uuid.Nil, ErrNotFound
	case 1:
		return ids[0], nil
	}
	return uuid.Nil, ErrAmbiguousCode
}

func isPgUnique(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}

// normalizeSlug lowercases a public slug or id for lookups.
func normalizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var _ Store = (*PostgresRepository)(nil)
