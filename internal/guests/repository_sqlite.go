package guests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/aura-invite/backend/internal/credential"
	"github.com/aura-invite/backend/internal/models"
)

// sqliteTimeLayout stores UTC timestamps as fixed-width ISO-8601 text so that
// lexical order matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	sqliteGuestColumns = `g.id, g.event_id, g.name, g.phone, g.pax, g.status, g.checked_in_at, g.created_at`
	sqliteEventColumns = `id, user_id, slug, title, event_date, published, created_at`
	sqliteOwnedEvents  = `SELECT id FROM events WHERE user_id = ?`
)

// SQLiteRepository is the SQLite guest store used by single-venue deployments.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a guest store over an opened SQLite handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// CreateEvent inserts an event. A zero ID is replaced by a fresh one.
func (r *SQLiteRepository) CreateEvent(ctx context.Context, e *models.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = r.now().UTC()
	const q = `INSERT INTO events (id, user_id, slug, title, event_date, published, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, e.ID.String(), e.OwnerID.String(), e.Slug, e.Title,
		formatTime(e.EventDate), e.Published, formatTime(e.CreatedAt))
	if isSQLiteUnique(err, "events.slug") {
		return ErrSlugTaken
	}
	return err
}

// GetEvent returns an event owned by ownerID.
func (r *SQLiteRepository) GetEvent(ctx context.Context, ownerID, eventID uuid.UUID) (*models.Event, error) {
	q := `SELECT ` + sqliteEventColumns + ` FROM events WHERE id = ? AND user_id = ?`
	return scanSQLiteEvent(r.db.QueryRowContext(ctx, q, eventID.String(), ownerID.String()))
}

// GetPublishedEvent returns a published event by slug or id.
func (r *SQLiteRepository) GetPublishedEvent(ctx context.Context, slugOrID string) (*models.Event, error) {
	slugOrID = normalizeSlug(slugOrID)
	q := `SELECT ` + sqliteEventColumns + ` FROM events WHERE published = 1 AND (slug = ? OR id = ?)`
	return scanSQLiteEvent(r.db.QueryRowContext(ctx, q, slugOrID, slugOrID))
}

// ListEventsByOwner returns the owner's events, newest first.
func (r *SQLiteRepository) ListEventsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteEventColumns+` FROM events WHERE user_id = ? ORDER BY event_date DESC`, ownerID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		e, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// CreateGuest inserts a guest row. The caller supplies the id.
func (r *SQLiteRepository) CreateGuest(ctx context.Context, g *models.Guest) error {
	if err := validateNewGuest(g); err != nil {
		return err
	}
	g.CreatedAt = r.now().UTC()
	g.CheckedInAt = nil
	const q = `INSERT INTO guests (id, event_id, name, phone, pax, status, checked_in, checked_in_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, NULL, ?)`
	_, err := r.db.ExecContext(ctx, q, g.ID.String(), g.EventID.String(), g.Name, g.Phone, g.Pax, string(g.Status), formatTime(g.CreatedAt))
	if err != nil {
		if isSQLiteUnique(err, codeIndexName) {
			return ErrCodeCollision
		}
		return err
	}
	return nil
}

// GetGuest returns a guest by id regardless of owner.
func (r *SQLiteRepository) GetGuest(ctx context.Context, guestID uuid.UUID) (*models.Guest, error) {
	q := `SELECT ` + sqliteGuestColumns + ` FROM guests g WHERE g.id = ?`
	return scanSQLiteGuest(r.db.QueryRowContext(ctx, q, guestID.String()))
}

// GetGuestForOwner returns a guest whose event belongs to ownerID.
func (r *SQLiteRepository) GetGuestForOwner(ctx context.Context, ownerID, guestID uuid.UUID) (*models.Guest, error) {
	q := `SELECT ` + sqliteGuestColumns + ` FROM guests g JOIN events e ON e.id = g.event_id
		WHERE g.id = ? AND e.user_id = ?`
	return scanSQLiteGuest(r.db.QueryRowContext(ctx, q, guestID.String(), ownerID.String()))
}

// ListGuestsByOwner returns the owner's guests, optionally for one event, newest first.
func (r *SQLiteRepository) ListGuestsByOwner(ctx context.Context, ownerID uuid.UUID, eventID *uuid.UUID) ([]models.Guest, error) {
	q := `SELECT ` + sqliteGuestColumns + ` FROM guests g JOIN events e ON e.id = g.event_id WHERE e.user_id = ?`
	args := []any{ownerID.String()}
	if eventID != nil {
		q += ` AND g.event_id = ?`
		args = append(args, eventID.String())
	}
	rows, err := r.db.QueryContext(ctx, q+` ORDER BY g.created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Guest
	for rows.Next() {
		g, err := scanSQLiteGuest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *g)
	}
	return list, rows.Err()
}

// ResolveCode maps a decoded check-in code to the owner's guest id.
func (r *SQLiteRepository) ResolveCode(ctx context.Context, ownerID uuid.UUID, key credential.Key, eventID *uuid.UUID) (uuid.UUID, error) {
	q := `SELECT g.id FROM guests g JOIN events e ON e.id = g.event_id
		WHERE e.user_id = ? AND substr(g.id, 1, 8) = ?`
	args := []any{ownerID.String(), key.String()}
	if eventID != nil {
		q += ` AND g.event_id = ?`
		args = append(args, eventID.String())
	}
	rows, err := r.db.QueryContext(ctx, q+` LIMIT 2`, args...)
	if err != nil {
		return uuid.Nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return uuid.Nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return uuid.Nil, err
	}
	return pickResolved(ids)
}

// UpdateGuest applies an administrative edit. A checked-in guest must stay confirmed.
func (r *SQLiteRepository) UpdateGuest(ctx context.Context, ownerID uuid.UUID, g *models.Guest) error {
	if err := validateGuest(g); err != nil {
		return err
	}
	q := `UPDATE guests SET name = ?, phone = ?, pax = ?, status = ?
		WHERE id = ? AND event_id IN (` + sqliteOwnedEvents + `)
		  AND (checked_in = 0 OR ? = 'confirmed')`
	status := string(g.Status)
	res, err := r.db.ExecContext(ctx, q, g.Name, g.Phone, g.Pax, status, g.ID.String(), ownerID.String(), status)
	if err != nil {
		return err
	}
	stored, err := r.GetGuestForOwner(ctx, ownerID, g.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIneligible
	}
	*g = *stored
	return nil
}

// DeleteGuest removes a guest of the owner.
func (r *SQLiteRepository) DeleteGuest(ctx context.Context, ownerID, guestID uuid.UUID) error {
	q := `DELETE FROM guests WHERE id = ? AND event_id IN (` + sqliteOwnedEvents + `)`
	return expectOneRow(r.db.ExecContext(ctx, q, guestID.String(), ownerID.String()))
}

// MarkCheckedIn flips checked_in with one conditional UPDATE ... RETURNING.
func (r *SQLiteRepository) MarkCheckedIn(ctx context.Context, ownerID, guestID uuid.UUID, at time.Time) (time.Time, error) {
	q := `UPDATE guests SET checked_in = 1, checked_in_at = ?
		WHERE id = ? AND checked_in = 0 AND status = 'confirmed'
		  AND event_id IN (` + sqliteOwnedEvents + `)
		RETURNING checked_in_at`
	for attempt := 0; attempt < maxCheckInAttempts; attempt++ {
		var raw string
		err := r.db.QueryRowContext(ctx, q, formatTime(at), guestID.String(), ownerID.String()).Scan(&raw)
		if err == nil {
			return parseTime(raw)
		}
		if !errors.Is(err, sql.ErrNoRows) {
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
func (r *SQLiteRepository) UndoCheckIn(ctx context.Context, ownerID, guestID uuid.UUID) error {
	q := `UPDATE guests SET checked_in = 0, checked_in_at = NULL
		WHERE id = ? AND event_id IN (` + sqliteOwnedEvents + `)`
	return expectOneRow(r.db.ExecContext(ctx, q, guestID.String(), ownerID.String()))
}

// Summarize aggregates the owner's guest rows in one query.
func (r *SQLiteRepository) Summarize(ctx context.Context, ownerID uuid.UUID, eventID *uuid.UUID) (models.Summary, error) {
	q := `SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN g.status = 'confirmed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN g.status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN g.status = 'declined' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(g.checked_in), 0),
			COALESCE(SUM(g.pax), 0),
			COALESCE(SUM(CASE WHEN g.checked_in = 1 THEN g.pax ELSE 0 END), 0)
		FROM guests g JOIN events e ON e.id = g.event_id
		WHERE e.user_id = ?`
	args := []any{ownerID.String()}
	if eventID != nil {
		q += ` AND g.event_id = ?`
		args = append(args, eventID.String())
	}
	var s models.Summary
	err := r.db.QueryRowContext(ctx, q, args...).
		Scan(&s.Total, &s.Confirmed, &s.Pending, &s.Declined, &s.CheckedIn, &s.TotalPax, &s.CheckedInPax)
	if err != nil {
		return models.Summary{}, fmt.Errorf("summarize guests: %w", err)
	}
	return s, nil
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEvent(row sqliteScanner) (*models.Event, error) {
	var (
		e                   models.Event
		eventDate, created string
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Slug, &e.Title, &eventDate, &e.Published, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var err error
	if e.EventDate, err = parseTime(eventDate); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanSQLiteGuest(row sqliteScanner) (*models.Guest, error) {
	var (
		g         models.Guest
		status    string
		checkedIn sql.NullString
		created   string
	)
	if err := row.Scan(&g.ID, &g.EventID, &g.Name, &g.Phone, &g.Pax, &status, &checkedIn, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	g.Status = models.RSVPStatus(status)
	if checkedIn.Valid {
		at, err := parseTime(checkedIn.String)
		if err != nil {
			return nil, err
		}
		g.CheckedInAt = &at
	}
	var err error
	if g.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &g, nil
}

func expectOneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// isSQLiteUnique reports a UNIQUE violation whose message names target
// (an index name or table.column).
func isSQLiteUnique(err error, target string) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE {
		return strings.Contains(err.Error(), target)
	}
	return false
}

var _ Store = (*SQLiteRepository)(nil)
