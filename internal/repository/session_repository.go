package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/playora/lounge-reservation/internal/model"
)

// SessionRepo provides data access to the sessions and session_pauses
// tables.  The challenge sub-record is stored as a JSON column so the
// roster and vote state travel with the session row.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the database.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

const sessionCols = `id, reservation_id, activity_id, unit_id, status, starts_at, ends_at,
	actual_start, actual_end, total_paused_sec, current_pause_started_at, current_pause_reason, current_pause_actor,
	base_amount_cents, final_amount_cents, payment_status, customer_name, customer_phone,
	ending_soon_warned_at, challenge, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*model.Session, error) {
	var (
		s             model.Session
		reservationID sql.NullInt64
		actualStart   sql.NullTime
		actualEnd     sql.NullTime
		pauseStart    sql.NullTime
		pauseReason   sql.NullString
		pauseActor    sql.NullString
		warnedAt      sql.NullTime
		challenge     sql.NullString
	)
	err := row.Scan(&s.ID, &reservationID, &s.ActivityID, &s.UnitID, &s.Status, &s.StartsAt, &s.EndsAt,
		&actualStart, &actualEnd, &s.TotalPausedSec, &pauseStart, &pauseReason, &pauseActor,
		&s.BaseAmountCents, &s.FinalAmountCents, &s.PaymentStatus, &s.CustomerName, &s.CustomerPhone,
		&warnedAt, &challenge, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if reservationID.Valid {
		v := uint64(reservationID.Int64)
		s.ReservationID = &v
	}
	if actualStart.Valid {
		t := actualStart.Time
		s.ActualStart = &t
	}
	if actualEnd.Valid {
		t := actualEnd.Time
		s.ActualEnd = &t
	}
	if pauseStart.Valid {
		t := pauseStart.Time
		s.CurrentPauseStartedAt = &t
	}
	if pauseReason.Valid {
		s.CurrentPauseReason = pauseReason.String
	}
	if pauseActor.Valid {
		s.CurrentPauseActor = pauseActor.String
	}
	if warnedAt.Valid {
		t := warnedAt.Time
		s.EndingSoonWarnedAt = &t
	}
	if challenge.Valid && challenge.String != "" {
		var ch model.Challenge
		if err := json.Unmarshal([]byte(challenge.String), &ch); err != nil {
			return nil, err
		}
		s.Challenge = &ch
	}
	return &s, nil
}

func challengeJSON(ch *model.Challenge) (any, error) {
	if ch == nil {
		return nil, nil
	}
	b, err := json.Marshal(ch)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Create inserts a session and populates its ID and timestamps.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	ch, err := challengeJSON(s.Challenge)
	if err != nil {
		return err
	}
	const q = `INSERT INTO sessions
	           (reservation_id, activity_id, unit_id, status, starts_at, ends_at, actual_start,
	            total_paused_sec, base_amount_cents, final_amount_cents, payment_status,
	            customer_name, customer_phone, challenge)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var reservationID any
	if s.ReservationID != nil {
		reservationID = *s.ReservationID
	}
	var actualStart any
	if s.ActualStart != nil {
		actualStart = s.ActualStart.UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		reservationID, s.ActivityID, s.UnitID, s.Status, s.StartsAt.UTC(), s.EndsAt.UTC(), actualStart,
		s.TotalPausedSec, s.BaseAmountCents, s.FinalAmountCents, s.PaymentStatus,
		s.CustomerName, s.CustomerPhone, ch)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	stored, err := r.GetByID(ctx, s.ID)
	if err != nil {
		return err
	}
	*s = *stored
	return nil
}

// GetByID fetches a session, returning ErrSessionNotFound when no row
// exists.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		"SELECT "+sessionCols+" FROM sessions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// Update rewrites every mutable field of a session in one statement.
// The session engine mutates the in-memory record under its state rules
// and persists it atomically here.
func (r *SessionRepo) Update(ctx context.Context, s *model.Session) error {
	ch, err := challengeJSON(s.Challenge)
	if err != nil {
		return err
	}
	var actualStart, actualEnd, pauseStart, pauseReason, pauseActor, warnedAt any
	if s.ActualStart != nil {
		actualStart = s.ActualStart.UTC()
	}
	if s.ActualEnd != nil {
		actualEnd = s.ActualEnd.UTC()
	}
	if s.CurrentPauseStartedAt != nil {
		pauseStart = s.CurrentPauseStartedAt.UTC()
	}
	if s.CurrentPauseReason != "" {
		pauseReason = s.CurrentPauseReason
	}
	if s.CurrentPauseActor != "" {
		pauseActor = s.CurrentPauseActor
	}
	if s.EndingSoonWarnedAt != nil {
		warnedAt = s.EndingSoonWarnedAt.UTC()
	}
	const q = `UPDATE sessions
	           SET status = ?, ends_at = ?, actual_start = ?, actual_end = ?,
	               total_paused_sec = ?, current_pause_started_at = ?, current_pause_reason = ?,
	               current_pause_actor = ?,
	               final_amount_cents = ?, payment_status = ?, ending_soon_warned_at = ?, challenge = ?
	           WHERE id = ?`
	_, err = r.db.ExecContext(ctx, q, s.Status, s.EndsAt.UTC(), actualStart, actualEnd,
		s.TotalPausedSec, pauseStart, pauseReason, pauseActor,
		s.FinalAmountCents, s.PaymentStatus, warnedAt, ch, s.ID)
	return err
}

// GetLiveByReservation returns the non-terminal session created from a
// reservation, or ErrSessionNotFound.  Confirmation idempotency rests on
// this lookup.
func (r *SessionRepo) GetLiveByReservation(ctx context.Context, reservationID uint64) (*model.Session, error) {
	const q = `SELECT ` + sessionCols + ` FROM sessions
	           WHERE reservation_id = ? AND status IN (?, ?, ?) LIMIT 1`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, reservationID,
		model.SessionScheduled, model.SessionActive, model.SessionPaused))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// CountOverlapping returns how many non-terminal sessions overlap the
// given window on the unit.
func (r *SessionRepo) CountOverlapping(ctx context.Context, unitID uint64, start, end time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM sessions
	           WHERE unit_id = ?
	             AND status IN (?, ?, ?)
	             AND starts_at < ? AND ends_at > ?`
	var n int
	err := r.db.QueryRowContext(ctx, q, unitID,
		model.SessionScheduled, model.SessionActive, model.SessionPaused,
		end.UTC(), start.UTC()).Scan(&n)
	return n, err
}

func (r *SessionRepo) list(ctx context.Context, q string, args ...any) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListStartDue returns scheduled sessions whose window start has been
// reached.  The start-due sweep applies the grace window on top.
func (r *SessionRepo) ListStartDue(ctx context.Context, now time.Time) ([]*model.Session, error) {
	const q = `SELECT ` + sessionCols + ` FROM sessions
	           WHERE status = ? AND starts_at <= ?`
	return r.list(ctx, q, model.SessionScheduled, now.UTC())
}

// ListEndDue returns non-terminal sessions whose scheduled end has
// passed.  Scheduled sessions are included so an unclaimed booking is
// closed out once its window is over.
func (r *SessionRepo) ListEndDue(ctx context.Context, now time.Time) ([]*model.Session, error) {
	const q = `SELECT ` + sessionCols + ` FROM sessions
	           WHERE status IN (?, ?, ?) AND ends_at <= ?`
	return r.list(ctx, q, model.SessionActive, model.SessionPaused, model.SessionScheduled, now.UTC())
}

// ListNonTerminal returns every session still occupying a unit; the
// timer-broadcast tick publishes elapsed/remaining for each.
func (r *SessionRepo) ListNonTerminal(ctx context.Context) ([]*model.Session, error) {
	const q = `SELECT ` + sessionCols + ` FROM sessions WHERE status IN (?, ?, ?)`
	return r.list(ctx, q, model.SessionScheduled, model.SessionActive, model.SessionPaused)
}

// ListEndingSoon returns active sessions inside the warning horizon that
// have not been warned yet.  The warned-at stamp keeps the notice
// one-shot across ticks.
func (r *SessionRepo) ListEndingSoon(ctx context.Context, now time.Time, horizon time.Duration) ([]*model.Session, error) {
	const q = `SELECT ` + sessionCols + ` FROM sessions
	           WHERE status = ? AND ends_at > ? AND ends_at <= ?
	             AND ending_soon_warned_at IS NULL`
	return r.list(ctx, q, model.SessionActive, now.UTC(), now.UTC().Add(horizon))
}

// AppendPause records one closed pause interval in the history table.
func (r *SessionRepo) AppendPause(ctx context.Context, p *model.SessionPause) error {
	const q = `INSERT INTO session_pauses (session_id, started_at, ended_at, duration_sec, reason, actor)
	           VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		p.SessionID, p.StartedAt.UTC(), p.EndedAt.UTC(), p.DurationSec, p.Reason, p.Actor)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// ListPauses returns the pause history of a session in chronological
// order.
func (r *SessionRepo) ListPauses(ctx context.Context, sessionID uint64) ([]*model.SessionPause, error) {
	const q = `SELECT id, session_id, started_at, ended_at, duration_sec, reason, actor, created_at
	           FROM session_pauses WHERE session_id = ? ORDER BY started_at`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.SessionPause
	for rows.Next() {
		var p model.SessionPause
		if err := rows.Scan(&p.ID, &p.SessionID, &p.StartedAt, &p.EndedAt,
			&p.DurationSec, &p.Reason, &p.Actor, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
