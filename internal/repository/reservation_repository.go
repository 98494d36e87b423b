package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/playora/lounge-reservation/internal/model"
)

// ReservationRepo provides data access to the reservations table.  All
// timestamps are stored and compared in UTC.  Creation writes happen
// inside the booking lock, so no SQL transaction spans the conflict
// check; consistency comes from lock, read, decide, write, unlock.
// Confirmation is a compare-and-set on the status column, and the
// orphan-repair sweep covers the window between the payment write and
// the session write.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the database.
func NewReservationRepo(db *sql.DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

const reservationCols = `id, activity_id, unit_id, starts_at, ends_at, duration_min, amount_cents,
	status, customer_name, customer_phone, hold_expires_at, payment_ref, confirmed_at, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	var (
		rec         model.Reservation
		paymentRef  sql.NullString
		confirmedAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.ActivityID, &rec.UnitID, &rec.StartsAt, &rec.EndsAt,
		&rec.DurationMin, &rec.AmountCents, &rec.Status, &rec.CustomerName, &rec.CustomerPhone,
		&rec.HoldExpiresAt, &paymentRef, &confirmedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if paymentRef.Valid {
		rec.PaymentRef = &paymentRef.String
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		rec.ConfirmedAt = &t
	}
	return &rec, nil
}

// Create inserts a reservation and populates its ID and timestamps.
func (r *ReservationRepo) Create(ctx context.Context, rec *model.Reservation) error {
	const q = `INSERT INTO reservations
	           (activity_id, unit_id, starts_at, ends_at, duration_min, amount_cents, status,
	            customer_name, customer_phone, hold_expires_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		rec.ActivityID, rec.UnitID, rec.StartsAt.UTC(), rec.EndsAt.UTC(), rec.DurationMin,
		rec.AmountCents, rec.Status, rec.CustomerName, rec.CustomerPhone, rec.HoldExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = uint64(id)
	stored, err := r.GetByID(ctx, rec.ID)
	if err != nil {
		return err
	}
	*rec = *stored
	return nil
}

// GetByID fetches a reservation, returning ErrReservationNotFound when
// no row exists.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	rec, err := scanReservation(r.db.QueryRowContext(ctx,
		"SELECT "+reservationCols+" FROM reservations WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	return rec, err
}

// CountOverlapping returns how many blocking reservations overlap the
// given window on the unit.  A reservation blocks while it is in-flight
// or already confirmed.  Two windows overlap when each starts before the
// other ends.
func (r *ReservationRepo) CountOverlapping(ctx context.Context, unitID uint64, start, end time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM reservations
	           WHERE unit_id = ?
	             AND status IN (?, ?, ?)
	             AND starts_at < ? AND ends_at > ?`
	var n int
	err := r.db.QueryRowContext(ctx, q, unitID,
		model.ReservationPendingPayment, model.ReservationPendingApproval, model.ReservationPaymentConfirmed,
		end.UTC(), start.UTC()).Scan(&n)
	return n, err
}

// UpdateStatus moves a reservation to the given status.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE reservations SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Confirm stamps payment on a reservation: status, payment reference and
// confirmation time in one write.  The status predicate makes the write
// a compare-and-set: of two racing confirms exactly one matches the
// in-flight row, the other gets ErrInvalidState.
func (r *ReservationRepo) Confirm(ctx context.Context, id uint64, paymentRef string, at time.Time) error {
	const q = `UPDATE reservations
	           SET status = ?, payment_ref = ?, confirmed_at = ?
	           WHERE id = ? AND status IN (?, ?)`
	res, err := r.db.ExecContext(ctx, q, model.ReservationPaymentConfirmed, paymentRef, at.UTC(), id,
		model.ReservationPendingPayment, model.ReservationPendingApproval)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: reservation is not confirmable", ErrInvalidState)
	}
	return nil
}

// ListConfirmedWithoutSession returns confirmed reservations for which
// no session row exists.  A crash between the payment write and the
// session write leaves such a row; the orphan-repair sweep re-creates
// the session from it.
func (r *ReservationRepo) ListConfirmedWithoutSession(ctx context.Context) ([]*model.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations
	           WHERE status = ?
	             AND NOT EXISTS (SELECT 1 FROM sessions WHERE sessions.reservation_id = reservations.id)`
	rows, err := r.db.QueryContext(ctx, q, model.ReservationPaymentConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Reservation
	for rows.Next() {
		rec, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Reassign moves a reservation onto another unit and window.  Queue
// promotion uses it when the originally requested unit is still busy but
// a sibling unit has freed up.
func (r *ReservationRepo) Reassign(ctx context.Context, id, unitID uint64, start, end time.Time) error {
	const q = `UPDATE reservations SET unit_id = ?, starts_at = ?, ends_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, unitID, start.UTC(), end.UTC(), id)
	return err
}

// ListHoldExpired returns in-flight reservations whose hold deadline has
// passed.  The reservation-expiry sweep marks each of them EXPIRED.
func (r *ReservationRepo) ListHoldExpired(ctx context.Context, now time.Time) ([]*model.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations
	           WHERE status IN (?, ?) AND hold_expires_at <= ?`
	rows, err := r.db.QueryContext(ctx, q,
		model.ReservationPendingPayment, model.ReservationPendingApproval, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Reservation
	for rows.Next() {
		rec, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
