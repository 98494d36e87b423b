package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/playora/lounge-reservation/internal/model"
)

// WaitingQueueRepo provides data access to the waiting_queue table.
// Positions within one activity's WAITING set are dense and 1-based;
// Compact re-numbers them after any removal or assignment.
type WaitingQueueRepo struct {
	db *sql.DB
}

// NewWaitingQueueRepo returns a WaitingQueueRepo bound to the database.
func NewWaitingQueueRepo(db *sql.DB) *WaitingQueueRepo {
	return &WaitingQueueRepo{db: db}
}

const queueCols = "id, reservation_id, activity_id, position, status, assigned_at, session_id, created_at"

func scanQueueEntry(row interface{ Scan(...any) error }) (*model.WaitingQueueEntry, error) {
	var (
		e          model.WaitingQueueEntry
		assignedAt sql.NullTime
		sessionID  sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.ReservationID, &e.ActivityID, &e.Position, &e.Status,
		&assignedAt, &sessionID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		e.AssignedAt = &t
	}
	if sessionID.Valid {
		v := uint64(sessionID.Int64)
		e.SessionID = &v
	}
	return &e, nil
}

// Append adds a WAITING entry at lastPosition+1 for the activity.
func (r *WaitingQueueRepo) Append(ctx context.Context, e *model.WaitingQueueEntry) error {
	const qPos = `SELECT COALESCE(MAX(position), 0) FROM waiting_queue
	              WHERE activity_id = ? AND status = ?`
	var last uint32
	if err := r.db.QueryRowContext(ctx, qPos, e.ActivityID, model.QueueWaiting).Scan(&last); err != nil {
		return err
	}
	e.Position = last + 1
	e.Status = model.QueueWaiting
	const q = `INSERT INTO waiting_queue (reservation_id, activity_id, position, status)
	           VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.ReservationID, e.ActivityID, e.Position, e.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// GetByID fetches an entry, returning ErrQueueEntryNotFound when no row
// exists.
func (r *WaitingQueueRepo) GetByID(ctx context.Context, id uint64) (*model.WaitingQueueEntry, error) {
	e, err := scanQueueEntry(r.db.QueryRowContext(ctx,
		"SELECT "+queueCols+" FROM waiting_queue WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQueueEntryNotFound
	}
	return e, err
}

// FindWaitingByReservation returns the WAITING entry for a reservation,
// or ErrQueueEntryNotFound.  Confirmation uses it to link the created
// session to the queue.
func (r *WaitingQueueRepo) FindWaitingByReservation(ctx context.Context, reservationID uint64) (*model.WaitingQueueEntry, error) {
	const q = "SELECT " + queueCols + " FROM waiting_queue WHERE reservation_id = ? AND status = ? LIMIT 1"
	e, err := scanQueueEntry(r.db.QueryRowContext(ctx, q, reservationID, model.QueueWaiting))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQueueEntryNotFound
	}
	return e, err
}

// ListWaiting returns an activity's WAITING entries in position order.
func (r *WaitingQueueRepo) ListWaiting(ctx context.Context, activityID uint64) ([]*model.WaitingQueueEntry, error) {
	const q = `SELECT ` + queueCols + ` FROM waiting_queue
	           WHERE activity_id = ? AND status = ? ORDER BY position`
	rows, err := r.db.QueryContext(ctx, q, activityID, model.QueueWaiting)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.WaitingQueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkAssigned flips an entry to ASSIGNED and links the session created
// for it.
func (r *WaitingQueueRepo) MarkAssigned(ctx context.Context, id, sessionID uint64, at time.Time) error {
	const q = `UPDATE waiting_queue SET status = ?, session_id = ?, assigned_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, model.QueueAssigned, sessionID, at.UTC(), id)
	return err
}

// Delete removes an entry.  Callers must Compact afterwards to keep
// positions dense.
func (r *WaitingQueueRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM waiting_queue WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQueueEntryNotFound
	}
	return nil
}

// Compact renumbers an activity's WAITING entries to 1..N in the
// current position order.  Renumbering is idempotent, so concurrent
// compactions converge on the same dense layout.
func (r *WaitingQueueRepo) Compact(ctx context.Context, activityID uint64) error {
	entries, err := r.ListWaiting(ctx, activityID)
	if err != nil {
		return err
	}
	for i, e := range entries {
		want := uint32(i + 1)
		if e.Position == want {
			continue
		}
		if _, err := r.db.ExecContext(ctx,
			"UPDATE waiting_queue SET position = ? WHERE id = ?", want, e.ID); err != nil {
			return err
		}
	}
	return nil
}
