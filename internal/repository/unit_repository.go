package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/playora/lounge-reservation/internal/model"
)

// UnitRepo encapsulates all database queries related to physical units.
// The unit status column is the authoritative occupancy switch; only the
// session engine and staff maintenance actions write it.
type UnitRepo struct {
	db *sql.DB
}

// NewUnitRepo constructs a UnitRepo with the provided DB handle.
func NewUnitRepo(db *sql.DB) *UnitRepo {
	return &UnitRepo{db: db}
}

const unitCols = "id, activity_id, name, status, created_at, updated_at"

func scanUnit(row interface{ Scan(...any) error }) (*model.Unit, error) {
	var u model.Unit
	err := row.Scan(&u.ID, &u.ActivityID, &u.Name, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new unit in AVAILABLE status.
func (r *UnitRepo) Create(ctx context.Context, u *model.Unit) error {
	if u.Status == "" {
		u.Status = model.UnitAvailable
	}
	const q = `INSERT INTO units (activity_id, name, status) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, u.ActivityID, u.Name, u.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	stored, err := r.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	*u = *stored
	return nil
}

// GetByID fetches a unit by its ID.  It returns ErrUnitNotFound when no
// row exists.
func (r *UnitRepo) GetByID(ctx context.Context, id uint64) (*model.Unit, error) {
	u, err := scanUnit(r.db.QueryRowContext(ctx,
		"SELECT "+unitCols+" FROM units WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnitNotFound
	}
	return u, err
}

// ListByActivity returns all units of an activity ordered by id.
func (r *UnitRepo) ListByActivity(ctx context.Context, activityID uint64) ([]*model.Unit, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+unitCols+" FROM units WHERE activity_id = ? ORDER BY id", activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// FirstAvailable returns the lowest-id AVAILABLE unit of an activity, or
// ErrUnitNotFound when every unit is occupied or in maintenance.  Queue
// promotion uses this to pick the unit for the next waiting entry.
func (r *UnitRepo) FirstAvailable(ctx context.Context, activityID uint64) (*model.Unit, error) {
	u, err := scanUnit(r.db.QueryRowContext(ctx,
		"SELECT "+unitCols+" FROM units WHERE activity_id = ? AND status = ? ORDER BY id LIMIT 1",
		activityID, model.UnitAvailable))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnitNotFound
	}
	return u, err
}

// UpdateStatus flips the occupancy switch of a unit.
func (r *UnitRepo) UpdateStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE units SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// either absent or already in the target status; disambiguate
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
