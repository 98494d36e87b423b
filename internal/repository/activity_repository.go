package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/playora/lounge-reservation/internal/model"
)

// ActivityRepo encapsulates all database queries related to activities.
// It depends on a sql.DB connection pool configured at startup.
type ActivityRepo struct {
	db *sql.DB
}

// NewActivityRepo constructs an ActivityRepo with the provided DB handle.
func NewActivityRepo(db *sql.DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

const activityCols = "id, name, pricing_mode, rate_cents, block_minutes, min_duration_min, is_active, created_at, updated_at"

func scanActivity(row interface{ Scan(...any) error }) (*model.Activity, error) {
	var a model.Activity
	err := row.Scan(&a.ID, &a.Name, &a.PricingMode, &a.RateCents, &a.BlockMinutes,
		&a.MinDurationMin, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new activity.  On success the ID, CreatedAt and
// UpdatedAt fields are populated from the stored row.
func (r *ActivityRepo) Create(ctx context.Context, a *model.Activity) error {
	const q = `INSERT INTO activities (name, pricing_mode, rate_cents, block_minutes, min_duration_min, is_active)
	           VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, a.Name, a.PricingMode, a.RateCents, a.BlockMinutes, a.MinDurationMin, a.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	stored, err := r.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	*a = *stored
	return nil
}

// GetByID fetches an activity by its ID.  It returns ErrActivityNotFound
// when no row exists.
func (r *ActivityRepo) GetByID(ctx context.Context, id uint64) (*model.Activity, error) {
	a, err := scanActivity(r.db.QueryRowContext(ctx,
		"SELECT "+activityCols+" FROM activities WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActivityNotFound
	}
	return a, err
}

// List returns all activities ordered by id.  Disabled activities are
// included so staff can re-enable them.
func (r *ActivityRepo) List(ctx context.Context) ([]*model.Activity, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+activityCols+" FROM activities ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update rewrites the mutable policy fields of an activity.
func (r *ActivityRepo) Update(ctx context.Context, a *model.Activity) error {
	const q = `UPDATE activities
	           SET name = ?, pricing_mode = ?, rate_cents = ?, block_minutes = ?, min_duration_min = ?, is_active = ?
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, a.Name, a.PricingMode, a.RateCents, a.BlockMinutes, a.MinDurationMin, a.IsActive, a.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrActivityNotFound
	}
	return nil
}
