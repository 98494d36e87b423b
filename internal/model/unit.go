package model

import "time"

// Unit statuses.  The status column is the single authoritative switch for
// occupancy: it is flipped to OCCUPIED when a session takes the unit and
// back to AVAILABLE when the session completes.  MAINTENANCE is set by
// staff and removes the unit from booking entirely.
const (
	UnitAvailable   = "AVAILABLE"
	UnitOccupied    = "OCCUPIED"
	UnitMaintenance = "MAINTENANCE"
)

// Unit is a single bookable physical resource: one game station, one
// table, one track lane.  Units are created at setup time and persist
// indefinitely.
//
// Fields:
//  ID         – primary key identifier.
//  ActivityID – parent activity this unit belongs to.
//  Name       – label shown to staff and customers (e.g. "Station 3").
//  Status     – one of the Unit* constants above.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Unit struct {
	ID         uint64    `json:"id"`
	ActivityID uint64    `json:"activity_id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Bookable reports whether new reservations may target this unit.  An
// occupied unit is still bookable for a future window; only maintenance
// removes it from booking.
func (u *Unit) Bookable() bool {
	return u.Status != UnitMaintenance
}
