package model

import "time"

// Waiting queue entry statuses.
const (
	QueueWaiting  = "WAITING"
	QueueAssigned = "ASSIGNED"
)

// WaitingQueueEntry is a position claim for a reservation awaiting a
// free unit within an activity.  Positions are 1-based, dense and FIFO
// by join order; every removal re-compacts the remaining positions.
//
// Fields:
//  ID            – primary key identifier.
//  ReservationID – reservation waiting for a unit.
//  ActivityID    – activity whose units are being waited on.
//  Position      – 1-based dense position within the activity's queue.
//  Status        – WAITING or ASSIGNED.
//  AssignedAt    – when a unit was assigned (nullable).
//  SessionID     – session created when the entry was assigned (nullable).
type WaitingQueueEntry struct {
	ID            uint64     `json:"id"`
	ReservationID uint64     `json:"reservation_id"`
	ActivityID    uint64     `json:"activity_id"`
	Position      uint32     `json:"position"`
	Status        string     `json:"status"`
	AssignedAt    *time.Time `json:"assigned_at,omitempty"`
	SessionID     *uint64    `json:"session_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
