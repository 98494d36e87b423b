// Package service implements the booking and session concurrency core:
// the reservation manager, the session engine, the waiting queue
// controller and the pricing policy.  Services depend on small store
// interfaces satisfied by the repository layer, so the engine can be
// exercised against in-memory fakes in tests.
package service

import (
	"context"
	"time"

	"github.com/playora/lounge-reservation/internal/model"
)

// ActivityStore is the activity lookup surface the engine needs.
type ActivityStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Activity, error)
}

// UnitStore covers unit lookups and the occupancy switch.  Only the
// session engine flips the status through this interface.
type UnitStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Unit, error)
	FirstAvailable(ctx context.Context, activityID uint64) (*model.Unit, error)
	UpdateStatus(ctx context.Context, id uint64, status string) error
}

// ReservationStore covers reservation persistence and the overlap
// conflict query that backs the double-booking invariant.
type ReservationStore interface {
	Create(ctx context.Context, rec *model.Reservation) error
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	CountOverlapping(ctx context.Context, unitID uint64, start, end time.Time) (int, error)
	UpdateStatus(ctx context.Context, id uint64, status string) error
	Confirm(ctx context.Context, id uint64, paymentRef string, at time.Time) error
	Reassign(ctx context.Context, id, unitID uint64, start, end time.Time) error
	ListHoldExpired(ctx context.Context, now time.Time) ([]*model.Reservation, error)
	ListConfirmedWithoutSession(ctx context.Context) ([]*model.Reservation, error)
}

// SessionStore covers session persistence, the overlap conflict query
// and the sweep queries used by the reconciliation scheduler.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id uint64) (*model.Session, error)
	Update(ctx context.Context, s *model.Session) error
	GetLiveByReservation(ctx context.Context, reservationID uint64) (*model.Session, error)
	CountOverlapping(ctx context.Context, unitID uint64, start, end time.Time) (int, error)
	ListStartDue(ctx context.Context, now time.Time) ([]*model.Session, error)
	ListEndDue(ctx context.Context, now time.Time) ([]*model.Session, error)
	ListNonTerminal(ctx context.Context) ([]*model.Session, error)
	ListEndingSoon(ctx context.Context, now time.Time, horizon time.Duration) ([]*model.Session, error)
	AppendPause(ctx context.Context, p *model.SessionPause) error
	ListPauses(ctx context.Context, sessionID uint64) ([]*model.SessionPause, error)
}

// QueueStore covers the FIFO waiting queue.
type QueueStore interface {
	Append(ctx context.Context, e *model.WaitingQueueEntry) error
	GetByID(ctx context.Context, id uint64) (*model.WaitingQueueEntry, error)
	FindWaitingByReservation(ctx context.Context, reservationID uint64) (*model.WaitingQueueEntry, error)
	ListWaiting(ctx context.Context, activityID uint64) ([]*model.WaitingQueueEntry, error)
	MarkAssigned(ctx context.Context, id, sessionID uint64, at time.Time) error
	Delete(ctx context.Context, id uint64) error
	Compact(ctx context.Context, activityID uint64) error
}

// Locker is the distributed lock contract.  Acquire returns false on
// contention without error; callers must not retry internally.
type Locker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Publisher is the notification gateway consumed by the engine.
// Delivery is best-effort; callers ignore the returned error.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}
