package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/playora/lounge-reservation/internal/config"
	"github.com/playora/lounge-reservation/internal/model"
	"github.com/playora/lounge-reservation/internal/notify"
	"github.com/playora/lounge-reservation/internal/repository"
)

// QueueService manages the per-activity FIFO waiting queue and promotes
// the head entry whenever a unit frees up.
type QueueService struct {
	activities   ActivityStore
	units        UnitStore
	reservations ReservationStore
	sessions     SessionStore
	queue        QueueStore
	locker       Locker
	events       Publisher
	cfg          config.BookingConfig
	now          func() time.Time
}

// NewQueueService wires the queue controller.
func NewQueueService(activities ActivityStore, units UnitStore, reservations ReservationStore,
	sessions SessionStore, queue QueueStore, locker Locker, events Publisher, cfg config.BookingConfig) *QueueService {
	if activities == nil || units == nil || reservations == nil || sessions == nil ||
		queue == nil || locker == nil || events == nil {
		panic("nil dependency passed to NewQueueService")
	}
	return &QueueService{
		activities:   activities,
		units:        units,
		reservations: reservations,
		sessions:     sessions,
		queue:        queue,
		locker:       locker,
		events:       events,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Join appends an in-flight reservation to the back of its activity's
// queue.  A reservation can hold at most one waiting entry.
func (s *QueueService) Join(ctx context.Context, reservationID uint64) (*model.WaitingQueueEntry, error) {
	rec, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !rec.InFlight() {
		return nil, fmt.Errorf("%w: only a pending reservation can wait", repository.ErrInvalidState)
	}
	if existing, err := s.queue.FindWaitingByReservation(ctx, rec.ID); err == nil {
		return existing, nil
	}
	entry := &model.WaitingQueueEntry{
		ReservationID: rec.ID,
		ActivityID:    rec.ActivityID,
		Status:        model.QueueWaiting,
	}
	if err := s.queue.Append(ctx, entry); err != nil {
		return nil, err
	}
	s.publishQueue(ctx, rec.ActivityID)
	return entry, nil
}

// Leave removes a waiting entry and re-compacts positions behind it.
func (s *QueueService) Leave(ctx context.Context, entryID uint64) error {
	entry, err := s.queue.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status != model.QueueWaiting {
		return fmt.Errorf("%w: entry already assigned", repository.ErrInvalidState)
	}
	if err := s.queue.Delete(ctx, entry.ID); err != nil {
		return err
	}
	if err := s.queue.Compact(ctx, entry.ActivityID); err != nil {
		return err
	}
	s.publishQueue(ctx, entry.ActivityID)
	return nil
}

// List returns the activity's waiting entries in position order.
func (s *QueueService) List(ctx context.Context, activityID uint64) ([]*model.WaitingQueueEntry, error) {
	return s.queue.ListWaiting(ctx, activityID)
}

// ProcessQueue promotes waiting reservations onto free units, head of
// the queue first, until either the queue or the free units run out.
// Promotion reassigns the reservation to the freed unit starting now,
// confirms it with desk settlement pending, and activates a session.
// The whole step is a no-op on an empty queue, so callers may invoke it
// after every session end and on every reconciliation tick.
func (s *QueueService) ProcessQueue(ctx context.Context, activityID uint64) {
	for {
		entries, err := s.queue.ListWaiting(ctx, activityID)
		if err != nil {
			log.Printf("[QUEUE] list waiting for activity %d: %v", activityID, err)
			return
		}
		if len(entries) == 0 {
			return
		}
		unit, err := s.units.FirstAvailable(ctx, activityID)
		if err != nil {
			if !isNotFound(err) {
				log.Printf("[QUEUE] first available unit for activity %d: %v", activityID, err)
			}
			return
		}

		entry := entries[0]
		promoted, err := s.promote(ctx, entry, unit)
		if err != nil {
			log.Printf("[QUEUE] promote entry %d onto unit %d: %v", entry.ID, unit.ID, err)
			return
		}
		if !promoted {
			// Stale entry was dropped; loop to try the next head.
			continue
		}
	}
}

// promote moves one waiting entry onto a free unit.  It returns
// (false, nil) when the entry was stale and removed, (true, nil) on a
// successful promotion, and a non-nil error when the caller should stop
// and let the next tick retry.
func (s *QueueService) promote(ctx context.Context, entry *model.WaitingQueueEntry, unit *model.Unit) (bool, error) {
	key := promoteLockKey(unit.ID)
	owner := uuid.NewString()
	acquired, err := s.locker.Acquire(ctx, key, owner, s.cfg.LockTTL)
	if err != nil {
		return false, fmt.Errorf("acquire promotion lock: %w", err)
	}
	if !acquired {
		return false, fmt.Errorf("%w: unit contended", repository.ErrConflict)
	}
	defer func() { _ = s.locker.Release(ctx, key) }()

	// Both reads happen under the lock: a concurrent promoter may have
	// assigned the entry or confirmed the reservation already.
	rec, err := s.reservations.GetByID(ctx, entry.ReservationID)
	if err != nil || !rec.InFlight() {
		if cur, curErr := s.queue.GetByID(ctx, entry.ID); curErr == nil && cur.Status == model.QueueWaiting {
			// The reservation expired or was cancelled while waiting.
			_ = s.queue.Delete(ctx, entry.ID)
			_ = s.queue.Compact(ctx, entry.ActivityID)
			s.publishQueue(ctx, entry.ActivityID)
		}
		return false, nil
	}

	now := s.now()
	start := now
	end := start.Add(time.Duration(rec.DurationMin) * time.Minute)

	overlaps, err := s.sessions.CountOverlapping(ctx, unit.ID, start, end)
	if err != nil {
		return false, err
	}
	if overlaps > 0 {
		return false, fmt.Errorf("%w: unit already in session", repository.ErrConflict)
	}

	if err := s.reservations.Reassign(ctx, rec.ID, unit.ID, start, end); err != nil {
		return false, err
	}
	if err := s.reservations.Confirm(ctx, rec.ID, "", now); err != nil {
		return false, err
	}

	resID := rec.ID
	sess := &model.Session{
		ReservationID:    &resID,
		ActivityID:       rec.ActivityID,
		UnitID:           unit.ID,
		Status:           model.SessionActive,
		StartsAt:         start,
		EndsAt:           end,
		ActualStart:      &now,
		BaseAmountCents:  rec.AmountCents,
		FinalAmountCents: rec.AmountCents,
		PaymentStatus:    model.PaymentUnsettled,
		CustomerName:     rec.CustomerName,
		CustomerPhone:    rec.CustomerPhone,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return false, err
	}
	if err := s.units.UpdateStatus(ctx, unit.ID, model.UnitOccupied); err != nil {
		return false, err
	}
	if err := s.queue.MarkAssigned(ctx, entry.ID, sess.ID, now); err != nil {
		return false, err
	}
	if err := s.queue.Compact(ctx, entry.ActivityID); err != nil {
		return false, err
	}

	s.publishQueue(ctx, entry.ActivityID)
	_ = s.events.Publish(ctx, notify.TopicSessionStarted, notify.SessionEvent{
		SessionID:     sess.ID,
		ReservationID: sess.ReservationID,
		ActivityID:    sess.ActivityID,
		UnitID:        sess.UnitID,
		Status:        sess.Status,
		EndsAt:        sess.EndsAt,
	})
	_ = s.events.Publish(ctx, notify.TopicAvailabilityChanged, notify.AvailabilityEvent{
		UnitID:     unit.ID,
		ActivityID: entry.ActivityID,
		Status:     model.UnitOccupied,
	})
	return true, nil
}

func (s *QueueService) publishQueue(ctx context.Context, activityID uint64) {
	entries, err := s.queue.ListWaiting(ctx, activityID)
	if err != nil {
		return
	}
	_ = s.events.Publish(ctx, notify.TopicQueueUpdated, notify.QueueUpdatedEvent{
		ActivityID: activityID,
		Waiting:    len(entries),
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrUnitNotFound) ||
		errors.Is(err, repository.ErrActivityNotFound) ||
		errors.Is(err, repository.ErrReservationNotFound) ||
		errors.Is(err, repository.ErrSessionNotFound) ||
		errors.Is(err, repository.ErrQueueEntryNotFound)
}
