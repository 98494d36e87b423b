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

// bookingLockKey builds the lock key for a booking attempt.  Granularity
// is intentionally (unit, exact start instant): concurrent requests for
// the same start are serialized by the lock, while overlapping windows
// with different starts are caught by the conflict query that runs
// inside the locked section.
func bookingLockKey(unitID uint64, start time.Time) string {
	return fmt.Sprintf("booking:unit:%d:%d", unitID, start.Unix())
}

// promoteLockKey builds the lock key for queue promotion onto a unit.
// Promotion always starts "now", so the key must not embed the clock:
// two promoters straddling a second boundary still have to serialize.
func promoteLockKey(unitID uint64) string {
	return fmt.Sprintf("promote:unit:%d", unitID)
}

// ReservationService is the reservation manager: it creates holds under
// the booking lock and advances them through payment into sessions.
type ReservationService struct {
	activities   ActivityStore
	units        UnitStore
	reservations ReservationStore
	sessions     SessionStore
	queue        QueueStore
	locker       Locker
	events       Publisher
	pricing      *PricingPolicy
	cfg          config.BookingConfig
	now          func() time.Time
}

// NewReservationService wires the reservation manager.  All dependencies
// must be non-nil.
func NewReservationService(activities ActivityStore, units UnitStore, reservations ReservationStore,
	sessions SessionStore, queue QueueStore, locker Locker, events Publisher, cfg config.BookingConfig) *ReservationService {
	if activities == nil || units == nil || reservations == nil || sessions == nil ||
		queue == nil || locker == nil || events == nil {
		panic("nil dependency passed to NewReservationService")
	}
	return &ReservationService{
		activities:   activities,
		units:        units,
		reservations: reservations,
		sessions:     sessions,
		queue:        queue,
		locker:       locker,
		events:       events,
		pricing:      NewPricingPolicy(cfg),
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateReservationInput carries everything needed to hold a slot.
type CreateReservationInput struct {
	ActivityID    uint64    `json:"activity_id"`
	UnitID        uint64    `json:"unit_id"`
	StartsAt      time.Time `json:"starts_at"`
	DurationMin   uint32    `json:"duration_min"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
}

// CreateReservation validates the request, prices it, and commits the
// hold under the booking lock.  The sequence inside the lock is: query
// overlapping non-terminal sessions, query overlapping in-flight
// reservations, create the hold.  Every exit path releases the lock.
//
// Failure mapping: unknown or disabled activity/unit → not-found; unit
// in maintenance or duration below minimum → validation; lock contended
// or overlap detected → conflict.
func (s *ReservationService) CreateReservation(ctx context.Context, in CreateReservationInput) (*model.Reservation, error) {
	activity, err := s.activities.GetByID(ctx, in.ActivityID)
	if err != nil {
		return nil, err
	}
	if !activity.IsActive {
		return nil, repository.ErrActivityNotFound
	}
	if in.DurationMin < activity.MinDurationMin {
		return nil, fmt.Errorf("%w: duration %d min is below the %d min minimum",
			repository.ErrValidation, in.DurationMin, activity.MinDurationMin)
	}
	unit, err := s.units.GetByID(ctx, in.UnitID)
	if err != nil {
		return nil, err
	}
	if unit.ActivityID != activity.ID {
		return nil, repository.ErrUnitNotFound
	}
	if !unit.Bookable() {
		return nil, fmt.Errorf("%w: unit %d is under maintenance", repository.ErrValidation, unit.ID)
	}
	if in.StartsAt.IsZero() {
		return nil, fmt.Errorf("%w: starts_at is required", repository.ErrValidation)
	}

	start := in.StartsAt.UTC()
	end := start.Add(time.Duration(in.DurationMin) * time.Minute)
	amount, err := s.pricing.Quote(activity, start, in.DurationMin)
	if err != nil {
		return nil, err
	}

	// Single attempt, no retry: a held lock means another request is
	// committing the same slot right now.
	key := bookingLockKey(unit.ID, start)
	owner := uuid.NewString()
	acquired, err := s.locker.Acquire(ctx, key, owner, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire booking lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: slot contended", repository.ErrConflict)
	}
	defer func() { _ = s.locker.Release(ctx, key) }()

	sessionOverlaps, err := s.sessions.CountOverlapping(ctx, unit.ID, start, end)
	if err != nil {
		return nil, err
	}
	reservationOverlaps, err := s.reservations.CountOverlapping(ctx, unit.ID, start, end)
	if err != nil {
		return nil, err
	}
	if sessionOverlaps > 0 || reservationOverlaps > 0 {
		return nil, fmt.Errorf("%w: slot already booked", repository.ErrConflict)
	}

	now := s.now()
	rec := &model.Reservation{
		ActivityID:    activity.ID,
		UnitID:        unit.ID,
		StartsAt:      start,
		EndsAt:        end,
		DurationMin:   in.DurationMin,
		AmountCents:   amount,
		Status:        model.ReservationPendingPayment,
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		HoldExpiresAt: now.Add(s.cfg.HoldTTL),
	}
	if err := s.reservations.Create(ctx, rec); err != nil {
		return nil, err
	}

	_ = s.events.Publish(ctx, notify.TopicBookingCreated, notify.BookingCreatedEvent{
		ReservationID: rec.ID,
		ActivityID:    rec.ActivityID,
		UnitID:        rec.UnitID,
		StartsAt:      rec.StartsAt,
		EndsAt:        rec.EndsAt,
		AmountCents:   rec.AmountCents,
		HoldExpiresAt: rec.HoldExpiresAt,
		CustomerName:  rec.CustomerName,
	})
	return rec, nil
}

// ConfirmReservation records payment and hands the hold to the session
// engine.  Valid from PENDING_PAYMENT or PENDING_APPROVAL.  Calling it
// again on an already-confirmed reservation with a live session returns
// that session unchanged, so duplicate client retries are harmless.
func (s *ReservationService) ConfirmReservation(ctx context.Context, id uint64, paymentRef string) (*model.Session, error) {
	rec, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == model.ReservationPaymentConfirmed {
		sess, err := s.sessions.GetLiveByReservation(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: reservation already confirmed", repository.ErrInvalidState)
		}
		return sess, nil
	}
	if !rec.Confirmable() {
		return nil, fmt.Errorf("%w: cannot confirm a %s reservation", repository.ErrInvalidState, rec.Status)
	}
	now := s.now()
	if rec.HoldExpired(now) {
		return nil, fmt.Errorf("%w: hold deadline passed", repository.ErrInvalidState)
	}

	// The status predicate inside Confirm makes this write the decision
	// point: of two racing confirms exactly one lands, the loser re-reads
	// and hands back the winner's session.
	if err := s.reservations.Confirm(ctx, rec.ID, paymentRef, now); err != nil {
		if errors.Is(err, repository.ErrInvalidState) {
			if sess, liveErr := s.sessions.GetLiveByReservation(ctx, rec.ID); liveErr == nil {
				return sess, nil
			}
		}
		return nil, err
	}

	return s.materializeSession(ctx, rec, now)
}

// materializeSession turns a confirmed reservation into its session:
// immediate bookings go straight to ACTIVE, future windows wait in
// SCHEDULED for the start-due sweep.  The unit is marked occupied and
// any waiting-queue entry is linked to the new session.
func (s *ReservationService) materializeSession(ctx context.Context, rec *model.Reservation, now time.Time) (*model.Session, error) {
	status := model.SessionScheduled
	var actualStart *time.Time
	if !rec.StartsAt.After(now) {
		status = model.SessionActive
		actualStart = &now
	}
	resID := rec.ID
	sess := &model.Session{
		ReservationID:    &resID,
		ActivityID:       rec.ActivityID,
		UnitID:           rec.UnitID,
		Status:           status,
		StartsAt:         rec.StartsAt,
		EndsAt:           rec.EndsAt,
		ActualStart:      actualStart,
		BaseAmountCents:  rec.AmountCents,
		FinalAmountCents: rec.AmountCents,
		PaymentStatus:    model.PaymentSettled,
		CustomerName:     rec.CustomerName,
		CustomerPhone:    rec.CustomerPhone,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.units.UpdateStatus(ctx, rec.UnitID, model.UnitOccupied); err != nil {
		return nil, err
	}

	// Link the waiting-queue entry, if this reservation was queued.
	if entry, err := s.queue.FindWaitingByReservation(ctx, rec.ID); err == nil {
		_ = s.queue.MarkAssigned(ctx, entry.ID, sess.ID, now)
		_ = s.queue.Compact(ctx, entry.ActivityID)
	}

	_ = s.events.Publish(ctx, notify.TopicSessionStarted, notify.SessionEvent{
		SessionID:     sess.ID,
		ReservationID: sess.ReservationID,
		ActivityID:    sess.ActivityID,
		UnitID:        sess.UnitID,
		Status:        sess.Status,
		EndsAt:        sess.EndsAt,
	})
	_ = s.events.Publish(ctx, notify.TopicAvailabilityChanged, notify.AvailabilityEvent{
		UnitID:     sess.UnitID,
		ActivityID: sess.ActivityID,
		Status:     model.UnitOccupied,
	})
	return sess, nil
}

// RepairConfirmed re-creates the session for confirmed reservations
// that lost it, which happens when the process dies between the
// payment write and the session write.  The sweep calls it every tick;
// each repair is logged and failures do not stop the pass.
func (s *ReservationService) RepairConfirmed(ctx context.Context) {
	orphans, err := s.reservations.ListConfirmedWithoutSession(ctx)
	if err != nil {
		log.Printf("[RESERVATION] list confirmed orphans: %v", err)
		return
	}
	for _, rec := range orphans {
		if _, err := s.materializeSession(ctx, rec, s.now()); err != nil {
			log.Printf("[RESERVATION] repair confirmed reservation %d: %v", rec.ID, err)
			continue
		}
		log.Printf("[RESERVATION] restored session for confirmed reservation %d", rec.ID)
	}
}

// RejectReservation cancels an in-flight reservation, freeing its slot
// and removing any waiting-queue entry.
func (s *ReservationService) RejectReservation(ctx context.Context, id uint64) error {
	rec, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !rec.InFlight() {
		return fmt.Errorf("%w: cannot reject a %s reservation", repository.ErrInvalidState, rec.Status)
	}
	if err := s.reservations.UpdateStatus(ctx, rec.ID, model.ReservationCancelled); err != nil {
		return err
	}
	if entry, err := s.queue.FindWaitingByReservation(ctx, rec.ID); err == nil {
		_ = s.queue.Delete(ctx, entry.ID)
		_ = s.queue.Compact(ctx, entry.ActivityID)
	}
	return nil
}

// GetReservation returns a reservation by id.
func (s *ReservationService) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.reservations.GetByID(ctx, id)
}
