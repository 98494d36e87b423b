// Package scheduler runs the background reconciliation loops that keep
// the booking state honest: auto-starting due sessions, force-ending
// overdue ones, expiring stale payment holds, repairing confirmed
// reservations that lost their session, promoting the waiting queue and
// broadcasting countdown timers.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/playora/lounge-reservation/internal/config"
	"github.com/playora/lounge-reservation/internal/model"
	"github.com/playora/lounge-reservation/internal/notify"
	"github.com/playora/lounge-reservation/internal/service"
)

// tickLocker is the lock surface the scheduler needs.  ReleaseOwned is
// used instead of a plain delete so a slow tick that outlived its lock
// TTL cannot release a lock another replica has since taken.
type tickLocker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseOwned(ctx context.Context, key, owner string) (bool, error)
}

// Scheduler owns the sweep and timer loops.  Each tick takes a named
// lock before running, so multiple replicas can run the scheduler and
// exactly one performs each pass.
type Scheduler struct {
	sessions       service.SessionStore
	reservations   service.ReservationStore
	queue          service.QueueStore
	sessionSvc     *service.SessionService
	reservationSvc *service.ReservationService
	queueSvc       *service.QueueService
	locker         tickLocker
	events         service.Publisher
	cfg            config.BookingConfig
	now            func() time.Time
}

// New builds a scheduler.  sessionSvc and reservationSvc perform the
// actual transitions so sweep behavior stays identical to the API paths.
func New(sessions service.SessionStore, reservations service.ReservationStore, queue service.QueueStore,
	sessionSvc *service.SessionService, reservationSvc *service.ReservationService, queueSvc *service.QueueService,
	locker tickLocker, events service.Publisher, cfg config.BookingConfig) *Scheduler {
	return &Scheduler{
		sessions:       sessions,
		reservations:   reservations,
		queue:          queue,
		sessionSvc:     sessionSvc,
		reservationSvc: reservationSvc,
		queueSvc:       queueSvc,
		locker:         locker,
		events:         events,
		cfg:            cfg,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the sweep and timer loops and returns immediately.
// Both loops stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, s.cfg.SweepInterval, func(ctx context.Context) {
		s.withTickLock(ctx, "sweep", s.cfg.SweepInterval, func(ctx context.Context) {
			s.sweepStartDue(ctx)
			s.sweepEndDue(ctx)
			s.sweepHoldExpired(ctx)
			s.sweepConfirmedOrphans(ctx)
			s.sweepEndingSoon(ctx)
		})
	})
	go s.loop(ctx, s.cfg.TimerInterval, func(ctx context.Context) {
		s.withTickLock(ctx, "timer", s.cfg.TimerInterval, s.broadcastTimers)
	})
	log.Printf("[SCHEDULER] started: sweep every %s, timers every %s", s.cfg.SweepInterval, s.cfg.TimerInterval)
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, tick func(context.Context)) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick(ctx)
		}
	}
}

// withTickLock runs fn only if this replica wins the tick's lock.  The
// TTL equals the tick period, so a crashed holder delays the tick by at
// most one period.
func (s *Scheduler) withTickLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context)) {
	key := "tick:" + name
	owner := uuid.NewString()
	ok, err := s.locker.Acquire(ctx, key, owner, ttl)
	if err != nil {
		log.Printf("[SCHEDULER] acquire %s: %v", key, err)
		return
	}
	if !ok {
		return
	}
	defer func() { _, _ = s.locker.ReleaseOwned(ctx, key, owner) }()
	fn(ctx)
}

// sweepStartDue activates scheduled sessions whose start window has
// arrived.  Sessions past the grace window are left alone here; the
// end-due sweep completes them once their scheduled end passes.
func (s *Scheduler) sweepStartDue(ctx context.Context) {
	now := s.now()
	due, err := s.sessions.ListStartDue(ctx, now)
	if err != nil {
		log.Printf("[SCHEDULER] list start-due: %v", err)
		return
	}
	for _, sess := range due {
		if !sess.DueToStart(now, s.cfg.StartGrace) {
			continue
		}
		if _, err := s.sessionSvc.Start(ctx, sess.ID); err != nil {
			log.Printf("[SCHEDULER] auto-start session %d: %v", sess.ID, err)
		}
	}
}

// sweepEndDue completes sessions whose scheduled end has passed,
// including scheduled sessions nobody ever started.
func (s *Scheduler) sweepEndDue(ctx context.Context) {
	now := s.now()
	due, err := s.sessions.ListEndDue(ctx, now)
	if err != nil {
		log.Printf("[SCHEDULER] list end-due: %v", err)
		return
	}
	for _, sess := range due {
		if _, err := s.sessionSvc.End(ctx, sess.ID); err != nil {
			log.Printf("[SCHEDULER] auto-end session %d: %v", sess.ID, err)
		}
	}
}

// sweepHoldExpired expires reservations whose payment hold deadline has
// passed, freeing their slots and dropping any waiting-queue entries.
func (s *Scheduler) sweepHoldExpired(ctx context.Context) {
	now := s.now()
	stale, err := s.reservations.ListHoldExpired(ctx, now)
	if err != nil {
		log.Printf("[SCHEDULER] list hold-expired: %v", err)
		return
	}
	for _, rec := range stale {
		if err := s.reservations.UpdateStatus(ctx, rec.ID, model.ReservationExpired); err != nil {
			log.Printf("[SCHEDULER] expire reservation %d: %v", rec.ID, err)
			continue
		}
		if entry, err := s.queue.FindWaitingByReservation(ctx, rec.ID); err == nil {
			_ = s.queue.Delete(ctx, entry.ID)
			_ = s.queue.Compact(ctx, entry.ActivityID)
		}
		log.Printf("[SCHEDULER] reservation %d expired, unit %d freed", rec.ID, rec.UnitID)
		s.queueSvc.ProcessQueue(ctx, rec.ActivityID)
	}
}

// sweepConfirmedOrphans re-creates the session for any confirmed
// reservation that has none, closing the crash window between the
// payment write and the session write.
func (s *Scheduler) sweepConfirmedOrphans(ctx context.Context) {
	s.reservationSvc.RepairConfirmed(ctx)
}

// sweepEndingSoon publishes the one-shot ending-soon notice for active
// sessions approaching their scheduled end.  The warned-at stamp keeps
// the notice from re-firing on the next tick; extending the session
// clears the stamp and re-arms it for the new end.
func (s *Scheduler) sweepEndingSoon(ctx context.Context) {
	now := s.now()
	soon, err := s.sessions.ListEndingSoon(ctx, now, s.cfg.EndingSoonIn)
	if err != nil {
		log.Printf("[SCHEDULER] list ending-soon: %v", err)
		return
	}
	for _, sess := range soon {
		sess.EndingSoonWarnedAt = &now
		if err := s.sessions.Update(ctx, sess); err != nil {
			log.Printf("[SCHEDULER] stamp ending-soon on session %d: %v", sess.ID, err)
			continue
		}
		_ = s.events.Publish(ctx, notify.TopicSessionEndingSoon, notify.SessionEvent{
			SessionID:     sess.ID,
			ReservationID: sess.ReservationID,
			ActivityID:    sess.ActivityID,
			UnitID:        sess.UnitID,
			Status:        sess.Status,
			EndsAt:        sess.EndsAt,
		})
	}
}

// broadcastTimers publishes a countdown event for every non-terminal
// session so clients render elapsed/remaining without polling.
func (s *Scheduler) broadcastTimers(ctx context.Context) {
	now := s.now()
	live, err := s.sessions.ListNonTerminal(ctx)
	if err != nil {
		log.Printf("[SCHEDULER] list non-terminal: %v", err)
		return
	}
	for _, sess := range live {
		_ = s.events.Publish(ctx, notify.TopicSessionTimer, notify.TimerEvent{
			SessionID:    sess.ID,
			UnitID:       sess.UnitID,
			Status:       sess.Status,
			ElapsedSec:   int64(sess.ElapsedAt(now) / time.Second),
			RemainingSec: int64(sess.RemainingAt(now) / time.Second),
		})
	}
}
