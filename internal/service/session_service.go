package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playora/lounge-reservation/internal/config"
	"github.com/playora/lounge-reservation/internal/model"
	"github.com/playora/lounge-reservation/internal/notify"
	"github.com/playora/lounge-reservation/internal/repository"
)

// SessionService is the session engine: it runs the timed state machine
// (scheduled, active, paused, completed), keeps pause accounting exact
// to the second, and settles the final bill when the session ends.
type SessionService struct {
	activities ActivityStore
	units      UnitStore
	sessions   SessionStore
	locker     Locker
	events     Publisher
	pricing    *PricingPolicy
	cfg        config.BookingConfig
	now        func() time.Time

	// onUnitFreed is invoked after a session completes and its unit is
	// available again; the queue controller hooks in here to promote
	// waiting reservations.
	onUnitFreed func(ctx context.Context, activityID uint64)
}

// NewSessionService wires the session engine.
func NewSessionService(activities ActivityStore, units UnitStore, sessions SessionStore,
	locker Locker, events Publisher, cfg config.BookingConfig) *SessionService {
	if activities == nil || units == nil || sessions == nil || locker == nil || events == nil {
		panic("nil dependency passed to NewSessionService")
	}
	return &SessionService{
		activities: activities,
		units:      units,
		sessions:   sessions,
		locker:     locker,
		events:     events,
		pricing:    NewPricingPolicy(cfg),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetUnitFreedHook registers the callback fired after End frees a unit.
func (s *SessionService) SetUnitFreedHook(fn func(ctx context.Context, activityID uint64)) {
	s.onUnitFreed = fn
}

// StartWalkInInput describes a staff-initiated session with no prior
// reservation; players and pricing are settled at the desk.
type StartWalkInInput struct {
	ActivityID    uint64                  `json:"activity_id"`
	UnitID        uint64                  `json:"unit_id"`
	DurationMin   uint32                  `json:"duration_min"`
	CustomerName  string                  `json:"customer_name"`
	CustomerPhone string                  `json:"customer_phone"`
	Players       []model.ChallengePlayer `json:"players,omitempty"`
}

// StartWalkIn activates a session immediately on the given unit.  It
// runs the same lock-then-conflict-check sequence as reservation
// creation, so a walk-in can never race a concurrent booking onto the
// same unit.  Providing two or more players makes it a challenge
// session: payment stays unsettled until a winner is decided.
func (s *SessionService) StartWalkIn(ctx context.Context, in StartWalkInInput) (*model.Session, error) {
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
	if unit.Status != model.UnitAvailable {
		return nil, fmt.Errorf("%w: unit %d is not available", repository.ErrConflict, unit.ID)
	}
	if len(in.Players) == 1 {
		return nil, fmt.Errorf("%w: a challenge needs at least two players", repository.ErrValidation)
	}

	now := s.now()
	end := now.Add(time.Duration(in.DurationMin) * time.Minute)
	amount, err := s.pricing.Quote(activity, now, in.DurationMin)
	if err != nil {
		return nil, err
	}

	key := bookingLockKey(unit.ID, now)
	owner := uuid.NewString()
	acquired, err := s.locker.Acquire(ctx, key, owner, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire booking lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: unit contended", repository.ErrConflict)
	}
	defer func() { _ = s.locker.Release(ctx, key) }()

	overlaps, err := s.sessions.CountOverlapping(ctx, unit.ID, now, end)
	if err != nil {
		return nil, err
	}
	if overlaps > 0 {
		return nil, fmt.Errorf("%w: unit already in session", repository.ErrConflict)
	}

	sess := &model.Session{
		ActivityID:       activity.ID,
		UnitID:           unit.ID,
		Status:           model.SessionActive,
		StartsAt:         now,
		EndsAt:           end,
		ActualStart:      &now,
		BaseAmountCents:  amount,
		FinalAmountCents: amount,
		PaymentStatus:    model.PaymentUnsettled,
		CustomerName:     in.CustomerName,
		CustomerPhone:    in.CustomerPhone,
	}
	if len(in.Players) >= 2 {
		sess.Challenge = &model.Challenge{Players: in.Players}
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.units.UpdateStatus(ctx, unit.ID, model.UnitOccupied); err != nil {
		return nil, err
	}

	s.publishSession(ctx, notify.TopicSessionStarted, sess)
	_ = s.events.Publish(ctx, notify.TopicAvailabilityChanged, notify.AvailabilityEvent{
		UnitID:     unit.ID,
		ActivityID: activity.ID,
		Status:     model.UnitOccupied,
	})
	return sess, nil
}

// Start transitions a scheduled session to active.  Used by the start
// sweep and by staff checking a customer in ahead of the sweep.
func (s *SessionService) Start(ctx context.Context, id uint64) (*model.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionScheduled {
		return nil, fmt.Errorf("%w: cannot start a %s session", repository.ErrInvalidState, sess.Status)
	}
	now := s.now()
	sess.Status = model.SessionActive
	sess.ActualStart = &now
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.publishSession(ctx, notify.TopicSessionStarted, sess)
	return sess, nil
}

// Pause freezes an active session.  Elapsed and remaining time stop
// moving until Resume; the open pause is recorded on the session itself
// and only enters the pause history once it closes.
func (s *SessionService) Pause(ctx context.Context, id uint64, reason, actor string) (*model.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionActive {
		return nil, fmt.Errorf("%w: cannot pause a %s session", repository.ErrInvalidState, sess.Status)
	}
	now := s.now()
	sess.Status = model.SessionPaused
	sess.CurrentPauseStartedAt = &now
	sess.CurrentPauseReason = reason
	sess.CurrentPauseActor = actor
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.publishSession(ctx, notify.TopicSessionPaused, sess)
	return sess, nil
}

// Resume closes the open pause: its length is added to the accumulated
// pause total and to the scheduled end, so the customer keeps the full
// remaining time they paid for.  The history row credits the actor who
// paused.
func (s *SessionService) Resume(ctx context.Context, id uint64) (*model.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionPaused || sess.CurrentPauseStartedAt == nil {
		return nil, fmt.Errorf("%w: cannot resume a %s session", repository.ErrInvalidState, sess.Status)
	}
	now := s.now()
	started := *sess.CurrentPauseStartedAt
	paused := now.Sub(started)
	if paused < 0 {
		paused = 0
	}
	pausedSec := int64(paused / time.Second)

	if err := s.sessions.AppendPause(ctx, &model.SessionPause{
		SessionID:   sess.ID,
		StartedAt:   started,
		EndedAt:     now,
		DurationSec: pausedSec,
		Reason:      sess.CurrentPauseReason,
		Actor:       sess.CurrentPauseActor,
	}); err != nil {
		return nil, err
	}

	sess.Status = model.SessionActive
	sess.TotalPausedSec += pausedSec
	sess.EndsAt = sess.EndsAt.Add(time.Duration(pausedSec) * time.Second)
	sess.CurrentPauseStartedAt = nil
	sess.CurrentPauseReason = ""
	sess.CurrentPauseActor = ""
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.publishSession(ctx, notify.TopicSessionResumed, sess)
	return sess, nil
}

// Extend lengthens an active session by additionalMin minutes.  The
// extension is priced at the rate in effect at the old scheduled end, so
// extending into peak hours costs peak rates.  A paused session must be
// resumed first.
func (s *SessionService) Extend(ctx context.Context, id uint64, additionalMin uint32) (*model.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.SessionPaused {
		return nil, fmt.Errorf("%w: resume the session before extending", repository.ErrInvalidState)
	}
	if sess.Status != model.SessionActive {
		return nil, fmt.Errorf("%w: cannot extend a %s session", repository.ErrInvalidState, sess.Status)
	}
	if additionalMin == 0 {
		return nil, fmt.Errorf("%w: extension must be positive", repository.ErrValidation)
	}
	activity, err := s.activities.GetByID(ctx, sess.ActivityID)
	if err != nil {
		return nil, err
	}
	extra, err := s.pricing.Quote(activity, sess.EndsAt, additionalMin)
	if err != nil {
		return nil, err
	}

	sess.EndsAt = sess.EndsAt.Add(time.Duration(additionalMin) * time.Minute)
	sess.FinalAmountCents += extra
	// A fresh extension re-arms the ending-soon notice for the new end.
	sess.EndingSoonWarnedAt = nil
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.publishSession(ctx, notify.TopicSessionExtended, sess)
	return sess, nil
}

// End completes a session from any non-terminal state, bills the actual
// consumed time and frees the unit.  An open pause is closed into the
// history without charging for it.  Ending a SCHEDULED session that
// never started bills nothing.
func (s *SessionService) End(ctx context.Context, id uint64) (*model.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.NonTerminal() {
		return nil, fmt.Errorf("%w: session already completed", repository.ErrInvalidState)
	}
	now := s.now()

	if sess.Status == model.SessionPaused && sess.CurrentPauseStartedAt != nil {
		started := *sess.CurrentPauseStartedAt
		paused := now.Sub(started)
		if paused < 0 {
			paused = 0
		}
		pausedSec := int64(paused / time.Second)
		if err := s.sessions.AppendPause(ctx, &model.SessionPause{
			SessionID:   sess.ID,
			StartedAt:   started,
			EndedAt:     now,
			DurationSec: pausedSec,
			Reason:      sess.CurrentPauseReason,
			Actor:       sess.CurrentPauseActor,
		}); err != nil {
			return nil, err
		}
		sess.TotalPausedSec += pausedSec
		sess.CurrentPauseStartedAt = nil
		sess.CurrentPauseReason = ""
		sess.CurrentPauseActor = ""
	}

	if sess.ActualStart != nil {
		activity, err := s.activities.GetByID(ctx, sess.ActivityID)
		if err != nil {
			return nil, err
		}
		billable := now.Sub(*sess.ActualStart) - sess.TotalPaused()
		minutes := BillableMinutes(billable)
		if minutes > 0 {
			final, err := s.pricing.Quote(activity, *sess.ActualStart, minutes)
			if err != nil {
				return nil, err
			}
			sess.FinalAmountCents = final
		} else {
			sess.FinalAmountCents = 0
		}
	} else {
		sess.FinalAmountCents = 0
	}

	sess.Status = model.SessionCompleted
	sess.ActualEnd = &now
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.units.UpdateStatus(ctx, sess.UnitID, model.UnitAvailable); err != nil {
		return nil, err
	}

	s.publishSession(ctx, notify.TopicSessionEnded, sess)
	_ = s.events.Publish(ctx, notify.TopicAvailabilityChanged, notify.AvailabilityEvent{
		UnitID:     sess.UnitID,
		ActivityID: sess.ActivityID,
		Status:     model.UnitAvailable,
	})
	if s.onUnitFreed != nil {
		s.onUnitFreed(ctx, sess.ActivityID)
	}
	return sess, nil
}

// VoteWinner records one player's vote in a challenge session.  The
// winner is fixed as soon as a strict majority of the roster agrees;
// later votes cannot change a decided outcome.
func (s *SessionService) VoteWinner(ctx context.Context, id uint64, voterID, candidateID string) (*model.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ch := sess.Challenge
	if ch == nil {
		return nil, fmt.Errorf("%w: not a challenge session", repository.ErrInvalidState)
	}
	if ch.Decided {
		return nil, fmt.Errorf("%w: winner already decided", repository.ErrInvalidState)
	}
	if !ch.HasPlayer(voterID) || !ch.HasPlayer(candidateID) {
		return nil, fmt.Errorf("%w: unknown player", repository.ErrValidation)
	}
	if ch.Votes == nil {
		ch.Votes = make(map[string]string, len(ch.Players))
	}
	ch.Votes[voterID] = candidateID
	if winner := ch.MajorityWinner(); winner != "" {
		ch.WinnerID = winner
		ch.Decided = true
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// OverrideWinner lets staff settle a deadlocked vote directly.
func (s *SessionService) OverrideWinner(ctx context.Context, id uint64, winnerID string) (*model.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ch := sess.Challenge
	if ch == nil {
		return nil, fmt.Errorf("%w: not a challenge session", repository.ErrInvalidState)
	}
	if !ch.HasPlayer(winnerID) {
		return nil, fmt.Errorf("%w: unknown player", repository.ErrValidation)
	}
	ch.WinnerID = winnerID
	ch.StaffOverride = true
	ch.Decided = true
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Receipt is the settlement summary issued after a session completes.
type Receipt struct {
	SessionID        uint64     `json:"session_id"`
	ActivityID       uint64     `json:"activity_id"`
	UnitID           uint64     `json:"unit_id"`
	BilledMinutes    uint32     `json:"billed_minutes"`
	TotalPausedSec   int64      `json:"total_paused_sec"`
	FinalAmountCents uint32     `json:"final_amount_cents"`
	PayerID          string     `json:"payer_id,omitempty"`
	PayerName        string     `json:"payer_name,omitempty"`
	ActualStart      *time.Time `json:"actual_start,omitempty"`
	ActualEnd        *time.Time `json:"actual_end,omitempty"`
}

// IssueReceipt settles a completed session.  Challenge sessions are
// gated on a decided winner: the receipt names the loser-pays party.
func (s *SessionService) IssueReceipt(ctx context.Context, id uint64) (*Receipt, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionCompleted {
		return nil, fmt.Errorf("%w: session has not completed", repository.ErrInvalidState)
	}
	r := &Receipt{
		SessionID:        sess.ID,
		ActivityID:       sess.ActivityID,
		UnitID:           sess.UnitID,
		TotalPausedSec:   sess.TotalPausedSec,
		FinalAmountCents: sess.FinalAmountCents,
		ActualStart:      sess.ActualStart,
		ActualEnd:        sess.ActualEnd,
	}
	if sess.ActualStart != nil && sess.ActualEnd != nil {
		r.BilledMinutes = BillableMinutes(sess.ActualEnd.Sub(*sess.ActualStart) - sess.TotalPaused())
	}
	if ch := sess.Challenge; ch != nil {
		if !ch.Decided {
			return nil, fmt.Errorf("%w: challenge winner not decided", repository.ErrInvalidState)
		}
		r.PayerID = ch.WinnerID
		for _, p := range ch.Players {
			if p.ID == ch.WinnerID {
				r.PayerName = p.Name
			}
		}
	}
	if sess.PaymentStatus != model.PaymentSettled {
		sess.PaymentStatus = model.PaymentSettled
		if err := s.sessions.Update(ctx, sess); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// GetSession returns a session by id.
func (s *SessionService) GetSession(ctx context.Context, id uint64) (*model.Session, error) {
	return s.sessions.GetByID(ctx, id)
}

// ListPauses returns a session's closed pause history.
func (s *SessionService) ListPauses(ctx context.Context, sessionID uint64) ([]*model.SessionPause, error) {
	return s.sessions.ListPauses(ctx, sessionID)
}

func (s *SessionService) publishSession(ctx context.Context, topic string, sess *model.Session) {
	_ = s.events.Publish(ctx, topic, notify.SessionEvent{
		SessionID:        sess.ID,
		ReservationID:    sess.ReservationID,
		ActivityID:       sess.ActivityID,
		UnitID:           sess.UnitID,
		Status:           sess.Status,
		EndsAt:           sess.EndsAt,
		FinalAmountCents: sess.FinalAmountCents,
	})
}
