package model

import "time"

// Session statuses.  SCHEDULED is used when the booked window starts in
// the future; immediate bookings and walk-ins begin directly in ACTIVE.
// COMPLETED is terminal.
const (
	SessionScheduled = "SCHEDULED"
	SessionActive    = "ACTIVE"
	SessionPaused    = "PAUSED"
	SessionCompleted = "COMPLETED"
)

// Session payment states.  Challenge sessions stay UNSETTLED until a
// winner is decided and a receipt can be issued.
const (
	PaymentUnsettled = "UNSETTLED"
	PaymentSettled   = "SETTLED"
)

// Session is a timed, billable occupation of a unit.  At most one
// session in {SCHEDULED, ACTIVE, PAUSED} may exist per unit at any time.
// While paused, elapsed and remaining time are frozen; resuming shifts
// the scheduled end forward by the pause length so the customer is not
// charged for paused time.
//
// Fields:
//  ID                    – primary key identifier.
//  ReservationID         – originating reservation; nil for walk-ins.
//  ActivityID, UnitID    – what is occupied.
//  Status                – one of the Session* constants above.
//  StartsAt, EndsAt      – scheduled window; EndsAt moves on resume/extend.
//  ActualStart           – when the session actually went active (nullable).
//  ActualEnd             – when the session completed (nullable).
//  TotalPausedSec        – accumulated paused time across closed pauses.
//  CurrentPauseStartedAt – open pause start; present only while PAUSED.
//  BaseAmountCents       – price quoted at creation.
//  FinalAmountCents      – price after extensions and end-of-session billing.
//  PaymentStatus         – UNSETTLED or SETTLED.
//  CustomerName, CustomerPhone – customer identity carried from the reservation.
//  EndingSoonWarnedAt    – stamp preventing the ending-soon notice from
//                          re-firing on every reconciliation tick.
//  Challenge             – optional multi-party sub-record (JSON column).
type Session struct {
	ID                    uint64     `json:"id"`
	ReservationID         *uint64    `json:"reservation_id,omitempty"`
	ActivityID            uint64     `json:"activity_id"`
	UnitID                uint64     `json:"unit_id"`
	Status                string     `json:"status"`
	StartsAt              time.Time  `json:"starts_at"`
	EndsAt                time.Time  `json:"ends_at"`
	ActualStart           *time.Time `json:"actual_start,omitempty"`
	ActualEnd             *time.Time `json:"actual_end,omitempty"`
	TotalPausedSec        int64      `json:"total_paused_sec"`
	CurrentPauseStartedAt *time.Time `json:"current_pause_started_at,omitempty"`
	CurrentPauseReason    string     `json:"current_pause_reason,omitempty"`
	CurrentPauseActor     string     `json:"current_pause_actor,omitempty"`
	BaseAmountCents       uint32     `json:"base_amount_cents"`
	FinalAmountCents      uint32     `json:"final_amount_cents"`
	PaymentStatus         string     `json:"payment_status"`
	CustomerName          string     `json:"customer_name"`
	CustomerPhone         string     `json:"customer_phone"`
	EndingSoonWarnedAt    *time.Time `json:"ending_soon_warned_at,omitempty"`
	Challenge             *Challenge `json:"challenge,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// NonTerminal reports whether the session still occupies its unit.
func (s *Session) NonTerminal() bool {
	return s.Status == SessionScheduled || s.Status == SessionActive || s.Status == SessionPaused
}

// TotalPaused returns the accumulated paused time of all closed pauses.
func (s *Session) TotalPaused() time.Duration {
	return time.Duration(s.TotalPausedSec) * time.Second
}

// ElapsedAt returns the billable time consumed as of now.  While active
// it grows with the wall clock; while paused it is frozen at the instant
// the open pause began; before the actual start it is zero.  The result
// is never negative.
func (s *Session) ElapsedAt(now time.Time) time.Duration {
	if s.ActualStart == nil {
		return 0
	}
	ref := now
	if s.Status == SessionPaused && s.CurrentPauseStartedAt != nil {
		ref = *s.CurrentPauseStartedAt
	}
	if s.Status == SessionCompleted && s.ActualEnd != nil {
		ref = *s.ActualEnd
	}
	d := ref.Sub(*s.ActualStart) - s.TotalPaused()
	if d < 0 {
		return 0
	}
	return d
}

// RemainingAt returns the time left until the scheduled end.  While
// paused the value is frozen at the instant pausing began, because
// EndsAt only shifts forward when the session resumes.
func (s *Session) RemainingAt(now time.Time) time.Duration {
	ref := now
	if s.Status == SessionPaused && s.CurrentPauseStartedAt != nil {
		ref = *s.CurrentPauseStartedAt
	}
	d := s.EndsAt.Sub(ref)
	if d < 0 {
		return 0
	}
	return d
}

// DueToStart reports whether a scheduled session should be auto-started:
// now has entered [StartsAt, StartsAt+grace].
func (s *Session) DueToStart(now time.Time, grace time.Duration) bool {
	return s.Status == SessionScheduled &&
		!now.Before(s.StartsAt) && !now.After(s.StartsAt.Add(grace))
}

// DueToEnd reports whether the scheduled end has passed for a live session.
func (s *Session) DueToEnd(now time.Time) bool {
	return (s.Status == SessionActive || s.Status == SessionPaused) && !now.Before(s.EndsAt)
}

// SessionPause is one closed pause interval in a session's history.
//
// Fields:
//  ID         – primary key identifier.
//  SessionID  – session the pause belongs to.
//  StartedAt  – when the pause began.
//  EndedAt    – when the session resumed.
//  DurationSec – EndedAt − StartedAt in whole seconds.
//  Reason     – optional free-text reason given at pause time.
//  Actor      – who paused (staff identifier or "customer").
type SessionPause struct {
	ID          uint64    `json:"id"`
	SessionID   uint64    `json:"session_id"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	DurationSec int64     `json:"duration_sec"`
	Reason      string    `json:"reason,omitempty"`
	Actor       string    `json:"actor"`
	CreatedAt   time.Time `json:"created_at"`
}
