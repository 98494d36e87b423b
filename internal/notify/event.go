// Package notify publishes domain events to RabbitMQ and hosts the
// background consumer that mirrors them into a local log file.  Delivery
// is best-effort: the booking and session core never depends on a
// publish succeeding.
package notify

import (
	"encoding/json"
	"time"
)

// Topics carried in the event envelope.  Consumers filter on these.
const (
	TopicBookingCreated      = "booking.created"
	TopicSessionStarted      = "session.started"
	TopicSessionPaused       = "session.paused"
	TopicSessionResumed      = "session.resumed"
	TopicSessionExtended     = "session.extended"
	TopicSessionEnded        = "session.ended"
	TopicSessionEndingSoon   = "session.ending_soon"
	TopicSessionTimer        = "session.timer"
	TopicAvailabilityChanged = "availability.changed"
	TopicQueueUpdated        = "queue.updated"
)

// Event is the envelope written to the lounge.events queue.  Data holds
// the topic-specific payload as raw JSON so consumers can decode only
// the topics they care about.
type Event struct {
	Topic string          `json:"topic"`
	At    time.Time       `json:"at"`
	Data  json.RawMessage `json:"data"`
}

// BookingCreatedEvent is published when a reservation is created and its
// slot is held pending payment.
type BookingCreatedEvent struct {
	ReservationID uint64    `json:"reservation_id"`
	ActivityID    uint64    `json:"activity_id"`
	UnitID        uint64    `json:"unit_id"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	AmountCents   uint32    `json:"amount_cents"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
	CustomerName  string    `json:"customer_name"`
}

// SessionEvent is published on every session lifecycle transition:
// started, paused, resumed, extended, ended and the one-shot ending-soon
// notice.
type SessionEvent struct {
	SessionID        uint64    `json:"session_id"`
	ReservationID    *uint64   `json:"reservation_id,omitempty"`
	ActivityID       uint64    `json:"activity_id"`
	UnitID           uint64    `json:"unit_id"`
	Status           string    `json:"status"`
	EndsAt           time.Time `json:"ends_at"`
	FinalAmountCents uint32    `json:"final_amount_cents,omitempty"`
}

// TimerEvent is broadcast for every non-terminal session on the timer
// tick so clients can render countdowns without polling.
type TimerEvent struct {
	SessionID    uint64 `json:"session_id"`
	UnitID       uint64 `json:"unit_id"`
	Status       string `json:"status"`
	ElapsedSec   int64  `json:"elapsed_sec"`
	RemainingSec int64  `json:"remaining_sec"`
}

// AvailabilityEvent is published when a unit's occupancy switch flips.
type AvailabilityEvent struct {
	UnitID     uint64 `json:"unit_id"`
	ActivityID uint64 `json:"activity_id"`
	Status     string `json:"status"`
}

// QueueUpdatedEvent is published after joins, removals and promotions.
type QueueUpdatedEvent struct {
	ActivityID uint64 `json:"activity_id"`
	Waiting    int    `json:"waiting"`
}
