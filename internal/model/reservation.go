package model

import "time"

// Reservation statuses.  PENDING_PAYMENT and PENDING_APPROVAL are the
// in-flight states that block the slot; EXPIRED and CANCELLED are
// terminal and free it again.  PAYMENT_CONFIRMED is terminal for the
// reservation itself; the occupation continues as a Session.
const (
	ReservationPendingPayment   = "PENDING_PAYMENT"
	ReservationPendingApproval  = "PENDING_APPROVAL"
	ReservationPaymentConfirmed = "PAYMENT_CONFIRMED"
	ReservationExpired          = "EXPIRED"
	ReservationCancelled        = "CANCELLED"
)

// Reservation is a temporary hold on a unit for a time window, pending
// payment.  A reservation is created under the booking lock after the
// conflict check passed, and must be confirmed before HoldExpiresAt or
// the reconciliation sweep expires it.
//
// Fields:
//  ID            – primary key identifier.
//  ActivityID    – activity the booked unit belongs to.
//  UnitID        – unit being held.
//  StartsAt      – window start (UTC).
//  EndsAt        – window end (UTC).
//  DurationMin   – window length in minutes, kept denormalized for pricing.
//  AmountCents   – quoted price at creation time.
//  Status        – one of the Reservation* constants above.
//  CustomerName  – walk-up customer identity; no account required to book.
//  CustomerPhone – contact number used for notifications.
//  HoldExpiresAt – hard deadline for payment confirmation.
//  PaymentRef    – external payment reference once confirmed (nullable).
//  ConfirmedAt   – when payment was confirmed (nullable).
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Reservation struct {
	ID            uint64     `json:"id"`
	ActivityID    uint64     `json:"activity_id"`
	UnitID        uint64     `json:"unit_id"`
	StartsAt      time.Time  `json:"starts_at"`
	EndsAt        time.Time  `json:"ends_at"`
	DurationMin   uint32     `json:"duration_min"`
	AmountCents   uint32     `json:"amount_cents"`
	Status        string     `json:"status"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	HoldExpiresAt time.Time  `json:"hold_expires_at"`
	PaymentRef    *string    `json:"payment_ref,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// InFlight reports whether the reservation still blocks its slot for the
// double-booking check.
func (r *Reservation) InFlight() bool {
	return r.Status == ReservationPendingPayment || r.Status == ReservationPendingApproval
}

// Confirmable reports whether payment confirmation is a legal transition
// from the current status.
func (r *Reservation) Confirmable() bool {
	return r.Status == ReservationPendingPayment || r.Status == ReservationPendingApproval
}

// HoldExpired reports whether the unconfirmed hold deadline has passed.
func (r *Reservation) HoldExpired(now time.Time) bool {
	return r.InFlight() && !now.Before(r.HoldExpiresAt)
}
