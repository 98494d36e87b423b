package model

import "time"

// Pricing modes supported by activities.  The mode decides how a booking's
// duration is converted into a price by the pricing policy.
const (
	PricingPerMinute  = "PER_MINUTE"  // rate applies to every minute
	PricingPerHour    = "PER_HOUR"    // rate applies to every started hour
	PricingFixedBlock = "FIXED_BLOCK" // rate applies to every started block of BlockMinutes
)

// Activity represents a bookable category inside the lounge, such as
// "PS5 stations", "pool tables" or "karting track".  Every physical unit
// belongs to exactly one activity, and the activity carries the pricing
// and minimum-duration policy applied to reservations made against its
// units.
//
// Fields:
//  ID             – primary key identifier.
//  Name           – human-friendly unique name.
//  PricingMode    – one of the Pricing* constants above.
//  RateCents      – price per pricing unit (minute, hour or block) in cents.
//  BlockMinutes   – length of one block when PricingMode is FIXED_BLOCK.
//  MinDurationMin – minimum bookable duration in minutes.
//  IsActive       – disabled activities reject new reservations.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Activity struct {
	ID             uint64    `json:"id"`
	Name           string    `json:"name"`
	PricingMode    string    `json:"pricing_mode"`
	RateCents      uint32    `json:"rate_cents"`
	BlockMinutes   uint32    `json:"block_minutes,omitempty"`
	MinDurationMin uint32    `json:"min_duration_min"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
