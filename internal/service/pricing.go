package service

import (
	"fmt"
	"math"
	"time"

	"github.com/playora/lounge-reservation/internal/config"
	"github.com/playora/lounge-reservation/internal/model"
	"github.com/playora/lounge-reservation/internal/repository"
)

// PricingPolicy converts a booking window into a price using the
// activity's pricing mode and the configured peak-hour multiplier.  The
// multiplier applies when the booking start falls inside the peak
// window; the whole booking is then multiplied, matching how the lounge
// charges at the desk.
type PricingPolicy struct {
	cfg config.BookingConfig
}

// NewPricingPolicy builds a policy from the booking configuration.
func NewPricingPolicy(cfg config.BookingConfig) *PricingPolicy {
	return &PricingPolicy{cfg: cfg}
}

// Quote prices durationMin minutes on the activity starting at start.
// Per-hour and fixed-block modes charge every started hour or block.
func (p *PricingPolicy) Quote(a *model.Activity, start time.Time, durationMin uint32) (uint32, error) {
	if durationMin == 0 {
		return 0, fmt.Errorf("%w: duration must be positive", repository.ErrValidation)
	}
	var units uint32
	switch a.PricingMode {
	case model.PricingPerMinute:
		units = durationMin
	case model.PricingPerHour:
		units = (durationMin + 59) / 60
	case model.PricingFixedBlock:
		if a.BlockMinutes == 0 {
			return 0, fmt.Errorf("%w: activity %d has no block length", repository.ErrValidation, a.ID)
		}
		units = (durationMin + a.BlockMinutes - 1) / a.BlockMinutes
	default:
		return 0, fmt.Errorf("%w: unknown pricing mode %q", repository.ErrValidation, a.PricingMode)
	}
	amount := float64(units) * float64(a.RateCents)
	if p.InPeak(start) {
		amount *= p.cfg.PeakMultiplier
	}
	return uint32(math.Round(amount)), nil
}

// InPeak reports whether t falls inside the configured peak window
// (default Friday through Sunday, 18:00-22:00).  The window is a
// wall-clock policy, so t is shifted into the lounge's timezone first.
func (p *PricingPolicy) InPeak(t time.Time) bool {
	loc := p.cfg.PeakLocation
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	if !p.cfg.PeakDays[local.Weekday()] {
		return false
	}
	h := local.Hour()
	return h >= p.cfg.PeakStartHour && h < p.cfg.PeakEndHour
}

// BillableMinutes converts billable elapsed time into whole charged
// minutes, charging every started minute.
func BillableMinutes(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32((d + time.Minute - 1) / time.Minute)
}
