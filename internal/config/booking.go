package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// BookingConfig groups the knobs of the reservation and session engine:
// how long a payment hold lives, how long the booking lock is held, when
// the peak-hour multiplier applies and how often the reconciliation
// sweeps run.  Defaults match the production policy; every value can be
// overridden through environment variables.
type BookingConfig struct {
	HoldTTL        time.Duration // unconfirmed reservations expire after this
	LockTTL        time.Duration // TTL of the (unit, start) booking lock
	StartGrace     time.Duration // window after StartsAt in which auto-start fires
	EndingSoonIn   time.Duration // horizon for the one-shot ending-soon notice
	SweepInterval  time.Duration // period of the state-advancing ticks
	TimerInterval  time.Duration // period of the timer broadcast tick
	PeakMultiplier float64       // price multiplier inside the peak window
	PeakDays       map[time.Weekday]bool
	PeakStartHour  int            // inclusive, local hour
	PeakEndHour    int            // exclusive, local hour
	PeakLocation   *time.Location // the lounge's wall clock for the peak window
}

// LoadBookingConfig reads environment variables and falls back to the
// default policy: 15-minute holds, 10-second locks, 5-minute grace and
// warning horizon, sweeps every 30s, timer broadcast every 10s, and a
// 1.5x multiplier on Friday through Sunday 18:00-22:00.
func LoadBookingConfig() BookingConfig {
	return BookingConfig{
		HoldTTL:        envDur("BOOKING_HOLD_TTL", 15*time.Minute),
		LockTTL:        envDur("BOOKING_LOCK_TTL", 10*time.Second),
		StartGrace:     envDur("SESSION_START_GRACE", 5*time.Minute),
		EndingSoonIn:   envDur("SESSION_ENDING_SOON", 5*time.Minute),
		SweepInterval:  envDur("SCHEDULER_SWEEP_INTERVAL", 30*time.Second),
		TimerInterval:  envDur("SCHEDULER_TIMER_INTERVAL", 10*time.Second),
		PeakMultiplier: envFloat("PEAK_MULTIPLIER", 1.5),
		PeakDays: map[time.Weekday]bool{
			time.Friday:   true,
			time.Saturday: true,
			time.Sunday:   true,
		},
		PeakStartHour: envInt("PEAK_START_HOUR", 18),
		PeakEndHour:   envInt("PEAK_END_HOUR", 22),
		PeakLocation:  envLocation("PEAK_TIMEZONE"),
	}
}

// envLocation resolves the lounge's timezone.  Peak hours are a
// wall-clock policy, so the window must follow the venue's local time,
// not the server's.  Unset or invalid names fall back to UTC.
func envLocation(k string) *time.Location {
	v := os.Getenv(k)
	if v == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		log.Printf("[CONFIG] %s=%q is not a valid timezone, using UTC: %v", k, v, err)
		return time.UTC
	}
	return loc
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return d
}
