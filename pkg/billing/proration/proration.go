package proration

import (
	"time"

	"memberpass-be/internal/entity"
)

const day = 24 * time.Hour

// Current is the active subscription being upgraded, with the tier it was bought on.
type Current struct {
	ExpiryDate time.Time
	Tier       entity.Tier
}

type Result struct {
	UnusedDays     int64
	CreditCents    int64
	NewChargeCents int64
	NewExpiry      time.Time
}

// Compute prices an upgrade from current to newTier at the given instant.
// It never reads the clock.
func Compute(current Current, newTier entity.Tier, now time.Time) Result {
	unused := UnusedDays(current.ExpiryDate, now)
	credit := Credit(current.Tier.PriceCents, unused, int64(current.Tier.PeriodDays))

	charge := newTier.PriceCents - credit
	if charge < 0 {
		charge = 0
	}

	return Result{
		UnusedDays:     unused,
		CreditCents:    credit,
		NewChargeCents: charge,
		NewExpiry:      ExpiryFrom(now, newTier.PeriodDays),
	}
}

// UnusedDays counts whole days left before expiry, never negative.
func UnusedDays(expiry, now time.Time) int64 {
	if !expiry.After(now) {
		return 0
	}
	return int64(expiry.Sub(now) / day)
}

// Credit = round(price * unused / period), half-up in integer arithmetic.
func Credit(priceCents, unusedDays, periodDays int64) int64 {
	if periodDays <= 0 || priceCents <= 0 || unusedDays <= 0 {
		return 0
	}
	return (2*priceCents*unusedDays + periodDays) / (2 * periodDays)
}

// ExpiryFrom is start plus a whole number of 24h days.
func ExpiryFrom(start time.Time, periodDays int) time.Time {
	return start.Add(time.Duration(periodDays) * day)
}
