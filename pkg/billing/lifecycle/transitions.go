package lifecycle

import (
	"slices"

	"memberpass-be/internal/entity"
)

// Transition is a directed edge between two subscription statuses.
type Transition struct {
	From entity.SubscriptionStatus
	To   entity.SubscriptionStatus
}

var validTransitions = map[Transition]bool{
	{entity.SubscriptionStatusPending, entity.SubscriptionStatusActive}:    true, // payment settled
	{entity.SubscriptionStatusPending, entity.SubscriptionStatusCancelled}: true, // explicit cancel or purchase timeout
	{entity.SubscriptionStatusPending, entity.SubscriptionStatusFailed}:    true, // deny / cancel / expire
	{entity.SubscriptionStatusActive, entity.SubscriptionStatusExpired}:    true, // sweep
	{entity.SubscriptionStatusActive, entity.SubscriptionStatusCancelled}:  true, // refund, manual cancel, superseded
	{entity.SubscriptionStatusActive, entity.SubscriptionStatusPending}:    true, // upgrade
	{entity.SubscriptionStatusFailed, entity.SubscriptionStatusPending}:    true, // retry
	{entity.SubscriptionStatusCancelled, entity.SubscriptionStatusPending}: true, // renewal
	{entity.SubscriptionStatusExpired, entity.SubscriptionStatusPending}:   true, // renewal
}

func CanTransition(from, to entity.SubscriptionStatus) bool {
	return validTransitions[Transition{from, to}]
}

// ValidTransitionsFrom returns the allowed targets of from, sorted.
func ValidTransitionsFrom(from entity.SubscriptionStatus) []entity.SubscriptionStatus {
	targets := make([]entity.SubscriptionStatus, 0)
	for t := range validTransitions {
		if t.From == from {
			targets = append(targets, t.To)
		}
	}
	slices.Sort(targets)
	return targets
}

// PendingReason names why a successor Pending row is opened from a predecessor.
func PendingReason(from entity.SubscriptionStatus) string {
	switch from {
	case entity.SubscriptionStatusActive:
		return entity.ActionUpgradeInitiated
	case entity.SubscriptionStatusFailed:
		return entity.ActionRetryInitiated
	case entity.SubscriptionStatusCancelled, entity.SubscriptionStatusExpired:
		return entity.ActionRenewalInitiated
	default:
		return ""
	}
}
