package service

import (
	"testing"
	"time"

	"memberpass-be/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepTimesOutAbandonedCheckout(t *testing.T) {
	h := newHarness(t)
	order := h.purchase(h.gold)

	report, err := h.sweep.Run(h.ctx())
	require.NoError(t, err)
	assert.Equal(t, 0, report.TimedOut)

	h.now = h.now.Add(2 * time.Hour)
	report, err = h.sweep.Run(h.ctx())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TimedOut)

	assert.Equal(t, entity.SubscriptionStatusCancelled, h.subscription(order.SubscriptionId).Status)
	assert.Equal(t, 1, h.countActions(order.SubscriptionId, entity.ActionPurchaseTimedOut))
	assert.Empty(t, h.commands(order.SubscriptionId))

	// a late settlement for the abandoned order is an anomaly
	out, err := h.deliver(h.payload(order.OrderId, "settlement", "", "100000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidTransition, out.Kind)
}

func TestSweepKeepsMembershipDuringGrace(t *testing.T) {
	h := newHarness(t)
	order := h.activate(h.gold)

	h.now = h.now.Add(31 * 24 * time.Hour)
	report, err := h.sweep.Run(h.ctx())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired)
	assert.Equal(t, entity.SubscriptionStatusActive, h.subscription(order.SubscriptionId).Status)
}

func TestSweepExpiresLapsedMembership(t *testing.T) {
	h := newHarness(t)
	order := h.activate(h.gold)

	h.now = h.now.Add(38 * 24 * time.Hour)
	report, err := h.sweep.Run(h.ctx())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	assert.Equal(t, entity.SubscriptionStatusExpired, h.subscription(order.SubscriptionId).Status)
	assert.Equal(t, 1, h.countActions(order.SubscriptionId, entity.ActionSubscriptionExpired))
	assert.Equal(t, []roleCall{
		{entity.RoleActionGrant, "role-gold"},
		{entity.RoleActionRevoke, "role-gold"},
	}, h.roleClient.Calls())

	// a second pass finds nothing
	report, err = h.sweep.Run(h.ctx())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired)
	assert.Len(t, h.roleClient.Calls(), 2)
}
