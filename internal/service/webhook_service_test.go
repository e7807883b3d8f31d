package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"memberpass-be/internal/dto"
	"memberpass-be/internal/entity"
	"memberpass-be/internal/model"
	"memberpass-be/pkg/gateway/midtrans"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementActivatesAndGrantsOnce(t *testing.T) {
	h := newHarness(t)
	order := h.purchase(h.gold)

	out, err := h.deliver(h.payload(order.OrderId, "settlement", "", "100000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out.Kind)
	assert.Equal(t, 1, out.Commands)

	sub := h.subscription(order.SubscriptionId)
	assert.Equal(t, entity.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.ExpiryDate)
	assert.True(t, sub.ExpiryDate.Equal(h.now.Add(30*24*time.Hour)))
	require.NotNil(t, sub.GracePeriodUntil)
	assert.True(t, sub.GracePeriodUntil.Equal(h.now.Add(37*24*time.Hour)))
	require.NotNil(t, sub.LastPaymentAmount)
	assert.Equal(t, int64(10000000), *sub.LastPaymentAmount)

	tx := h.transaction(order.OrderId)
	assert.Equal(t, entity.TransactionStatusSuccess, tx.Status)
	require.NotNil(t, tx.GatewayTransactionId)
	assert.Equal(t, "trx-"+order.OrderId, *tx.GatewayTransactionId)

	assert.Equal(t, []roleCall{{entity.RoleActionGrant, "role-gold"}}, h.roleClient.Calls())
	cmds := h.commands(sub.Id)
	require.Len(t, cmds, 1)
	assert.Equal(t, entity.RoleCommandStatusApplied, cmds[0].Status)
	assert.Equal(t, 1, cmds[0].Attempts)

	assert.Equal(t, []string{entity.ActionPurchaseInitiated, entity.ActionRoleGranted}, h.actions(sub.Id))
}

func TestDuplicateDeliveryHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	order := h.purchase(h.gold)
	body := h.payload(order.OrderId, "settlement", "", "100000.00", h.now)

	first, err := h.deliver(body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, first.Kind)

	second, err := h.deliver(body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Kind)
	assert.Equal(t, first.EventId, second.EventId)

	assert.Len(t, h.roleClient.Calls(), 1)
	assert.Len(t, h.activities(order.SubscriptionId), 2)
	assert.Equal(t, int64(1), h.countEvents())
}

func TestConcurrentDeliveriesProcessOnce(t *testing.T) {
	h := newHarness(t)
	order := h.purchase(h.gold)
	body := h.payload(order.OrderId, "settlement", "", "100000.00", h.now)

	const workers = 8
	kinds := make(chan OutcomeKind, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.deliver(body)
			if assert.NoError(t, err) {
				kinds <- out.Kind
			}
		}()
	}
	wg.Wait()
	close(kinds)

	counts := map[OutcomeKind]int{}
	for k := range kinds {
		counts[k]++
	}
	assert.Equal(t, 1, counts[OutcomeProcessed])
	assert.Equal(t, workers-1, counts[OutcomeDuplicate])
	assert.Len(t, h.roleClient.Calls(), 1)
	assert.Equal(t, 1, h.countActions(order.SubscriptionId, entity.ActionRoleGranted))
}

func TestTamperedNotificationIsRejected(t *testing.T) {
	h := newHarness(t)
	order := h.purchase(h.gold)

	body := h.payload(order.OrderId, "settlement", "", "100000.00", h.now)
	tampered := []byte(string(body[:len(body)-1]) + `,"gross_amount":"1.00"}`)

	_, err := h.deliver(tampered)
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	assert.Equal(t, entity.SubscriptionStatusPending, h.subscription(order.SubscriptionId).Status)
	assert.Empty(t, h.roleClient.Calls())
	assert.Equal(t, []string{entity.ActionPurchaseInitiated}, h.actions(order.SubscriptionId))

	var stored model.WebhookEvent
	require.NoError(t, h.db.First(&stored).Error)
	assert.False(t, stored.Verified)
	assert.True(t, stored.Processed)
	assert.Equal(t, midtrans.UnverifiedKey(tampered), stored.IdempotencyKey)

	// the genuine delivery still goes through
	out, err := h.deliver(body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out.Kind)
}

func TestStaleNotificationIsRejected(t *testing.T) {
	h := newHarness(t)
	order := h.purchase(h.gold)

	_, err := h.deliver(h.payload(order.OrderId, "settlement", "", "100000.00", h.now.Add(-30*time.Hour)))
	assert.True(t, errors.Is(err, ErrStaleWebhook))

	assert.Equal(t, entity.SubscriptionStatusPending, h.subscription(order.SubscriptionId).Status)
	assert.Equal(t, int64(0), h.countEvents())
}

func TestMalformedNotificationIsRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.deliver([]byte(`{"order_id":"SUB-1"}`))
	assert.True(t, errors.Is(err, ErrInvalidPayload))

	body := h.payload("SUB-1", "settlement", "", "100000.00", h.now)
	_, err = h.webhook.HandleNotification(h.ctx(), "paypal", body, "", h.now)
	assert.True(t, errors.Is(err, ErrUnknownGateway))
}

func TestSignatureFromHeader(t *testing.T) {
	h := newHarness(t)
	order := h.purchase(h.gold)
	gross := "100000.00"

	body := []byte(`{"order_id":"` + order.OrderId + `","gross_amount":"` + gross + `","transaction_status":"settlement",` +
		`"status_code":"200","transaction_time":"` + h.now.In(midtrans.Location("")).Format(midtrans.TransactionTimeLayout) + `"}`)
	sig := midtrans.Signature(midtrans.SignedFields{OrderId: order.OrderId, StatusCode: "200", GrossAmount: gross}, testServerKey)

	out, err := h.webhook.HandleNotification(h.ctx(), GatewayMidtrans, body, sig, h.now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out.Kind)
}

func TestRefundRevokesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	order := h.activate(h.gold)

	refund := h.payload(order.OrderId, "refund", "", "100000.00", h.now)
	out, err := h.deliver(refund)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out.Kind)

	again, err := h.deliver(refund)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, again.Kind)

	assert.Equal(t, entity.SubscriptionStatusCancelled, h.subscription(order.SubscriptionId).Status)
	assert.Equal(t, entity.TransactionStatusRefunded, h.transaction(order.OrderId).Status)
	assert.Equal(t, []roleCall{
		{entity.RoleActionGrant, "role-gold"},
		{entity.RoleActionRevoke, "role-gold"},
	}, h.roleClient.Calls())
	assert.Equal(t, 1, h.countActions(order.SubscriptionId, entity.ActionRoleRevoked))
}

func TestInvalidTransitionWritesOneAnomaly(t *testing.T) {
	h := newHarness(t)
	order := h.purchase(h.gold)

	denied, err := h.deliver(h.payload(order.OrderId, "deny", "", "100000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, denied.Kind)
	assert.Equal(t, entity.SubscriptionStatusFailed, h.subscription(order.SubscriptionId).Status)

	out, err := h.deliver(h.payload(order.OrderId, "settlement", "", "100000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidTransition, out.Kind)

	assert.Equal(t, entity.SubscriptionStatusFailed, h.subscription(order.SubscriptionId).Status)
	assert.Equal(t, 1, h.countActions(order.SubscriptionId, entity.ActionTransitionRejected))
	assert.Empty(t, h.roleClient.Calls())

	var event model.WebhookEvent
	require.NoError(t, h.db.Where("idempotency_key = ?", order.OrderId+":settlement").First(&event).Error)
	assert.True(t, event.Processed)
	require.NotNil(t, event.ProcessingError)
}

func TestSettlementAfterCaptureIsAlreadyApplied(t *testing.T) {
	h := newHarness(t)
	order := h.purchase(h.gold)

	captured, err := h.deliver(h.payload(order.OrderId, "capture", "accept", "100000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, captured.Kind)

	settled, err := h.deliver(h.payload(order.OrderId, "settlement", "", "100000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, settled.Kind)

	assert.Len(t, h.roleClient.Calls(), 1)
	assert.Equal(t, 0, h.countActions(order.SubscriptionId, entity.ActionTransitionRejected))
}

func TestNonTransitionStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status string
		fraud  string
		want   OutcomeKind
	}{
		{"pending", "pending", "", OutcomeIgnored},
		{"fraud challenge", "capture", "challenge", OutcomeIgnored},
		{"unknown status", "authorize", "", OutcomeUnknownStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			order := h.purchase(h.gold)

			out, err := h.deliver(h.payload(order.OrderId, tt.status, tt.fraud, "100000.00", h.now))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Kind)
			assert.Equal(t, entity.SubscriptionStatusPending, h.subscription(order.SubscriptionId).Status)
			assert.Empty(t, h.roleClient.Calls())

			var event model.WebhookEvent
			require.NoError(t, h.db.First(&event).Error)
			assert.True(t, event.Processed)
			if tt.want == OutcomeUnknownStatus {
				require.NotNil(t, event.ProcessingError)
				assert.Contains(t, *event.ProcessingError, "authorize")
			} else {
				assert.Nil(t, event.ProcessingError)
			}
		})
	}
}

func TestFraudDenyFailsThePurchase(t *testing.T) {
	h := newHarness(t)
	order := h.purchase(h.gold)

	out, err := h.deliver(h.payload(order.OrderId, "capture", "deny", "100000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out.Kind)
	assert.Equal(t, 0, out.Commands)
	assert.Equal(t, entity.SubscriptionStatusFailed, h.subscription(order.SubscriptionId).Status)
	assert.Equal(t, entity.TransactionStatusFailed, h.transaction(order.OrderId).Status)
	assert.Equal(t, 1, h.countActions(order.SubscriptionId, entity.ActionPaymentFailed))
}

func TestUnknownOrderIsAcknowledged(t *testing.T) {
	h := newHarness(t)

	out, err := h.deliver(h.payload("SUB-missing", "settlement", "", "100000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownOrder, out.Kind)

	var event model.WebhookEvent
	require.NoError(t, h.db.First(&event).Error)
	require.NotNil(t, event.ProcessingError)
	assert.Equal(t, "unknown order", *event.ProcessingError)

	var subs int64
	require.NoError(t, h.db.Model(&model.Subscription{}).Count(&subs).Error)
	assert.Equal(t, int64(0), subs)
}

func TestAmountMismatchDoesNotActivate(t *testing.T) {
	h := newHarness(t)
	order := h.purchase(h.gold)

	out, err := h.deliver(h.payload(order.OrderId, "settlement", "", "50000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmountMismatch, out.Kind)

	assert.Equal(t, entity.SubscriptionStatusPending, h.subscription(order.SubscriptionId).Status)
	assert.Equal(t, 1, h.countActions(order.SubscriptionId, entity.ActionAmountMismatch))
	assert.Empty(t, h.roleClient.Calls())
}

func TestRoleFailureKeepsPayment(t *testing.T) {
	h := newHarness(t)
	h.roleClient.err = errors.New("connection reset")
	order := h.purchase(h.gold)

	out, err := h.deliver(h.payload(order.OrderId, "settlement", "", "100000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, out.Kind)

	assert.Equal(t, entity.SubscriptionStatusActive, h.subscription(order.SubscriptionId).Status)
	assert.Equal(t, entity.TransactionStatusSuccess, h.transaction(order.OrderId).Status)

	cmds := h.commands(order.SubscriptionId)
	require.Len(t, cmds, 1)
	assert.Equal(t, entity.RoleCommandStatusFailed, cmds[0].Status)
	assert.Equal(t, 2, cmds[0].Attempts)
	assert.Equal(t, 1, h.countActions(order.SubscriptionId, entity.ActionRoleGrantFailed))
	require.Len(t, h.mailer.alerts, 1)
	assert.Equal(t, "grant", h.mailer.alerts[0].Action)
}

func TestRefundAfterOwnerCancelRecordsTransaction(t *testing.T) {
	h := newHarness(t)
	order := h.activate(h.gold)
	_, err := h.subs.Cancel(h.ctx(), uuid.New(), order.SubscriptionId, &dto.OwnerActionRequest{Reason: "abuse"})
	require.NoError(t, err)
	calls := len(h.roleClient.Calls())

	out, err := h.deliver(h.payload(order.OrderId, "refund", "", "100000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, out.Kind)

	tx := h.transaction(order.OrderId)
	assert.Equal(t, entity.TransactionStatusRefunded, tx.Status)
	require.NotNil(t, tx.PaymentDate)
	assert.Equal(t, entity.SubscriptionStatusCancelled, h.subscription(order.SubscriptionId).Status)
	assert.Len(t, h.roleClient.Calls(), calls)
	assert.Equal(t, 0, h.countActions(order.SubscriptionId, entity.ActionTransitionRejected))
}

func TestRefundOfSupersededOrderRecordsTransaction(t *testing.T) {
	h := newHarness(t)
	gold := h.activate(h.gold)

	h.now = h.now.Add(10 * 24 * time.Hour)
	up, err := h.subs.Upgrade(h.ctx(), h.member, &dto.UpgradeRequest{TierId: h.plat.Id})
	require.NoError(t, err)
	_, err = h.deliver(h.payload(up.OrderId, "settlement", "", midtrans.FormatGrossAmount(up.AmountCents), h.now))
	require.NoError(t, err)
	require.Equal(t, entity.SubscriptionStatusCancelled, h.subscription(gold.SubscriptionId).Status)
	calls := len(h.roleClient.Calls())

	out, err := h.deliver(h.payload(gold.OrderId, "refund", "", "100000.00", h.now))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, out.Kind)

	assert.Equal(t, entity.TransactionStatusRefunded, h.transaction(gold.OrderId).Status)
	assert.Equal(t, entity.TransactionStatusSuccess, h.transaction(up.OrderId).Status)
	assert.Equal(t, entity.SubscriptionStatusActive, h.subscription(up.SubscriptionId).Status)
	assert.Len(t, h.roleClient.Calls(), calls)
}
