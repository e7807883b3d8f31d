package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"memberpass-be/internal/dto"
	"memberpass-be/internal/entity"
	"memberpass-be/internal/model"
	"memberpass-be/internal/pkg/logger"
	"memberpass-be/internal/pkg/mailer"
	"memberpass-be/internal/repository/implementation"
	"memberpass-be/internal/repository/memory"
	"memberpass-be/internal/repository/specification"
	"memberpass-be/internal/repository/unitofwork"
	"memberpass-be/pkg/database"
	"memberpass-be/pkg/gateway/midtrans"
	"memberpass-be/pkg/roles"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testServerKey = "SB-Mid-server-test"
	testGuild     = "guild-1"
)

type roleCall struct {
	Action entity.RoleAction
	RoleId string
}

type fakeRoleClient struct {
	mu    sync.Mutex
	calls []roleCall
	err   error
	delay time.Duration
}

func (c *fakeRoleClient) record(action entity.RoleAction, roleId string) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, roleCall{Action: action, RoleId: roleId})
	return c.err
}

func (c *fakeRoleClient) GrantRole(ctx context.Context, serverId string, memberId uuid.UUID, roleId string) error {
	return c.record(entity.RoleActionGrant, roleId)
}

func (c *fakeRoleClient) RevokeRole(ctx context.Context, serverId string, memberId uuid.UUID, roleId string) error {
	return c.record(entity.RoleActionRevoke, roleId)
}

func (c *fakeRoleClient) Calls() []roleCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]roleCall, len(c.calls))
	copy(out, c.calls)
	return out
}

type fakeCheckout struct {
	mu       sync.Mutex
	requests []midtrans.CheckoutRequest
	err      error
}

func (f *fakeCheckout) CreateCheckout(ctx context.Context, req midtrans.CheckoutRequest) (*midtrans.CheckoutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &midtrans.CheckoutResponse{OrderId: req.OrderId, Token: "snap-" + req.OrderId, RedirectURL: "https://pay.test/" + req.OrderId}, nil
}

type fakeMailer struct {
	mu     sync.Mutex
	alerts []mailer.RoleFailureAlert
}

func (m *fakeMailer) SendRoleFailureAlert(alert mailer.RoleFailureAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return nil
}

type harness struct {
	t          *testing.T
	db         *gorm.DB
	uowFactory unitofwork.RepositoryFactory
	now        time.Time

	roleClient *fakeRoleClient
	checkout   *fakeCheckout
	mailer     *fakeMailer

	activity  IActivityService
	machine   *StateMachine
	publisher *RolePublisher
	consumer  *roleConsumerService
	webhook   *webhookService
	subs      *subscriptionService
	sweep     *sweepService
	relay     *OutboxRelay

	member uuid.UUID
	gold   *entity.Tier
	plat   *entity.Tier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := database.NewInMemorySqlite()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))

	log := logger.NewNopLogger()
	h := &harness{
		t:          t,
		db:         db,
		uowFactory: unitofwork.NewRepositoryFactory(db),
		now:        time.Now().UTC().Truncate(time.Second),
		roleClient: &fakeRoleClient{},
		checkout:   &fakeCheckout{},
		mailer:     &fakeMailer{},
	}
	clock := func() time.Time { return h.now }

	catalog := memory.NewTierCache(implementation.NewTierCatalog(db), time.Minute)
	orchestrator := roles.NewOrchestrator(h.roleClient, roles.NewLocalLocker(), roles.Config{
		CallTimeout:     time.Second,
		MaxTries:        2,
		MaxElapsed:      time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, log)

	h.activity = NewActivityService(h.uowFactory, log)
	h.machine = NewStateMachine(h.activity, log)
	h.consumer = NewRoleConsumerService(h.uowFactory, orchestrator, catalog, h.activity, h.mailer, log).(*roleConsumerService)
	h.publisher = NewRolePublisher(roles.NewInlineDispatcher(h.consumer.Handle, 2*time.Second), h.uowFactory, log)

	h.webhook = NewWebhookService(h.uowFactory, catalog, h.machine, h.publisher, WebhookSettings{
		ServerKey:       testServerKey,
		MaxAge:          24 * time.Hour,
		GracePeriodDays: 7,
	}, log).(*webhookService)
	h.webhook.clock = clock

	h.subs = NewSubscriptionService(h.uowFactory, catalog, h.machine, h.publisher, h.checkout, "", log).(*subscriptionService)
	h.subs.clock = clock

	h.sweep = NewSweepService(h.uowFactory, catalog, h.machine, h.publisher, time.Hour, log).(*sweepService)
	h.sweep.clock = clock

	h.relay = NewOutboxRelay(h.publisher, h.uowFactory, h.activity, h.mailer, RelayConfig{
		StaleAfter: 2 * time.Minute,
		MaxResends: 3,
	}, log)
	h.relay.clock = clock

	linked := "discord-user-1"
	h.member = uuid.New()
	require.NoError(t, db.Create(&model.Member{Id: h.member, ExternalUserId: &linked, DisplayName: "Ayu"}).Error)
	h.gold = h.seedTier("Gold", "role-gold", 10000000, 30)
	h.plat = h.seedTier("Platinum", "role-platinum", 30000000, 30)
	return h
}

func (h *harness) seedTier(name, roleId string, priceCents int64, periodDays int) *entity.Tier {
	tier := &model.Tier{
		Id:         uuid.New(),
		ServerId:   testGuild,
		RoleId:     roleId,
		Name:       name,
		PriceCents: priceCents,
		PeriodDays: periodDays,
		Currency:   "IDR",
	}
	require.NoError(h.t, h.db.Create(tier).Error)
	return &entity.Tier{
		Id:         tier.Id,
		ServerId:   tier.ServerId,
		RoleId:     tier.RoleId,
		Name:       tier.Name,
		PriceCents: tier.PriceCents,
		PeriodDays: tier.PeriodDays,
		Currency:   tier.Currency,
	}
}

func (h *harness) ctx() context.Context {
	return context.Background()
}

// payload builds a signed notification body.
func (h *harness) payload(orderId, status, fraud, gross string, txTime time.Time) []byte {
	fields := midtrans.SignedFields{OrderId: orderId, StatusCode: "200", GrossAmount: gross}
	body := map[string]string{
		"transaction_id":     "trx-" + orderId,
		"order_id":           orderId,
		"gross_amount":       gross,
		"currency":           "IDR",
		"payment_type":       "bank_transfer",
		"transaction_status": status,
		"fraud_status":       fraud,
		"status_code":        "200",
		"transaction_time":   txTime.In(midtrans.Location("")).Format(midtrans.TransactionTimeLayout),
		"signature_key":      midtrans.Signature(fields, testServerKey),
	}
	raw, err := json.Marshal(body)
	require.NoError(h.t, err)
	return raw
}

func (h *harness) deliver(body []byte) (*WebhookOutcome, error) {
	return h.webhook.HandleNotification(h.ctx(), GatewayMidtrans, body, "", h.now)
}

// purchase opens a Pending row on tier and returns the checkout.
func (h *harness) purchase(tier *entity.Tier) *dto.CheckoutResponse {
	res, err := h.subs.Purchase(h.ctx(), h.member, &dto.PurchaseRequest{TierId: tier.Id})
	require.NoError(h.t, err)
	return res
}

// activate purchases tier and settles the order.
func (h *harness) activate(tier *entity.Tier) *dto.CheckoutResponse {
	res := h.purchase(tier)
	out, err := h.deliver(h.payload(res.OrderId, "settlement", "", midtrans.FormatGrossAmount(res.AmountCents), h.now))
	require.NoError(h.t, err)
	require.Equal(h.t, OutcomeProcessed, out.Kind)
	return res
}

func (h *harness) subscription(id uuid.UUID) *entity.Subscription {
	sub, err := h.uowFactory.NewUnitOfWork(h.ctx()).SubscriptionRepository().FindOne(h.ctx(), specification.ByID{ID: id})
	require.NoError(h.t, err)
	require.NotNil(h.t, sub)
	return sub
}

func (h *harness) transaction(orderId string) *entity.Transaction {
	tx, err := h.uowFactory.NewUnitOfWork(h.ctx()).SubscriptionRepository().FindTransactionByOrderId(h.ctx(), orderId)
	require.NoError(h.t, err)
	require.NotNil(h.t, tx)
	return tx
}

func (h *harness) activities(subId uuid.UUID) []*entity.ActivityLog {
	rows, err := h.activity.ListForSubscription(h.ctx(), subId)
	require.NoError(h.t, err)
	return rows
}

func (h *harness) actions(subId uuid.UUID) []string {
	rows := h.activities(subId)
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Action
	}
	return out
}

func (h *harness) countActions(subId uuid.UUID, action string) int {
	n := 0
	for _, a := range h.actions(subId) {
		if a == action {
			n++
		}
	}
	return n
}

func (h *harness) commands(subId uuid.UUID) []*entity.RoleCommand {
	rows, err := h.uowFactory.NewUnitOfWork(h.ctx()).RoleCommandRepository().FindAll(h.ctx(),
		specification.BySubscription{ID: subId},
		specification.Chronological{},
	)
	require.NoError(h.t, err)
	return rows
}

func (h *harness) countEvents() int64 {
	var n int64
	require.NoError(h.t, h.db.Model(&model.WebhookEvent{}).Count(&n).Error)
	return n
}
