package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memberpass-be/internal/dto"
	"memberpass-be/internal/entity"
	"memberpass-be/internal/pkg/logger"
	"memberpass-be/internal/repository/contract"
	"memberpass-be/internal/repository/specification"
	"memberpass-be/internal/repository/unitofwork"
	"memberpass-be/pkg/billing/proration"
	"memberpass-be/pkg/gateway/midtrans"

	"github.com/google/uuid"
)

const orderIdPrefix = "SUB-"

type ISubscriptionService interface {
	// Purchase opens a Pending subscription for the tier. A previous Failed,
	// Cancelled or Expired row on the same server makes it a retry or renewal.
	Purchase(ctx context.Context, memberId uuid.UUID, req *dto.PurchaseRequest) (*dto.CheckoutResponse, error)
	QuoteUpgrade(ctx context.Context, memberId uuid.UUID, req *dto.UpgradeRequest) (*dto.UpgradeQuoteResponse, error)
	Upgrade(ctx context.Context, memberId uuid.UUID, req *dto.UpgradeRequest) (*dto.CheckoutResponse, error)

	Cancel(ctx context.Context, ownerId, subscriptionId uuid.UUID, req *dto.OwnerActionRequest) (*dto.SubscriptionResponse, error)
	ReapplyRole(ctx context.Context, ownerId, subscriptionId uuid.UUID, req *dto.OwnerActionRequest) (*dto.SubscriptionResponse, error)
}

type subscriptionService struct {
	uowFactory unitofwork.RepositoryFactory
	catalog    contract.TierCatalog
	machine    *StateMachine
	publisher  *RolePublisher
	checkout   midtrans.CheckoutGateway
	finishURL  string
	logger     logger.ILogger
	clock      func() time.Time
}

// NewSubscriptionService accepts a nil checkout gateway, in which case orders
// are opened without a payment page.
func NewSubscriptionService(
	uowFactory unitofwork.RepositoryFactory,
	catalog contract.TierCatalog,
	machine *StateMachine,
	publisher *RolePublisher,
	checkout midtrans.CheckoutGateway,
	finishURL string,
	log logger.ILogger,
) ISubscriptionService {
	return &subscriptionService{
		uowFactory: uowFactory,
		catalog:    catalog,
		machine:    machine,
		publisher:  publisher,
		checkout:   checkout,
		finishURL:  finishURL,
		logger:     log,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *subscriptionService) Purchase(ctx context.Context, memberId uuid.UUID, req *dto.PurchaseRequest) (*dto.CheckoutResponse, error) {
	tier, err := s.tier(ctx, req.TierId)
	if err != nil {
		return nil, err
	}
	member, err := s.member(ctx, memberId)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := s.lockMember(ctx, uow, memberId); err != nil {
		return nil, err
	}

	latest, err := uow.SubscriptionRepository().FindOne(ctx,
		specification.ByMemberServer{MemberID: memberId, ServerID: tier.ServerId},
		specification.Latest{},
	)
	if err != nil {
		return nil, err
	}
	var predecessor *entity.Subscription
	if latest != nil {
		if !latest.Status.IsTerminal() {
			return nil, ErrOpenSubscriptionExists
		}
		predecessor = latest
	}

	next := &entity.Subscription{
		Id:       uuid.New(),
		MemberId: memberId,
		ServerId: tier.ServerId,
		TierId:   tier.Id,
	}
	details := map[string]interface{}{
		"memberId":    memberId.String(),
		"tierId":      tier.Id.String(),
		"amountCents": tier.PriceCents,
	}
	if err := s.machine.OpenPending(ctx, uow, predecessor, next, SystemActor(), details); err != nil {
		return nil, s.commitRejection(uow, err)
	}

	tx, err := s.openOrder(ctx, uow, next, tier.PriceCents, tier.Currency)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("SUBSCRIPTION", "Purchase initiated", map[string]interface{}{
		"subscriptionId": next.Id.String(),
		"orderId":        tx.GatewayOrderId,
		"renewal":        predecessor != nil,
	})
	return s.startCheckout(ctx, next, tx, tier, member)
}

func (s *subscriptionService) QuoteUpgrade(ctx context.Context, memberId uuid.UUID, req *dto.UpgradeRequest) (*dto.UpgradeQuoteResponse, error) {
	q, err := s.quote(ctx, memberId, req.TierId)
	if err != nil {
		return nil, err
	}
	return &dto.UpgradeQuoteResponse{
		CurrentSubscriptionId: q.active.Id,
		CurrentTierId:         q.currentTier.Id,
		NewTierId:             q.newTier.Id,
		UnusedDays:            q.result.UnusedDays,
		CreditCents:           q.result.CreditCents,
		NewChargeCents:        q.result.NewChargeCents,
		NewExpiry:             q.result.NewExpiry,
		Currency:              q.newTier.Currency,
	}, nil
}

func (s *subscriptionService) Upgrade(ctx context.Context, memberId uuid.UUID, req *dto.UpgradeRequest) (*dto.CheckoutResponse, error) {
	q, err := s.quote(ctx, memberId, req.TierId)
	if err != nil {
		return nil, err
	}
	charge := billableCents(q.result.NewChargeCents)
	if charge <= 0 {
		return nil, ErrZeroCharge
	}
	member, err := s.member(ctx, memberId)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := s.lockMember(ctx, uow, memberId); err != nil {
		return nil, err
	}

	active, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: q.active.Id})
	if err != nil {
		return nil, err
	}
	if active == nil || active.Status != entity.SubscriptionStatusActive {
		return nil, ErrNoActiveSubscription
	}

	next := &entity.Subscription{
		Id:       uuid.New(),
		MemberId: memberId,
		ServerId: q.newTier.ServerId,
		TierId:   q.newTier.Id,
	}
	details := map[string]interface{}{
		"memberId":       memberId.String(),
		"fromTierId":     q.currentTier.Id.String(),
		"toTierId":       q.newTier.Id.String(),
		"unusedDays":     q.result.UnusedDays,
		"creditCents":    q.result.CreditCents,
		"newChargeCents": charge,
	}
	if err := s.machine.OpenPending(ctx, uow, active, next, SystemActor(), details); err != nil {
		return nil, s.commitRejection(uow, err)
	}

	tx, err := s.openOrder(ctx, uow, next, charge, q.newTier.Currency)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("SUBSCRIPTION", "Upgrade initiated", map[string]interface{}{
		"subscriptionId": next.Id.String(),
		"supersedes":     active.Id.String(),
		"orderId":        tx.GatewayOrderId,
		"chargeCents":    charge,
	})
	return s.startCheckout(ctx, next, tx, q.newTier, member)
}

func (s *subscriptionService) Cancel(ctx context.Context, ownerId, subscriptionId uuid.UUID, req *dto.OwnerActionRequest) (*dto.SubscriptionResponse, error) {
	sub, tier, err := s.subscriptionWithTier(ctx, subscriptionId)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if sub, err = uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: sub.Id}); err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}

	t := Transition{
		From:    sub.Status,
		To:      entity.SubscriptionStatusCancelled,
		Action:  entity.ActionManualCancellation,
		Actor:   OwnerActor(ownerId),
		Details: ownerDetails(req),
	}
	if sub.Status == entity.SubscriptionStatusActive {
		t.Role = entity.RoleActionRevoke
		t.RoleId = tier.RoleId
	}
	cmd, err := s.machine.Apply(ctx, uow, sub, t)
	if err != nil {
		return nil, s.commitRejection(uow, err)
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, cmd)
	return toSubscriptionResponse(sub), nil
}

func (s *subscriptionService) ReapplyRole(ctx context.Context, ownerId, subscriptionId uuid.UUID, req *dto.OwnerActionRequest) (*dto.SubscriptionResponse, error) {
	sub, tier, err := s.subscriptionWithTier(ctx, subscriptionId)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if sub, err = uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: sub.Id}); err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}

	var action entity.RoleAction
	switch sub.Status {
	case entity.SubscriptionStatusActive:
		action = entity.RoleActionGrant
	case entity.SubscriptionStatusCancelled, entity.SubscriptionStatusExpired:
		action = entity.RoleActionRevoke
	default:
		return nil, ErrNothingToReapply
	}

	cmd, err := s.machine.QueueRole(ctx, uow, sub, action, tier.RoleId)
	if err != nil {
		return nil, err
	}
	actor := OwnerActor(ownerId)
	if err := s.machine.activity.Within(uow).Append(ctx, &entity.ActivityLog{
		SubscriptionId: &sub.Id,
		ActorType:      actor.Type,
		ActorId:        actor.Id,
		Action:         entity.ActionRoleReapplyRequested,
		Details: mergeDetails(ownerDetails(req), map[string]interface{}{
			"roleAction": string(action),
			"roleId":     tier.RoleId,
			"commandId":  cmd.Id.String(),
		}),
	}); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, cmd)
	return toSubscriptionResponse(sub), nil
}

type upgradeQuote struct {
	active      *entity.Subscription
	currentTier *entity.Tier
	newTier     *entity.Tier
	result      proration.Result
}

func (s *subscriptionService) quote(ctx context.Context, memberId, tierId uuid.UUID) (*upgradeQuote, error) {
	newTier, err := s.tier(ctx, tierId)
	if err != nil {
		return nil, err
	}

	active, err := s.uowFactory.NewUnitOfWork(ctx).SubscriptionRepository().FindOne(ctx,
		specification.ByMemberServer{MemberID: memberId, ServerID: newTier.ServerId},
		specification.SubscriptionStatusIn{Statuses: []entity.SubscriptionStatus{entity.SubscriptionStatusActive}},
	)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveSubscription
	}

	currentTier, err := s.tier(ctx, active.TierId)
	if err != nil {
		return nil, err
	}
	if currentTier.Id == newTier.Id || newTier.PriceCents <= currentTier.PriceCents {
		return nil, ErrNotAnUpgrade
	}

	now := s.clock()
	expiry := now
	if active.ExpiryDate != nil {
		expiry = *active.ExpiryDate
	}
	return &upgradeQuote{
		active:      active,
		currentTier: currentTier,
		newTier:     newTier,
		result:      proration.Compute(proration.Current{ExpiryDate: expiry, Tier: *currentTier}, *newTier, now),
	}, nil
}

func (s *subscriptionService) openOrder(ctx context.Context, uow unitofwork.UnitOfWork, sub *entity.Subscription, amountCents int64, currency string) (*entity.Transaction, error) {
	tx := &entity.Transaction{
		Id:             uuid.New(),
		SubscriptionId: sub.Id,
		GatewayOrderId: orderIdPrefix + uuid.NewString(),
		AmountCents:    amountCents,
		Currency:       currency,
		Status:         entity.TransactionStatusPending,
	}
	if err := uow.SubscriptionRepository().CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return tx, nil
}

// startCheckout runs after commit. A gateway failure leaves the Pending row
// for the sweep to time out.
func (s *subscriptionService) startCheckout(ctx context.Context, sub *entity.Subscription, tx *entity.Transaction, tier *entity.Tier, member *entity.Member) (*dto.CheckoutResponse, error) {
	res := &dto.CheckoutResponse{
		SubscriptionId: sub.Id,
		OrderId:        tx.GatewayOrderId,
		AmountCents:    tx.AmountCents,
		Currency:       tx.Currency,
	}
	if s.checkout == nil {
		return res, nil
	}

	page, err := s.checkout.CreateCheckout(ctx, midtrans.CheckoutRequest{
		OrderId:     tx.GatewayOrderId,
		AmountCents: tx.AmountCents,
		ItemId:      tier.Id.String(),
		ItemName:    tier.Name,
		MemberName:  member.DisplayName,
		FinishURL:   s.finishURL,
	})
	if err != nil {
		s.logger.Error("SUBSCRIPTION", "Checkout creation failed", map[string]interface{}{
			"orderId": tx.GatewayOrderId,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("create checkout: %w", err)
	}
	res.SnapToken = page.Token
	res.RedirectURL = page.RedirectURL
	return res, nil
}

// commitRejection keeps the anomaly row written for a refused transition.
func (s *subscriptionService) commitRejection(uow unitofwork.UnitOfWork, err error) error {
	if errors.Is(err, ErrInvalidTransition) {
		if cerr := uow.Commit(); cerr != nil {
			return cerr
		}
	}
	return err
}

func (s *subscriptionService) subscriptionWithTier(ctx context.Context, id uuid.UUID) (*entity.Subscription, *entity.Tier, error) {
	sub, err := s.uowFactory.NewUnitOfWork(ctx).SubscriptionRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, nil, err
	}
	if sub == nil {
		return nil, nil, ErrSubscriptionNotFound
	}
	tier, err := s.tier(ctx, sub.TierId)
	if err != nil {
		return nil, nil, err
	}
	return sub, tier, nil
}

func (s *subscriptionService) tier(ctx context.Context, id uuid.UUID) (*entity.Tier, error) {
	tier, err := s.catalog.GetTier(ctx, id)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, ErrTierNotFound
	}
	return tier, nil
}

// lockMember holds the member row for the rest of the transaction, so two
// concurrent openings cannot both find the server free.
func (s *subscriptionService) lockMember(ctx context.Context, uow unitofwork.UnitOfWork, id uuid.UUID) error {
	member, err := uow.MemberRepository().LockForUpdate(ctx, id)
	if err != nil {
		return fmt.Errorf("lock member: %w", err)
	}
	if member == nil {
		return ErrMemberNotFound
	}
	return nil
}

func (s *subscriptionService) member(ctx context.Context, id uuid.UUID) (*entity.Member, error) {
	member, err := s.uowFactory.NewUnitOfWork(ctx).MemberRepository().FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	return member, nil
}

// billableCents rounds half-up to whole currency units, the smallest amount
// the checkout page can charge.
func billableCents(cents int64) int64 {
	if cents <= 0 {
		return 0
	}
	return (cents + 50) / 100 * 100
}

func ownerDetails(req *dto.OwnerActionRequest) map[string]interface{} {
	details := map[string]interface{}{}
	if req != nil && req.Reason != "" {
		details["reason"] = req.Reason
	}
	return details
}

func toSubscriptionResponse(s *entity.Subscription) *dto.SubscriptionResponse {
	return &dto.SubscriptionResponse{
		Id:                     s.Id,
		MemberId:               s.MemberId,
		ServerId:               s.ServerId,
		TierId:                 s.TierId,
		PreviousSubscriptionId: s.PreviousSubscriptionId,
		Status:                 string(s.Status),
		ExpiryDate:             s.ExpiryDate,
		GracePeriodUntil:       s.GracePeriodUntil,
	}
}
