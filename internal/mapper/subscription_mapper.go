package mapper

import (
	"memberpass-be/internal/entity"
	"memberpass-be/internal/model"
)

type SubscriptionMapper struct{}

func NewSubscriptionMapper() *SubscriptionMapper {
	return &SubscriptionMapper{}
}

func (m *SubscriptionMapper) SubscriptionToEntity(s *model.Subscription) *entity.Subscription {
	if s == nil {
		return nil
	}
	return &entity.Subscription{
		Id:                     s.Id,
		MemberId:               s.MemberId,
		ServerId:               s.ServerId,
		TierId:                 s.TierId,
		PreviousSubscriptionId: s.PreviousSubscriptionId,
		Status:                 entity.SubscriptionStatus(s.Status),
		StartDate:              s.StartDate,
		ExpiryDate:             s.ExpiryDate,
		LastPaymentAmount:      s.LastPaymentAmount,
		LastPaymentDate:        s.LastPaymentDate,
		GracePeriodUntil:       s.GracePeriodUntil,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
	}
}

func (m *SubscriptionMapper) SubscriptionToModel(s *entity.Subscription) *model.Subscription {
	if s == nil {
		return nil
	}
	return &model.Subscription{
		Id:                     s.Id,
		MemberId:               s.MemberId,
		ServerId:               s.ServerId,
		TierId:                 s.TierId,
		PreviousSubscriptionId: s.PreviousSubscriptionId,
		Status:                 string(s.Status),
		StartDate:              s.StartDate,
		ExpiryDate:             s.ExpiryDate,
		LastPaymentAmount:      s.LastPaymentAmount,
		LastPaymentDate:        s.LastPaymentDate,
		GracePeriodUntil:       s.GracePeriodUntil,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
	}
}

func (m *SubscriptionMapper) TransactionToEntity(t *model.Transaction) *entity.Transaction {
	if t == nil {
		return nil
	}
	return &entity.Transaction{
		Id:                   t.Id,
		SubscriptionId:       t.SubscriptionId,
		GatewayOrderId:       t.GatewayOrderId,
		GatewayTransactionId: t.GatewayTransactionId,
		AmountCents:          t.AmountCents,
		Currency:             t.Currency,
		Status:               entity.TransactionStatus(t.Status),
		PaymentMethod:        t.PaymentMethod,
		PaymentDate:          t.PaymentDate,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

func (m *SubscriptionMapper) TransactionToModel(t *entity.Transaction) *model.Transaction {
	if t == nil {
		return nil
	}
	return &model.Transaction{
		Id:                   t.Id,
		SubscriptionId:       t.SubscriptionId,
		GatewayOrderId:       t.GatewayOrderId,
		GatewayTransactionId: t.GatewayTransactionId,
		AmountCents:          t.AmountCents,
		Currency:             t.Currency,
		Status:               string(t.Status),
		PaymentMethod:        t.PaymentMethod,
		PaymentDate:          t.PaymentDate,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}
