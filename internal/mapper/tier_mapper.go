package mapper

import (
	"memberpass-be/internal/entity"
	"memberpass-be/internal/model"
)

type TierMapper struct{}

func NewTierMapper() *TierMapper {
	return &TierMapper{}
}

func (m *TierMapper) TierToEntity(t *model.Tier) *entity.Tier {
	if t == nil {
		return nil
	}
	return &entity.Tier{
		Id:         t.Id,
		ServerId:   t.ServerId,
		RoleId:     t.RoleId,
		Name:       t.Name,
		PriceCents: t.PriceCents,
		PeriodDays: t.PeriodDays,
		Currency:   t.Currency,
	}
}

func (m *TierMapper) MemberToEntity(mb *model.Member) *entity.Member {
	if mb == nil {
		return nil
	}
	return &entity.Member{
		Id:             mb.Id,
		ExternalUserId: mb.ExternalUserId,
		DisplayName:    mb.DisplayName,
	}
}
