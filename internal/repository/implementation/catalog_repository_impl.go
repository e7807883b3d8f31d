package implementation

import (
	"context"
	"errors"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/mapper"
	"memberpass-be/internal/model"
	"memberpass-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TierCatalogImpl struct {
	db     *gorm.DB
	mapper *mapper.TierMapper
}

func NewTierCatalog(db *gorm.DB) contract.TierCatalog {
	return &TierCatalogImpl{
		db:     db,
		mapper: mapper.NewTierMapper(),
	}
}

func (r *TierCatalogImpl) GetTier(ctx context.Context, id uuid.UUID) (*entity.Tier, error) {
	var m model.Tier
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.TierToEntity(&m), nil
}

type MemberRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.TierMapper
}

func NewMemberRepository(db *gorm.DB) contract.MemberRepository {
	return &MemberRepositoryImpl{
		db:     db,
		mapper: mapper.NewTierMapper(),
	}
}

func (r *MemberRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.Member, error) {
	var m model.Member
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.MemberToEntity(&m), nil
}

func (r *MemberRepositoryImpl) LockForUpdate(ctx context.Context, id uuid.UUID) (*entity.Member, error) {
	var m model.Member
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.MemberToEntity(&m), nil
}
