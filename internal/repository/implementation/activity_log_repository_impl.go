package implementation

import (
	"context"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/mapper"
	"memberpass-be/internal/model"
	"memberpass-be/internal/repository/contract"
	"memberpass-be/internal/repository/specification"

	"gorm.io/gorm"
)

type ActivityLogRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AuditMapper
}

func NewActivityLogRepository(db *gorm.DB) contract.ActivityLogRepository {
	return &ActivityLogRepositoryImpl{
		db:     db,
		mapper: mapper.NewAuditMapper(),
	}
}

func (r *ActivityLogRepositoryImpl) Append(ctx context.Context, entry *entity.ActivityLog) error {
	m, err := r.mapper.ActivityLogToModel(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	entry.Id = m.Id
	entry.CreatedAt = m.CreatedAt
	return nil
}

func (r *ActivityLogRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ActivityLog, error) {
	var models []*model.ActivityLog
	query := r.db.WithContext(ctx)
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.ActivityLog, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ActivityLogToEntity(m)
	}
	return entities, nil
}
