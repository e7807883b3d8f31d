package implementation

import (
	"context"
	"errors"
	"time"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/mapper"
	"memberpass-be/internal/model"
	"memberpass-be/internal/repository/contract"
	"memberpass-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RoleCommandRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AuditMapper
}

func NewRoleCommandRepository(db *gorm.DB) contract.RoleCommandRepository {
	return &RoleCommandRepositoryImpl{
		db:     db,
		mapper: mapper.NewAuditMapper(),
	}
}

func (r *RoleCommandRepositoryImpl) Create(ctx context.Context, command *entity.RoleCommand) error {
	m := r.mapper.RoleCommandToModel(command)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*command = *r.mapper.RoleCommandToEntity(m)
	return nil
}

func (r *RoleCommandRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.RoleCommand, error) {
	var m model.RoleCommand
	query := r.db.WithContext(ctx)
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.RoleCommandToEntity(&m), nil
}

func (r *RoleCommandRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.RoleCommand, error) {
	var models []*model.RoleCommand
	query := r.db.WithContext(ctx)
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.RoleCommand, len(models))
	for i, m := range models {
		entities[i] = r.mapper.RoleCommandToEntity(m)
	}
	return entities, nil
}

func (r *RoleCommandRepositoryImpl) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.RoleCommand{}).
		Where("id = ? AND status IN ?", id, []string{
			string(entity.RoleCommandStatusPending),
			string(entity.RoleCommandStatusDispatched),
		}).
		Updates(map[string]interface{}{
			"status":     string(entity.RoleCommandStatusDispatched),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *RoleCommandRepositoryImpl) Settle(ctx context.Context, id uuid.UUID, status entity.RoleCommandStatus, attempts int, lastError *string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&model.RoleCommand{}).
		Where("id = ? AND status IN ?", id, []string{
			string(entity.RoleCommandStatusPending),
			string(entity.RoleCommandStatusDispatched),
		}).
		Updates(map[string]interface{}{
			"status":     string(status),
			"attempts":   gorm.Expr("attempts + ?", attempts),
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}
