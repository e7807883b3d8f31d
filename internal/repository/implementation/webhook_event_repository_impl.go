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
	"gorm.io/gorm/clause"
)

type WebhookEventRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AuditMapper
}

func NewWebhookEventRepository(db *gorm.DB) contract.WebhookEventRepository {
	return &WebhookEventRepositoryImpl{
		db:     db,
		mapper: mapper.NewAuditMapper(),
	}
}

func (r *WebhookEventRepositoryImpl) CreateIfNotExists(ctx context.Context, event *entity.WebhookEvent) (bool, error) {
	m := r.mapper.WebhookEventToModel(event)
	if m.Id == uuid.Nil {
		m.Id = uuid.New()
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(m)
	if tx.Error != nil {
		return false, tx.Error
	}
	created := tx.RowsAffected > 0

	var stored model.WebhookEvent
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", m.IdempotencyKey).First(&stored).Error; err != nil {
		return false, err
	}
	*event = *r.mapper.WebhookEventToEntity(&stored)
	return created, nil
}

func (r *WebhookEventRepositoryImpl) MarkProcessed(ctx context.Context, id uuid.UUID, processingError *string) (bool, error) {
	now := time.Now().UTC()
	tx := r.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]interface{}{
			"processed":        true,
			"processing_error": processingError,
			"processed_at":     now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *WebhookEventRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.WebhookEvent, error) {
	var m model.WebhookEvent
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
	return r.mapper.WebhookEventToEntity(&m), nil
}

func (r *WebhookEventRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.WebhookEvent, error) {
	var models []*model.WebhookEvent
	query := r.db.WithContext(ctx)
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.WebhookEvent, len(models))
	for i, m := range models {
		entities[i] = r.mapper.WebhookEventToEntity(m)
	}
	return entities, nil
}
