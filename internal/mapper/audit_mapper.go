package mapper

import (
	"encoding/json"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/model"

	"gorm.io/datatypes"
)

// AuditMapper converts the append-only records: webhook events, activity
// rows and role command outbox rows.
type AuditMapper struct{}

func NewAuditMapper() *AuditMapper {
	return &AuditMapper{}
}

func (m *AuditMapper) WebhookEventToEntity(e *model.WebhookEvent) *entity.WebhookEvent {
	if e == nil {
		return nil
	}
	return &entity.WebhookEvent{
		Id:                e.Id,
		IdempotencyKey:    e.IdempotencyKey,
		GatewayOrderId:    e.GatewayOrderId,
		TransactionStatus: e.TransactionStatus,
		RawPayload:        []byte(e.RawPayload),
		Signature:         e.Signature,
		Verified:          e.Verified,
		Processed:         e.Processed,
		ProcessingError:   e.ProcessingError,
		ReceivedAt:        e.ReceivedAt,
		ProcessedAt:       e.ProcessedAt,
	}
}

func (m *AuditMapper) WebhookEventToModel(e *entity.WebhookEvent) *model.WebhookEvent {
	if e == nil {
		return nil
	}
	payload := e.RawPayload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return &model.WebhookEvent{
		Id:                e.Id,
		IdempotencyKey:    e.IdempotencyKey,
		GatewayOrderId:    e.GatewayOrderId,
		TransactionStatus: e.TransactionStatus,
		RawPayload:        datatypes.JSON(payload),
		Signature:         e.Signature,
		Verified:          e.Verified,
		Processed:         e.Processed,
		ProcessingError:   e.ProcessingError,
		ReceivedAt:        e.ReceivedAt,
		ProcessedAt:       e.ProcessedAt,
	}
}

func (m *AuditMapper) ActivityLogToEntity(a *model.ActivityLog) *entity.ActivityLog {
	if a == nil {
		return nil
	}
	var details map[string]interface{}
	if len(a.Details) > 0 {
		// Details is written by ActivityLogToModel only, a decode failure leaves it empty.
		_ = json.Unmarshal(a.Details, &details)
	}
	return &entity.ActivityLog{
		Id:             a.Id,
		SubscriptionId: a.SubscriptionId,
		ActorType:      entity.ActorType(a.ActorType),
		ActorId:        a.ActorId,
		Action:         a.Action,
		Details:        details,
		CreatedAt:      a.CreatedAt,
	}
}

func (m *AuditMapper) ActivityLogToModel(a *entity.ActivityLog) (*model.ActivityLog, error) {
	if a == nil {
		return nil, nil
	}
	details := datatypes.JSON("{}")
	if len(a.Details) > 0 {
		raw, err := json.Marshal(a.Details)
		if err != nil {
			return nil, err
		}
		details = datatypes.JSON(raw)
	}
	return &model.ActivityLog{
		Id:             a.Id,
		SubscriptionId: a.SubscriptionId,
		ActorType:      string(a.ActorType),
		ActorId:        a.ActorId,
		Action:         a.Action,
		Details:        details,
		CreatedAt:      a.CreatedAt,
	}, nil
}

func (m *AuditMapper) RoleCommandToEntity(c *model.RoleCommand) *entity.RoleCommand {
	if c == nil {
		return nil
	}
	return &entity.RoleCommand{
		Id:             c.Id,
		SubscriptionId: c.SubscriptionId,
		MemberId:       c.MemberId,
		ServerId:       c.ServerId,
		RoleId:         c.RoleId,
		Action:         entity.RoleAction(c.Action),
		Status:         entity.RoleCommandStatus(c.Status),
		Attempts:       c.Attempts,
		LastError:      c.LastError,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func (m *AuditMapper) RoleCommandToModel(c *entity.RoleCommand) *model.RoleCommand {
	if c == nil {
		return nil
	}
	return &model.RoleCommand{
		Id:             c.Id,
		SubscriptionId: c.SubscriptionId,
		MemberId:       c.MemberId,
		ServerId:       c.ServerId,
		RoleId:         c.RoleId,
		Action:         string(c.Action),
		Status:         string(c.Status),
		Attempts:       c.Attempts,
		LastError:      c.LastError,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
