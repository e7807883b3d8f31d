package specification

import (
	"time"

	"memberpass-be/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByMemberServer struct {
	MemberID uuid.UUID
	ServerID string
}

func (s ByMemberServer) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("member_id = ? AND server_id = ?", s.MemberID, s.ServerID)
}

type SubscriptionStatusIn struct {
	Statuses []entity.SubscriptionStatus
}

func (s SubscriptionStatusIn) Apply(db *gorm.DB) *gorm.DB {
	values := make([]string, len(s.Statuses))
	for i, st := range s.Statuses {
		values[i] = string(st)
	}
	return db.Where("status IN ?", values)
}

// NonTerminal matches the rows that block a fresh purchase.
type NonTerminal struct{}

func (s NonTerminal) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status IN ?", []string{
		string(entity.SubscriptionStatusPending),
		string(entity.SubscriptionStatusActive),
	})
}

// AccessLapsedBefore matches active rows whose paid period and grace both ended before At.
type AccessLapsedBefore struct {
	At time.Time
}

func (s AccessLapsedBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("expiry_date < ?", s.At).
		Where("grace_period_until IS NULL OR grace_period_until < ?", s.At)
}

type ByPreviousSubscription struct {
	ID uuid.UUID
}

func (s ByPreviousSubscription) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("previous_subscription_id = ?", s.ID)
}

type RoleCommandStatusIn struct {
	Statuses []entity.RoleCommandStatus
}

func (s RoleCommandStatusIn) Apply(db *gorm.DB) *gorm.DB {
	values := make([]string, len(s.Statuses))
	for i, st := range s.Statuses {
		values[i] = string(st)
	}
	return db.Where("status IN ?", values)
}

type BySubscription struct {
	ID uuid.UUID
}

func (s BySubscription) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("subscription_id = ?", s.ID)
}

type ByOrderId struct {
	OrderID string
}

func (s ByOrderId) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("gateway_order_id = ?", s.OrderID)
}

type ByAction struct {
	Action string
}

func (s ByAction) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("action = ?", s.Action)
}
