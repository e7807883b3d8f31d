package entity

import (
	"time"

	"github.com/google/uuid"
)

type RoleAction string
type RoleCommandStatus string

const (
	RoleActionGrant  RoleAction = "grant"
	RoleActionRevoke RoleAction = "revoke"

	RoleCommandStatusPending    RoleCommandStatus = "pending"
	RoleCommandStatusDispatched RoleCommandStatus = "dispatched"
	RoleCommandStatusApplied    RoleCommandStatus = "applied"
	RoleCommandStatusFailed     RoleCommandStatus = "failed"
	RoleCommandStatusSkipped    RoleCommandStatus = "skipped"
)

// IsFinal reports whether the consumer already settled the command.
func (s RoleCommandStatus) IsFinal() bool {
	switch s {
	case RoleCommandStatusApplied, RoleCommandStatusFailed, RoleCommandStatusSkipped:
		return true
	}
	return false
}

// RoleCommand is an outbox row: one grant or revoke emitted by a transition.
type RoleCommand struct {
	Id             uuid.UUID
	SubscriptionId uuid.UUID
	MemberId       uuid.UUID
	ServerId       string
	RoleId         string
	Action         RoleAction
	Status         RoleCommandStatus
	Attempts       int
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
