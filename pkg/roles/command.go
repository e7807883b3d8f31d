package roles

import (
	"context"
	"fmt"
	"time"

	"memberpass-be/internal/entity"
	"memberpass-be/pkg/events"

	"github.com/google/uuid"
)

const CommandEventType = "role.command"

// Command asks for one grant or revoke of a role.
type Command struct {
	Id             uuid.UUID         `json:"id"`
	SubscriptionId uuid.UUID         `json:"subscription_id"`
	MemberId       uuid.UUID         `json:"member_id"`
	ServerId       string            `json:"server_id"`
	RoleId         string            `json:"role_id"`
	Action         entity.RoleAction `json:"action"`
}

func CommandFromEntity(c *entity.RoleCommand) Command {
	return Command{
		Id:             c.Id,
		SubscriptionId: c.SubscriptionId,
		MemberId:       c.MemberId,
		ServerId:       c.ServerId,
		RoleId:         c.RoleId,
		Action:         c.Action,
	}
}

// LockKey serialises work per (member, server).
func (c Command) LockKey() string {
	return fmt.Sprintf("role-lock:%s:%s", c.MemberId, c.ServerId)
}

func (c Command) Event() (events.Event, error) {
	data, err := events.Encode(c)
	if err != nil {
		return nil, err
	}
	return events.BaseEvent{
		Id:         c.Id.String(),
		Type:       CommandEventType,
		Data:       data,
		OccurredAt: time.Now(),
	}, nil
}

func CommandFromEvent(e events.Event) (Command, error) {
	var c Command
	if err := events.Decode(e.Payload(), &c); err != nil {
		return Command{}, err
	}
	if c.Id == uuid.Nil {
		return Command{}, fmt.Errorf("role command event without id")
	}
	return c, nil
}

// Client is the external role-management API.
type Client interface {
	GrantRole(ctx context.Context, serverId string, memberId uuid.UUID, roleId string) error
	RevokeRole(ctx context.Context, serverId string, memberId uuid.UUID, roleId string) error
}

// Handler consumes a dispatched command.
type Handler func(ctx context.Context, cmd Command) error

// Dispatcher hands committed commands to the consumer.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) error
}
