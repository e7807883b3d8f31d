package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"memberpass-be/internal/pkg/logger"
	"memberpass-be/pkg/events"
	pktNats "memberpass-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// InlineDispatcher runs the handler before returning, under its own
// timeout. The caller's cancellation does not cut the role call short.
type InlineDispatcher struct {
	handler Handler
	timeout time.Duration
}

func NewInlineDispatcher(handler Handler, timeout time.Duration) *InlineDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &InlineDispatcher{handler: handler, timeout: timeout}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, cmd Command) error {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	return d.handler(runCtx, cmd)
}

// ChannelDispatcher hands commands to an in-process watermill channel and
// consumes them on a background goroutine.
type ChannelDispatcher struct {
	pubSub *gochannel.GoChannel
	topic  string
	logger logger.ILogger
}

func NewChannelDispatcher(pubSub *gochannel.GoChannel, topic string, log logger.ILogger) *ChannelDispatcher {
	return &ChannelDispatcher{pubSub: pubSub, topic: topic, logger: log}
}

func (d *ChannelDispatcher) Dispatch(ctx context.Context, cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	msg := message.NewMessage(cmd.Id.String(), payload)
	return d.pubSub.Publish(d.topic, msg)
}

// Consume subscribes handler to the topic until ctx is done.
func (d *ChannelDispatcher) Consume(ctx context.Context, handler Handler) error {
	messages, err := d.pubSub.Subscribe(ctx, d.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			d.process(ctx, msg, handler)
		}
	}()
	return nil
}

func (d *ChannelDispatcher) process(ctx context.Context, msg *message.Message, handler Handler) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		d.logger.Error("ROLE", "Dropping unreadable role command", map[string]interface{}{
			"messageId": msg.UUID,
			"error":     err.Error(),
		})
		msg.Ack()
		return
	}

	if err := handler(ctx, cmd); err != nil {
		d.logger.Warn("ROLE", "Role command handler failed", map[string]interface{}{
			"commandId": cmd.Id.String(),
			"error":     err.Error(),
		})
		// the outbox relay picks the row up again
		msg.Ack()
		return
	}
	msg.Ack()
}

func NewGoChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewStdLogger(false, false),
	)
}

// NatsDispatcher publishes commands to JetStream; any instance may consume them.
type NatsDispatcher struct {
	publisher *pktNats.Publisher
}

func NewNatsDispatcher(publisher *pktNats.Publisher) *NatsDispatcher {
	return &NatsDispatcher{publisher: publisher}
}

func (d *NatsDispatcher) Dispatch(ctx context.Context, cmd Command) error {
	event, err := cmd.Event()
	if err != nil {
		return fmt.Errorf("encode role command: %w", err)
	}
	return d.publisher.Publish(ctx, event)
}

// ConsumeNats attaches handler to the JetStream role command subject.
// A handler error NAKs the message for redelivery.
func ConsumeNats(ctx context.Context, sub *pktNats.Subscriber, durable string, maxDeliver int, handler Handler) error {
	return sub.Subscribe(ctx, CommandEventType, durable, maxDeliver, eventHandler(handler))
}

func eventHandler(handler Handler) pktNats.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		cmd, err := CommandFromEvent(event)
		if err != nil {
			// unreadable: acknowledging is the only way to stop redelivery
			return nil
		}
		return handler(ctx, cmd)
	}
}
