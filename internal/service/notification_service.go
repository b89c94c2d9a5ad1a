package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/modkit/modmail-relay/internal/events"
)

// NotificationService turns domain events into operator-facing log lines.
// Ids only; relayed message bodies never reach the logs.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketOpened, n.handleTicketOpened)
	n.dispatcher.Subscribe(events.EventMessageRelayed, n.handleMessageRelayed)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
	n.dispatcher.Subscribe(events.EventBroadcastCompleted, n.handleBroadcastCompleted)
}

func (n *NotificationService) handleTicketOpened(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketOpened",
		zap.Int64("user_id", event.UserID),
		zap.String("channel_id", event.ChannelID))
	return nil
}

func (n *NotificationService) handleMessageRelayed(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.MessageRelayedPayload)
	n.logger.Info("MessageRelayed",
		zap.Int64("user_id", event.UserID),
		zap.String("channel_id", event.ChannelID),
		zap.String("direction", payload.Direction),
		zap.Int("attachments", payload.AttachmentCount))
	return nil
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketClosedPayload)
	n.logger.Info("TicketClosed",
		zap.Int64("user_id", event.UserID),
		zap.String("channel_id", event.ChannelID),
		zap.Bool("forced", payload.Forced),
		zap.Bool("delayed", payload.Delayed))
	return nil
}

func (n *NotificationService) handleBroadcastCompleted(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.BroadcastCompletedPayload)
	n.logger.Info("BroadcastCompleted",
		zap.Int("sent", payload.Sent),
		zap.Int("failed", payload.Failed))
	return nil
}
