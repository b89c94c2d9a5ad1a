package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modkit/modmail-relay/internal/auth"
	"github.com/modkit/modmail-relay/internal/config"
	"github.com/modkit/modmail-relay/internal/domain"
	"github.com/modkit/modmail-relay/internal/events"
	"github.com/modkit/modmail-relay/internal/observability"
	"github.com/modkit/modmail-relay/internal/platform"
	"github.com/modkit/modmail-relay/internal/repository"
	"github.com/modkit/modmail-relay/internal/worker"
	apperrors "github.com/modkit/modmail-relay/pkg/util"
)

// User-facing message templates, carried over from the original bot text.
const (
	msgBannerFormat       = "📬 **Modmail opened by %s**"
	msgInboundFormat      = "📩 **New message from %s:**\n%s"
	msgAck                = "📨 Your message has been sent to staff. They will reply here."
	msgStaffReplyFormat   = "📣 **Staff reply:** %s"
	msgReplySentFormat    = "✅ Message sent to %s"
	msgOpenFailed         = "⚠️ Sorry, your message could not be delivered to staff right now. Please try again later."
	msgForwardFailed      = "⚠️ Sorry, your message could not be delivered to staff. Please try again."
	replyOutsideWorkspace = "this command only works inside the staff workspace"
	replyNotTicket        = "this command only works inside ticket channels"
)

// RelayService is the message pump between external users and ticket
// channels.
type RelayService struct {
	directory  repository.TicketDirectory
	platform   platform.Client
	authorizer *auth.Authorizer
	closer     *worker.CloseScheduler
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	routing    config.RoutingConfig
	lifecycle  config.LifecycleConfig
}

// RelayDependencies bundles collaborators for the relay service.
type RelayDependencies struct {
	Directory  repository.TicketDirectory
	Platform   platform.Client
	Authorizer *auth.Authorizer
	Closer     *worker.CloseScheduler
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Routing    config.RoutingConfig
	Lifecycle  config.LifecycleConfig
}

// NewRelayService constructs the service.
func NewRelayService(deps RelayDependencies) *RelayService {
	return &RelayService{
		directory:  deps.Directory,
		platform:   deps.Platform,
		authorizer: deps.Authorizer,
		closer:     deps.Closer,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		routing:    deps.Routing,
		lifecycle:  deps.Lifecycle,
	}
}

// HandleInbound relays a direct message from an external user into their
// ticket channel, creating the ticket first if none is open. The staff-side
// forward always happens before the best-effort acknowledgment, and a failed
// acknowledgment never undoes the forward.
func (s *RelayService) HandleInbound(ctx context.Context, msg InboundMessage) error {
	if msg.IsAutomated {
		return nil
	}
	if strings.TrimSpace(msg.Body) == "" && len(msg.AttachmentURLs) == 0 {
		return nil
	}

	ticket, err := s.directory.FindOpen(ctx, msg.SenderID)
	if err != nil {
		s.apologize(ctx, msg.SenderID, msgOpenFailed)
		return err
	}

	opened := false
	if ticket == nil {
		ticket, err = s.directory.Create(ctx, domain.ExternalUser{ID: msg.SenderID, DisplayName: msg.SenderDisplayName})
		if err != nil {
			s.apologize(ctx, msg.SenderID, msgOpenFailed)
			return err
		}
		// Create returns an Active ticket when a concurrent handler won the
		// creation race; only the actual creator posts the banner.
		opened = ticket.State == domain.TicketStateOpen
	}
	if opened {
		banner := fmt.Sprintf(msgBannerFormat, displayLabel(msg))
		if err := s.platform.SendToChannel(ctx, ticket.ChannelID, banner, nil); err != nil {
			s.logger.Warn("opening banner failed",
				zap.Int64("user_id", msg.SenderID),
				zap.String("channel_id", ticket.ChannelID),
				zap.Error(err))
		}
		s.publish(ctx, events.Event{
			Type:      events.EventTicketOpened,
			UserID:    ticket.ExternalUserID,
			ChannelID: ticket.ChannelID,
			Actor:     events.UserActor(msg.SenderID),
			Payload:   events.TicketOpenedPayload{ChannelName: ticket.ChannelName},
		})
		s.metrics.RecordTicketOpened()
	}

	forward := fmt.Sprintf(msgInboundFormat, displayLabel(msg), msg.Body)
	if err := s.platform.SendToChannel(ctx, ticket.ChannelID, forward, msg.AttachmentURLs); err != nil {
		s.apologize(ctx, msg.SenderID, msgForwardFailed)
		return apperrors.NewInternalError(fmt.Errorf("forward message for user %d: %w", msg.SenderID, err))
	}

	if opened {
		ticket.State = domain.TicketStateActive
	}
	s.metrics.RecordRelay(observability.RelayInbound)
	s.publish(ctx, events.Event{
		Type:      events.EventMessageRelayed,
		UserID:    ticket.ExternalUserID,
		ChannelID: ticket.ChannelID,
		Actor:     events.UserActor(msg.SenderID),
		Payload: events.MessageRelayedPayload{
			Direction:       string(observability.RelayInbound),
			AttachmentCount: len(msg.AttachmentURLs),
		},
	})

	if s.lifecycle.CancelCloseOnActivity && s.closer.Cancel(msg.SenderID) {
		s.logger.Info("pending close cancelled by user activity", zap.Int64("user_id", msg.SenderID))
	}

	// Acknowledgment is best effort; the user may have blocked replies.
	if err := s.platform.SendDirect(ctx, msg.SenderID, msgAck); err != nil {
		s.logger.Debug("acknowledgment not delivered",
			zap.Int64("user_id", msg.SenderID),
			zap.Error(err))
	}
	return nil
}

// Reply delivers staff text to the ticket's external user. The returned
// string is the user-visible confirmation for the invoking channel.
func (s *RelayService) Reply(ctx context.Context, inv Invocation, text string) (string, error) {
	userID, err := s.ticketUserID(inv)
	if err != nil {
		return "", err
	}
	if !s.authorizer.HasStaffCapability(inv.InvokerID, inv.InvokerRoleIDs) {
		return "", apperrors.NewAuthorizationDenied("you need the staff role to reply to tickets")
	}
	if strings.TrimSpace(text) == "" {
		return "", apperrors.NewValidationError("reply text required", nil)
	}

	user, err := s.platform.FetchUser(ctx, userID)
	if err != nil {
		return "", apperrors.NewDeliveryFailed(fmt.Sprintf("user %d no longer resolves", userID), err)
	}
	if err := s.platform.SendDirect(ctx, userID, fmt.Sprintf(msgStaffReplyFormat, text)); err != nil {
		if errors.Is(err, platform.ErrForbidden) {
			return "", apperrors.NewDeliveryFailed(fmt.Sprintf("%s has direct messages disabled", user.DisplayName), err)
		}
		return "", apperrors.NewDeliveryFailed(fmt.Sprintf("delivery to %s failed", user.DisplayName), err)
	}

	s.metrics.RecordRelay(observability.RelayOutbound)
	s.publish(ctx, events.Event{
		Type:      events.EventMessageRelayed,
		UserID:    userID,
		ChannelID: inv.ChannelID,
		Actor:     events.StaffActor(inv.InvokerID),
		Payload:   events.MessageRelayedPayload{Direction: string(observability.RelayOutbound)},
	})
	return fmt.Sprintf(msgReplySentFormat, user.DisplayName), nil
}

// ticketUserID validates the invocation context and extracts the external
// user id from the channel topic.
func (s *RelayService) ticketUserID(inv Invocation) (int64, error) {
	if inv.WorkspaceID != s.routing.WorkspaceID {
		return 0, apperrors.NewNotATicketChannel(replyOutsideWorkspace)
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(inv.ChannelTopic), 10, 64)
	if err != nil || userID <= 0 {
		return 0, apperrors.NewNotATicketChannel(replyNotTicket)
	}
	return userID, nil
}

func (s *RelayService) apologize(ctx context.Context, userID int64, text string) {
	if err := s.platform.SendDirect(ctx, userID, text); err != nil {
		s.logger.Debug("failure notice not delivered",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
}

func (s *RelayService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()
	s.dispatcher.Publish(ctx, event)
}

func displayLabel(msg InboundMessage) string {
	name := strings.TrimSpace(msg.SenderDisplayName)
	if name == "" {
		return strconv.FormatInt(msg.SenderID, 10)
	}
	return fmt.Sprintf("%s (%d)", name, msg.SenderID)
}
