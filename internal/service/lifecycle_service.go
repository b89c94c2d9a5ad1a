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

const (
	msgTicketClosed        = "🔒 Your ticket has been closed by staff."
	msgCloseConfirm        = "🔒 Ticket closed."
	msgDelayAnnounceFormat = "⏳ This ticket will close in %d seconds."
	msgDelayConfirmFormat  = "⏳ Close scheduled in %d seconds."
	msgForceCloseFormat    = "🧹 Channel %s removed."
)

// LifecycleService drives tickets from open to closed, including delayed and
// forced closes.
type LifecycleService struct {
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

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
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

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	return &LifecycleService{
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

// Close closes the ticket of the invoking channel. Channel deletion is the
// state-committing action: when it fails the ticket stays open and the
// failure is reported, never retried automatically.
func (s *LifecycleService) Close(ctx context.Context, inv Invocation) (string, error) {
	ticket, err := s.resolveTicket(inv)
	if err != nil {
		return "", err
	}
	if !s.authorizer.HasStaffCapability(inv.InvokerID, inv.InvokerRoleIDs) {
		return "", apperrors.NewAuthorizationDenied("you need the staff role to close tickets")
	}

	s.notifyClosed(ctx, ticket.ExternalUserID)
	if err := s.directory.Close(ctx, ticket, fmt.Sprintf("closed by staff %d", inv.InvokerID)); err != nil {
		return "", err
	}
	s.recordClose(ctx, ticket, events.StaffActor(inv.InvokerID), events.TicketClosedPayload{})
	return msgCloseConfirm, nil
}

// DelayedClose announces the pending close and schedules it without holding
// any directory lock during the delay.
func (s *LifecycleService) DelayedClose(ctx context.Context, inv Invocation, delaySeconds int) (string, error) {
	ticket, err := s.resolveTicket(inv)
	if err != nil {
		return "", err
	}
	if !s.authorizer.HasStaffCapability(inv.InvokerID, inv.InvokerRoleIDs) {
		return "", apperrors.NewAuthorizationDenied("you need the staff role to close tickets")
	}
	if delaySeconds <= 0 {
		return "", apperrors.NewValidationError("delay must be a positive number of seconds", nil)
	}
	if limit := s.lifecycle.MaxCloseDelaySeconds; limit > 0 && delaySeconds > limit {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("delay may not exceed %d seconds", limit), nil)
	}

	announce := fmt.Sprintf(msgDelayAnnounceFormat, delaySeconds)
	if err := s.platform.SendToChannel(ctx, ticket.ChannelID, announce, nil); err != nil {
		s.logger.Warn("close announcement failed",
			zap.String("channel_id", ticket.ChannelID),
			zap.Error(err))
	}

	invokerID := inv.InvokerID
	scheduled := *ticket
	s.closer.Schedule(ticket.ExternalUserID, time.Duration(delaySeconds)*time.Second, func() {
		s.runScheduledClose(scheduled, invokerID)
	})
	return fmt.Sprintf(msgDelayConfirmFormat, delaySeconds), nil
}

// ForceClose removes a channel by explicit name, or the current channel when
// invoked inside the routing workspace. It bypasses topic validation as an
// escape hatch for orphaned or misconfigured channels and is therefore
// restricted to owner identities.
func (s *LifecycleService) ForceClose(ctx context.Context, inv Invocation, channelName string) (string, error) {
	if !s.authorizer.IsOwner(inv.InvokerID) {
		return "", apperrors.NewAuthorizationDenied("only the owner can force close channels")
	}

	var target platform.ChannelInfo
	switch {
	case strings.TrimSpace(channelName) != "":
		found, err := s.directory.FindChannelByName(ctx, strings.TrimSpace(channelName))
		if err != nil {
			return "", err
		}
		target = *found
	case inv.WorkspaceID == s.routing.WorkspaceID:
		target = platform.ChannelInfo{ID: inv.ChannelID, Name: inv.ChannelName, Topic: inv.ChannelTopic}
	default:
		return "", apperrors.NewValidationError("specify a channel name when invoking outside the staff workspace", nil)
	}

	// A valid topic lets us release the creation lock and stop timers; an
	// invalid one is exactly the orphaned case force close exists for.
	if userID, err := strconv.ParseInt(strings.TrimSpace(target.Topic), 10, 64); err == nil && userID > 0 {
		ticket := &domain.Ticket{ExternalUserID: userID, ChannelID: target.ID, ChannelName: target.Name}
		s.closer.Cancel(userID)
		if err := s.directory.Close(ctx, ticket, fmt.Sprintf("force closed by owner %d", inv.InvokerID)); err != nil {
			return "", err
		}
		s.recordClose(ctx, ticket, events.StaffActor(inv.InvokerID), events.TicketClosedPayload{Forced: true})
	} else {
		if err := s.platform.DeleteChannel(ctx, target.ID, fmt.Sprintf("force closed by owner %d", inv.InvokerID)); err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				return "", apperrors.NewNotFound("channel", map[string]any{"channel_id": target.ID})
			}
			if errors.Is(err, platform.ErrForbidden) {
				return "", apperrors.NewPermissionDenied("the staff workspace refused channel deletion", err)
			}
			return "", apperrors.NewInternalError(fmt.Errorf("delete channel %s: %w", target.ID, err))
		}
		s.metrics.RecordTicketClosed()
	}
	return fmt.Sprintf(msgForceCloseFormat, target.Name), nil
}

// InboxInfo reports routing configuration state and open ticket totals.
func (s *LifecycleService) InboxInfo(ctx context.Context, inv Invocation) (string, error) {
	if !s.authorizer.HasStaffCapability(inv.InvokerID, inv.InvokerRoleIDs) {
		return "", apperrors.NewAuthorizationDenied("you need the staff role to inspect the inbox")
	}

	tickets, err := s.directory.ListOpen(ctx)
	if err != nil {
		return "", err
	}
	opened, closed, inbound, outbound := s.metrics.Snapshot()

	staffRole := s.routing.StaffRoleID
	if staffRole == "" {
		staffRole = "not configured (bot-only visibility)"
	}
	return fmt.Sprintf(
		"📥 Inbox: %d open ticket(s)\nworkspace: %s\ncategory: %s\nstaff role: %s\nsince start: %d opened, %d closed, %d relayed in, %d relayed out",
		len(tickets), s.routing.WorkspaceID, s.routing.CategoryID, staffRole,
		opened, closed, inbound, outbound), nil
}

func (s *LifecycleService) runScheduledClose(ticket domain.Ticket, invokerID int64) {
	// Detached from the invoking request; the close happens on its own time.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.notifyClosed(ctx, ticket.ExternalUserID)
	if err := s.directory.Close(ctx, &ticket, fmt.Sprintf("delayed close by staff %d", invokerID)); err != nil {
		s.logger.Error("scheduled close failed",
			zap.Int64("user_id", ticket.ExternalUserID),
			zap.String("channel_id", ticket.ChannelID),
			zap.Error(err))
		return
	}
	s.recordClose(ctx, &ticket, events.StaffActor(invokerID), events.TicketClosedPayload{Delayed: true})
}

func (s *LifecycleService) resolveTicket(inv Invocation) (*domain.Ticket, error) {
	if inv.WorkspaceID != s.routing.WorkspaceID {
		return nil, apperrors.NewNotATicketChannel(replyOutsideWorkspace)
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(inv.ChannelTopic), 10, 64)
	if err != nil || userID <= 0 {
		return nil, apperrors.NewNotATicketChannel(replyNotTicket)
	}
	return &domain.Ticket{
		ExternalUserID: userID,
		ChannelID:      inv.ChannelID,
		ChannelName:    inv.ChannelName,
		State:          domain.TicketStateActive,
	}, nil
}

// notifyClosed tells the user their ticket closed. Best effort only.
func (s *LifecycleService) notifyClosed(ctx context.Context, userID int64) {
	if err := s.platform.SendDirect(ctx, userID, msgTicketClosed); err != nil {
		s.logger.Debug("close notice not delivered",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
}

func (s *LifecycleService) recordClose(ctx context.Context, ticket *domain.Ticket, actor events.Actor, payload events.TicketClosedPayload) {
	s.metrics.RecordTicketClosed()
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketClosed,
		UserID:    ticket.ExternalUserID,
		ChannelID: ticket.ChannelID,
		Actor:     actor,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
