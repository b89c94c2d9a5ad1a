package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modkit/modmail-relay/internal/auth"
	"github.com/modkit/modmail-relay/internal/config"
	"github.com/modkit/modmail-relay/internal/events"
	"github.com/modkit/modmail-relay/internal/platform"
	"github.com/modkit/modmail-relay/internal/repository"
	apperrors "github.com/modkit/modmail-relay/pkg/util"
)

// BroadcastService fans a message out to every user with an open ticket.
type BroadcastService struct {
	directory  repository.TicketDirectory
	platform   platform.Client
	authorizer *auth.Authorizer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.BroadcastConfig
}

// BroadcastDependencies bundles collaborators for the broadcast service.
type BroadcastDependencies struct {
	Directory  repository.TicketDirectory
	Platform   platform.Client
	Authorizer *auth.Authorizer
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Config     config.BroadcastConfig
}

// NewBroadcastService constructs the service.
func NewBroadcastService(deps BroadcastDependencies) *BroadcastService {
	return &BroadcastService{
		directory:  deps.Directory,
		platform:   deps.Platform,
		authorizer: deps.Authorizer,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		cfg:        deps.Config,
	}
}

// Broadcast delivers text to every open-ticket user with an inter-send delay
// to respect platform rate limits. Individual delivery failures never abort
// the remaining fan-out; the result is a sent/failed tally.
func (s *BroadcastService) Broadcast(ctx context.Context, inv Invocation, text string) (string, error) {
	if !s.authorizer.IsOwner(inv.InvokerID) {
		return "", apperrors.NewAuthorizationDenied("only the owner can broadcast")
	}
	if text == "" {
		return "", apperrors.NewValidationError("broadcast text required", nil)
	}

	tickets, err := s.directory.ListOpen(ctx)
	if err != nil {
		return "", err
	}

	sent, failed := 0, 0
	for i, ticket := range tickets {
		if i > 0 {
			if err := platform.Pace(ctx, s.cfg.InterSendDelay()); err != nil {
				failed += len(tickets) - i
				break
			}
		}
		if err := s.platform.SendDirect(ctx, ticket.ExternalUserID, "📢 "+text); err != nil {
			failed++
			s.logger.Warn("broadcast delivery failed",
				zap.Int64("user_id", ticket.ExternalUserID),
				zap.Error(err))
			continue
		}
		sent++
	}

	if s.dispatcher != nil {
		s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventBroadcastCompleted,
			Actor:     events.StaffActor(inv.InvokerID),
			Timestamp: time.Now(),
			Payload:   events.BroadcastCompletedPayload{Sent: sent, Failed: failed},
		})
	}
	return fmt.Sprintf("📢 Broadcast complete: %d sent, %d failed", sent, failed), nil
}
