package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modkit/modmail-relay/internal/config"
	"github.com/modkit/modmail-relay/internal/domain"
	"github.com/modkit/modmail-relay/internal/naming"
	"github.com/modkit/modmail-relay/internal/platform"
	"github.com/modkit/modmail-relay/internal/policy"
	apperrors "github.com/modkit/modmail-relay/pkg/util"
)

// TicketDirectory is the authoritative mapping from external user id to
// ticket channel. The channel list plus topic metadata is the durable store;
// there is no in-memory index to desynchronize across restarts.
type TicketDirectory interface {
	// FindOpen returns the ticket whose channel topic equals the user id,
	// or nil when no such channel exists.
	FindOpen(ctx context.Context, userID int64) (*domain.Ticket, error)
	// Create creates the ticket channel for the user. Idempotent under
	// concurrent invocation for the same user id: only one channel can
	// result, later callers reuse it.
	Create(ctx context.Context, user domain.ExternalUser) (*domain.Ticket, error)
	// Close deletes the ticket channel and releases the creation lock.
	Close(ctx context.Context, ticket *domain.Ticket, reason string) error
	// ListOpen returns every open ticket in the routing category.
	ListOpen(ctx context.Context) ([]domain.Ticket, error)
	// FindChannelByName resolves a category channel by its label. Used by
	// force close, which deliberately bypasses topic validation.
	FindChannelByName(ctx context.Context, name string) (*platform.ChannelInfo, error)
}

type platformDirectory struct {
	platform platform.Client
	routing  config.RoutingConfig
	botID    int64
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewTicketDirectory builds the directory over the platform channel list.
func NewTicketDirectory(client platform.Client, routing config.RoutingConfig, botID int64, logger *zap.Logger) TicketDirectory {
	return &platformDirectory{
		platform: client,
		routing:  routing,
		botID:    botID,
		logger:   logger,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (d *platformDirectory) FindOpen(ctx context.Context, userID int64) (*domain.Ticket, error) {
	channels, err := d.listChannels(ctx)
	if err != nil {
		return nil, err
	}
	topic := strconv.FormatInt(userID, 10)
	for _, ch := range channels {
		if ch.Topic == topic {
			// An existing channel has at least received its banner.
			return &domain.Ticket{
				ExternalUserID: userID,
				ChannelID:      ch.ID,
				ChannelName:    ch.Name,
				State:          domain.TicketStateActive,
			}, nil
		}
	}
	return nil, nil
}

func (d *platformDirectory) Create(ctx context.Context, user domain.ExternalUser) (*domain.Ticket, error) {
	lock := d.creationLock(user.ID)
	lock.Lock()
	defer lock.Unlock()

	// Another handler may have finished creating while we waited.
	existing, err := d.FindOpen(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	policyInput := policy.Input{
		EveryoneRoleID: d.routing.WorkspaceID,
		StaffRoleID:    d.routing.StaffRoleID,
		BotUserID:      strconv.FormatInt(d.botID, 10),
	}
	if policy.Degraded(policyInput) {
		d.logger.Warn("staff role not configured, ticket visible to bot only",
			zap.Int64("user_id", user.ID))
	}

	in := platform.CreateChannelInput{
		WorkspaceID: d.routing.WorkspaceID,
		CategoryID:  d.routing.CategoryID,
		Name:        naming.ChannelName(user.DisplayName, user.ID),
		Topic:       strconv.FormatInt(user.ID, 10),
		Overwrites:  policy.Overwrites(policyInput),
		Reason:      fmt.Sprintf("modmail ticket for user %d", user.ID),
	}

	ch, err := d.platform.CreateChannel(ctx, in)
	if errors.Is(err, platform.ErrForbidden) {
		d.evictLock(user.ID)
		return nil, apperrors.NewPermissionDenied("the staff workspace refused channel creation", err)
	}
	if err != nil {
		// Unknown failure: one retry with the id-only label before giving up.
		d.logger.Warn("channel creation failed, retrying with fallback name",
			zap.Int64("user_id", user.ID), zap.Error(err))
		in.Name = naming.FallbackChannelName(user.ID)
		ch, err = d.platform.CreateChannel(ctx, in)
		if err != nil {
			d.evictLock(user.ID)
			return nil, apperrors.NewInternalError(fmt.Errorf("create ticket channel for user %d: %w", user.ID, err))
		}
	}

	d.logger.Info("ticket channel created",
		zap.Int64("user_id", user.ID),
		zap.String("channel_id", ch.ID),
		zap.String("channel_name", ch.Name))

	return &domain.Ticket{
		ExternalUserID: user.ID,
		ChannelID:      ch.ID,
		ChannelName:    ch.Name,
		State:          domain.TicketStateOpen,
		CreatedAt:      time.Now(),
	}, nil
}

func (d *platformDirectory) Close(ctx context.Context, ticket *domain.Ticket, reason string) error {
	if err := d.platform.DeleteChannel(ctx, ticket.ChannelID, reason); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			// Channel already gone: release the lock entry anyway.
			d.evictLock(ticket.ExternalUserID)
			return apperrors.NewNotFound("ticket channel", map[string]any{"channel_id": ticket.ChannelID})
		}
		if errors.Is(err, platform.ErrForbidden) {
			return apperrors.NewPermissionDenied("the staff workspace refused channel deletion", err)
		}
		return apperrors.NewInternalError(fmt.Errorf("delete ticket channel %s: %w", ticket.ChannelID, err))
	}
	ticket.State = domain.TicketStateClosed
	d.evictLock(ticket.ExternalUserID)
	d.logger.Info("ticket channel deleted",
		zap.Int64("user_id", ticket.ExternalUserID),
		zap.String("channel_id", ticket.ChannelID))
	return nil
}

func (d *platformDirectory) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	channels, err := d.listChannels(ctx)
	if err != nil {
		return nil, err
	}
	tickets := make([]domain.Ticket, 0, len(channels))
	for _, ch := range channels {
		userID, err := strconv.ParseInt(ch.Topic, 10, 64)
		if err != nil {
			continue
		}
		tickets = append(tickets, domain.Ticket{
			ExternalUserID: userID,
			ChannelID:      ch.ID,
			ChannelName:    ch.Name,
			State:          domain.TicketStateActive,
		})
	}
	return tickets, nil
}

func (d *platformDirectory) FindChannelByName(ctx context.Context, name string) (*platform.ChannelInfo, error) {
	channels, err := d.listChannels(ctx)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		if ch.Name == name {
			found := ch
			return &found, nil
		}
	}
	return nil, apperrors.NewNotFound("channel", map[string]any{"name": name})
}

func (d *platformDirectory) listChannels(ctx context.Context) ([]platform.ChannelInfo, error) {
	channels, err := d.platform.ListChannelsInCategory(ctx, d.routing.WorkspaceID, d.routing.CategoryID)
	if err != nil {
		return nil, apperrors.NewConfigurationUnavailable("the staff inbox is not reachable right now", err)
	}
	return channels, nil
}

func (d *platformDirectory) creationLock(userID int64) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[userID] = lock
	}
	return lock
}

func (d *platformDirectory) evictLock(userID int64) {
	d.mu.Lock()
	delete(d.locks, userID)
	d.mu.Unlock()
}
