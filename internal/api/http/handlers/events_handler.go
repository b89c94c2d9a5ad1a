package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/modkit/modmail-relay/internal/api/dto"
	"github.com/modkit/modmail-relay/internal/persistence"
	"github.com/modkit/modmail-relay/internal/service"
	apperrors "github.com/modkit/modmail-relay/pkg/util"
)

// EventsHandler receives forwarded platform events and routes them to the
// relay engine. Deliveries are at-least-once, so every event carries a
// delivery id that is checked against the deduper before any side effect.
type EventsHandler struct {
	relay     *service.RelayService
	lifecycle *service.LifecycleService
	broadcast *service.BroadcastService
	deduper   persistence.Deduper
}

// NewEventsHandler constructs handler.
func NewEventsHandler(relay *service.RelayService, lifecycle *service.LifecycleService, broadcast *service.BroadcastService, deduper persistence.Deduper) *EventsHandler {
	return &EventsHandler{relay: relay, lifecycle: lifecycle, broadcast: broadcast, deduper: deduper}
}

// DirectMessage POST /events/direct-message.
func (h *EventsHandler) DirectMessage(c *fiber.Ctx) error {
	var req dto.DirectMessageEvent
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.SenderID <= 0 {
		return apperrors.NewValidationError("sender_id required", nil)
	}
	if !h.deduper.FirstDelivery(c.UserContext(), req.DeliveryID) {
		return c.Status(fiber.StatusAccepted).JSON(dto.EventAccepted{Status: "accepted", Duplicate: true})
	}

	msg := service.InboundMessage{
		SenderID:          req.SenderID,
		SenderDisplayName: req.SenderDisplayName,
		IsAutomated:       req.IsAutomated,
		Body:              req.Body,
		AttachmentURLs:    req.AttachmentURLs,
	}
	if err := h.relay.HandleInbound(c.UserContext(), msg); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.EventAccepted{Status: "accepted"})
}

// GuildCommand POST /events/guild-command.
func (h *EventsHandler) GuildCommand(c *fiber.Ctx) error {
	var req dto.GuildCommandEvent
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.InvokerID <= 0 || req.ChannelID == "" {
		return apperrors.NewValidationError("invoker_id and channel_id required", nil)
	}
	if !h.deduper.FirstDelivery(c.UserContext(), req.DeliveryID) {
		return c.Status(fiber.StatusAccepted).JSON(dto.EventAccepted{Status: "accepted", Duplicate: true})
	}

	inv := service.Invocation{
		InvokerID:      req.InvokerID,
		InvokerRoleIDs: req.InvokerRoleIDs,
		WorkspaceID:    req.WorkspaceID,
		ChannelID:      req.ChannelID,
		ChannelName:    req.ChannelName,
		ChannelTopic:   req.ChannelTopic,
	}
	args := strings.TrimSpace(req.Args)

	var (
		reply string
		err   error
	)
	switch strings.ToLower(req.Command) {
	case "reply":
		reply, err = h.relay.Reply(c.UserContext(), inv, args)
	case "close":
		reply, err = h.lifecycle.Close(c.UserContext(), inv)
	case "delayclose":
		var delay int
		delay, err = parseDelay(args)
		if err == nil {
			reply, err = h.lifecycle.DelayedClose(c.UserContext(), inv, delay)
		}
	case "forceclose":
		reply, err = h.lifecycle.ForceClose(c.UserContext(), inv, args)
	case "inboxinfo":
		reply, err = h.lifecycle.InboxInfo(c.UserContext(), inv)
	case "broadcast":
		reply, err = h.broadcast.Broadcast(c.UserContext(), inv, args)
	default:
		return apperrors.NewValidationError("unknown command", map[string]any{"command": req.Command})
	}
	if err != nil {
		return err
	}
	return c.JSON(dto.CommandResponse{Reply: reply})
}

func parseDelay(args string) (int, error) {
	field := strings.Fields(args)
	if len(field) == 0 {
		return 0, apperrors.NewValidationError("delay seconds required", nil)
	}
	delay, err := strconv.Atoi(field[0])
	if err != nil {
		return 0, apperrors.NewValidationError("delay must be a whole number of seconds", nil)
	}
	return delay, nil
}
