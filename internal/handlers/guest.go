package handlers

import (
	"context"
	"fmt"

	telebot "gopkg.in/telebot.v3"

	"marzban-vpn-bot/internal/commands"
	"marzban-vpn-bot/internal/permissions"
)

// GuestHandler handles users that were not yet admitted. It only exists in
// deployments with auto-provisioning disabled: access has to be requested
// and approved by an admin.
type GuestHandler struct {
	BaseHandler
}

// NewGuestHandler creates a new guest handler
func NewGuestHandler(base BaseHandler) *GuestHandler {
	return &GuestHandler{
		BaseHandler: base,
	}
}

// CanHandle checks if the handler can handle the given access type
func (h *GuestHandler) CanHandle(accessType permissions.AccessType) bool {
	return accessType == permissions.Guest
}

// Handle handles a message from Telegram
func (h *GuestHandler) Handle(_ context.Context, c telebot.Context) error {
	if c.Text() == commands.RequestAccess {
		return h.handleRequestAccess(c)
	}

	return h.sendTextMessage(c,
		"This service requires approval. Tap the button below to request access.",
		h.createMainKeyboard(permissions.Guest))
}

// handleRequestAccess queues the user and pings the admins
func (h *GuestHandler) handleRequestAccess(c telebot.Context) error {
	sender := c.Sender()

	if h.storage.IsPending(sender.ID) {
		return h.sendTextMessage(c, "Your request is already in the queue. Please wait for approval.", nil)
	}

	if err := h.storage.AddPending(sender.ID); err != nil {
		h.logger.Errorf("Failed to queue %d: %v", sender.ID, err)
		return h.sendTextMessage(c, "Something went wrong. Please try again.", nil)
	}

	for _, adminID := range h.config.Telegram.AdminIDs {
		if _, err := c.Bot().Send(&telebot.User{ID: adminID},
			fmt.Sprintf("New access request from %d (@%s)", sender.ID, sender.Username)); err != nil {
			h.logger.Warnf("Failed to notify admin %d: %v", adminID, err)
		}
	}

	return h.sendTextMessage(c, "Your request was sent. You will be notified once approved.", nil)
}
