package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"marzban-vpn-bot/internal/commands"
	"marzban-vpn-bot/internal/permissions"
)

// AdminHandler handles operator commands
type AdminHandler struct {
	BaseHandler
	commandHandlers map[string]func(context.Context, telebot.Context) error
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(base BaseHandler) *AdminHandler {
	handler := &AdminHandler{
		BaseHandler: base,
	}

	handler.initializeCommands()
	return handler
}

// CanHandle checks if the handler can handle the given access type
func (h *AdminHandler) CanHandle(accessType permissions.AccessType) bool {
	return accessType == permissions.Admin
}

// Handle handles a message from Telegram
func (h *AdminHandler) Handle(ctx context.Context, c telebot.Context) error {
	if c.Callback() != nil {
		return h.handleCallback(ctx, c)
	}

	text := c.Text()
	if handler, ok := h.commandHandlers[text]; ok {
		return handler(ctx, c)
	}
	if strings.HasPrefix(text, "/user ") {
		return h.handleUserLookup(ctx, c, strings.TrimSpace(strings.TrimPrefix(text, "/user ")))
	}

	return h.handleStart(ctx, c)
}

// initializeCommands initializes the command handlers
func (h *AdminHandler) initializeCommands() {
	h.commandHandlers = map[string]func(context.Context, telebot.Context) error{
		commands.Start:            h.handleStart,
		commands.ReturnToMainMenu: h.handleStart,
		commands.PendingRequests:  h.handlePendingRequests,
		commands.FindUser:         h.handleFindUserHint,
	}
}

// handleStart shows the admin menu
func (h *AdminHandler) handleStart(_ context.Context, c telebot.Context) error {
	return h.sendTextMessage(c,
		"Admin menu. Use the buttons below.",
		h.createMainKeyboard(permissions.Admin))
}

// handlePendingRequests lists users awaiting approval with inline actions
func (h *AdminHandler) handlePendingRequests(_ context.Context, c telebot.Context) error {
	pending := h.storage.PendingUsers()
	if len(pending) == 0 {
		return h.sendTextMessage(c, "No pending access requests.", nil)
	}

	for _, id := range pending {
		markup := &telebot.ReplyMarkup{}
		markup.Inline(telebot.Row{
			markup.Data("Approve", "approve", strconv.FormatInt(id, 10)),
			markup.Data("Reject", "reject", strconv.FormatInt(id, 10)),
		})
		if err := h.sendTextMessage(c, fmt.Sprintf("Access request from <code>%d</code>", id), markup); err != nil {
			return err
		}
	}
	return nil
}

// handleFindUserHint explains the lookup command
func (h *AdminHandler) handleFindUserHint(_ context.Context, c telebot.Context) error {
	return h.sendTextMessage(c, "Send <code>/user &lt;telegram id&gt;</code> to inspect an account.", nil)
}

// handleUserLookup resolves and displays a member's panel account
func (h *AdminHandler) handleUserLookup(ctx context.Context, c telebot.Context, arg string) error {
	telegramID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return h.sendTextMessage(c, "Expected a numeric Telegram ID.", nil)
	}

	username, err := h.resolver.Resolve(ctx, telegramID, "")
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	user, err := h.panel.GetUser(ctx, username)
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	var sb strings.Builder
	sb.WriteString(renderAccountLine(user) + "\n")
	if plan, ok := h.storage.SelectedPlan(telegramID); ok {
		sb.WriteString(fmt.Sprintf("Plan: %s\n", plan))
	}
	if prov, ok := h.storage.Provenance(telegramID); ok {
		sb.WriteString(fmt.Sprintf("Granted via %s", prov.PlanID))
		if prov.PaymentID != "" {
			sb.WriteString(fmt.Sprintf(" (payment %s)", prov.PaymentID))
		}
		sb.WriteString("\n")
	}

	return h.sendTextMessage(c, sb.String(), nil)
}

// handleCallback dispatches approve/reject button presses
func (h *AdminHandler) handleCallback(_ context.Context, c telebot.Context) error {
	data := strings.TrimPrefix(strings.TrimSpace(c.Callback().Data), "\f")

	switch {
	case strings.HasPrefix(data, "approve|"):
		return h.approve(c, strings.TrimPrefix(data, "approve|"))
	case strings.HasPrefix(data, "reject|"):
		return h.reject(c, strings.TrimPrefix(data, "reject|"))
	}

	return c.Respond(&telebot.CallbackResponse{})
}

// approve admits a pending user and notifies them
func (h *AdminHandler) approve(c telebot.Context, arg string) error {
	telegramID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return c.Respond(&telebot.CallbackResponse{Text: "Bad user ID"})
	}

	if err := h.storage.Allow(telegramID); err != nil {
		h.logger.Errorf("Failed to allow %d: %v", telegramID, err)
		return c.Respond(&telebot.CallbackResponse{Text: "Storage error"})
	}
	if err := h.storage.RemovePending(telegramID); err != nil {
		h.logger.Errorf("Failed to unqueue %d: %v", telegramID, err)
	}

	if _, err := c.Bot().Send(&telebot.User{ID: telegramID},
		"Your access request was approved. Send /start to begin."); err != nil {
		h.logger.Warnf("Failed to notify %d about approval: %v", telegramID, err)
	}

	if err := c.Respond(&telebot.CallbackResponse{Text: "Approved"}); err != nil {
		return err
	}
	return h.sendTextMessage(c, fmt.Sprintf("User <code>%d</code> approved.", telegramID), nil)
}

// reject drops a pending request
func (h *AdminHandler) reject(c telebot.Context, arg string) error {
	telegramID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return c.Respond(&telebot.CallbackResponse{Text: "Bad user ID"})
	}

	if err := h.storage.RemovePending(telegramID); err != nil {
		h.logger.Errorf("Failed to unqueue %d: %v", telegramID, err)
		return c.Respond(&telebot.CallbackResponse{Text: "Storage error"})
	}

	if err := c.Respond(&telebot.CallbackResponse{Text: "Rejected"}); err != nil {
		return err
	}
	return h.sendTextMessage(c, fmt.Sprintf("User <code>%d</code> rejected.", telegramID), nil)
}
