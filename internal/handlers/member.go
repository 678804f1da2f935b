package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"marzban-vpn-bot/internal/commands"
	errs "marzban-vpn-bot/internal/errors"
	"marzban-vpn-bot/internal/helpers"
	"marzban-vpn-bot/internal/models"
	"marzban-vpn-bot/internal/permissions"
	"marzban-vpn-bot/internal/services"
	"marzban-vpn-bot/pkg/marzban"
)

// MemberHandler handles commands from admitted users
type MemberHandler struct {
	BaseHandler
	commandHandlers map[string]func(context.Context, telebot.Context) error
}

// NewMemberHandler creates a new member handler
func NewMemberHandler(base BaseHandler) *MemberHandler {
	handler := &MemberHandler{
		BaseHandler: base,
	}

	handler.initializeCommands()
	return handler
}

// CanHandle checks if the handler can handle the given access type
func (h *MemberHandler) CanHandle(accessType permissions.AccessType) bool {
	return accessType == permissions.Member
}

// Handle handles a message from Telegram
func (h *MemberHandler) Handle(ctx context.Context, c telebot.Context) error {
	if c.Callback() != nil {
		return h.handleCallback(ctx, c)
	}

	if handler, ok := h.commandHandlers[c.Text()]; ok {
		return handler(ctx, c)
	}

	return h.handleStart(ctx, c)
}

// initializeCommands initializes the command handlers
func (h *MemberHandler) initializeCommands() {
	h.commandHandlers = map[string]func(context.Context, telebot.Context) error{
		commands.Start:            h.handleStart,
		commands.ReturnToMainMenu: h.handleStart,
		commands.MyVPN:            h.handleMyVPN,
		commands.MyUsage:          h.handleMyUsage,
		commands.FreeTrial:        h.handleFreeTrial,
		commands.BuyPlan:          h.handleBuyPlan,
		commands.CheckPayment:     h.handleCheckPayment,
		commands.NewLink:          h.handleNewLink,
	}
}

// handleStart shows the main menu
func (h *MemberHandler) handleStart(_ context.Context, c telebot.Context) error {
	return h.sendTextMessage(c,
		"Welcome! Use the buttons below to manage your VPN access.",
		h.createMainKeyboard(permissions.Member))
}

// handleMyVPN resolves or provisions the user's account and shows the
// subscription link
func (h *MemberHandler) handleMyVPN(ctx context.Context, c telebot.Context) error {
	sender := c.Sender()

	created, username, err := h.resolver.EnsureExists(ctx, sender.ID, sender.Username)
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	if err := h.storage.Allow(sender.ID); err != nil {
		h.logger.Warnf("Failed to update allow-list for %d: %v", sender.ID, err)
	}

	user, err := h.panel.GetUser(ctx, username)
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	var sb strings.Builder
	if created {
		sb.WriteString("Your VPN account has been created.\n\n")
	}
	sb.WriteString(fmt.Sprintf("<b>Account:</b> %s\n", user.Username))
	sb.WriteString(fmt.Sprintf("<b>Status:</b> %s\n", user.Status))
	sb.WriteString(fmt.Sprintf("<b>Expires:</b> %s\n", helpers.FormatExpiry(user.Expire)))
	sb.WriteString(fmt.Sprintf("<b>Traffic used:</b> %s of %s\n",
		helpers.FormatBytes(user.UsedTraffic), helpers.FormatDataLimit(user.DataLimit)))
	if plan, ok := h.storage.SelectedPlan(sender.ID); ok {
		sb.WriteString(fmt.Sprintf("<b>Plan:</b> %s\n", plan))
	}

	subURL := h.panel.SubscriptionURL(user)
	if subURL != "" {
		sb.WriteString(fmt.Sprintf("\nSubscription link:\n%s", subURL))
	}

	if err := h.sendTextMessage(c, sb.String(), nil); err != nil {
		return err
	}

	if subURL != "" {
		return h.sendQRCode(c, subURL)
	}
	return nil
}

// handleMyUsage shows the per-node traffic report
func (h *MemberHandler) handleMyUsage(ctx context.Context, c telebot.Context) error {
	sender := c.Sender()

	username, err := h.resolver.Resolve(ctx, sender.ID, sender.Username)
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	usage, err := h.panel.GetUsage(ctx, username)
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	var sb strings.Builder
	sb.WriteString("<b>Traffic usage</b>\n\n")
	var total int64
	for _, node := range usage.Usages {
		name := node.NodeName
		if name == "" {
			name = "main"
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", name, helpers.FormatBytes(node.UsedTraffic)))
		total += node.UsedTraffic
	}
	sb.WriteString(fmt.Sprintf("\nTotal: %s", helpers.FormatBytes(total)))

	return h.sendTextMessage(c, sb.String(), nil)
}

// handleFreeTrial grants the one-time trial
func (h *MemberHandler) handleFreeTrial(ctx context.Context, c telebot.Context) error {
	sender := c.Sender()

	if h.entitlements.TrialUsed(sender.ID) {
		return h.sendTextMessage(c, "You have already used your free trial.", nil)
	}

	_, username, err := h.resolver.EnsureExists(ctx, sender.ID, sender.Username)
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	user, err := h.entitlements.GrantTrial(ctx, sender.ID, username)
	if err != nil {
		var se *errs.StateError
		if errors.As(err, &se) {
			return h.sendTextMessage(c, "You have already used your free trial.", nil)
		}
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	if err := h.storage.Allow(sender.ID); err != nil {
		h.logger.Warnf("Failed to update allow-list for %d: %v", sender.ID, err)
	}

	return h.sendTextMessage(c,
		fmt.Sprintf("Your free trial is active until %s. Tap %q to get your subscription link.",
			helpers.FormatExpiry(user.Expire), commands.MyVPN),
		nil)
}

// handleBuyPlan shows the paid plan keyboard
func (h *MemberHandler) handleBuyPlan(_ context.Context, c telebot.Context) error {
	markup := &telebot.ReplyMarkup{}

	var rows []telebot.Row
	for _, plan := range h.entitlements.Plans() {
		if plan.IsFree() {
			continue
		}
		rows = append(rows, telebot.Row{
			markup.Data(fmt.Sprintf("%s · %.0f ₽", plan.Title, plan.Price), "plan", plan.ID),
		})
	}
	markup.Inline(rows...)

	return h.sendTextMessage(c, "Choose a plan:", markup)
}

// handleCheckPayment polls the provider for the payment the user last started
func (h *MemberHandler) handleCheckPayment(ctx context.Context, c telebot.Context) error {
	sender := c.Sender()

	state := h.screens.Get(sender.ID)
	if state.PendingPaymentID == "" {
		return h.sendTextMessage(c, "No payment in progress. Tap "+commands.BuyPlan+" first.", nil)
	}

	req, err := h.entitlements.PollPayment(ctx, state.PendingPaymentID)
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	switch req.Status {
	case models.PaymentSucceeded, models.PaymentPaidTest:
		h.screens.Clear(sender.ID)
		return h.sendTextMessage(c,
			fmt.Sprintf("Payment confirmed, your %s plan is active. Tap %q for your subscription link.",
				req.PlanID, commands.MyVPN),
			nil)
	case models.PaymentCanceled:
		h.screens.Clear(sender.ID)
		return h.sendTextMessage(c, "The payment was canceled. You can start a new one with "+commands.BuyPlan+".", nil)
	default:
		return h.sendTextMessage(c, "The payment is still pending. Finish the checkout and check again.", nil)
	}
}

// handleNewLink rotates the user's subscription link
func (h *MemberHandler) handleNewLink(ctx context.Context, c telebot.Context) error {
	sender := c.Sender()

	username, err := h.resolver.Resolve(ctx, sender.ID, sender.Username)
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	user, err := h.panel.RevokeSubscription(ctx, username)
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	subURL := h.panel.SubscriptionURL(user)
	if err := h.sendTextMessage(c, "Your old link is revoked. New subscription link:\n"+subURL, nil); err != nil {
		return err
	}
	return h.sendQRCode(c, subURL)
}

// handleCallback dispatches inline button presses
func (h *MemberHandler) handleCallback(ctx context.Context, c telebot.Context) error {
	data := strings.TrimPrefix(strings.TrimSpace(c.Callback().Data), "\f")

	if strings.HasPrefix(data, "plan") {
		planID := strings.TrimPrefix(data, "plan|")
		if err := c.Respond(&telebot.CallbackResponse{}); err != nil {
			h.logger.Debugf("Callback respond failed: %v", err)
		}
		return h.startCheckout(ctx, c, planID)
	}

	return c.Respond(&telebot.CallbackResponse{})
}

// startCheckout creates a provider payment and hands the user the
// confirmation URL
func (h *MemberHandler) startCheckout(ctx context.Context, c telebot.Context, planID string) error {
	sender := c.Sender()

	_, username, err := h.resolver.EnsureExists(ctx, sender.ID, sender.Username)
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	req, confirmationURL, err := h.entitlements.StartPayment(ctx, sender.ID, username, planID)
	if err != nil {
		return h.sendTextMessage(c, h.failureMessage(err), nil)
	}

	h.screens.Set(sender.ID, services.ScreenState{PendingPaymentID: req.PaymentID})

	markup := &telebot.ReplyMarkup{}
	markup.Inline(telebot.Row{markup.URL("Pay "+fmt.Sprintf("%.0f ₽", req.Amount), confirmationURL)})

	return h.sendTextMessage(c,
		fmt.Sprintf("Complete the payment, then tap %q.", commands.CheckPayment),
		markup)
}

// renderAccountLine is shared with the admin lookup
func renderAccountLine(user *marzban.User) string {
	return fmt.Sprintf("%s: %s, expires %s, used %s",
		user.Username, user.Status,
		helpers.FormatExpiry(user.Expire),
		helpers.FormatBytes(user.UsedTraffic))
}
