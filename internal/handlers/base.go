package handlers

import (
	"bytes"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"marzban-vpn-bot/internal/commands"
	"marzban-vpn-bot/internal/config"
	"marzban-vpn-bot/internal/entitlement"
	errs "marzban-vpn-bot/internal/errors"
	"marzban-vpn-bot/internal/permissions"
	"marzban-vpn-bot/internal/resolver"
	"marzban-vpn-bot/internal/services"
	"marzban-vpn-bot/internal/storage"
	"marzban-vpn-bot/pkg/marzban"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	resolver     *resolver.Service
	entitlements *entitlement.Service
	panel        *marzban.Client
	storage      *storage.Service
	screens      *services.ScreenStateService
	qrService    *services.QRService
	config       *config.Config
	logger       *logrus.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(
	accountResolver *resolver.Service,
	entitlements *entitlement.Service,
	panel *marzban.Client,
	store *storage.Service,
	screens *services.ScreenStateService,
	qrService *services.QRService,
	cfg *config.Config,
	logger *logrus.Logger,
) BaseHandler {
	return BaseHandler{
		resolver:     accountResolver,
		entitlements: entitlements,
		panel:        panel,
		storage:      store,
		screens:      screens,
		qrService:    qrService,
		config:       cfg,
		logger:       logger,
	}
}

// sendTextMessage sends a text message with optional markup
func (h *BaseHandler) sendTextMessage(c telebot.Context, text string, markup *telebot.ReplyMarkup) error {
	opts := &telebot.SendOptions{
		ParseMode: telebot.ModeHTML,
	}

	if markup != nil {
		opts.ReplyMarkup = markup
	}

	_, err := c.Bot().Send(c.Recipient(), text, opts)
	if err != nil {
		h.logger.Errorf("Failed to send message: %v", err)
	}
	return err
}

// sendQRCode sends a QR code for the given URL
func (h *BaseHandler) sendQRCode(c telebot.Context, url string) error {
	qrBytes, err := h.qrService.GenerateQR(url)
	if err != nil {
		return err
	}

	reader := bytes.NewReader(qrBytes)
	photo := &telebot.Photo{File: telebot.FromReader(reader)}

	_, err = c.Bot().Send(c.Recipient(), photo)
	if err != nil {
		h.logger.Errorf("Failed to send QR code: %v", err)
	}
	return err
}

// createMainKeyboard creates the main keyboard for the given access type
func (h *BaseHandler) createMainKeyboard(accessType permissions.AccessType) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{
		ResizeKeyboard: true,
	}

	var rows []telebot.Row

	switch accessType {
	case permissions.Admin:
		rows = []telebot.Row{
			{
				telebot.Btn{Text: commands.PendingRequests},
				telebot.Btn{Text: commands.FindUser},
			},
		}
	case permissions.Member:
		rows = []telebot.Row{
			{
				telebot.Btn{Text: commands.MyVPN},
				telebot.Btn{Text: commands.MyUsage},
			},
			{
				telebot.Btn{Text: commands.FreeTrial},
				telebot.Btn{Text: commands.BuyPlan},
			},
			{
				telebot.Btn{Text: commands.CheckPayment},
				telebot.Btn{Text: commands.NewLink},
			},
		}
	default:
		rows = []telebot.Row{
			{
				telebot.Btn{Text: commands.RequestAccess},
			},
		}
	}

	markup.Reply(rows...)
	return markup
}

// failureMessage maps a typed failure onto a distinct user-facing message.
// Operator-actionable conditions point at support, transient ones suggest a
// retry; a bare error string never reaches the user.
func (h *BaseHandler) failureMessage(err error) string {
	switch {
	case errs.IsAuth(err):
		return "The VPN panel rejected our credentials. Please contact support."
	case errs.IsValidation(err):
		return "The VPN panel rejected the request. Please contact support."
	case errs.IsTransport(err):
		return "The VPN panel is unreachable right now. Please try again in a minute."
	case errs.IsNotFound(err):
		return "Your account was not found. Please try again or contact support."
	case errs.HTTPCode(err) != 0:
		return "The VPN panel returned an unexpected error. Please contact support."
	default:
		return "Something went wrong. Please try again."
	}
}
