package handlers

import (
	"context"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"marzban-vpn-bot/internal/config"
	"marzban-vpn-bot/internal/entitlement"
	"marzban-vpn-bot/internal/permissions"
	"marzban-vpn-bot/internal/resolver"
	"marzban-vpn-bot/internal/services"
	"marzban-vpn-bot/internal/storage"
	"marzban-vpn-bot/pkg/marzban"
)

// MessageHandler defines the interface for handling Telegram messages
type MessageHandler interface {
	Handle(ctx context.Context, c telebot.Context) error
	CanHandle(accessType permissions.AccessType) bool
}

// HandlerFactory creates message handlers
type HandlerFactory struct {
	base BaseHandler
}

// NewHandlerFactory creates a new handler factory
func NewHandlerFactory(
	accountResolver *resolver.Service,
	entitlements *entitlement.Service,
	panel *marzban.Client,
	store *storage.Service,
	screens *services.ScreenStateService,
	qrService *services.QRService,
	cfg *config.Config,
	logger *logrus.Logger,
) *HandlerFactory {
	return &HandlerFactory{
		base: NewBaseHandler(accountResolver, entitlements, panel, store, screens, qrService, cfg, logger),
	}
}

// CreateHandler creates a message handler for the given access type
func (f *HandlerFactory) CreateHandler(accessType permissions.AccessType) MessageHandler {
	switch accessType {
	case permissions.Admin:
		return NewAdminHandler(f.base)
	case permissions.Member:
		return NewMemberHandler(f.base)
	default:
		return NewGuestHandler(f.base)
	}
}
