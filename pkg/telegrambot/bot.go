package telegrambot

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"marzban-vpn-bot/internal/config"
	"marzban-vpn-bot/internal/handlers"
	"marzban-vpn-bot/internal/permissions"
)

// Bot represents the Telegram front-end. It owns no business logic: every
// update is dispatched to the handler matching the sender's access level.
type Bot struct {
	bot      *telebot.Bot
	config   *config.Config
	handlers map[permissions.AccessType]handlers.MessageHandler
	permCtrl *permissions.Controller
	logger   *logrus.Logger
}

// NewBot creates a new Telegram bot
func NewBot(
	cfg *config.Config,
	factory *handlers.HandlerFactory,
	permCtrl *permissions.Controller,
	logger *logrus.Logger,
) (*Bot, error) {
	settings := telebot.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			logger.Errorf("Telegram bot error: %v", err)
			if c != nil {
				c.Send("An error occurred. Please try again later.")
			}
		},
	}

	b, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	bot := &Bot{
		bot:      b,
		config:   cfg,
		handlers: make(map[permissions.AccessType]handlers.MessageHandler),
		permCtrl: permCtrl,
		logger:   logger,
	}

	bot.handlers[permissions.Admin] = factory.CreateHandler(permissions.Admin)
	bot.handlers[permissions.Member] = factory.CreateHandler(permissions.Member)
	bot.handlers[permissions.Guest] = factory.CreateHandler(permissions.Guest)

	bot.setupMiddleware()

	return bot, nil
}

// Start starts the bot and blocks until the context is canceled
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting Telegram bot")

	go func() {
		<-ctx.Done()
		b.logger.Info("Stopping Telegram bot")
		b.bot.Stop()
	}()

	b.bot.Start()
	return nil
}

// setupMiddleware sets up the bot middleware and routes
func (b *Bot) setupMiddleware() {
	b.bot.Use(func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			b.logger.Infof("Received update from %d: %s", c.Sender().ID, c.Text())
			return next(c)
		}
	})

	b.bot.Handle(telebot.OnText, b.handleUpdate)
	b.bot.Handle(telebot.OnCallback, b.handleUpdate)
	b.bot.Handle("/start", b.handleUpdate)
}

// handleUpdate dispatches an update to the handler for the sender's access
// level. Each update runs in its own goroutine by the poller, so a slow
// panel call only delays that one user's response.
func (b *Bot) handleUpdate(c telebot.Context) error {
	userID := c.Sender().ID

	accessType := b.permCtrl.GetAccessType(userID)

	handler, ok := b.handlers[accessType]
	if !ok {
		b.logger.Warnf("No handler for access type %d", accessType)
		return c.Send("You don't have permission to use this bot.")
	}

	ctx := context.Background()
	return handler.Handle(ctx, c)
}
