package resolver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marzban-vpn-bot/internal/config"
	"marzban-vpn-bot/internal/constants"
	errs "marzban-vpn-bot/internal/errors"
	"marzban-vpn-bot/internal/helpers"
	"marzban-vpn-bot/internal/storage"
	"marzban-vpn-bot/pkg/marzban"
)

// Panel is the subset of the panel client the resolver depends on
type Panel interface {
	UserExists(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, user marzban.User) (*marzban.User, error)
	SearchUsers(ctx context.Context, query string, limit, offset int) (*marzban.UsersPage, error)
}

// Service maps Telegram IDs onto panel accounts. Multiple historical naming
// conventions are probed in a fixed order, cheapest first, and every hit is
// written back into the id-to-username cache so later calls short-circuit.
type Service struct {
	panel   Panel
	storage *storage.Service
	cfg     config.PanelConfig
	logger  *logrus.Logger
}

// NewService creates a new account resolver
func NewService(panel Panel, store *storage.Service, cfg config.PanelConfig, logger *logrus.Logger) *Service {
	return &Service{
		panel:   panel,
		storage: store,
		cfg:     cfg,
		logger:  logger,
	}
}

// Resolve finds the panel username for a Telegram ID. The fallback order is
// a compatibility shim for accounts created under older naming schemes and
// must stay as-is: cached mapping, canonical name, verbatim handle, legacy
// name, then the search endpoint. Returns a NotFoundError when nothing
// matches.
func (s *Service) Resolve(ctx context.Context, telegramID int64, handle string) (string, error) {
	// A cached mapping may be stale if the panel purged the account, so it
	// is revalidated before being trusted.
	if cached, ok := s.storage.CachedUsername(telegramID); ok {
		exists, err := s.panel.UserExists(ctx, cached)
		if err != nil {
			return "", err
		}
		if exists {
			return cached, nil
		}
		s.logger.Warnf("Cached username %s for %d no longer exists on panel", cached, telegramID)
	}

	candidates := []string{helpers.CanonicalUsername(telegramID)}
	if h := helpers.SanitizeHandle(handle); h != "" {
		candidates = append(candidates, h)
	}
	candidates = append(candidates, helpers.LegacyUsername(telegramID))

	for _, candidate := range candidates {
		exists, err := s.panel.UserExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if exists {
			return candidate, s.remember(telegramID, candidate)
		}
	}

	// Last resort: the search endpoint may know the account under a name
	// that differs from the exact candidate, e.g. by case.
	for _, candidate := range candidates {
		page, err := s.panel.SearchUsers(ctx, candidate, constants.SearchPageLimit, 0)
		if err != nil {
			return "", err
		}
		if len(page.Users) > 0 {
			username := page.Users[0].Username
			return username, s.remember(telegramID, username)
		}
	}

	return "", &errs.NotFoundError{Entity: "panel user", Key: fmt.Sprintf("tg:%d", telegramID)}
}

// EnsureExists provisions the canonical account for a Telegram ID if it does
// not already exist. Creation is idempotent from the caller's point of view:
// a concurrent duplicate create reported as a conflict counts as success.
func (s *Service) EnsureExists(ctx context.Context, telegramID int64, handle string) (bool, string, error) {
	username := helpers.CanonicalUsername(telegramID)

	exists, err := s.panel.UserExists(ctx, username)
	if err != nil {
		return false, "", err
	}
	if exists {
		return false, username, s.remember(telegramID, username)
	}

	if !s.cfg.AutoProvision {
		return false, "", &errs.NotFoundError{Entity: "panel user", Key: username}
	}

	note := fmt.Sprintf("provisioned for tg:%d", telegramID)
	if h := helpers.SanitizeHandle(handle); h != "" {
		note = fmt.Sprintf("%s (@%s)", note, h)
	}

	user := marzban.User{
		Username: username,
		Proxies: map[string]map[string]interface{}{
			"vless": {"id": uuid.NewString()},
		},
		Inbounds: map[string][]string{
			"vless": {s.cfg.InboundTag},
		},
		Note: note,
	}

	if _, err := s.panel.CreateUser(ctx, user); err != nil {
		if errs.HTTPCode(err) == http.StatusConflict {
			s.logger.Infof("Account %s already created concurrently", username)
			return false, username, s.remember(telegramID, username)
		}
		return false, "", err
	}

	s.logger.Infof("Provisioned panel account %s for %d", username, telegramID)
	return true, username, s.remember(telegramID, username)
}

// remember writes a resolved mapping back into the cache
func (s *Service) remember(telegramID int64, username string) error {
	if err := s.storage.CacheUsername(telegramID, username); err != nil {
		s.logger.Warnf("Failed to cache username for %d: %v", telegramID, err)
	}
	return nil
}
