package permissions

import (
	"github.com/sirupsen/logrus"

	"marzban-vpn-bot/internal/storage"
)

// AccessType represents the access level of a user
type AccessType int

const (
	// Guest represents a user not yet admitted to the service
	Guest AccessType = iota
	// Member represents an admitted user
	Member
	// Admin represents an operator
	Admin
)

// Controller decides what a Telegram user may do: admins come from
// configuration, members from the allow-list, everyone else is a guest.
// With auto-provisioning enabled any non-admin is treated as a member and
// admitted on first successful provisioning.
type Controller struct {
	adminIDs      map[int64]bool
	storage       *storage.Service
	autoProvision bool
	logger        *logrus.Logger
}

// NewController creates a permission controller
func NewController(adminIDs []int64, store *storage.Service, autoProvision bool, logger *logrus.Logger) *Controller {
	adminMap := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		adminMap[id] = true
	}

	return &Controller{
		adminIDs:      adminMap,
		storage:       store,
		autoProvision: autoProvision,
		logger:        logger,
	}
}

// GetAccessType returns the access level for a Telegram user
func (c *Controller) GetAccessType(userID int64) AccessType {
	if c.adminIDs[userID] {
		return Admin
	}
	if c.autoProvision || c.storage.IsAllowed(userID) {
		return Member
	}
	return Guest
}
