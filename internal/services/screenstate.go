package services

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// ScreenState holds short-lived per-user UI context between updates: the
// payment the user is expected to check next and the last rendered message
type ScreenState struct {
	PendingPaymentID string
	LastMessageID    int
}

// ScreenStateService keeps per-user screen state in an expiring in-memory
// cache instead of process-wide variables, so independent instances can
// coexist in tests
type ScreenStateService struct {
	cache  *cache.Cache
	logger *logrus.Logger
}

// NewScreenStateService creates a new screen state service
func NewScreenStateService(logger *logrus.Logger) *ScreenStateService {
	return &ScreenStateService{
		cache:  cache.New(30*time.Minute, 10*time.Minute),
		logger: logger,
	}
}

// Get returns the screen state for a user, empty when none is stored
func (s *ScreenStateService) Get(userID int64) ScreenState {
	if data, found := s.cache.Get(stateKey(userID)); found {
		if state, ok := data.(ScreenState); ok {
			return state
		}
	}
	return ScreenState{}
}

// Set stores the screen state for a user
func (s *ScreenStateService) Set(userID int64, state ScreenState) {
	s.cache.Set(stateKey(userID), state, cache.DefaultExpiration)
	s.logger.Debugf("Set screen state for user %d: %+v", userID, state)
}

// Clear drops the screen state for a user
func (s *ScreenStateService) Clear(userID int64) {
	s.cache.Delete(stateKey(userID))
}

// stateKey formats a user's cache key
func stateKey(userID int64) string {
	return fmt.Sprintf("screen_state_%d", userID)
}
