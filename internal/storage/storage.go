package storage

import (
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"marzban-vpn-bot/internal/kvstore"
	"marzban-vpn-bot/internal/models"
)

// Document keys, one JSON file each
const (
	keyAllowList    = "allowlist"
	keyPendingSet   = "pending"
	keyUserMap      = "usermap"
	keyTrialUsed    = "trialused"
	keySelectedPlan = "selectedplan"
	keyPayments     = "payments"
	keyProvenance   = "provenance"
)

// Service wraps the key-value store with the typed documents the bot
// maintains: allow-list, pending set, id-to-username map, trial flags,
// selected plans and payment requests. All mutators are read-modify-write
// under a single mutex; cross-operation sequences (trial grant, payment
// application) additionally serialize per Telegram ID via LockUser.
type Service struct {
	store  *kvstore.Store
	mu     sync.Mutex
	logger *logrus.Logger

	lockMu    sync.Mutex
	userLocks map[int64]*sync.Mutex
}

// NewService creates a storage service over the given key-value store
func NewService(store *kvstore.Store, logger *logrus.Logger) *Service {
	return &Service{
		store:     store,
		logger:    logger,
		userLocks: make(map[int64]*sync.Mutex),
	}
}

// LockUser acquires the per-Telegram-ID lock and returns its release func.
// Two near-simultaneous trial grants or plan activations for one user are
// serialized here instead of racing on the underlying documents.
func (s *Service) LockUser(telegramID int64) func() {
	s.lockMu.Lock()
	lock, ok := s.userLocks[telegramID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[telegramID] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// IsAllowed checks if a user is in the allow-list
func (s *Service) IsAllowed(telegramID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.loadIDs(keyAllowList) {
		if id == telegramID {
			return true
		}
	}
	return false
}

// Allow adds a user to the allow-list
func (s *Service) Allow(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.loadIDs(keyAllowList)
	for _, id := range ids {
		if id == telegramID {
			return nil // Already allowed
		}
	}

	return s.store.Save(keyAllowList, append(ids, telegramID))
}

// IsPending checks if a user awaits admin approval
func (s *Service) IsPending(telegramID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.loadIDs(keyPendingSet) {
		if id == telegramID {
			return true
		}
	}
	return false
}

// AddPending queues a user for admin approval
func (s *Service) AddPending(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.loadIDs(keyPendingSet)
	for _, id := range ids {
		if id == telegramID {
			return nil
		}
	}

	return s.store.Save(keyPendingSet, append(ids, telegramID))
}

// RemovePending removes a user from the approval queue
func (s *Service) RemovePending(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.loadIDs(keyPendingSet)
	for i, id := range ids {
		if id == telegramID {
			return s.store.Save(keyPendingSet, append(ids[:i], ids[i+1:]...))
		}
	}
	return nil
}

// PendingUsers returns all users awaiting approval
func (s *Service) PendingUsers() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadIDs(keyPendingSet)
}

// CachedUsername returns the cached panel username for a Telegram ID
func (s *Service) CachedUsername(telegramID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.loadStringMap(keyUserMap)
	username, ok := m[idKey(telegramID)]
	return username, ok
}

// CacheUsername records the panel username resolved for a Telegram ID
func (s *Service) CacheUsername(telegramID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.loadStringMap(keyUserMap)
	m[idKey(telegramID)] = username
	return s.store.Save(keyUserMap, m)
}

// TrialUsed checks the one-shot trial flag for a user
func (s *Service) TrialUsed(telegramID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]bool)
	s.store.Load(keyTrialUsed, &m)
	return m[idKey(telegramID)]
}

// MarkTrialUsed sets the trial flag. The flag is monotonic: nothing in the
// normal flow ever clears it.
func (s *Service) MarkTrialUsed(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]bool)
	s.store.Load(keyTrialUsed, &m)
	m[idKey(telegramID)] = true
	return s.store.Save(keyTrialUsed, m)
}

// SelectedPlan returns the most recently activated plan for display purposes.
// The panel's expire and status fields remain the source of truth.
func (s *Service) SelectedPlan(telegramID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.loadStringMap(keySelectedPlan)
	plan, ok := m[idKey(telegramID)]
	return plan, ok
}

// SetSelectedPlan records the last activated plan, last-write-wins
func (s *Service) SetSelectedPlan(telegramID int64, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.loadStringMap(keySelectedPlan)
	m[idKey(telegramID)] = planID
	return s.store.Save(keySelectedPlan, m)
}

// Payment returns the stored payment request for a provider payment ID
func (s *Service) Payment(paymentID string) (models.PaymentRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.loadPayments()
	req, ok := m[paymentID]
	return req, ok
}

// SavePayment stores or replaces a payment request record
func (s *Service) SavePayment(req models.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.loadPayments()
	m[req.PaymentID] = req
	return s.store.Save(keyPayments, m)
}

// PaymentsForUser returns all stored payment requests for a Telegram ID
func (s *Service) PaymentsForUser(telegramID int64) []models.PaymentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.PaymentRequest
	for _, req := range s.loadPayments() {
		if req.TelegramID == telegramID {
			result = append(result, req)
		}
	}
	return result
}

// Provenance returns the structured entitlement provenance for a user
func (s *Service) Provenance(telegramID int64) (models.Provenance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]models.Provenance)
	s.store.Load(keyProvenance, &m)
	p, ok := m[idKey(telegramID)]
	return p, ok
}

// SetProvenance records why a user's panel account carries its entitlement
func (s *Service) SetProvenance(telegramID int64, p models.Provenance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]models.Provenance)
	s.store.Load(keyProvenance, &m)
	m[idKey(telegramID)] = p
	return s.store.Save(keyProvenance, m)
}

// loadIDs loads an ID set document, assumes s.mu is held
func (s *Service) loadIDs(key string) []int64 {
	ids := make([]int64, 0)
	s.store.Load(key, &ids)
	return ids
}

// loadStringMap loads a string map document, assumes s.mu is held
func (s *Service) loadStringMap(key string) map[string]string {
	m := make(map[string]string)
	s.store.Load(key, &m)
	return m
}

// loadPayments loads the payment request document, assumes s.mu is held
func (s *Service) loadPayments() map[string]models.PaymentRequest {
	m := make(map[string]models.PaymentRequest)
	s.store.Load(keyPayments, &m)
	return m
}

// idKey formats a Telegram ID as a JSON object key
func idKey(telegramID int64) string {
	return strconv.FormatInt(telegramID, 10)
}
