package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marzban-vpn-bot/internal/config"
	"marzban-vpn-bot/internal/constants"
	errs "marzban-vpn-bot/internal/errors"
	"marzban-vpn-bot/internal/models"
	"marzban-vpn-bot/internal/storage"
	"marzban-vpn-bot/pkg/marzban"
	"marzban-vpn-bot/pkg/yookassa"
)

// Panel is the subset of the panel client the engine depends on
type Panel interface {
	GetUser(ctx context.Context, username string) (*marzban.User, error)
	ModifyUser(ctx context.Context, username string, fields map[string]interface{}) (*marzban.User, error)
}

// Provider is the subset of the payment client the engine depends on
type Provider interface {
	CreatePayment(ctx context.Context, amount float64, description, idempotenceKey string, metadata map[string]interface{}) (*yookassa.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*yookassa.Payment, error)
}

// Service implements the trial and paid-plan state machine. Grants and
// payment applications for one Telegram ID are serialized through the
// storage layer's per-ID locks.
type Service struct {
	panel    Panel
	provider Provider
	storage  *storage.Service
	cfg      config.PlansConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewService creates a new entitlement service
func NewService(panel Panel, provider Provider, store *storage.Service, cfg config.PlansConfig, logger *logrus.Logger) *Service {
	return &Service{
		panel:    panel,
		provider: provider,
		storage:  store,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Plans returns the plan catalogue
func (s *Service) Plans() []models.Plan {
	return []models.Plan{
		{ID: models.PlanTrial, Title: "Trial", Days: s.cfg.TrialDays, Price: 0},
		{ID: models.PlanMonth, Title: "1 month", Days: 30, Price: s.cfg.MonthPrice},
		{ID: models.PlanYear, Title: "1 year", Days: 365, Price: s.cfg.YearPrice},
	}
}

// Plan looks up a plan by identifier
func (s *Service) Plan(planID string) (models.Plan, bool) {
	for _, plan := range s.Plans() {
		if plan.ID == planID {
			return plan, true
		}
	}
	return models.Plan{}, false
}

// TrialUsed reports whether the one-shot trial was already granted
func (s *Service) TrialUsed(telegramID int64) bool {
	return s.storage.TrialUsed(telegramID)
}

// GrantTrial activates the trial plan on a panel account, at most once per
// Telegram ID. A repeated call is rejected with a StateError and leaves the
// panel expiry untouched.
func (s *Service) GrantTrial(ctx context.Context, telegramID int64, username string) (*marzban.User, error) {
	unlock := s.storage.LockUser(telegramID)
	defer unlock()

	if s.storage.TrialUsed(telegramID) {
		return nil, &errs.StateError{UserID: telegramID, Message: "trial already used"}
	}

	var expire int64
	if s.cfg.TrialDays > 0 {
		expire = s.now().Unix() + int64(s.cfg.TrialDays)*constants.SecondsInDay
	}

	user, err := s.panel.ModifyUser(ctx, username, map[string]interface{}{
		"expire":     expire,
		"data_limit": 0,
		"status":     marzban.StatusActive,
		"note":       fmt.Sprintf("trial granted for tg:%d", telegramID),
	})
	if err != nil {
		return nil, err
	}

	// The flag flips only after the panel accepted the grant, so a failed
	// call does not burn the user's trial.
	if err := s.storage.MarkTrialUsed(telegramID); err != nil {
		s.logger.Errorf("Failed to persist trial flag for %d: %v", telegramID, err)
	}
	if err := s.storage.SetSelectedPlan(telegramID, models.PlanTrial); err != nil {
		s.logger.Errorf("Failed to persist selected plan for %d: %v", telegramID, err)
	}
	if err := s.storage.SetProvenance(telegramID, models.Provenance{
		PlanID:    models.PlanTrial,
		AppliedAt: s.now().Unix(),
	}); err != nil {
		s.logger.Errorf("Failed to persist provenance for %d: %v", telegramID, err)
	}

	s.logger.Infof("Trial granted to %d (%s)", telegramID, username)
	return user, nil
}

// StartPayment creates a provider checkout for a paid plan. The pending
// record is persisted before the confirmation URL is handed out, so an
// abandoned checkout still has a traceable trail.
func (s *Service) StartPayment(ctx context.Context, telegramID int64, username, planID string) (*models.PaymentRequest, string, error) {
	plan, ok := s.Plan(planID)
	if !ok || plan.IsFree() {
		return nil, "", &errs.StateError{UserID: telegramID, Message: fmt.Sprintf("plan %q is not purchasable", planID)}
	}

	idempotenceKey := uuid.NewString()
	payment, err := s.provider.CreatePayment(ctx, plan.Price,
		fmt.Sprintf("VPN subscription: %s", plan.Title),
		idempotenceKey,
		map[string]interface{}{
			"telegram_id": telegramID,
			"plan":        plan.ID,
		})
	if err != nil {
		return nil, "", err
	}

	req := models.PaymentRequest{
		PaymentID:      payment.ID,
		TelegramID:     telegramID,
		Username:       username,
		PlanID:         plan.ID,
		Amount:         plan.Price,
		Status:         models.PaymentPending,
		IdempotenceKey: idempotenceKey,
		CreatedAt:      s.now().Unix(),
	}
	if err := s.storage.SavePayment(req); err != nil {
		return nil, "", err
	}

	s.logger.Infof("Payment %s started for %d: %s, %.2f RUB", payment.ID, telegramID, plan.ID, plan.Price)
	return &req, payment.ConfirmationURL(), nil
}

// ConfirmPayment applies a provider status to a tracked payment request.
// Terminal records are never re-applied: a duplicate succeeded delivery
// returns the already-applied state without touching the panel again.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID, providerStatus string) (*models.PaymentRequest, error) {
	req, ok := s.storage.Payment(paymentID)
	if !ok {
		return nil, &errs.NotFoundError{Entity: "payment request", Key: paymentID}
	}

	unlock := s.storage.LockUser(req.TelegramID)
	defer unlock()

	// Re-read under the lock: a concurrent delivery may have already
	// advanced the record.
	req, _ = s.storage.Payment(paymentID)
	if req.IsTerminal() {
		return &req, nil
	}

	switch providerStatus {
	case yookassa.StatusSucceeded, models.PaymentPaidTest:
		return s.applyPaidPlan(ctx, req, providerStatus)
	case yookassa.StatusCanceled:
		req.Status = models.PaymentCanceled
		if err := s.storage.SavePayment(req); err != nil {
			return nil, err
		}
		s.logger.Infof("Payment %s canceled", paymentID)
		return &req, nil
	default:
		// Still pending on the provider side, nothing to apply yet.
		return &req, nil
	}
}

// PollPayment queries the provider for the current status and runs the
// confirmation path with the answer
func (s *Service) PollPayment(ctx context.Context, paymentID string) (*models.PaymentRequest, error) {
	if _, ok := s.storage.Payment(paymentID); !ok {
		return nil, &errs.NotFoundError{Entity: "payment request", Key: paymentID}
	}

	payment, err := s.provider.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	return s.ConfirmPayment(ctx, paymentID, payment.Status)
}

// applyPaidPlan pushes the purchased entitlement to the panel and marks the
// request terminal. Assumes the per-user lock is held.
func (s *Service) applyPaidPlan(ctx context.Context, req models.PaymentRequest, providerStatus string) (*models.PaymentRequest, error) {
	plan, ok := s.Plan(req.PlanID)
	if !ok {
		return nil, &errs.StateError{UserID: req.TelegramID, Message: fmt.Sprintf("unknown plan %q on payment %s", req.PlanID, req.PaymentID)}
	}

	user, err := s.panel.GetUser(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	newExpire := ComputeExpiry(user.Expire, s.now(), plan.Days)

	if _, err := s.panel.ModifyUser(ctx, req.Username, map[string]interface{}{
		"expire":     newExpire,
		"data_limit": 0,
		"status":     marzban.StatusActive,
		"note":       fmt.Sprintf("%s plan paid via %s", plan.ID, req.PaymentID),
	}); err != nil {
		return nil, err
	}

	req.Status = models.PaymentSucceeded
	if providerStatus == models.PaymentPaidTest {
		req.Status = models.PaymentPaidTest
	}
	if err := s.storage.SavePayment(req); err != nil {
		return nil, err
	}
	if err := s.storage.SetSelectedPlan(req.TelegramID, plan.ID); err != nil {
		s.logger.Errorf("Failed to persist selected plan for %d: %v", req.TelegramID, err)
	}
	if err := s.storage.SetProvenance(req.TelegramID, models.Provenance{
		PlanID:    plan.ID,
		PaymentID: req.PaymentID,
		AppliedAt: s.now().Unix(),
	}); err != nil {
		s.logger.Errorf("Failed to persist provenance for %d: %v", req.TelegramID, err)
	}

	s.logger.Infof("Payment %s applied: %s for %d until %d", req.PaymentID, plan.ID, req.TelegramID, newExpire)
	return &req, nil
}

// ComputeExpiry returns the new expire timestamp after activating a plan of
// the given length. An account still inside an unexpired period is extended
// from its current expiry; an expired or never-bounded account restarts from
// now. All arithmetic is UTC unix seconds.
func ComputeExpiry(current *int64, now time.Time, days int) int64 {
	duration := int64(days) * constants.SecondsInDay
	if current != nil && *current != 0 && *current > now.Unix() {
		return *current + duration
	}
	return now.Unix() + duration
}
