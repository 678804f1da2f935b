package models

// Payment request statuses. Transitions are monotonic forward: pending may
// become succeeded or canceled, terminal states only re-confirm themselves.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentCanceled  = "canceled"
	PaymentPaidTest  = "paid_test"
)

// PaymentRequest tracks a provider-side checkout transaction locally,
// keyed by the provider-issued payment ID
type PaymentRequest struct {
	PaymentID      string  `json:"payment_id"`
	TelegramID     int64   `json:"telegram_id"`
	Username       string  `json:"username"`
	PlanID         string  `json:"plan_id"`
	Amount         float64 `json:"amount"`
	Status         string  `json:"status"`
	IdempotenceKey string  `json:"idempotence_key"`
	CreatedAt      int64   `json:"created_at"`
}

// IsTerminal reports whether the request reached a final status
func (r PaymentRequest) IsTerminal() bool {
	return r.Status == PaymentSucceeded || r.Status == PaymentCanceled || r.Status == PaymentPaidTest
}

// Provenance records why a panel account carries its current entitlement.
// The panel's free-text note only mirrors a human-readable summary of this.
type Provenance struct {
	PlanID    string `json:"plan_id"`
	PaymentID string `json:"payment_id,omitempty"`
	AppliedAt int64  `json:"applied_at"`
}
