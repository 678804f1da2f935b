package models

// Plan identifiers used across the entitlement engine and persisted in the
// selected-plan document
const (
	PlanTrial = "trial"
	PlanMonth = "month"
	PlanYear  = "year"
)

// Plan represents a named entitlement tier
type Plan struct {
	ID    string
	Title string
	Days  int // 0 means unlimited time
	Price float64
}

// IsFree reports whether the plan requires no payment
func (p Plan) IsFree() bool {
	return p.Price == 0
}
