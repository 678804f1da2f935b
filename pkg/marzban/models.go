package marzban

// User statuses reported by the panel
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
	StatusExpired  = "expired"
)

// User represents a panel account. Pointer fields distinguish "not returned"
// from explicit values: a nil Expire means the panel did not report one, an
// explicit 0 means unlimited time.
type User struct {
	Username        string                            `json:"username"`
	Status          string                            `json:"status,omitempty"`
	Expire          *int64                            `json:"expire,omitempty"`
	DataLimit       *int64                            `json:"data_limit,omitempty"`
	UsedTraffic     int64                             `json:"used_traffic,omitempty"`
	SubscriptionURL string                            `json:"subscription_url,omitempty"`
	Note            string                            `json:"note,omitempty"`
	Proxies         map[string]map[string]interface{} `json:"proxies,omitempty"`
	Inbounds        map[string][]string               `json:"inbounds,omitempty"`
}

// Unlimited reports whether the account has no time bound. A missing expire
// is treated the same as an explicit zero: never conflate it with "expired".
func (u *User) Unlimited() bool {
	return u.Expire == nil || *u.Expire == 0
}

// UsersPage represents one page of the panel's user search endpoint
type UsersPage struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}

// NodeUsage represents traffic consumed on a single node
type NodeUsage struct {
	NodeID      *int64 `json:"node_id"`
	NodeName    string `json:"node_name"`
	UsedTraffic int64  `json:"used_traffic"`
}

// UserUsage represents the per-node usage report for an account
type UserUsage struct {
	Username string      `json:"username"`
	Usages   []NodeUsage `json:"usages"`
}

// tokenResponse represents the admin token endpoint response
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
