package config

// Config represents the application configuration
type Config struct {
	Telegram TelegramConfig
	Panel    PanelConfig
	Payments PaymentsConfig
	Webhook  WebhookConfig
	Plans    PlansConfig
	DataDir  string
	LogLevel string
}

// TelegramConfig holds the Telegram bot configuration
type TelegramConfig struct {
	Token    string
	AdminIDs []int64
}

// PanelConfig holds the configuration for the Marzban panel
type PanelConfig struct {
	APIURL        string
	User          string
	Password      string
	InboundTag    string
	SubURLPrefix  string
	AutoProvision bool
}

// PaymentsConfig holds the YooKassa credentials
type PaymentsConfig struct {
	ShopID    string
	SecretKey string
	ReturnURL string
}

// WebhookConfig holds the payment notification endpoint settings
type WebhookConfig struct {
	Addr   string
	Secret string
}

// PlansConfig holds the plan catalogue settings
type PlansConfig struct {
	TrialDays  int // 0 means unlimited time
	MonthPrice float64
	YearPrice  float64
}
