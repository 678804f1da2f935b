package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	// Set default values
	v.SetDefault("log_level", "info")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("WEBHOOK_ADDR", ":8443")
	v.SetDefault("AUTO_PROVISION", true)
	v.SetDefault("TRIAL_DAYS", 7)
	v.SetDefault("PLAN_MONTH_PRICE", 199.0)
	v.SetDefault("PLAN_YEAR_PRICE", 1990.0)

	// Define environment variables
	v.BindEnv("TG_TOKEN")
	v.BindEnv("TG_ADMIN_IDS")
	v.BindEnv("MARZBAN_API_URL")
	v.BindEnv("MARZBAN_USER")
	v.BindEnv("MARZBAN_PASSWORD")
	v.BindEnv("MARZBAN_INBOUND_TAG")
	v.BindEnv("MARZBAN_SUB_URL_PREFIX")
	v.BindEnv("YOOKASSA_SHOP_ID")
	v.BindEnv("YOOKASSA_SECRET_KEY")
	v.BindEnv("YOOKASSA_RETURN_URL")
	v.BindEnv("WEBHOOK_ADDR")
	v.BindEnv("WEBHOOK_SECRET")
	v.BindEnv("DATA_DIR")
	v.BindEnv("AUTO_PROVISION")
	v.BindEnv("TRIAL_DAYS")
	v.BindEnv("PLAN_MONTH_PRICE")
	v.BindEnv("PLAN_YEAR_PRICE")

	cfg := &Config{
		LogLevel: v.GetString("log_level"),
		DataDir:  strings.TrimSpace(v.GetString("DATA_DIR")),
		Telegram: TelegramConfig{
			Token: v.GetString("TG_TOKEN"),
		},
		Panel: PanelConfig{
			APIURL:        strings.TrimRight(strings.TrimSpace(v.GetString("MARZBAN_API_URL")), "/"),
			User:          strings.TrimSpace(v.GetString("MARZBAN_USER")),
			Password:      strings.TrimSpace(v.GetString("MARZBAN_PASSWORD")),
			InboundTag:    strings.TrimSpace(v.GetString("MARZBAN_INBOUND_TAG")),
			SubURLPrefix:  strings.TrimRight(strings.TrimSpace(v.GetString("MARZBAN_SUB_URL_PREFIX")), "/"),
			AutoProvision: v.GetBool("AUTO_PROVISION"),
		},
		Payments: PaymentsConfig{
			ShopID:    strings.TrimSpace(v.GetString("YOOKASSA_SHOP_ID")),
			SecretKey: strings.TrimSpace(v.GetString("YOOKASSA_SECRET_KEY")),
			ReturnURL: strings.TrimSpace(v.GetString("YOOKASSA_RETURN_URL")),
		},
		Webhook: WebhookConfig{
			Addr:   v.GetString("WEBHOOK_ADDR"),
			Secret: v.GetString("WEBHOOK_SECRET"),
		},
		Plans: PlansConfig{
			TrialDays:  v.GetInt("TRIAL_DAYS"),
			MonthPrice: v.GetFloat64("PLAN_MONTH_PRICE"),
			YearPrice:  v.GetFloat64("PLAN_YEAR_PRICE"),
		},
	}

	// Parse admin IDs
	adminIDsStr := v.GetString("TG_ADMIN_IDS")
	if adminIDsStr != "" {
		adminIDsSlice := strings.Split(adminIDsStr, ",")
		adminIDs := make([]int64, 0, len(adminIDsSlice))
		for _, idStr := range adminIDsSlice {
			var id int64
			if _, err := fmt.Sscanf(strings.TrimSpace(idStr), "%d", &id); err == nil {
				adminIDs = append(adminIDs, id)
			}
		}
		cfg.Telegram.AdminIDs = adminIDs
	}

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		return errors.New("TG_TOKEN is required")
	}

	if len(cfg.Telegram.AdminIDs) == 0 {
		return errors.New("TG_ADMIN_IDS is required")
	}

	if cfg.Panel.APIURL == "" {
		return errors.New("MARZBAN_API_URL is required")
	}
	if cfg.Panel.User == "" {
		return errors.New("MARZBAN_USER is required")
	}
	if cfg.Panel.Password == "" {
		return errors.New("MARZBAN_PASSWORD is required")
	}
	if cfg.Panel.InboundTag == "" {
		return errors.New("MARZBAN_INBOUND_TAG is required")
	}

	if cfg.Plans.TrialDays < 0 {
		return errors.New("TRIAL_DAYS must not be negative")
	}

	return nil
}
