/**
 * @description
 * Configuration management for the payout service. Settings are loaded from
 * environment variables with defaults for schedules and business constants.
 * The retry cap, commission rate, and referral window are configuration
 * rather than hardcoded so product can change them without a code change.
 */
package config

import (
	"github.com/spf13/viper"
)

// Config holds all configuration for the payout service.
type Config struct {
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	StripeKey   string `mapstructure:"STRIPE_SECRET_KEY"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	JWKSURL        string `mapstructure:"CLERK_JWKS_URL"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	// PlatformBaseURL is where Stripe sends creators back after onboarding.
	PlatformBaseURL string `mapstructure:"PLATFORM_BASE_URL"`
	DefaultCurrency string `mapstructure:"DEFAULT_CURRENCY"`

	TransferRetrySchedule     string `mapstructure:"TRANSFER_RETRY_SCHEDULE"`
	CommissionAccrualSchedule string `mapstructure:"COMMISSION_ACCRUAL_SCHEDULE"`
	CommissionPayoutSchedule  string `mapstructure:"COMMISSION_PAYOUT_SCHEDULE"`

	RetryMaxAttempts int `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryBatchSize   int `mapstructure:"RETRY_BATCH_SIZE"`

	CommissionRateBPS         int64 `mapstructure:"COMMISSION_RATE_BPS"`
	ReferralWindowMonths      int   `mapstructure:"REFERRAL_WINDOW_MONTHS"`
	ReferralActivationRevenue int64 `mapstructure:"REFERRAL_ACTIVATION_REVENUE"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("PORT", "8086")
	viper.SetDefault("DEFAULT_CURRENCY", "usd")
	viper.SetDefault("TRANSFER_RETRY_SCHEDULE", "*/5 * * * *")      // Every 5 minutes.
	viper.SetDefault("COMMISSION_ACCRUAL_SCHEDULE", "*/10 * * * *") // Every 10 minutes.
	viper.SetDefault("COMMISSION_PAYOUT_SCHEDULE", "0 3 * * 1")     // At 03:00 on Monday.
	viper.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	viper.SetDefault("RETRY_BATCH_SIZE", 10)
	viper.SetDefault("COMMISSION_RATE_BPS", 750)            // 7.5% of qualifying revenue.
	viper.SetDefault("REFERRAL_WINDOW_MONTHS", 9)           // From activation, not signup.
	viper.SetDefault("REFERRAL_ACTIVATION_REVENUE", 5000)   // $50.00 lifetime revenue.
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("PLATFORM_BASE_URL")
	_ = viper.BindEnv("DEFAULT_CURRENCY")
	_ = viper.BindEnv("TRANSFER_RETRY_SCHEDULE")
	_ = viper.BindEnv("COMMISSION_ACCRUAL_SCHEDULE")
	_ = viper.BindEnv("COMMISSION_PAYOUT_SCHEDULE")
	_ = viper.BindEnv("RETRY_MAX_ATTEMPTS")
	_ = viper.BindEnv("RETRY_BATCH_SIZE")
	_ = viper.BindEnv("COMMISSION_RATE_BPS")
	_ = viper.BindEnv("REFERRAL_WINDOW_MONTHS")
	_ = viper.BindEnv("REFERRAL_ACTIVATION_REVENUE")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
