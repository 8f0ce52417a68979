package config

import (
	"time"
)

type Payments struct {
	Provider         string        `env:"PAYMENTS_PROVIDER" envDefault:"stripe"`
	StripeKey        string        `env:"PAYMENTS_STRIPE_KEY"`
	StripeProductID  string        `env:"PAYMENTS_STRIPE_PRODUCT_ID"`
	WebhookSecret    string        `env:"PAYMENTS_WEBHOOK_SECRET"`
	BillingInterval  string        `env:"PAYMENTS_BILLING_INTERVAL" envDefault:"month"`
	GraceDays        int           `env:"PAYMENTS_GRACE_DAYS" envDefault:"3"`
	ChargeTolerance  time.Duration `env:"PAYMENTS_CHARGE_TOLERANCE" envDefault:"72h"`
	SecretsFromVault bool          `env:"PAYMENTS_SECRETS_FROM_VAULT" envDefault:"false"`
}
