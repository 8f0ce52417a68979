package config

import (
	"time"
)

type Nats struct {
	URL              string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	MaxReconnects    int           `env:"NATS_MAX_RECONNECTS" envDefault:"10"`
	ReconnectTimeout time.Duration `env:"NATS_RECONNECT_TIMEOUT" envDefault:"10s"`
	ChargeSubject    string        `env:"NATS_CHARGE_SUBJECT" envDefault:"payments.charge"`
}

const groupPrefix = "sponsorship_storage"

// GenerateGroupName returns the queue group shared by every replica of the service.
func GenerateGroupName(name string) string {
	return groupPrefix + "_" + name
}
