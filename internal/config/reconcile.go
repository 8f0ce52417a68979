package config

import (
	"time"
)

type Reconcile struct {
	WorkerEnabled bool          `env:"RECONCILE_WORKER_ENABLED" envDefault:"false"`
	Interval      time.Duration `env:"RECONCILE_INTERVAL" envDefault:"15m"`
	ChunkSize     int           `env:"RECONCILE_CHUNK_SIZE" envDefault:"100"`
}
