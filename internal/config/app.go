package config

type App struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Prometheus Prometheus
	Health     Health
	API        API
	DB         DB
	Nats       Nats
	Vault      Vault
	Payments   Payments
	Reconcile  Reconcile
}
