package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/s-larionov/process-manager"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/shelter-labs/sponsorship-storage/internal/billing"
	"github.com/shelter-labs/sponsorship-storage/internal/config"
	"github.com/shelter-labs/sponsorship-storage/internal/donation"
	"github.com/shelter-labs/sponsorship-storage/internal/events"
	"github.com/shelter-labs/sponsorship-storage/internal/gateway/stripe"
	"github.com/shelter-labs/sponsorship-storage/internal/guardianship"
	"github.com/shelter-labs/sponsorship-storage/internal/paymentmethod"
	"github.com/shelter-labs/sponsorship-storage/internal/reconcile"
	"github.com/shelter-labs/sponsorship-storage/internal/secrets"
	"github.com/shelter-labs/sponsorship-storage/internal/subscription"
	"github.com/shelter-labs/sponsorship-storage/pkg/health"
	"github.com/shelter-labs/sponsorship-storage/pkg/httpsrv"
	"github.com/shelter-labs/sponsorship-storage/pkg/prometheus"
)

const (
	webhookPathPrefix = "/webhooks/"
	bootstrapTimeout  = 30 * time.Second
)

type Application struct {
	sigChan <-chan os.Signal
	manager *process.Manager
	cfg     config.App
	db      *gorm.DB
	nc      *nats.Conn

	publisher subscription.Publisher
	secrets   secrets.ProviderSecrets

	pm       *paymentmethod.Service
	donation *donation.Service
	sub      *subscription.Service
	gs       *guardianship.Service

	processor   *billing.Processor
	sponsorship *billing.Sponsorship
	runner      *reconcile.Runner
}

// NewApplication bootstraps the long-running service with every worker.
func NewApplication(cfg config.App) (*Application, error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	a := &Application{
		sigChan: sigChan,
		cfg:     cfg,
		manager: process.NewManager(),
	}

	err := a.bootstrap(
		a.initDB,
		a.initMigrations,
		a.initNats,
		a.initSecrets,

		// Init Dependencies
		a.initServices,

		// Init Workers: Application
		a.initConsumer,
		a.initReconcileWorker,
		a.initAPI,

		// Init Workers: System
		a.initPrometheusWorker,
		a.initHealthWorker,
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// NewTask bootstraps the services only, for one-shot commands. Events are dropped.
func NewTask(cfg config.App) (*Application, error) {
	a := &Application{
		cfg:       cfg,
		publisher: events.Nop{},
	}

	err := a.bootstrap(
		a.initDB,
		a.initSecrets,
		a.initServices,
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (a *Application) Run() {
	a.manager.StartAll()
	a.registerShutdown()
}

// Reconcile runs both reconciliation sweeps once for the given moment.
func (a *Application) Reconcile(ctx context.Context, at time.Time) (reconcile.Result, error) {
	return a.runner.Run(ctx, at)
}

func (a *Application) bootstrap(initializers ...func() error) error {
	for _, initializer := range initializers {
		if err := initializer(); err != nil {
			return err
		}
	}

	return nil
}

func (a *Application) initDB() error {
	db, err := gorm.Open(postgres.Open(a.cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return err
	}

	ps, err := db.DB()
	if err != nil {
		return err
	}
	ps.SetMaxOpenConns(a.cfg.DB.MaxOpenConnections)

	a.db = db
	if a.cfg.DB.Debug {
		a.db = db.Debug()
	}

	return err
}

func (a *Application) initMigrations() error {
	if !a.cfg.DB.AutoMigrate {
		return nil
	}

	err := a.db.AutoMigrate(
		&paymentmethod.PaymentMethod{},
		&donation.Donation{},
		&guardianship.Guardianship{},
		&guardianship.GuardianshipDonation{},
		&subscription.Subscription{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}

func (a *Application) initNats() error {
	nc, err := nats.Connect(
		a.cfg.Nats.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(a.cfg.Nats.MaxReconnects),
		nats.ReconnectWait(a.cfg.Nats.ReconnectTimeout),
	)
	if err != nil {
		return err
	}

	pb, err := events.NewPublisher(nc)
	if err != nil {
		return err
	}

	a.nc = nc
	a.publisher = pb

	return nil
}

func (a *Application) initSecrets() error {
	a.secrets = secrets.ProviderSecrets{
		APIKey:        a.cfg.Payments.StripeKey,
		WebhookSecret: a.cfg.Payments.WebhookSecret,
		ProductID:     a.cfg.Payments.StripeProductID,
	}

	if !a.cfg.Payments.SecretsFromVault {
		return nil
	}

	cli, err := secrets.NewVaultClient(a.cfg.Vault.Address, a.cfg.Vault.Token)
	if err != nil {
		return err
	}

	sec, err := secrets.NewProviderRepo(cli, a.cfg.Vault.BasePath).Get(a.cfg.Payments.Provider)
	if err != nil {
		return fmt.Errorf("load %s secrets: %w", a.cfg.Payments.Provider, err)
	}

	a.secrets = sec

	return nil
}

func (a *Application) initServices() error {
	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	a.pm = paymentmethod.NewService(paymentmethod.NewRepo(a.db), paymentmethod.NewCache())
	if err := a.pm.EnsureDefaults(ctx, a.cfg.Payments.Provider); err != nil {
		return fmt.Errorf("payment methods: %w", err)
	}

	interval, err := subscription.ParseInterval(a.cfg.Payments.BillingInterval)
	if err != nil {
		return fmt.Errorf("billing interval: %w", err)
	}

	gw, err := stripe.NewGateway(a.secrets.APIKey, a.secrets.ProductID)
	if err != nil {
		return fmt.Errorf("stripe gateway: %w", err)
	}

	a.sub = subscription.NewService(
		subscription.NewRepo(a.db),
		a.pm,
		a.publisher,
		subscription.Options{
			Interval:        interval,
			ChargeTolerance: a.cfg.Payments.ChargeTolerance,
			ChunkSize:       a.cfg.Reconcile.ChunkSize,
		},
		gw,
	)
	a.donation = donation.NewService(donation.NewRepo(a.db), a.pm, a.publisher)
	a.gs = guardianship.NewService(guardianship.NewRepo(a.db), a.donation, a.sub, a.publisher, a.cfg.Reconcile.ChunkSize)

	a.processor = billing.NewProcessor(a.donation, a.sub, a.gs, a.cfg.Payments.GraceDays)
	a.sponsorship = billing.NewSponsorship(a.gs, a.sub, a.cfg.Payments.GraceDays)
	a.runner = reconcile.NewRunner(a.gs, a.sub)

	return nil
}

func (a *Application) initConsumer() error {
	cs, err := billing.NewConsumer(a.nc, a.cfg.Nats.ChargeSubject, a.processor)
	if err != nil {
		return fmt.Errorf("charge consumer: %w", err)
	}

	a.manager.AddWorker(process.NewCallbackWorker("charge-consumer", cs.Start))

	return nil
}

func (a *Application) initReconcileWorker() error {
	if !a.cfg.Reconcile.WorkerEnabled {
		return nil
	}

	w := reconcile.NewWorker(a.runner, a.cfg.Reconcile.Interval)
	a.manager.AddWorker(process.NewCallbackWorker("reconcile", w.Start))

	return nil
}

func (a *Application) initAPI() error {
	verifier, err := stripe.NewVerifier(a.secrets.WebhookSecret)
	if err != nil {
		return fmt.Errorf("stripe webhook: %w", err)
	}

	r := httpsrv.NewRouter(a.cfg.API.AdminToken, webhookPathPrefix)

	billing.NewWebhookHandler(a.processor, verifier).Register(r)
	billing.NewServer(a.sponsorship).Register(r)
	guardianship.NewServer(a.gs).Register(r)
	subscription.NewServer(a.sub).Register(r)
	donation.NewServer(a.donation).Register(r)
	paymentmethod.NewServer(a.pm).Register(r)
	reconcile.NewServer(a.runner).Register(r)

	a.manager.AddWorker(process.NewServerWorker("API", httpsrv.NewServer(a.cfg.API.Bind, r)))

	return nil
}

func (a *Application) initPrometheusWorker() error {
	srv := prometheus.NewServer(a.cfg.Prometheus.Listen, "/metrics")
	a.manager.AddWorker(process.NewServerWorker("prometheus", srv))

	return nil
}

func (a *Application) initHealthWorker() error {
	checks := map[string]health.Check{
		"db": func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}

			return sqlDB.PingContext(ctx)
		},
		"nats": func(context.Context) error {
			if !a.nc.IsConnected() {
				return fmt.Errorf("nats status: %s", a.nc.Status())
			}

			return nil
		},
	}

	srv := health.NewHealthCheckServer(a.cfg.Health.Listen, "/status", health.DefaultHandler(checks))
	a.manager.AddWorker(process.NewServerWorker("health", srv))

	return nil
}

func (a *Application) registerShutdown() {
	go func(manager *process.Manager) {
		<-a.sigChan

		manager.StopAll()
	}(a.manager)

	a.manager.AwaitAll()

	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("drain nats connection")
		}
	}
}
