package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aklauser/marktplatz-backend/internal/cron"
	"github.com/aklauser/marktplatz-backend/internal/dunning"
	"github.com/aklauser/marktplatz-backend/internal/fees"
	"github.com/aklauser/marktplatz-backend/internal/idempotency"
	"github.com/aklauser/marktplatz-backend/internal/notifier"
	"github.com/aklauser/marktplatz-backend/internal/sellers"
	"github.com/aklauser/marktplatz-backend/internal/settlement"
	"github.com/aklauser/marktplatz-backend/pkg/config"
	"github.com/aklauser/marktplatz-backend/pkg/db"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
	"github.com/aklauser/marktplatz-backend/pkg/metrics"
	"github.com/aklauser/marktplatz-backend/pkg/migrate"
	"github.com/aklauser/marktplatz-backend/pkg/redis"
	"github.com/aklauser/marktplatz-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}

	ordersRepo, err := settlement.NewRepository(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create order repository", err)
		os.Exit(1)
	}
	sellersRepo, err := sellers.NewRepository(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create seller repository", err)
		os.Exit(1)
	}
	invoicesRepo, err := dunning.NewRepository(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create invoice repository", err)
		os.Exit(1)
	}
	feesRepo, err := fees.NewRepository(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create fee schedule repository", err)
		os.Exit(1)
	}
	notificationsRepo, err := notifier.NewRepository(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create notification repository", err)
		os.Exit(1)
	}
	guard, err := idempotency.NewGuard(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	var mailer notifier.Mailer
	if cfg.Mail.Host != "" {
		mailer, err = notifier.NewSMTPMailer(cfg.Mail)
		if err != nil {
			logg.Error(context.Background(), "failed to create mailer", err)
			os.Exit(1)
		}
	}

	notifierService, err := notifier.NewService(notifier.ServiceParams{
		Repo:   notificationsRepo,
		Mailer: mailer,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Orders:    ordersRepo,
		Sellers:   sellersRepo,
		Guard:     guard,
		Processor: stripeClient,
		Notifier:  notifierService,
		Tx:        dbClient,
		Metrics:   metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	dunningService, err := dunning.NewService(dunning.ServiceParams{
		Invoices: invoicesRepo,
		Sellers:  sellersRepo,
		Fees:     feesRepo,
		Notifier: notifierService,
		Tx:       dbClient,
		Metrics:  metrics.NewDunningMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dunning service", err)
		os.Exit(1)
	}

	remindersJob, err := cron.NewInvoiceRemindersJob(cron.InvoiceRemindersJobParams{
		Logger:  logg,
		Dunning: dunningService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create invoice reminders job", err)
		os.Exit(1)
	}
	payoutsJob, err := cron.NewPendingPayoutsJob(cron.PendingPayoutsJobParams{
		Logger:     logg,
		Orders:     ordersRepo,
		Sellers:    sellersRepo,
		Settlement: settlementService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pending payouts job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(remindersJob, payoutsJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
