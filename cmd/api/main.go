package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aklauser/marktplatz-backend/api/routes"
	"github.com/aklauser/marktplatz-backend/internal/dunning"
	"github.com/aklauser/marktplatz-backend/internal/fees"
	"github.com/aklauser/marktplatz-backend/internal/idempotency"
	"github.com/aklauser/marktplatz-backend/internal/notifier"
	"github.com/aklauser/marktplatz-backend/internal/sellers"
	"github.com/aklauser/marktplatz-backend/internal/settlement"
	stripewebhook "github.com/aklauser/marktplatz-backend/internal/webhooks/stripe"
	"github.com/aklauser/marktplatz-backend/pkg/config"
	"github.com/aklauser/marktplatz-backend/pkg/db"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
	"github.com/aklauser/marktplatz-backend/pkg/metrics"
	"github.com/aklauser/marktplatz-backend/pkg/migrate"
	"github.com/aklauser/marktplatz-backend/pkg/redis"
	"github.com/aklauser/marktplatz-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	} else {
		logg.Warn(context.Background(), "SMTP host not configured, email notifications disabled")
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

	feeCalculator, err := fees.NewCalculator(fees.CalculatorParams{Repo: feesRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create fee calculator", err)
		os.Exit(1)
	}

	eventGuard, err := stripewebhook.NewEventGuard(redisClient, cfg.Stripe.EventTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook event guard", err)
		os.Exit(1)
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Guard:      eventGuard,
		Sellers:    sellersRepo,
		Settlement: settlementService,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			settlementService,
			dunningService,
			feeCalculator,
			stripeClient,
			webhookService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
