package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aklauser/marktplatz-backend/api/controllers"
	webhookcontrollers "github.com/aklauser/marktplatz-backend/api/controllers/webhooks"
	"github.com/aklauser/marktplatz-backend/api/middleware"
	"github.com/aklauser/marktplatz-backend/internal/dunning"
	"github.com/aklauser/marktplatz-backend/internal/fees"
	"github.com/aklauser/marktplatz-backend/internal/settlement"
	stripewebhook "github.com/aklauser/marktplatz-backend/internal/webhooks/stripe"
	"github.com/aklauser/marktplatz-backend/pkg/config"
	"github.com/aklauser/marktplatz-backend/pkg/db"
	"github.com/aklauser/marktplatz-backend/pkg/logger"
	"github.com/aklauser/marktplatz-backend/pkg/redis"
	"github.com/aklauser/marktplatz-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	settlementService settlement.Service,
	dunningService dunning.Service,
	feeCalculator fees.Calculator,
	stripeClient *stripe.Client,
	stripeWebhookService stripewebhook.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})
	r.Get("/healthz", controllers.HealthLive(cfg))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, logg))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/", controllers.AdminGetOrder(settlementService, logg))
			r.Post("/release", controllers.AdminReleaseOrder(settlementService, logg))
			r.Post("/refund", controllers.AdminRefundOrder(settlementService, logg))
		})

		r.Get("/fees/quote", controllers.AdminQuoteFees(feeCalculator, logg))

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", controllers.AdminCreateInvoice(dunningService, logg))
			r.Post("/sweep", controllers.AdminRunDunningSweep(dunningService, logg))
			r.Route("/{invoiceID}", func(r chi.Router) {
				r.Get("/", controllers.AdminGetInvoice(dunningService, logg))
				r.Post("/pay", controllers.AdminMarkInvoicePaid(dunningService, logg))
				r.Post("/cancel", controllers.AdminCancelInvoice(dunningService, logg))
			})
		})
	})

	return r
}
