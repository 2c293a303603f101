package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chuanlbx-ui/zhongdao-core/api/controllers"
	"github.com/chuanlbx-ui/zhongdao-core/api/middleware"
	"github.com/chuanlbx-ui/zhongdao-core/internal/aggregation"
	"github.com/chuanlbx-ui/zhongdao-core/internal/ledger"
	"github.com/chuanlbx-ui/zhongdao-core/internal/members"
	"github.com/chuanlbx-ui/zhongdao-core/internal/tiers"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/config"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/db"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/logger"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	catalog *tiers.Catalog,
	membersService members.Service,
	aggregationService aggregation.Service,
	ledgerService ledger.Service,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.CORS(),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(dbP, redisClient)))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.Get("/tiers", controllers.TierCatalog(catalog))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/members", func(r chi.Router) {
			r.Post("/", controllers.MemberCreate(membersService, logg))
			r.Route("/{memberId}", func(r chi.Router) {
				r.Get("/", controllers.MemberGet(membersService, logg))
				r.Get("/ancestors", controllers.MemberAncestors(membersService, logg))
				r.Get("/descendants", controllers.MemberDescendants(membersService, logg))
				r.Get("/children", controllers.MemberChildren(membersService, logg))
				r.Post("/tier/recompute", controllers.TierRecompute(aggregationService, logg))
				r.Route("/ledger", func(r chi.Router) {
					r.Get("/", controllers.LedgerHistory(ledgerService, logg))
					r.Get("/replay", controllers.LedgerReplay(ledgerService, logg))
					r.Get("/reconcile", controllers.LedgerReconcile(ledgerService, logg))
				})
			})
		})

		r.Post("/sales", controllers.SaleRecord(aggregationService, logg))
		r.Post("/purchases", controllers.PurchaseApply(aggregationService, logg))

		r.Route("/ledger", func(r chi.Router) {
			r.Post("/postings", controllers.LedgerPost(ledgerService, logg))
			r.Post("/transfers", controllers.LedgerTransfer(ledgerService, logg))
		})
	})

	return r
}

func readinessDeps(dbP db.Pinger, redisClient *redis.Client) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["postgres"] = dbP
	}
	if redisClient != nil {
		deps["redis"] = redisClient
	}
	return deps
}
