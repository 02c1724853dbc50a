package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dealerhub/dealer-pricing/api/controllers"
	rulescontrollers "github.com/dealerhub/dealer-pricing/api/controllers/rules"
	"github.com/dealerhub/dealer-pricing/api/middleware"
	"github.com/dealerhub/dealer-pricing/internal/pricing"
	"github.com/dealerhub/dealer-pricing/internal/promotions"
	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/dealerhub/dealer-pricing/pkg/auth"
	"github.com/dealerhub/dealer-pricing/pkg/config"
	"github.com/dealerhub/dealer-pricing/pkg/logger"
	"github.com/dealerhub/dealer-pricing/pkg/redis"
)

// Dependencies are the collaborators the HTTP surface needs. Redis and
// Idempotency are nil when Redis is disabled.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency redis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	Pricing     *pricing.Service
	Promotions  *promotions.Service
	Clock       func() time.Time
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	prices := rulescontrollers.NewController[pricing.Price](deps.Pricing, rulescontrollers.PriceBinding{}, deps.Clock, logg)
	discounts := rulescontrollers.NewController[promotions.Discount](deps.Promotions, rulescontrollers.DiscountBinding{}, deps.Clock, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, string(auth.RoleAdmin), string(auth.RoleStaff)))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		mountAdmin(r, "/pricing-rules", prices, logg)
		mountAdmin(r, "/promotions", discounts, logg)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/pricing/effective", prices.Effective)
		r.Get("/promotions/effective", discounts.Effective)
	})

	return r
}

// mountAdmin registers one rule kind under base. The paths must stay in step
// with middleware.RuleResources.
func mountAdmin[P validity.Payload](r chi.Router, base string, c *rulescontrollers.Controller[P], logg *logger.Logger) {
	r.Get(base, c.List)
	r.Post(base, c.Create)
	r.Get(base+"/audit", c.Audit)
	r.Get(base+"/{ruleId}", c.Get)
	r.With(middleware.RequireRole(logg, string(auth.RoleAdmin))).Put(base+"/{ruleId}", c.Correct)
	r.Post(base+"/{ruleId}/adjust", c.Adjust)
	r.Post(base+"/{ruleId}/deactivate", c.Deactivate)
	r.Get(base+"/{ruleId}/events", c.Events)
}
