package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/procurement-backend/api/controllers"
	"github.com/angelmondragon/procurement-backend/api/middleware"
	"github.com/angelmondragon/procurement-backend/internal/auth"
	"github.com/angelmondragon/procurement-backend/internal/basket"
	"github.com/angelmondragon/procurement-backend/internal/catalog"
	"github.com/angelmondragon/procurement-backend/internal/contacts"
	"github.com/angelmondragon/procurement-backend/internal/importer"
	"github.com/angelmondragon/procurement-backend/internal/orders"
	"github.com/angelmondragon/procurement-backend/internal/shops"
	"github.com/angelmondragon/procurement-backend/internal/users"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/metrics"
	"github.com/angelmondragon/procurement-backend/pkg/redis"
)

// redisStore is what the request middlewares need from redis.
type redisStore interface {
	redis.IdempotencyStore
	controllers.Pinger
	RateLimitKey(scope string) string
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Services bundles the domain services the HTTP surface exposes.
type Services struct {
	Auth     auth.Service
	Register auth.RegisterService
	Reset    auth.PasswordResetService
	Users    users.Service
	Contacts contacts.Service
	Catalog  catalog.Service
	Basket   basket.Service
	Orders   orders.Service
	Shops    shops.Service
	Importer importer.Service
}

// Infra carries the shared clients used by middlewares and probes.
type Infra struct {
	DB          controllers.Pinger
	Redis       redisStore
	HTTPMetrics *metrics.HTTPMetrics
	Metrics     http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, infra Infra, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, infra.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.AuthRateLimitPolicy{
		Name:       "login",
		Window:     cfg.AuthRateLimit.LoginWindow,
		IPLimit:    cfg.AuthRateLimit.LoginIPLimit,
		EmailLimit: cfg.AuthRateLimit.LoginEmailLimit,
	}
	registerPolicy := middleware.AuthRateLimitPolicy{
		Name:       "register",
		Window:     cfg.AuthRateLimit.RegisterWindow,
		IPLimit:    cfg.AuthRateLimit.RegisterIPLimit,
		EmailLimit: cfg.AuthRateLimit.RegisterEmailLimit,
	}

	// reset mails share the sign-up budget
	resetPolicy := registerPolicy
	resetPolicy.Name = "password_reset"

	var rateStore middleware.RateLimiterStore
	var idemStore redis.IdempotencyStore
	deps := map[string]controllers.Pinger{"db": infra.DB}
	if infra.Redis != nil {
		rateStore = infra.Redis
		idemStore = infra.Redis
		deps["redis"] = infra.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	metricsHandler := infra.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Get("/categories", controllers.CatalogCategories(svc.Catalog, logg))
	r.Get("/shops", controllers.CatalogShops(svc.Catalog, logg))
	r.Get("/products", controllers.CatalogProducts(svc.Catalog, logg))

	r.Route("/user", func(r chi.Router) {
		r.With(
			middleware.AuthRateLimit(registerPolicy, rateStore, logg),
			middleware.Idempotency(idemStore, logg),
		).Post("/register", controllers.UserRegister(svc.Register, logg))
		r.Post("/register/confirm", controllers.UserConfirm(svc.Register, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/login", controllers.UserLogin(svc.Auth, logg))
		r.With(middleware.AuthRateLimit(resetPolicy, rateStore, logg)).Post("/password_reset", controllers.UserPasswordReset(svc.Reset, logg))
		r.Post("/password_reset/confirm", controllers.UserPasswordResetConfirm(svc.Reset, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Get("/details", controllers.UserDetails(svc.Users, logg))
			r.Post("/details", controllers.UserUpdateDetails(svc.Users, logg))
			r.Get("/contact", controllers.ContactList(svc.Contacts, logg))
			r.Post("/contact", controllers.ContactCreate(svc.Contacts, logg))
			r.Put("/contact", controllers.ContactUpdate(svc.Contacts, logg))
			r.Delete("/contact", controllers.ContactDelete(svc.Contacts, logg))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/basket", controllers.BasketGet(svc.Basket, logg))
		r.Post("/basket", controllers.BasketAdd(svc.Basket, logg))
		r.Put("/basket", controllers.BasketUpdate(svc.Basket, logg))
		r.Delete("/basket", controllers.BasketRemove(svc.Basket, logg))

		r.Get("/order", controllers.OrderList(svc.Orders, logg))
		r.Post("/order", controllers.OrderPlace(svc.Orders, logg))

		r.Route("/partner", func(r chi.Router) {
			r.Use(middleware.RequireShop(logg))
			r.Post("/update", controllers.PartnerImportSubmit(svc.Importer, logg))
			r.Get("/update/{taskId}", controllers.PartnerImportTask(svc.Importer, logg))
			r.Get("/state", controllers.PartnerState(svc.Shops, logg))
			r.Post("/state", controllers.PartnerSetState(svc.Shops, logg))
			r.Get("/orders", controllers.PartnerOrders(svc.Orders, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireStaff(logg))
			r.Post("/orders/{orderId}/state", controllers.AdminOrderState(svc.Orders, logg))
		})
	})

	return r
}
