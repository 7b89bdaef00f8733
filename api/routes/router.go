package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anishmaharjan/kinmel-backend/api/controllers"
	"github.com/anishmaharjan/kinmel-backend/api/middleware"
	"github.com/anishmaharjan/kinmel-backend/internal/address"
	"github.com/anishmaharjan/kinmel-backend/internal/cart"
	checkoutsvc "github.com/anishmaharjan/kinmel-backend/internal/checkout"
	"github.com/anishmaharjan/kinmel-backend/internal/fulfillment"
	"github.com/anishmaharjan/kinmel-backend/internal/orders"
	"github.com/anishmaharjan/kinmel-backend/internal/payments"
	"github.com/anishmaharjan/kinmel-backend/pkg/config"
	"github.com/anishmaharjan/kinmel-backend/pkg/db"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
	"github.com/anishmaharjan/kinmel-backend/pkg/redis"
)

const (
	rateLimitPerMinute = 120
	rateLimitWindow    = time.Minute
)

// Deps bundles everything the router wires into handlers. Optional entries
// (redis, metrics registry) may be nil.
type Deps struct {
	Cfg                *config.Config
	Logg               *logger.Logger
	DB                 db.Pinger
	Redis              *redis.Client
	AddressRepo        address.Repository
	OrdersRepo         orders.Repository
	CartService        cart.Service
	CheckoutService    checkoutsvc.Service
	FulfillmentService fulfillment.Service
	PaymentsService    payments.Service
	MetricsGatherer    prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logg),
		middleware.RequestID(deps.Logg),
		middleware.Logging(deps.Logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Cfg))
		r.Get("/ready", controllers.HealthReady(deps.Cfg, deps.Logg, deps.DB, deps.Redis))
	})

	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	// The gateway redirects the buyer's browser here; the HMAC signature in
	// the payload is the authentication.
	r.Get("/payments/esewa/callback", controllers.EsewaCallback(deps.PaymentsService, deps.Logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Principal(deps.Logg))

		if deps.Redis != nil {
			r.Use(middleware.RateLimit(deps.Redis, rateLimitPerMinute, rateLimitWindow, deps.Logg))
		}

		r.Get("/addresses", controllers.ListAddresses(deps.AddressRepo, deps.Logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.CartService, deps.Logg))
			r.Post("/items", controllers.CartAddItem(deps.CartService, deps.Logg))
			r.Patch("/items/{itemId}", controllers.CartUpdateItem(deps.CartService, deps.Logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(deps.CartService, deps.Logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", controllers.PlaceOrder(deps.CheckoutService, deps.Logg))
			r.Post("/buy-now", controllers.BuyNow(deps.CheckoutService, deps.Logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.OrdersRepo, deps.Logg))
			r.Get("/{orderId}", controllers.OrderDetail(deps.OrdersRepo, deps.Logg))
			r.Post("/{orderId}/payments/esewa", controllers.InitiateEsewaPayment(deps.PaymentsService, deps.Logg))
			r.Post("/{orderId}/payments/esewa/poll", controllers.PollEsewaPayment(deps.PaymentsService, deps.Logg))
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole("seller", deps.Logg))
			r.Route("/fulfillments", func(r chi.Router) {
				r.Get("/", controllers.ListFulfillments(deps.FulfillmentService, deps.Logg))
				r.Get("/{fulfillmentId}", controllers.FulfillmentDetail(deps.FulfillmentService, deps.Logg))
				r.Post("/{fulfillmentId}/status", controllers.SetFulfillmentStatus(deps.FulfillmentService, deps.Logg))
			})
		})
	})

	return r
}
