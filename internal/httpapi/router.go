package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/qiupay/gateway/internal/callbacks"
	"github.com/qiupay/gateway/internal/config"
	"github.com/qiupay/gateway/internal/logger"
	"github.com/qiupay/gateway/internal/metrics"
	"github.com/qiupay/gateway/internal/ratelimit"
	"github.com/qiupay/gateway/internal/storage"
)

// Deps are the wired components the router dispatches onto. appCtx must be
// a long-lived context (typically the process's root context, cancelled on
// shutdown) — handlers pass it to poller.Start since a poll task must
// outlive the request that created it.
type Deps struct {
	Config   *config.Config
	Store    storage.Store
	Orders   OrderCreator
	Checker  PaymentChecker
	Poller   PollerStarter
	Callback CallbackRenotifier
	DLQ      callbacks.DLQStore
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	AppCtx   context.Context
}

// PollerStarter is the narrow poller.Poller view the router needs, named
// distinctly from poller.Poller so this package doesn't have to import it
// just to spell the field type in Deps.
type PollerStarter interface {
	Start(ctx context.Context, tradeNo string)
}

// NewRouter builds the gateway's chi router: payment endpoints under their
// own timeout class, with order creation also under the per-merchant and
// per-IP rate limits, plus an operator-only admin group
// gated by an optional static bearer token.
func NewRouter(d Deps) http.Handler {
	h := &handlers{
		cfg:           d.Config,
		store:         d.Store,
		orders:        d.Orders,
		checker:       d.Checker,
		pollerStarter: d.Poller,
		callback:      d.Callback,
		dlq:           d.DLQ,
		metrics:       d.Metrics,
		logger:        d.Logger,
		appCtx:        d.AppCtx,
	}

	r := chi.NewRouter()

	if len(d.Config.Server.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   d.Config.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	r.Use(securityHeaders)
	r.Use(logger.Middleware(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	rateLimitCfg := ratelimit.Config{
		PerMerchantEnabled: d.Config.RateLimit.PerMerchantEnabled,
		PerMerchantLimit:   d.Config.RateLimit.PerMerchantLimit,
		PerMerchantWindow:  d.Config.RateLimit.PerMerchantWindow.Duration,
		PerMerchantBurst:   d.Config.RateLimit.PerMerchantLimit / 6,
		PerIPEnabled:       d.Config.RateLimit.PerIPEnabled,
		PerIPLimit:         d.Config.RateLimit.PerIPLimit,
		PerIPWindow:        d.Config.RateLimit.PerIPWindow.Duration,
		PerIPBurst:         d.Config.RateLimit.PerIPLimit / 6,
		Metrics:            d.Metrics,
	}
	prefix := d.Config.Server.RoutePrefix

	// Lightweight endpoints: health check and metrics scrape.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get(prefix+"/healthz", h.handleHealth)
		r.With(adminAuth(d.Config.Server.AdminMetricsAPIKey)).Handle(prefix+"/metrics", promhttp.Handler())
		r.Get(prefix+"/openapi.json", h.handleOpenAPISpec)
		r.Get(prefix+"/docs", http.RedirectHandler(prefix+"/docs/index.html", http.StatusMovedPermanently).ServeHTTP)
		r.Get(prefix+"/docs/*", docsHandler(prefix))
	})

	// Payment processing endpoints: wallet lookups and order creation can
	// run long under load, so these get the longer timeout class.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.With(ratelimit.MerchantLimiter(rateLimitCfg), ratelimit.IPLimiter(rateLimitCfg)).Post(prefix+"/pay/create", h.handleCreate)
		r.Get(prefix+"/pay/query", h.handleQuery)
		r.Get(prefix+"/pay/status/{trade_no}", h.handleStatus)
	})

	// Operator-only admin endpoints, gated by the same admin key as /metrics.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(adminAuth(d.Config.Server.AdminMetricsAPIKey))
		r.Get(prefix+"/admin/webhooks", h.handleListFailedWebhooks)
		r.Post(prefix+"/admin/orders/{trade_no}/renotify", h.handleRenotify)
	})

	return r
}
