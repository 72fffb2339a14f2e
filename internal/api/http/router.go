package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/paybridge/platform/health/http"
	platformobservability "github.com/shestoi/paybridge/platform/observability"
)

// RouterConfig параметры роутера
type RouterConfig struct {
	// AllowedOrigins фронтенд, которому разрешены браузерные запросы к /orders и /jobs
	AllowedOrigins []string
	// Readiness проверка store для /health; при nil сервис всегда готов
	Readiness platformhealth.Probe
}

// NewRouter собирает HTTP API PayBridge
func NewRouter(handler *Handler, cfg RouterConfig, logger *zap.Logger) http.Handler {
	router := chi.NewRouter()

	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("paybridge", logger))
	}

	// CORS нужен только браузерному фронтенду; запросы без Origin (вебхуки) middleware пропускает как есть
	corsOpts := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}
	if len(cfg.AllowedOrigins) == 0 {
		// пустой список cors трактует как "*"; без фронтенда браузерный доступ закрыт
		corsOpts.AllowOriginFunc = func(string) bool { return false }
	}
	router.Use(cors.New(corsOpts).Handler)

	router.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.PostOrders)
		r.Get("/{id}", handler.GetOrder)
		r.Get("/{id}/deliveries", handler.GetOrderDeliveries)
		r.Post("/{id}/payments/crypto", handler.PostCryptoPayment)
		r.Post("/{id}/payments/card", handler.PostCardPayment)
	})
	router.Get("/jobs/{id}", handler.GetJob)
	router.Post("/payments/webhook/{provider}", handler.PostWebhook)

	router.Get("/health", platformhealth.Handler(cfg.Readiness))

	return router
}
