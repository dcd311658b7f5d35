// Package router wires the HTTP surface: public auth and health routes,
// the JWT-protected management API, and the proxy data plane.
package router

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/auth"
	"github.com/llmlab/llmlab/internal/cache"
	"github.com/llmlab/llmlab/internal/config"
	"github.com/llmlab/llmlab/internal/handlers"
	"github.com/llmlab/llmlab/internal/middleware"
	"github.com/llmlab/llmlab/internal/proxy"
	"github.com/llmlab/llmlab/internal/services/alerts"
	"github.com/llmlab/llmlab/internal/services/anomaly"
	"github.com/llmlab/llmlab/internal/services/forecast"
	"github.com/llmlab/llmlab/internal/services/keys"
	"github.com/llmlab/llmlab/internal/services/tags"
	"github.com/llmlab/llmlab/internal/services/usage"
)

type Dependencies struct {
	Config    *config.Config
	DB        *gorm.DB
	Cache     cache.Backend
	JWT       *auth.JWTService
	Exchanger auth.Exchanger
	Keys      *keys.Service
	Tags      *tags.Service
	Usage     *usage.Service
	Forecast  *forecast.Service
	Budget    *alerts.Watcher
	Anomaly   *anomaly.Detector
	Pipeline  *proxy.Pipeline
	Version   string
}

func New(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   deps.Config.CORS.AllowedMethods,
		AllowedHeaders:   deps.Config.CORS.AllowedHeaders,
		AllowCredentials: deps.Config.CORS.AllowCredentials,
		MaxAge:           deps.Config.CORS.MaxAge,
	}))

	healthHandler := handlers.NewHealthHandler(deps.Version)
	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT, deps.Exchanger)
	keysHandler := handlers.NewKeysHandler(deps.Keys)
	statsHandler := handlers.NewStatsHandler(deps.Usage, deps.Forecast, deps.Anomaly)
	logsHandler := handlers.NewLogsHandler(deps.Usage, deps.Tags)
	tagsHandler := handlers.NewTagsHandler(deps.Tags)
	budgetsHandler := handlers.NewBudgetsHandler(deps.DB, deps.Budget)
	webhooksHandler := handlers.NewWebhooksHandler(deps.DB)
	exportHandler := handlers.NewExportHandler(deps.Usage)
	cacheHandler := handlers.NewCacheHandler(deps.Cache)

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/auth/github", authHandler.GitHubLogin)

	r.Route("/api/v1", func(api chi.Router) {
		// The proxy authenticates with its own key scheme, not JWT.
		api.HandleFunc("/proxy/{provider}/*", deps.Pipeline.Handle)

		api.Group(func(protected chi.Router) {
			protected.Use(middleware.RequireAuth(deps.JWT))

			protected.Get("/me", authHandler.Me)

			protected.Route("/keys", func(rt chi.Router) {
				rt.Get("/", keysHandler.List)
				rt.Post("/", keysHandler.Create)
				rt.Post("/{id}/deactivate", keysHandler.Deactivate)
				rt.Delete("/{id}", keysHandler.Delete)
			})

			protected.Route("/stats", func(rt chi.Router) {
				rt.Get("/summary", statsHandler.Summary)
				rt.Get("/by-model", statsHandler.ByModel)
				rt.Get("/by-day", statsHandler.ByDay)
				rt.Get("/heatmap", statsHandler.Heatmap)
				rt.Get("/comparison", statsHandler.Comparison)
				rt.Get("/forecast", statsHandler.Forecast)
				rt.Get("/anomalies", statsHandler.Anomalies)
				rt.Get("/cache-savings", statsHandler.CacheSavings)
			})

			protected.Route("/logs", func(rt chi.Router) {
				rt.Get("/", logsHandler.List)
				rt.Get("/{id}", logsHandler.Get)
				rt.Post("/{id}/tags", logsHandler.AttachTag)
				rt.Delete("/{id}/tags/{tagID}", logsHandler.DetachTag)
			})

			protected.Route("/tags", func(rt chi.Router) {
				rt.Get("/", tagsHandler.List)
				rt.Post("/", tagsHandler.Create)
				rt.Put("/{id}", tagsHandler.Update)
				rt.Delete("/{id}", tagsHandler.Delete)
			})

			protected.Route("/budgets", func(rt chi.Router) {
				rt.Get("/", budgetsHandler.List)
				rt.Post("/", budgetsHandler.Upsert)
				rt.Delete("/{id}", budgetsHandler.Delete)
			})

			protected.Route("/webhooks", func(rt chi.Router) {
				rt.Get("/", webhooksHandler.List)
				rt.Post("/", webhooksHandler.Create)
				rt.Delete("/{id}", webhooksHandler.Delete)
			})

			protected.Route("/export", func(rt chi.Router) {
				rt.Get("/csv", exportHandler.CSV)
				rt.Get("/json", exportHandler.JSON)
			})

			protected.Route("/cache", func(rt chi.Router) {
				rt.Get("/stats", cacheHandler.Stats)
				rt.Delete("/", cacheHandler.Clear)
			})
		})
	})

	return r
}
