package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/llm-fallback-router/app"
	"github.com/upb/llm-fallback-router/handlers"
	"github.com/upb/llm-fallback-router/middleware"
	"github.com/upb/llm-fallback-router/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	if timeout := cfg.Server.HandlerTimeout(); timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}

	// CORS middleware; preflights are answered here and never reach a handler
	origins := cfg.CORS.AllowedOrigins
	if cfg.CORS.AllowsAnyOrigin() {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions, http.MethodGet},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	completion := handlers.NewCompletionHandler(deps.Router, handlers.CompletionDefaults{
		Temperature: cfg.Router.DefaultTemperature,
		MaxTokens:   cfg.Router.DefaultMaxTokens,
	}, deps.Logger)
	health := handlers.NewHealthHandler(deps.SQLDB(), deps.Providers, deps.Logger)
	chain := handlers.NewProvidersHandler(deps.Providers, deps.Metrics, deps.JournalReader(), deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// Chat completion; the handler answers every method itself
	r.HandleFunc("/api/ai", completion.HandleChatCompletion)
	r.HandleFunc("/v1/chat/completions", completion.HandleChatCompletion)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/providers", chain.HandleList)
		r.Get("/providers/stats", chain.HandleStats)
		r.Get("/runs/{runID}", chain.HandleGetRun)
		r.Get("/requests/{requestID}", chain.HandleGetRequest)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		_ = utils.WriteMethodNotAllowed(w, allowedMethods(r, req.URL.Path)...)
	})

	return r
}

var routeMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// allowedMethods lists the methods registered for path
func allowedMethods(routes chi.Routes, path string) []string {
	var allowed []string
	for _, method := range routeMethods {
		if routes.Match(chi.NewRouteContext(), method, path) {
			allowed = append(allowed, method)
		}
	}
	return allowed
}
