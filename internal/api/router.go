package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	httpmetrics "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

// NewRouter wires the API. Request metrics are registered on reg, so tests
// can pass a fresh registry per router.
func NewRouter(apiHandler *APIHandler, reg prometheus.Registerer) http.Handler {
	r := chi.NewRouter()

	mdlw := httpmetrics.New(httpmetrics.Config{
		Recorder: metricsprom.NewRecorder(metricsprom.Config{Registry: reg, Prefix: "supportbot"}),
	})

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Chat sessions are anonymous; the session id is the capability.
		// Session routes share one metrics label instead of one per id.
		r.With(std.HandlerProvider("/api/sessions", mdlw)).Post("/sessions", apiHandler.CreateSessionHandler)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(std.HandlerProvider("/api/sessions/{sessionID}", mdlw))

			r.Get("/", apiHandler.GetSessionHandler)
			r.Delete("/", apiHandler.DeleteSessionHandler)
			r.Post("/messages", apiHandler.PostMessageHandler)
			r.Post("/outcome", apiHandler.StepOutcomeHandler)
			r.Post("/reset", apiHandler.ResetSessionHandler)
			r.Post("/save", apiHandler.SaveConversationHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(std.HandlerProvider("", mdlw))

			// Public routes
			r.Post("/login", apiHandler.LoginHandler)
			r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"status":"ok"}`))
			})

			// Knowledge base, read-only
			r.Get("/categories", apiHandler.ListCategoriesHandler)
			r.Get("/questions", apiHandler.ListQuestionsHandler)
			r.Get("/questions/position/{n}", apiHandler.QuestionByPositionHandler)
			r.Get("/solutions", apiHandler.ListSolutionsHandler)

			// User-authenticated routes
			r.Group(func(r chi.Router) {
				r.Use(apiHandler.JWTAuthMiddleware)

				r.Post("/logout", apiHandler.LogoutHandler)
				r.Get("/me", apiHandler.MeHandler)

				r.Route("/admin", func(r chi.Router) {
					r.Use(apiHandler.RequireAdmin)

					r.Post("/categories", apiHandler.CreateCategoryHandler)
					r.Put("/categories/{id}", apiHandler.UpdateCategoryHandler)
					r.Delete("/categories/{id}", apiHandler.DeleteCategoryHandler)

					r.Post("/questions", apiHandler.CreateQuestionHandler)
					r.Put("/questions/{id}", apiHandler.UpdateQuestionHandler)
					r.Delete("/questions/{id}", apiHandler.DeleteQuestionHandler)

					r.Post("/solutions", apiHandler.CreateSolutionHandler)
					r.Put("/solutions/{id}", apiHandler.UpdateSolutionHandler)
					r.Delete("/solutions/{id}", apiHandler.DeleteSolutionHandler)

					r.Get("/conversations", apiHandler.ListConversationsHandler)
				})
			})
		})
	})

	return r
}
