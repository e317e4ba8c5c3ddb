package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// RouterConfig carries the handlers and CORS origin for route wiring.
type RouterConfig struct {
	Issues      *IssueHandler
	Dispatch    *DispatchHandler
	Reviews     *ReviewHandler
	SLA         *SLAHandler
	FrontendURL string
}

// NewRouter builds the chi router with the full engine surface.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recover)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/issues", func(r chi.Router) {
			r.Post("/", cfg.Issues.Create)
			r.Get("/overdue", cfg.SLA.Overdue)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Issues.Get)
				r.Post("/status", cfg.Issues.Transition)
				r.Post("/assign", cfg.Dispatch.Assign)
				r.Post("/review", cfg.Reviews.Submit)
				r.Get("/reviews", cfg.Reviews.History)
				r.Post("/escalate", cfg.Issues.Escalate)
				r.Get("/escalations", cfg.Issues.Escalations)
			})
		})

		r.Get("/workers/{id}/metrics", cfg.Dispatch.Metrics)
	})

	return r
}
