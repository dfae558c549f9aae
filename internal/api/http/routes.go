package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the HTTP router with routes, middleware and handlers,
// including the health check and Prometheus metrics endpoint.
func NewRouter(service TaskService, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	taskHandler := NewTaskHandler(service, logger)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", taskHandler.Submit)
		r.Post("/batch", taskHandler.SubmitBatch)
		r.Get("/", taskHandler.ListTasks)
		r.Get("/stats", taskHandler.Stats)
		r.Get("/{taskID}", taskHandler.GetTask)
		r.Post("/{taskID}/retry", taskHandler.Retry)
		r.Post("/{taskID}/cancel", taskHandler.Cancel)
		r.Delete("/{taskID}", taskHandler.Delete)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
