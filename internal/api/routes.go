package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/pkg/logger"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if h.health != nil {
		r.Get("/health", h.health.HandleHealth)
		r.Get("/health/live", h.health.HandleLiveness)
		r.Get("/health/ready", h.health.HandleReadiness)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		if h.google != nil {
			r.Get("/google/login", h.google.HandleLogin)
			r.Get("/google/callback", h.google.HandleCallback)
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.auth.RequireAuth)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/me", h.Me)
			r.Post("/register", h.Register)
		})

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.ListContacts)
			r.Post("/", h.CreateContact)
			r.Post("/add-list", h.AddContactList)
			r.Post("/import", h.ImportContacts)
			r.Post("/mass-delete", h.MassDeleteContacts)
			r.Get("/export", h.ExportContacts)
			r.Post("/export/archive", h.ArchiveContacts)
			r.Get("/exports", h.ListExports)
			r.Get("/exports/download", h.DownloadExport)
			r.Get("/location-tags", h.LocationTags)
			r.Get("/{id}", h.GetContact)
			r.Put("/{id}", h.UpdateContact)
			r.Delete("/{id}", h.DeleteContact)
		})

		r.Route("/communications", func(r chi.Router) {
			r.Get("/", h.ListCommunications)
			r.Post("/", h.CreateCommunication)
			r.Get("/providers", h.ListProviders)
			r.Get("/{id}", h.GetCommunication)
			r.Put("/{id}", h.UpdateCommunication)
			r.Delete("/{id}", h.DeleteCommunication)
			r.Get("/{id}/status", h.CommunicationStatus)
			r.Post("/{id}/send", h.SendCommunication)
			r.Post("/{id}/send-bulk", h.SendBulk)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/", h.CreateScenario)
			r.Get("/{id}", h.GetScenario)
			r.Delete("/{id}", h.DeleteScenario)
			r.Get("/{id}/tasks", h.ScenarioTasks)
			r.Get("/{id}/statistics", h.ScenarioStatistics)
			r.Post("/{id}/tasks/{taskID}/complete", h.CompleteTask)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Post("/", h.RecordAttendance)
			r.Get("/", h.ListAttendance)
			r.Get("/summary", h.AttendanceSummary)
			r.Get("/contact/{contactID}", h.ContactAttendance)
			r.Delete("/{id}", h.DeleteAttendance)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/", h.Dashboard)
			r.Get("/providers", h.ProviderStats)
		})
	})

	return r
}

// requestLogger logs one line per request through the structured logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
