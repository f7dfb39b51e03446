package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/notify"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/observability"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// HealthCheck is a named dependency check reported by /healthz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Services bundles what the router serves. Any field may be nil; the
// affected routes then answer 503.
type Services struct {
	Store     *service.Store
	Portal    *service.PortalService
	Tasks     *service.TaskService
	Documents *service.DocumentService
	Feedback  *service.FeedbackService
	Scheduler *service.InvoiceScheduler
	Feed      *notify.Feed

	// Verifier guards the admin API. nil runs it open as OwnerID.
	Verifier port.SessionVerifier
	OwnerID  string

	// PortalBaseURL prefixes the portal links handed to the admin.
	PortalBaseURL string

	Checks             []HealthCheck
	CORSAllowedOrigins []string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	if len(svc.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   svc.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", PortalSessionHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Checks))
	r.Get("/readyz", readyzHandler(svc.Store))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Coachee portal (public, token addressed)
		// =============================================
		r.Route("/portal/{token}", func(r chi.Router) {
			if svc.Portal == nil {
				r.Handle("/*", unavailable("portal"))
				r.Handle("/", unavailable("portal"))
				return
			}
			r.Get("/", portalOpenHandler(svc.Portal, logger))
			r.Post("/setup", portalSetupHandler(svc.Portal, logger))
			r.Post("/unlock", portalUnlockHandler(svc.Portal, logger))
			r.Get("/data", portalDataHandler(svc.Portal, logger))
			r.Put("/data", portalSaveDataHandler(svc.Portal, logger))
		})

		// =============================================
		// Admin API
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(svc.Verifier, svc.OwnerID, logger))
			if svc.Store == nil {
				r.Handle("/*", unavailable("store"))
				return
			}
			st := svc.Store

			r.Get("/stats", statsHandler(st))
			r.Get("/notifications", notificationsHandler(svc.Feed))

			// Coachees
			r.Get("/coachees", listCoacheesHandler(st))
			r.Post("/coachees", addCoacheeHandler(st, logger))
			r.Get("/coachees/{id}", getCoacheeHandler(st, logger))
			r.Put("/coachees/{id}", updateCoacheeHandler(st, logger))
			if svc.Portal != nil {
				r.Post("/coachees/{id}/portal/reset", resetPortalHandler(svc.Portal, svc.PortalBaseURL, logger))
			}

			// Sessions
			r.Get("/sessions", listSessionsHandler(st, logger))
			r.Post("/sessions", addSessionHandler(st, logger))
			r.Get("/sessions/{id}", getSessionHandler(st, logger))
			r.Put("/sessions/{id}", updateSessionHandler(st, logger))
			r.Delete("/sessions/{id}", deleteSessionHandler(st, logger))
			r.Post("/sessions/{id}/status", sessionStatusHandler(st, logger))
			r.Post("/sessions/{id}/archive", archiveSessionHandler(st, logger))
			r.Get("/sessions/{id}/prepare", prepareSessionHandler(st, logger))
			r.Get("/sessions/{id}/notes", listNotesHandler(st))
			r.Post("/sessions/{id}/notes", addNoteHandler(st, logger))
			r.Put("/notes/{noteId}", updateNoteHandler(st, logger))

			// Packages, templates, rates
			r.Get("/packages", listPackagesHandler(st, logger))
			r.Post("/packages", addPackageHandler(st, logger))
			r.Post("/packages/{id}/deduct", deductPackageHandler(st, logger))
			r.Get("/package-templates", listTemplatesHandler(st))
			r.Put("/package-templates", replaceTemplatesHandler(st, logger))
			r.Get("/service-rates", listRatesHandler(st))
			r.Put("/service-rates", replaceRatesHandler(st, logger))

			// Invoices
			r.Get("/invoices", listInvoicesHandler(st, logger))
			r.Post("/invoices", createInvoiceHandler(st, logger))
			r.Get("/invoices/{id}", getInvoiceHandler(st, logger))
			r.Put("/invoices/{id}", updateInvoiceHandler(st, logger))
			r.Delete("/invoices/{id}", deleteInvoiceHandler(st, logger))
			r.Post("/invoices/{id}/status", invoiceStatusHandler(st, logger))
			r.Get("/recurring-invoices", listRecurringHandler(st))
			r.Post("/recurring-invoices", addRecurringHandler(st, logger))
			r.Post("/recurring-invoices/run", runRecurringHandler(st, svc.Scheduler, logger))
			r.Post("/recurring-invoices/{id}/active", recurringActiveHandler(st, logger))

			// Journal & tools
			r.Get("/journal", listJournalHandler(st, logger))
			r.Post("/journal", addJournalHandler(st, logger))
			r.Put("/journal/{id}", updateJournalHandler(st, logger))
			r.Delete("/journal/{id}", deleteJournalHandler(st, logger))
			r.Get("/tools", listToolsHandler(st))
			r.Post("/tools", addToolHandler(st, logger))
			r.Post("/tools/{id}/usage", toolUsageHandler(st, logger))

			// Settings & data management
			r.Get("/settings", getSettingsHandler(st))
			r.Put("/settings", updateSettingsHandler(st, logger))
			r.Get("/backup", backupHandler(st, logger))
			r.Post("/restore", restoreHandler(st, logger))

			// Tasks
			if svc.Tasks != nil {
				r.Get("/tasks", listTasksHandler(svc.Tasks, logger))
				r.Post("/tasks", addTaskHandler(svc.Tasks, logger))
				r.Patch("/tasks/{id}", updateTaskHandler(svc.Tasks, logger))
				r.Delete("/tasks/{id}", deleteTaskHandler(svc.Tasks, logger))
				r.Post("/tasks/sync", syncTasksHandler(svc.Tasks, logger))
			}

			// Documents
			if svc.Documents != nil {
				r.Get("/documents", listDocumentsHandler(svc.Documents, logger))
				r.Post("/documents", uploadDocumentHandler(svc.Documents, logger))
				r.Put("/documents/{id}", updateDocumentHandler(svc.Documents, logger))
				r.Delete("/documents/{id}", deleteDocumentHandler(svc.Documents, logger))
				r.Get("/documents/{id}/download", downloadDocumentHandler(svc.Documents, logger))
			}

			// Feedback
			if svc.Feedback != nil {
				r.Post("/feedback", feedbackHandler(svc.Feedback, logger))
			}
		})
	})

	return r
}

// ============================================================
// Operational endpoints
// ============================================================

func healthzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "coachspace-api", Status: "healthy", LastChecked: now},
		}
		for _, c := range checks {
			start := time.Now()
			err := c.Ping(ctx)
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: c.Name, Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

// readyzHandler reports ready once the store answers.
func readyzHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func statsHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Stats(r.Context()))
	}
}

func notificationsHandler(feed *notify.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if feed == nil {
			writeJSON(w, http.StatusOK, []domain.Notification{})
			return
		}
		limit, _ := optionalIntQuery(r, "limit")
		n := 50
		if limit != nil {
			n = *limit
		}
		writeJSON(w, http.StatusOK, feed.Recent(n))
	}
}

func unavailable(what string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, what+" not configured")
	}
}
