package handler

import (
	"net/http"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Packages
// ============================================================

func listPackagesHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coacheeID, err := optionalIntQuery(r, "coachee")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, store.ListPackages(r.Context(), coacheeID))
	}
}

func addPackageHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/packages")
		defer span.End()

		var req domain.NewPackage
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		p, err := store.AddPackage(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func deductPackageHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/packages/{id}/deduct")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("package.id", id))

		p, err := store.DeductFromPackage(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func listTemplatesHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.ListPackageTemplates(r.Context()))
	}
}

func replaceTemplatesHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req []domain.PackageTemplate
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		out, err := store.ReplacePackageTemplates(r.Context(), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func listRatesHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.ListServiceRates(r.Context()))
	}
}

func replaceRatesHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req []domain.ServiceRate
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		out, err := store.ReplaceServiceRates(r.Context(), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ============================================================
// Invoices
// ============================================================

func listInvoicesHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coacheeID, err := optionalIntQuery(r, "coachee")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		f := domain.InvoiceFilter{
			CoacheeID: coacheeID,
			Status:    domain.InvoiceStatus(r.URL.Query().Get("status")),
		}
		writeJSON(w, http.StatusOK, store.ListInvoices(r.Context(), f))
	}
}

func createInvoiceHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/invoices")
		defer span.End()

		var req domain.Invoice
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		inv, err := store.CreateInvoice(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("invoice.number", inv.Number))
		writeJSON(w, http.StatusCreated, inv)
	}
}

func getInvoiceHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := store.GetInvoice(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	}
}

func updateInvoiceHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/invoices/{id}")
		defer span.End()

		var req domain.Invoice
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		req.ID = chi.URLParam(r, "id")

		inv, err := store.UpdateInvoice(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	}
}

func deleteInvoiceHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteInvoice(r.Context(), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type invoiceStatusRequest struct {
	Status domain.InvoiceStatus `json:"status" validate:"required,oneof=DRAFT SENT PAID OVERDUE"`
}

func invoiceStatusHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invoiceStatusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		inv, err := store.SetInvoiceStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	}
}

// ============================================================
// Recurring invoices
// ============================================================

func listRecurringHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.ListRecurringInvoices(r.Context()))
	}
}

func addRecurringHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.RecurringInvoice
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ri, err := store.AddRecurringInvoice(r.Context(), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, ri)
	}
}

type activeRequest struct {
	Active bool `json:"active"`
}

func recurringActiveHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req activeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ri, err := store.SetRecurringInvoiceActive(r.Context(), chi.URLParam(r, "id"), req.Active)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, ri)
	}
}

type runResponse struct {
	Created int `json:"created"`
}

// runRecurringHandler triggers one generation pass outside the schedule.
func runRecurringHandler(store *service.Store, scheduler *service.InvoiceScheduler, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/recurring-invoices/run")
		defer span.End()

		var (
			n   int
			err error
		)
		if scheduler != nil {
			n, err = scheduler.RunNow(ctx)
		} else {
			var created []domain.Invoice
			created, err = store.GenerateDueInvoices(ctx, time.Now())
			n = len(created)
		}
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, runResponse{Created: n})
	}
}
