package handler

import (
	"net/http"
	"strings"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Coachees
// ============================================================

func listCoacheesHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.ListCoachees(r.Context()))
	}
}

func addCoacheeHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/coachees")
		defer span.End()

		var req domain.NewCoachee
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		c, err := store.AddCoachee(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("coachee.id", c.ID))
		writeJSON(w, http.StatusCreated, c)
	}
}

// getCoacheeHandler returns the coachee together with its related records.
func getCoacheeHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/coachees/{id}")
		defer span.End()

		id, err := intParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		detail, err := store.GetCoacheeByID(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func updateCoacheeHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/coachees/{id}")
		defer span.End()

		id, err := intParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req domain.Coachee
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		req.ID = id

		c, err := store.UpdateCoachee(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

type portalResetResponse struct {
	Coachee    *domain.Coachee `json:"coachee"`
	PortalLink string          `json:"portalLink"`
}

func resetPortalHandler(portal *service.PortalService, baseURL string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/coachees/{id}/portal/reset")
		defer span.End()

		id, err := intParam(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		c, err := portal.ResetPortalAccess(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		resp := portalResetResponse{Coachee: c}
		if c.PortalAccess.InitialToken != nil {
			resp.PortalLink = strings.TrimSuffix(baseURL, "/") + service.PortalPath(*c.PortalAccess.InitialToken)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
