package handler

import (
	"net/http"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Coachee portal
// ============================================================

// Portal spans never carry the token itself.

type portalPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// portalOpenHandler resolves the token into a portal state. Unknown tokens
// answer 404 with state INVALID.
func portalOpenHandler(portal *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/portal/{token}")
		defer span.End()

		view, err := portal.Open(ctx, chi.URLParam(r, "token"), r.Header.Get(PortalSessionHeader))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("portal.state", string(view.State)))

		status := http.StatusOK
		if view.State == domain.PortalInvalid {
			status = http.StatusNotFound
		}
		writeJSON(w, status, view)
	}
}

// portalSetupHandler sets the first password. The response redirects to
// the permanent link and carries an unlocked session id.
func portalSetupHandler(portal *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/portal/{token}/setup")
		defer span.End()

		var req portalPasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		view, err := portal.SetupPassword(ctx, chi.URLParam(r, "token"), req.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.Header().Set(PortalSessionHeader, view.SessionID)
		writeJSON(w, http.StatusOK, view)
	}
}

func portalUnlockHandler(portal *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/portal/{token}/unlock")
		defer span.End()

		var req portalPasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		view, err := portal.Unlock(ctx, chi.URLParam(r, "token"), req.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.Header().Set(PortalSessionHeader, view.SessionID)
		writeJSON(w, http.StatusOK, view)
	}
}

func portalDataHandler(portal *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := portal.PortalData(r.Context(), chi.URLParam(r, "token"), r.Header.Get(PortalSessionHeader))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func portalSaveDataHandler(portal *service.PortalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/portal/{token}/data")
		defer span.End()

		var req domain.PortalData
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		data, err := portal.SavePortalData(ctx, chi.URLParam(r, "token"), r.Header.Get(PortalSessionHeader), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}
