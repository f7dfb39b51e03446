package handler

import (
	"net/http"
	"strings"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Sessions
// ============================================================

// listSessionsHandler supports ?coachee=<id>, ?name=<full name> (used when
// no id is given), ?filter=today, ?status=<status> and ?archived=true.
func listSessionsHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/sessions")
		defer span.End()

		coacheeID, err := optionalIntQuery(r, "coachee")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		q := r.URL.Query()
		if coacheeID == nil && q.Get("name") != "" {
			id, ok := coacheeByName(store.ListCoachees(ctx), q.Get("name"))
			if !ok {
				writeJSON(w, http.StatusOK, []domain.Session{})
				return
			}
			coacheeID = &id
		}

		f := domain.SessionFilter{
			CoacheeID:       coacheeID,
			Today:           q.Get("filter") == "today",
			Status:          domain.SessionStatus(q.Get("status")),
			IncludeArchived: boolQuery(r, "archived"),
		}
		span.SetAttributes(attribute.Bool("filter.today", f.Today))
		writeJSON(w, http.StatusOK, store.ListSessions(ctx, f))
	}
}

func coacheeByName(coachees []domain.Coachee, name string) (int, bool) {
	name = strings.TrimSpace(name)
	for _, c := range coachees {
		if strings.EqualFold(c.FullName(), name) {
			return c.ID, true
		}
	}
	return 0, false
}

func addSessionHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions")
		defer span.End()

		var req domain.Session
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		s, err := store.AddSession(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, s)
	}
}

func getSessionHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := store.GetSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func updateSessionHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/sessions/{id}")
		defer span.End()

		var req domain.Session
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		req.ID = chi.URLParam(r, "id")

		s, err := store.UpdateSession(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func deleteSessionHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type sessionStatusRequest struct {
	Status domain.SessionStatus `json:"status" validate:"required,oneof=PLANNED COMPLETED CANCELED"`
}

// sessionStatusHandler changes the status. Completing a session that is
// linked to a package deducts one unit.
func sessionStatusHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sessions/{id}/status")
		defer span.End()

		var req sessionStatusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("session.id", id), attribute.String("session.status", string(req.Status)))

		s, err := store.SetSessionStatus(ctx, id, req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

type archiveRequest struct {
	Archived bool `json:"archived"`
}

func archiveSessionHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req archiveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		s, err := store.ArchiveSession(r.Context(), chi.URLParam(r, "id"), req.Archived)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func prepareSessionHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/sessions/{id}/prepare")
		defer span.End()

		prep, err := store.PrepareSession(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, prep)
	}
}

// ============================================================
// Session notes
// ============================================================

type noteRequest struct {
	Content string `json:"content" validate:"required"`
}

func listNotesHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.ListSessionNotes(r.Context(), chi.URLParam(r, "id")))
	}
}

func addNoteHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req noteRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		n, err := store.AddSessionNote(r.Context(), chi.URLParam(r, "id"), req.Content)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, n)
	}
}

func updateNoteHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req noteRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		n, err := store.UpdateSessionNote(r.Context(), chi.URLParam(r, "noteId"), req.Content)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}
