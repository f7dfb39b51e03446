package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Journal
// ============================================================

func listJournalHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coacheeID, err := optionalIntQuery(r, "coachee")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, store.ListJournalEntries(r.Context(), coacheeID))
	}
}

func addJournalHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.JournalEntry
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		e, err := store.AddJournalEntry(r.Context(), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func updateJournalHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.JournalEntry
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		req.ID = chi.URLParam(r, "id")
		e, err := store.UpdateJournalEntry(r.Context(), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func deleteJournalHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteJournalEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Tools
// ============================================================

func listToolsHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.ListTools(r.Context(), r.URL.Query().Get("category")))
	}
}

func addToolHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.Tool
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		t, err := store.AddTool(r.Context(), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

type toolUsageRequest struct {
	CoacheeID *int `json:"coacheeId"`
}

func toolUsageHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolUsageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		t, err := store.RecordToolUsage(r.Context(), chi.URLParam(r, "id"), req.CoacheeID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// ============================================================
// Settings
// ============================================================

func getSettingsHandler(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Settings(r.Context()))
	}
}

func updateSettingsHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.Settings
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		out, err := store.UpdateSettings(r.Context(), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ============================================================
// Backup & restore
// ============================================================

func backupHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/backup")
		defer span.End()

		snap, err := store.Backup(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		name := fmt.Sprintf("coachspace-backup-%s.json", snap.ExportedAt.Format("2006-01-02"))
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		writeJSON(w, http.StatusOK, snap)
	}
}

type restoreResponse struct {
	Restored   bool      `json:"restored"`
	RestoredAt time.Time `json:"restoredAt"`
}

func restoreHandler(store *service.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/restore")
		defer span.End()

		var snap domain.Snapshot
		if err := decodeJSON(w, r, &snap); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := store.Restore(ctx, &snap); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		logger.Info("backup restored", zap.String("user_id", UserIDFromContext(ctx)))
		writeJSON(w, http.StatusOK, restoreResponse{Restored: true, RestoredAt: time.Now()})
	}
}

// ============================================================
// Feedback
// ============================================================

func feedbackHandler(svc *service.FeedbackService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/feedback")
		defer span.End()

		var req domain.Feedback
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := svc.SubmitFeedback(ctx, UserIDFromContext(ctx), req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
