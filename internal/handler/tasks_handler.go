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
// Tasks
// ============================================================

// listTasksHandler supports ?coachee=<id>, ?personal=true and ?open=true.
func listTasksHandler(svc *service.TaskService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coacheeID, err := optionalIntQuery(r, "coachee")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		f := domain.TaskFilter{
			CoacheeID:    coacheeID,
			PersonalOnly: boolQuery(r, "personal"),
			OpenOnly:     boolQuery(r, "open"),
		}
		writeJSON(w, http.StatusOK, svc.ListTasks(r.Context(), f))
	}
}

func addTaskHandler(svc *service.TaskService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/tasks")
		defer span.End()

		var req domain.NewTask
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		t, err := svc.AddTask(ctx, UserIDFromContext(ctx), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func updateTaskHandler(svc *service.TaskService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/tasks/{id}")
		defer span.End()

		var req domain.TaskPatch
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		t, err := svc.UpdateTask(ctx, chi.URLParam(r, "id"), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func deleteTaskHandler(svc *service.TaskService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// syncTasksHandler pushes pending local changes and pulls the remote rows.
func syncTasksHandler(svc *service.TaskService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/tasks/sync")
		defer span.End()

		if !svc.RemoteEnabled() {
			writeError(w, http.StatusServiceUnavailable, "task sync not configured")
			return
		}
		report, err := svc.SyncTasks(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.Int("sync.pushed", report.Pushed),
			attribute.Int("sync.pulled", report.Pulled),
			attribute.Int("sync.failed", report.Failed),
		)
		writeJSON(w, http.StatusOK, report)
	}
}
