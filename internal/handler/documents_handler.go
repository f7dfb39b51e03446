package handler

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxUploadMemory is the multipart part kept in memory; larger files spill
// to temporary files.
const maxUploadMemory = 8 << 20

// ============================================================
// Documents
// ============================================================

// listDocumentsHandler supports ?coachee=<id>, ?category=<name> and
// ?shared=true.
func listDocumentsHandler(svc *service.DocumentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coacheeID, err := optionalIntQuery(r, "coachee")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		f := domain.DocumentFilter{
			CoacheeID:  coacheeID,
			Category:   r.URL.Query().Get("category"),
			SharedOnly: boolQuery(r, "shared"),
		}
		writeJSON(w, http.StatusOK, svc.ListDocuments(r.Context(), f))
	}
}

type documentMetadataRequest struct {
	CoacheeID   *int   `json:"coacheeId"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	FileName    string `json:"fileName" validate:"required"`
	Size        int64  `json:"size" validate:"gte=0"`
	ContentType string `json:"contentType"`
	Shared      bool   `json:"shared"`
	Description string `json:"description"`
}

// uploadDocumentHandler accepts either a multipart form with a "file" part
// or a JSON body that records metadata only.
func uploadDocumentHandler(svc *service.DocumentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/documents")
		defer span.End()

		var in service.DocumentUpload
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
				handleServiceError(w, &domain.ErrValidation{Field: "file", Message: err.Error()}, logger)
				return
			}
			file, header, err := r.FormFile("file")
			if err != nil {
				handleServiceError(w, &domain.ErrValidation{Field: "file", Message: "required"}, logger)
				return
			}
			defer file.Close()

			coacheeID, err := optionalIntForm(r, "coacheeId")
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			shared, _ := strconv.ParseBool(r.FormValue("shared"))
			in = service.DocumentUpload{
				CoacheeID:   coacheeID,
				Name:        r.FormValue("name"),
				Category:    r.FormValue("category"),
				FileName:    header.Filename,
				Size:        header.Size,
				ContentType: header.Header.Get("Content-Type"),
				Shared:      shared,
				Description: r.FormValue("description"),
				Body:        file,
			}
		} else {
			var req documentMetadataRequest
			if err := decodeJSON(w, r, &req); err != nil {
				handleServiceError(w, err, logger)
				return
			}
			in = service.DocumentUpload{
				CoacheeID:   req.CoacheeID,
				Name:        req.Name,
				Category:    req.Category,
				FileName:    req.FileName,
				Size:        req.Size,
				ContentType: req.ContentType,
				Shared:      req.Shared,
				Description: req.Description,
			}
		}

		d, err := svc.AddDocument(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func optionalIntForm(r *http.Request, name string) (*int, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &domain.ErrValidation{Field: name, Message: "must be an integer"}
	}
	return &v, nil
}

func updateDocumentHandler(svc *service.DocumentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.Document
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		req.ID = chi.URLParam(r, "id")
		d, err := svc.UpdateDocument(r.Context(), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func deleteDocumentHandler(svc *service.DocumentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type downloadResponse struct {
	URL string `json:"url"`
}

func downloadDocumentHandler(svc *service.DocumentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := svc.DocumentDownloadURL(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, downloadResponse{URL: url})
	}
}
